package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnqueuePriorityOrdering mirrors spec §8's "Queue ordering"
// invariant and the §8 scenario 4 literal: entries [(A,0),(B,0),(C,50)]
// admit in order C, A, B.
func TestEnqueuePriorityOrdering(t *testing.T) {
	mgr := NewManager(Config{})
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mgr.Enqueue("hub", &Entry{PlayerID: a, Priority: 0})
	mgr.Enqueue("hub", &Entry{PlayerID: b, Priority: 0})
	mgr.Enqueue("hub", &Entry{PlayerID: c, Priority: 50})

	var admitted []uuid.UUID
	var mu sync.Mutex
	admit := func(ctx context.Context, playerID uuid.UUID, target string) error {
		mu.Lock()
		admitted = append(admitted, playerID)
		mu.Unlock()
		return nil
	}
	d := NewDispatcher(mgr, "hub", admit, func(uuid.UUID, string) {})
	d.tryDispatch(context.Background())
	d.tryDispatch(context.Background())
	d.tryDispatch(context.Background())

	assert.Equal(t, []uuid.UUID{c, a, b}, admitted)
	assert.Equal(t, 0, mgr.queueFor("hub").Len())
}

// TestMaxSendRetriesZeroDropsOnFirstFailure covers spec §8's boundary
// "Queue with max_send_retries=0 removes any entry on first attempt
// failure".
func TestMaxSendRetriesZeroDropsOnFirstFailure(t *testing.T) {
	mgr := NewManager(Config{MaxSendRetries: 0})
	pid := uuid.New()
	mgr.Enqueue("hub", &Entry{PlayerID: pid})

	admit := func(ctx context.Context, playerID uuid.UUID, target string) error {
		return assert.AnError
	}
	d := NewDispatcher(mgr, "hub", admit, func(uuid.UUID, string) {})
	d.tryDispatch(context.Background())

	assert.Equal(t, 0, mgr.queueFor("hub").Len())
}

// TestBannedKickNeverRetried covers §4.6.1: a banned-reason failure is
// dropped outright, even with retries remaining.
func TestBannedKickNeverRetried(t *testing.T) {
	mgr := NewManager(Config{MaxSendRetries: 100})
	pid := uuid.New()
	mgr.Enqueue("hub", &Entry{PlayerID: pid})

	admit := func(ctx context.Context, playerID uuid.UUID, target string) error {
		return ErrBanned
	}
	d := NewDispatcher(mgr, "hub", admit, func(uuid.UUID, string) {})
	d.tryDispatch(context.Background())

	assert.Equal(t, 0, mgr.queueFor("hub").Len())
}

// TestFailureRetriesThenSucceeds checks a transient failure keeps the
// entry at the head of its band and increments attempts rather than
// dropping it immediately.
func TestFailureRetriesThenSucceeds(t *testing.T) {
	mgr := NewManager(Config{MaxSendRetries: 3})
	pid := uuid.New()
	mgr.Enqueue("hub", &Entry{PlayerID: pid})

	attempt := 0
	admit := func(ctx context.Context, playerID uuid.UUID, target string) error {
		attempt++
		if attempt < 2 {
			return assert.AnError
		}
		return nil
	}
	d := NewDispatcher(mgr, "hub", admit, func(uuid.UUID, string) {})
	d.tryDispatch(context.Background())
	require.Equal(t, 1, mgr.queueFor("hub").Len())
	d.tryDispatch(context.Background())
	assert.Equal(t, 0, mgr.queueFor("hub").Len())
	assert.Equal(t, 2, attempt)
}

// TestBypassedSkipsLine covers §4.7 enqueue steps 3-4: queue_bypass and
// no-queue-servers both bypass the line entirely.
func TestBypassedSkipsLine(t *testing.T) {
	mgr := NewManager(Config{NoQueueServers: map[string]bool{"lobby": true}})
	assert.True(t, mgr.Bypassed("lobby", &Entry{}))
	assert.True(t, mgr.Bypassed("hub", &Entry{QueueBypass: true}))
	assert.False(t, mgr.Bypassed("hub", &Entry{}))
}

// TestAllowMultiQueueFalseRemovesFromOtherQueues covers §4.7 "A player
// may be in multiple queues iff allow_multi_queue is true; otherwise
// enqueue removes them from all others first".
func TestAllowMultiQueueFalseRemovesFromOtherQueues(t *testing.T) {
	mgr := NewManager(Config{AllowMultiQueue: false})
	pid := uuid.New()
	mgr.Enqueue("a", &Entry{PlayerID: pid})
	mgr.Enqueue("b", &Entry{PlayerID: pid})

	assert.Equal(t, 0, mgr.queueFor("a").Len())
	assert.Equal(t, 1, mgr.queueFor("b").Len())
}

func TestAllowMultiQueueTrueKeepsBothQueues(t *testing.T) {
	mgr := NewManager(Config{AllowMultiQueue: true})
	pid := uuid.New()
	mgr.Enqueue("a", &Entry{PlayerID: pid})
	mgr.Enqueue("b", &Entry{PlayerID: pid})

	assert.Equal(t, 1, mgr.queueFor("a").Len())
	assert.Equal(t, 1, mgr.queueFor("b").Len())
}

// TestPositionOrdersByPriorityThenInsertion covers spec §8's "Queue
// ordering" invariant directly against Position rather than dispatch.
func TestPositionOrdersByPriorityThenInsertion(t *testing.T) {
	mgr := NewManager(Config{})
	first, second, third := uuid.New(), uuid.New(), uuid.New()
	mgr.Enqueue("hub", &Entry{PlayerID: first, Priority: 0})
	mgr.Enqueue("hub", &Entry{PlayerID: second, Priority: 0})
	mgr.Enqueue("hub", &Entry{PlayerID: third, Priority: 10})

	pos, total, ok := mgr.Position("hub", third)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 3, total)

	pos, _, ok = mgr.Position("hub", first)
	require.True(t, ok)
	assert.Equal(t, 2, pos)

	pos, _, ok = mgr.Position("hub", second)
	require.True(t, ok)
	assert.Equal(t, 3, pos)
}

func TestLeaveAllRemovesFromEveryQueue(t *testing.T) {
	mgr := NewManager(Config{AllowMultiQueue: true})
	pid := uuid.New()
	mgr.Enqueue("a", &Entry{PlayerID: pid})
	mgr.Enqueue("b", &Entry{PlayerID: pid})

	mgr.LeaveAll(pid)

	assert.Equal(t, 0, mgr.queueFor("a").Len())
	assert.Equal(t, 0, mgr.queueFor("b").Len())
}

func TestFormatPositionHonorsLocaleGrouping(t *testing.T) {
	us := formatPosition("hub", 1234, 5678, 9000, "en_us")
	assert.Contains(t, us, "1,234")
	assert.Contains(t, us, "5,678")

	de := formatPosition("hub", 1234, 5678, 9000, "de_de")
	assert.Contains(t, de, "1.234")
}

func TestFormatPositionFallsBackOnUnknownLocale(t *testing.T) {
	got := formatPosition("hub", 1, 2, 3, "not-a-real-locale")
	assert.Contains(t, got, "hub")
	assert.Contains(t, got, "position 1 of 2")
}

func TestPauseSkipsDispatch(t *testing.T) {
	mgr := NewManager(Config{})
	mgr.Pause("hub", true)
	pid := uuid.New()
	mgr.Enqueue("hub", &Entry{PlayerID: pid})

	called := false
	admit := func(ctx context.Context, playerID uuid.UUID, target string) error {
		called = true
		return nil
	}
	d := NewDispatcher(mgr, "hub", admit, func(uuid.UUID, string) {})
	d.tryDispatch(context.Background())

	assert.False(t, called)
	assert.Equal(t, 1, mgr.queueFor("hub").Len())
}
