// Package event implements the in-process event bus the proxy core
// fires plugin-visible events through (DisconnectEvent,
// CommandExecuteEvent, PluginMessageEvent, PlayerSettingsChangedEvent,
// etc). The plugin/extension host itself is out of scope (spec §1);
// this package only provides the publish/subscribe surface the core
// depends on, generalized from the teacher's c.proxy().event.Fire(...)
// call sites.
package event

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// pluginEventSemaphore bounds how many FireWithTimeout calls may be
// waiting on a handler at once, the concurrency half of spec §5's
// "Plugin-event futures are bounded by a 5-second timeout": each fire
// is both time-boxed and rate-limited against unbounded goroutine
// growth if many connections hit a slow handler simultaneously.
var pluginEventSemaphore = semaphore.NewWeighted(128)

// Event is any value fired through the Manager.
type Event interface{}

// Handler observes or mutates an Event.
type Handler func(Event)

// Manager is a simple typed pub/sub bus with priority-ordered,
// synchronous handlers plus a parallel fire-and-continue mode for
// notifications nothing needs to block on.
type Manager struct {
	mu   sync.RWMutex
	subs map[string][]subscription
}

type subscription struct {
	priority int
	handler  Handler
}

func NewManager() *Manager {
	return &Manager{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for events of the same dynamic type as
// sample, ordered by priority (higher runs first).
func Subscribe(m *Manager, sample Event, priority int, fn Handler) {
	key := typeKey(sample)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[key] = append(m.subs[key], subscription{priority: priority, handler: fn})
	sort.SliceStable(m.subs[key], func(i, j int) bool {
		return m.subs[key][i].priority > m.subs[key][j].priority
	})
}

// Fire runs every subscribed handler for ev's type synchronously, in
// priority order, then invokes done (if non-nil) with the final event.
// A panicking handler is recovered and treated as a PluginEventError
// (spec §7): logged, event allowed with its original result.
func (m *Manager) Fire(ev Event, done ...func(Event)) {
	m.mu.RLock()
	subs := append([]subscription(nil), m.subs[typeKey(ev)]...)
	m.mu.RUnlock()
	for _, s := range subs {
		callSafely(s.handler, ev)
	}
	for _, d := range done {
		d(ev)
	}
}

// FireParallel fires handlers concurrently and returns once every
// handler has been started, without waiting for them to finish; used
// for pure notifications (chat, settings changed) where no caller
// needs to observe mutation. Fan-out is bounded via errgroup.SetLimit
// so a type with many subscribers can't spawn an unbounded goroutine
// burst per event: with more than 32 handlers in flight, the call
// blocks until a slot frees up.
func (m *Manager) FireParallel(ev Event) {
	m.mu.RLock()
	subs := append([]subscription(nil), m.subs[typeKey(ev)]...)
	m.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(32)
	for _, s := range subs {
		s := s
		g.Go(func() error {
			callSafely(s.handler, ev)
			return nil
		})
	}
	go g.Wait() // no caller observes completion; just bound the fan-out
}

// FireWithTimeout runs Fire but gives up waiting after timeout,
// matching spec §5's "Plugin-event futures are bounded by a 5-second
// timeout before the core falls back to the default decision." Acquires
// pluginEventSemaphore first so the bound applies across concurrently
// firing connections, not just within a single Fire call.
func (m *Manager) FireWithTimeout(ctx context.Context, ev Event, timeout time.Duration) {
	if err := pluginEventSemaphore.Acquire(ctx, 1); err != nil {
		return
	}
	defer pluginEventSemaphore.Release(1)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		m.Fire(ev)
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(timeout):
	case <-gctx.Done():
	}
}

func callSafely(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			// Per spec §7 KindPluginEvent: log and keep going, never
			// punish the player for a broken handler.
			zap.S().Warnf("event: handler panicked: %v", r)
		}
	}()
	h(ev)
}

func typeKey(ev Event) string {
	t := reflect.TypeOf(ev)
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
