// Package queue implements the per-target-server queue engine (spec
// [MODULE] C7): priority-banded FIFO admission, pause/bypass rules and
// paced dispatch. It is generalized from the teacher's
// gammazero/deque-based `loginPluginMessages` buffer in
// session_client_play.go, widened from a single FIFO into one
// deque.Deque per priority band (0..100, sparse), with a monotonic
// insertion counter breaking ties within a band the way the deque's
// own ordering already does for a single band.
//
// Queue deliberately knows nothing about proto/proxy types: a caller
// supplies an AdmitFunc closure that performs the real backend switch,
// so this package stays import-cycle-free and independently testable.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/time/rate"
)

// Entry is one queued player (spec §4.7 QueueEntry).
type Entry struct {
	PlayerID             uuid.UUID
	Priority             int
	FullBypass           bool
	QueueBypass          bool
	Attempts             int
	WaitingForConnection bool
	// Locale is the player's client locale (spec §3 Player.locale), in
	// the underscore form Minecraft's ClientSettings packet sends (e.g.
	// "en_us"), which formatPosition converts to BCP-47; used to render the position announcement in the
	// player's own numeral/grouping conventions. Empty means "use the
	// default".
	Locale string

	seq uint64
}

// AdmitFunc performs the real backend switch for a dispatched entry;
// a nil error means the switch succeeded.
type AdmitFunc func(ctx context.Context, playerID uuid.UUID, target string) error

// ErrBanned signals that the switch failed because the target kicked
// the player with a reason matching a configured banned-reason
// substring; the spec §4.6.1 shutdown-requeue guard extends to any
// queue re-admission: a banned kick is never retried, regardless of
// max-send-retries.
var ErrBanned = errors.New("queue: target kicked with a banned reason")

// MessageFunc delivers the queue position action-bar text to a queued
// player (spec §4.7 "position N of M, ETA ~K s").
type MessageFunc func(playerID uuid.UUID, text string)

// Config mirrors config.QueueConfig's timing knobs; kept as a plain
// struct here so pkg/queue has no dependency on pkg/config.
type Config struct {
	SendDelay          time.Duration
	MessageDelay       time.Duration
	MaxSendRetries     int
	AllowMultiQueue    bool
	NoQueueServers     map[string]bool
	AllowPausedJoining bool
}

// Queue is one target server's admission line (spec §4.7 "One Queue
// per target server, independent").
type Queue struct {
	mu       sync.Mutex
	target   string
	bands    map[int]*deque.Deque[*Entry]
	byPlayer map[uuid.UUID]*Entry
	paused   bool
	seq      uint64
}

func newQueue(target string) *Queue {
	return &Queue{target: target, bands: make(map[int]*deque.Deque[*Entry]), byPlayer: make(map[uuid.UUID]*Entry)}
}

func (q *Queue) push(e *Entry) {
	q.seq++
	e.seq = q.seq
	d, ok := q.bands[e.Priority]
	if !ok {
		d = &deque.Deque[*Entry]{}
		q.bands[e.Priority] = d
	}
	d.PushBack(e)
	q.byPlayer[e.PlayerID] = e
}

// pushFront re-admits e at the head of its band, the retry path spec
// §4.7 names ("re-enqueues at the head").
func (q *Queue) pushFront(e *Entry) {
	d, ok := q.bands[e.Priority]
	if !ok {
		d = &deque.Deque[*Entry]{}
		q.bands[e.Priority] = d
	}
	d.PushFront(e)
	q.byPlayer[e.PlayerID] = e
}

// peekHighest returns the deque for the highest non-empty priority
// band without popping, or nil if the queue is empty.
func (q *Queue) peekHighest() *deque.Deque[*Entry] {
	best := -1
	for p, d := range q.bands {
		if d.Len() > 0 && p > best {
			best = p
		}
	}
	if best < 0 {
		return nil
	}
	return q.bands[best]
}

func (q *Queue) remove(playerID uuid.UUID) {
	e, ok := q.byPlayer[playerID]
	if !ok {
		return
	}
	delete(q.byPlayer, playerID)
	d := q.bands[e.Priority]
	for i := 0; i < d.Len(); i++ {
		if d.At(i) == e {
			d.Remove(i)
			return
		}
	}
}

// Len reports the total number of queued entries across every band.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byPlayer)
}

// Position reports a player's 1-based place in line and the total
// queue size, ordered by priority then insertion sequence (spec §4.7
// "strictly by monotonic counter").
func (q *Queue) Position(playerID uuid.UUID) (pos, total int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	target, present := q.byPlayer[playerID]
	if !present {
		return 0, 0, false
	}
	total = len(q.byPlayer)
	ahead := 0
	for _, e := range q.byPlayer {
		if e.Priority > target.Priority || (e.Priority == target.Priority && e.seq < target.seq) {
			ahead++
		}
	}
	return ahead + 1, total, true
}

// Manager owns every target's Queue plus the banned-reason shutdown
// re-add guard (spec §4.6.1); it is the `pkg/queue` entry point wired
// into pkg/proxy.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	queues  map[string]*Queue
	inQueue map[uuid.UUID]map[string]bool // targets each player is queued for (LeaveAll, AllowMultiQueue=false enforcement)
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, queues: make(map[string]*Queue), inQueue: make(map[uuid.UUID]map[string]bool)}
}

func (m *Manager) queueFor(target string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[target]
	if !ok {
		q = newQueue(target)
		m.queues[target] = q
	}
	return q
}

// Bypassed reports whether e should skip the line entirely: a
// queue_bypass permission or the target being configured as
// no-queue (spec §4.7 enqueue steps 3-4).
func (m *Manager) Bypassed(target string, e *Entry) bool {
	if e.QueueBypass {
		return true
	}
	return m.cfg.NoQueueServers[target]
}

// Enqueue adds e to target's line, first removing the player from
// every other queue unless AllowMultiQueue is set (spec §4.7 "A player
// may be in multiple queues iff allow_multi_queue is true").
func (m *Manager) Enqueue(target string, e *Entry) {
	m.mu.Lock()
	var others []string
	if !m.cfg.AllowMultiQueue {
		for t := range m.inQueue[e.PlayerID] {
			if t != target {
				others = append(others, t)
				delete(m.inQueue[e.PlayerID], t)
			}
		}
	}
	if m.inQueue[e.PlayerID] == nil {
		m.inQueue[e.PlayerID] = make(map[string]bool)
	}
	m.inQueue[e.PlayerID][target] = true
	m.mu.Unlock()
	for _, t := range others {
		oq := m.queueFor(t)
		oq.mu.Lock()
		oq.remove(e.PlayerID)
		oq.mu.Unlock()
	}
	q := m.queueFor(target)
	q.mu.Lock()
	q.push(e)
	q.mu.Unlock()
}

// Leave removes playerID from target's queue (the `leavequeue`
// command).
func (m *Manager) Leave(target string, playerID uuid.UUID) {
	q := m.queueFor(target)
	q.mu.Lock()
	q.remove(playerID)
	q.mu.Unlock()
	m.mu.Lock()
	delete(m.inQueue[playerID], target)
	m.mu.Unlock()
}

// LeaveAll removes playerID from every queue, used when a player
// disconnects or is admitted (spec §4.7 "remove-player-on-server-switch").
func (m *Manager) LeaveAll(playerID uuid.UUID) {
	m.mu.Lock()
	targets := m.inQueue[playerID]
	delete(m.inQueue, playerID)
	m.mu.Unlock()
	for t := range targets {
		m.queueFor(t).mu.Lock()
		m.queueFor(t).remove(playerID)
		m.queueFor(t).mu.Unlock()
	}
}

func (m *Manager) Pause(target string, paused bool) {
	q := m.queueFor(target)
	q.mu.Lock()
	q.paused = paused
	q.mu.Unlock()
}

func (m *Manager) Paused(target string) bool {
	q := m.queueFor(target)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

func (m *Manager) Position(target string, playerID uuid.UUID) (pos, total int, ok bool) {
	return m.queueFor(target).Position(playerID)
}

// Targets lists every target with a non-empty queue (`queueadmin listqueues`).
func (m *Manager) Targets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name, q := range m.queues {
		if q.Len() > 0 {
			out = append(out, name)
		}
	}
	return out
}

// Dispatcher paces admission for one target off a single goroutine, so
// no two dispatch ticks ever race on the same queue (spec §5
// "no two dispatchers run for the same target"). Run blocks until its
// context is cancelled.
type Dispatcher struct {
	mgr     *Manager
	target  string
	admit   AdmitFunc
	message MessageFunc
}

func NewDispatcher(mgr *Manager, target string, admit AdmitFunc, message MessageFunc) *Dispatcher {
	return &Dispatcher{mgr: mgr, target: target, admit: admit, message: message}
}

// Run paces admission at send-delay via a token-bucket limiter (one
// admission per tick, no bursting) and announces queue positions at
// message-delay, until ctx is cancelled. Call it in its own goroutine
// per target.
func (d *Dispatcher) Run(ctx context.Context) {
	sendDelay := d.mgr.cfg.SendDelay
	if sendDelay <= 0 {
		sendDelay = 500 * time.Millisecond
	}
	msgDelay := d.mgr.cfg.MessageDelay
	if msgDelay <= 0 {
		msgDelay = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(sendDelay), 1)
	msgTick := time.NewTicker(msgDelay)
	defer msgTick.Stop()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		d.tryDispatch(ctx)
		select {
		case <-ctx.Done():
			return
		case <-msgTick.C:
			d.announcePositions()
		default:
		}
	}
}

func (d *Dispatcher) tryDispatch(ctx context.Context) {
	q := d.mgr.queueFor(d.target)
	q.mu.Lock()
	if q.paused {
		q.mu.Unlock()
		return
	}
	band := q.peekHighest()
	if band == nil {
		q.mu.Unlock()
		return
	}
	e := band.PopFront()
	delete(q.byPlayer, e.PlayerID)
	e.WaitingForConnection = true
	q.mu.Unlock()

	if err := d.admit(ctx, e.PlayerID, d.target); err != nil {
		e.WaitingForConnection = false
		if errors.Is(err, ErrBanned) {
			zap.S().Infof("dropping %s from queue %s: %v", e.PlayerID, d.target, err)
			return
		}
		e.Attempts++
		if e.Attempts >= d.mgr.cfg.MaxSendRetries {
			zap.S().Infof("dropping %s from queue %s after %d failed attempts", e.PlayerID, d.target, e.Attempts)
			return
		}
		q.mu.Lock()
		q.pushFront(e)
		q.mu.Unlock()
		return
	}

	d.mgr.mu.Lock()
	delete(d.mgr.inQueue[e.PlayerID], d.target)
	d.mgr.mu.Unlock()
}

func (d *Dispatcher) announcePositions() {
	q := d.mgr.queueFor(d.target)
	q.mu.Lock()
	entries := make([]*Entry, 0, len(q.byPlayer))
	for _, e := range q.byPlayer {
		entries = append(entries, e)
	}
	q.mu.Unlock()
	for _, e := range entries {
		pos, total, ok := q.Position(e.PlayerID)
		if !ok {
			continue
		}
		eta := pos * int(d.mgr.cfg.SendDelay/time.Second)
		d.message(e.PlayerID, formatPosition(d.target, pos, total, eta, e.Locale))
	}
}

// formatPosition renders the queue action-bar text (spec §4.7
// "position N of M, ETA ~K s") with golang.org/x/text/message, so
// position/total/ETA numbers are grouped the way the player's own
// client locale expects rather than hard-coded to one convention.
func formatPosition(target string, pos, total, etaSeconds int, locale string) string {
	tag := language.AmericanEnglish
	if locale != "" {
		if parsed, err := language.Parse(normalizeLocale(locale)); err == nil {
			tag = parsed
		}
	}
	p := message.NewPrinter(tag)
	return p.Sprintf("In queue for %s: position %d of %d, ETA ~%ds", target, pos, total, etaSeconds)
}

// normalizeLocale turns Minecraft's underscore locale tags ("en_us")
// into the BCP-47 hyphenated form golang.org/x/text/language.Parse
// expects ("en-us").
func normalizeLocale(locale string) string {
	out := make([]byte, len(locale))
	for i := 0; i < len(locale); i++ {
		if locale[i] == '_' {
			out[i] = '-'
		} else {
			out[i] = locale[i]
		}
	}
	return string(out)
}
