// Package fleetqueue implements the fleet-coordinated variant of the
// queue engine (spec §4.7 "Fleet mode"): when `redis.enabled`, queue
// admission state is authoritative only on the configured master
// proxy(es), and non-master proxies forward their enqueue/leave/pause
// operations to the master over pkg/fleet instead of mutating a local
// pkg/queue.Manager directly.
//
// It is grounded the same way pkg/fleet itself is: a JSON envelope
// dispatched through fleet.Bus.Handle, with a per-attempt uuid
// correlating a master's dispatch decision to the hosting proxy's
// report of what happened — the "SwitchServer ... QueueSendStatus
// correlated by a per-attempt UUID" sequence spec §4.7 describes.
package fleetqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/fleet"
	"github.com/fleetgate/fleetgate/pkg/queue"
)

// errNotSuccessful is returned when a SwitchServer attempt's
// correlated SendStatus reports failure without a banned-reason
// match, so the caller's normal retry/attempts bookkeeping applies.
var errNotSuccessful = errors.New("fleetqueue: backend did not report success")

// Packet ids this package adds to the fleet envelope (spec §4.8
// "Queue ops").
const (
	PacketQueueEnqueue     = "redis-queue-enqueue"
	PacketQueueLeave       = "redis-queue-leave"
	PacketQueuePause       = "redis-queue-pause"
	PacketQueueSendStatus  = "redis-queue-send-status"
	PacketQueueAlreadyIn   = "redis-queue-already-joined"
	PacketSetQueuedServer  = "set-queued-server"
	PacketSwitchServer     = "switch-server"
)

// EnqueueRequest is published by a non-master proxy asking the master
// to admit playerID into target's queue.
type EnqueueRequest struct {
	ProxyID     string    `json:"proxyId"`
	PlayerUUID  uuid.UUID `json:"playerUuid"`
	Target      string    `json:"target"`
	Priority    int       `json:"priority"`
	FullBypass  bool      `json:"fullBypass"`
	QueueBypass bool      `json:"queueBypass"`
	Locale      string    `json:"locale,omitempty"`
}

// LeaveRequest asks the master to remove playerID from target's queue
// (or every queue, if Target is empty).
type LeaveRequest struct {
	PlayerUUID uuid.UUID `json:"playerUuid"`
	Target     string    `json:"target,omitempty"`
}

// PauseRequest asks the master to pause/unpause target's queue.
type PauseRequest struct {
	Target string `json:"target"`
	Paused bool   `json:"paused"`
}

// SwitchServer is published by the master, addressed to the proxy
// presently hosting PlayerUUID, telling it to attempt the real backend
// switch (spec §4.7 "Fleet mode" step 2).
type SwitchServer struct {
	AttemptID  uuid.UUID `json:"attemptId"`
	ProxyID    string    `json:"proxyId"`
	PlayerUUID uuid.UUID `json:"playerUuid"`
	Target     string    `json:"target"`
}

// SendStatus reports back the result of a SwitchServer attempt,
// correlated by AttemptID (spec §4.7 "QueueSendStatus correlated by a
// per-attempt UUID").
type SendStatus struct {
	AttemptID uuid.UUID `json:"attemptId"`
	Success   bool      `json:"success"`
	Banned    bool      `json:"banned"`
	Error     string    `json:"error,omitempty"`
}

// SetQueuedServer announces a player's current queue position holder
// (spec §4.8 "set-queued-server"), used by proxies that aren't the
// master to render queue status without owning queue state.
type SetQueuedServer struct {
	PlayerUUID uuid.UUID `json:"playerUuid"`
	Server     string    `json:"server"`
}

// ConnectFunc performs the real backend switch for a SwitchServer
// request this proxy was addressed by; a nil error means the switch
// succeeded.
type ConnectFunc func(ctx context.Context, playerID uuid.UUID, target string) error

// Master runs the authoritative queue admission side on a master
// proxy: it owns a *queue.Manager, accepts forwarded enqueue/leave/
// pause ops from the fleet, and dispatches admission via SwitchServer
// packets rather than a local AdmitFunc.
type Master struct {
	bus     *fleet.Bus
	mgr     *queue.Manager
	proxyID string

	mu      sync.Mutex
	pending map[uuid.UUID]chan SendStatus
}

// NewMaster wires mgr as the authoritative queue.Manager for bus's
// fleet and registers the packet handlers spec §4.7 "Fleet mode"
// names. Callers still start one queue.Dispatcher per target as in
// local-only mode, but must pass Master.Admit as the AdmitFunc so
// dispatch goes out over the fleet instead of connecting locally.
func NewMaster(bus *fleet.Bus, mgr *queue.Manager, proxyID string) *Master {
	m := &Master{bus: bus, mgr: mgr, proxyID: proxyID, pending: make(map[uuid.UUID]chan SendStatus)}
	bus.Handle(PacketQueueEnqueue, func(raw json.RawMessage) {
		var req EnqueueRequest
		if json.Unmarshal(raw, &req) != nil {
			return
		}
		e := &queue.Entry{PlayerID: req.PlayerUUID, Priority: req.Priority, FullBypass: req.FullBypass, QueueBypass: req.QueueBypass, Locale: req.Locale}
		if mgr.Bypassed(req.Target, e) {
			return
		}
		mgr.Enqueue(req.Target, e)
	})
	bus.Handle(PacketQueueLeave, func(raw json.RawMessage) {
		var req LeaveRequest
		if json.Unmarshal(raw, &req) != nil {
			return
		}
		if req.Target == "" {
			mgr.LeaveAll(req.PlayerUUID)
			return
		}
		mgr.Leave(req.Target, req.PlayerUUID)
	})
	bus.Handle(PacketQueuePause, func(raw json.RawMessage) {
		var req PauseRequest
		if json.Unmarshal(raw, &req) != nil {
			return
		}
		mgr.Pause(req.Target, req.Paused)
	})
	bus.Handle(PacketQueueSendStatus, func(raw json.RawMessage) {
		var status SendStatus
		if json.Unmarshal(raw, &status) != nil {
			return
		}
		m.mu.Lock()
		ch, ok := m.pending[status.AttemptID]
		m.mu.Unlock()
		if ok {
			ch <- status
		}
	})
	return m
}

// Admit is the queue.AdmitFunc a master's per-target queue.Dispatcher
// must use: it publishes a SwitchServer to the proxy currently hosting
// playerID (tracked via bus.Player) and blocks for that proxy's
// SendStatus, up to a 5s plugin-event-equivalent timeout.
func (m *Master) Admit(ctx context.Context, playerID uuid.UUID, target string) error {
	info, ok := m.bus.Player(playerID)
	if !ok {
		return queue.ErrBanned // player vanished fleet-wide; drop rather than retry forever
	}
	attempt := uuid.New()
	ch := make(chan SendStatus, 1)
	m.mu.Lock()
	m.pending[attempt] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, attempt)
		m.mu.Unlock()
	}()

	if err := m.bus.Publish(ctx, PacketSwitchServer, &SwitchServer{
		AttemptID: attempt, ProxyID: info.ProxyID, PlayerUUID: playerID, Target: target,
	}); err != nil {
		return err
	}

	select {
	case status := <-ch:
		if status.Banned {
			return queue.ErrBanned
		}
		if !status.Success {
			if status.Error != "" {
				zap.S().Infof("fleet queue admit of %s to %s failed: %s", playerID, target, status.Error)
			}
			return errNotSuccessful
		}
		return nil
	case <-time.After(5 * time.Second):
		return errNotSuccessful
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remote runs the forwarding side on a non-master proxy: enqueue/
// leave/pause calls publish requests to the fleet instead of touching
// a local queue.Manager, and SwitchServer packets addressed to this
// proxy are executed with connect and reported back.
type Remote struct {
	bus     *fleet.Bus
	proxyID string
	connect ConnectFunc
}

// NewRemote wires connect as the function that actually performs a
// backend switch when this proxy is told to by the master (spec §4.7
// step 2, "That proxy performs a local switch").
func NewRemote(bus *fleet.Bus, proxyID string, connect ConnectFunc) *Remote {
	r := &Remote{bus: bus, proxyID: proxyID, connect: connect}
	bus.Handle(PacketSwitchServer, func(raw json.RawMessage) {
		var req SwitchServer
		if json.Unmarshal(raw, &req) != nil || req.ProxyID != proxyID {
			return
		}
		go r.handleSwitch(req)
	})
	return r
}

func (r *Remote) handleSwitch(req SwitchServer) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := r.connect(ctx, req.PlayerUUID, req.Target)
	status := SendStatus{AttemptID: req.AttemptID, Success: err == nil}
	if err != nil {
		if errors.Is(err, queue.ErrBanned) {
			status.Banned = true
		} else {
			status.Error = err.Error()
		}
	}
	_ = r.bus.Publish(context.Background(), PacketQueueSendStatus, &status)
}

// Enqueue forwards an enqueue request to the master(s) rather than
// admitting locally.
func (r *Remote) Enqueue(ctx context.Context, e *queue.Entry, target string) error {
	return r.bus.Publish(ctx, PacketQueueEnqueue, &EnqueueRequest{
		ProxyID: r.proxyID, PlayerUUID: e.PlayerID, Target: target,
		Priority: e.Priority, FullBypass: e.FullBypass, QueueBypass: e.QueueBypass, Locale: e.Locale,
	})
}

// Leave forwards a leave request (target == "" removes from every
// queue, the `removeall` admin path).
func (r *Remote) Leave(ctx context.Context, playerID uuid.UUID, target string) error {
	return r.bus.Publish(ctx, PacketQueueLeave, &LeaveRequest{PlayerUUID: playerID, Target: target})
}

// Pause forwards a pause/unpause request.
func (r *Remote) Pause(ctx context.Context, target string, paused bool) error {
	return r.bus.Publish(ctx, PacketQueuePause, &PauseRequest{Target: target, Paused: paused})
}
