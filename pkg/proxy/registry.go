package proxy

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// playerRegistry holds the two player indexes spec §5 calls out as a
// concurrency hazard: insert into byNameLower first, then byUUID; on
// failure of the second, remove the first. Unregister removes both.
type playerRegistry struct {
	mu         sync.RWMutex
	byUUID     map[uuid.UUID]*connectedPlayer
	byNameLower map[string]*connectedPlayer
}

func newPlayerRegistry() *playerRegistry {
	return &playerRegistry{
		byUUID:      make(map[uuid.UUID]*connectedPlayer),
		byNameLower: make(map[string]*connectedPlayer),
	}
}

// find returns the player registered under id, if any, without
// mutating the registry (used to decide the duplicate-login policy in
// §4.4 before committing to kicking the existing connection).
func (r *playerRegistry) find(id uuid.UUID) (*connectedPlayer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byUUID[id]
	return p, ok
}

func (r *playerRegistry) findByName(name string) (*connectedPlayer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byNameLower[strings.ToLower(name)]
	return p, ok
}

// registerConnection performs the compare-and-set insert described in
// spec §5: name first, then uuid; unwind the name insert if the uuid
// slot is already occupied by a different connection that slipped in
// concurrently.
func (r *playerRegistry) registerConnection(p *connectedPlayer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(p.Username())
	if existing, ok := r.byNameLower[name]; ok && existing != p {
		return false
	}
	r.byNameLower[name] = p
	if existing, ok := r.byUUID[p.Id()]; ok && existing != p {
		delete(r.byNameLower, name)
		return false
	}
	r.byUUID[p.Id()] = p
	return true
}

// unregisterConnection removes p from both indexes iff it is still the
// registered occupant (a later connection may have already replaced
// it during a duplicate-login kick), returning whether it actually was
// removed.
func (r *playerRegistry) unregisterConnection(p *connectedPlayer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := false
	if existing, ok := r.byUUID[p.Id()]; ok && existing == p {
		delete(r.byUUID, p.Id())
		removed = true
	}
	if existing, ok := r.byNameLower[strings.ToLower(p.Username())]; ok && existing == p {
		delete(r.byNameLower, strings.ToLower(p.Username()))
		removed = true
	}
	return removed
}

func (r *playerRegistry) players() []*connectedPlayer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*connectedPlayer, 0, len(r.byUUID))
	for _, p := range r.byUUID {
		out = append(out, p)
	}
	return out
}

func (r *playerRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUUID)
}
