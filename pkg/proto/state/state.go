// Package state implements the packet catalog of spec §4.2: a static
// table mapping (state, direction, protocol version) to a wire packet
// id, with step-wise version mappings so a single logical packet can
// change id across versions without call sites branching on version.
package state

import "github.com/fleetgate/fleetgate/pkg/proto"

// Registry is one of the five connection states (Handshake, Status,
// Login, Config, Play). It owns the versioned id tables for both
// directions.
type Registry struct {
	Name    string
	bound   map[proto.Direction]*directionRegistry
}

type directionRegistry struct {
	// byKind maps a logical PacketID to its version step table.
	byKind map[proto.PacketID][]mapping
	// decode maps a wire id to the mapping list whose packets might
	// use it, resolved against the connection's protocol at decode time.
	decode map[int][]decodeEntry
}

type mapping struct {
	fromVersion  proto.Protocol
	id           int
	supersededBy proto.Protocol // 0 means "no upper bound"
}

type decodeEntry struct {
	kind proto.PacketID
	m    mapping
}

func newDirectionRegistry() *directionRegistry {
	return &directionRegistry{
		byKind: make(map[proto.PacketID][]mapping),
		decode: make(map[int][]decodeEntry),
	}
}

// Map registers that, from fromVersion (inclusive) until the next
// higher registered fromVersion for the same kind, the wire id for kind
// in this direction is id.
func (d *directionRegistry) Map(kind proto.PacketID, fromVersion proto.Protocol, id int) {
	d.byKind[kind] = append(d.byKind[kind], mapping{fromVersion: fromVersion, id: id})
	d.decode[id] = append(d.decode[id], decodeEntry{kind: kind, m: mapping{fromVersion: fromVersion, id: id}})
}

// finalize computes supersededBy for each kind's mapping list once all
// Map calls have been issued, by sorting on fromVersion and pointing
// each entry's upper bound at the next entry's fromVersion.
func (r *Registry) finalize() {
	for _, dir := range r.bound {
		for kind, ms := range dir.byKind {
			sortMappings(ms)
			for i := range ms {
				if i+1 < len(ms) {
					ms[i].supersededBy = ms[i+1].fromVersion
				}
			}
			dir.byKind[kind] = ms
		}
		// Recompute decode index with finalized supersededBy bounds.
		dir.decode = make(map[int][]decodeEntry)
		for kind, ms := range dir.byKind {
			for _, m := range ms {
				dir.decode[m.id] = append(dir.decode[m.id], decodeEntry{kind: kind, m: m})
			}
		}
	}
}

func sortMappings(ms []mapping) {
	for i := 1; i < len(ms); i++ {
		for j := i; j > 0 && ms[j-1].fromVersion > ms[j].fromVersion; j-- {
			ms[j-1], ms[j] = ms[j], ms[j-1]
		}
	}
}

// EncodeID returns the wire id for kind at protocol version v in
// direction dir, and whether this state even carries that kind.
func (r *Registry) EncodeID(kind proto.PacketID, dir proto.Direction, v proto.Protocol) (int, bool) {
	dr, ok := r.bound[dir]
	if !ok {
		return 0, false
	}
	ms := dr.byKind[kind]
	id, ok := effective(ms, v)
	return id, ok
}

// DecodeKind resolves a wire id seen at protocol version v in direction
// dir back to a logical PacketID.
func (r *Registry) DecodeKind(wireID int, dir proto.Direction, v proto.Protocol) (proto.PacketID, bool) {
	dr, ok := r.bound[dir]
	if !ok {
		return 0, false
	}
	for _, e := range dr.decode[wireID] {
		if inRange(e.m, v) {
			return e.kind, true
		}
	}
	return 0, false
}

func effective(ms []mapping, v proto.Protocol) (int, bool) {
	var best *mapping
	for i := range ms {
		if inRange(ms[i], v) {
			best = &ms[i]
		}
	}
	if best == nil {
		return 0, false
	}
	return best.id, true
}

func inRange(m mapping, v proto.Protocol) bool {
	if v.Lower(m.fromVersion) {
		return false
	}
	if m.supersededBy != 0 && v.GreaterEqual(m.supersededBy) {
		return false
	}
	return true
}

func newRegistry(name string) *Registry {
	return &Registry{
		Name: name,
		bound: map[proto.Direction]*directionRegistry{
			proto.ServerBound: newDirectionRegistry(),
			proto.ClientBound: newDirectionRegistry(),
		},
	}
}

// Dir returns the mutable per-direction table, used only by the
// catalog construction in this package.
func (r *Registry) Dir(d proto.Direction) *directionRegistry { return r.bound[d] }
