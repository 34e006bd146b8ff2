// Package fallback implements the two small policy decisions spec §4.5
// and §4.6 name for server switch/failover: how to order a dynamic
// list of fallback candidates, and what to do once a backend kicks a
// player (retry silently, notify and retry, or disconnect). It is
// deliberately generic over a minimal Candidate view rather than
// pkg/proxy's RegisteredServer, so pkg/proxy can import it without a
// cycle.
package fallback

import (
	"sort"
	"strings"
)

// Candidate is the minimal backend-server view the ordering policies
// need.
type Candidate struct {
	Name        string
	PlayerCount int
}

// Policy is `servers.dynamic-fallbacks-filter` (spec §6 Configuration).
type Policy string

const (
	FirstAvailable Policy = "FIRST_AVAILABLE"
	MostPopulated  Policy = "MOST_POPULATED"
	LeastPopulated Policy = "LEAST_POPULATED"
)

// ParsePolicy defaults to FirstAvailable for an unrecognized value,
// matching config.Validate already having rejected anything else at
// load time.
func ParsePolicy(s string) Policy {
	switch strings.ToUpper(s) {
	case string(MostPopulated):
		return MostPopulated
	case string(LeastPopulated):
		return LeastPopulated
	default:
		return FirstAvailable
	}
}

// Order reorders candidates per policy. FIRST_AVAILABLE preserves
// input order (the configured try-list order); the POPULATED policies
// stable-sort by player count, so a plugin's explicit try-list order
// still breaks ties.
func Order(policy Policy, candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	switch policy {
	case MostPopulated:
		sort.SliceStable(out, func(i, j int) bool { return out[i].PlayerCount > out[j].PlayerCount })
	case LeastPopulated:
		sort.SliceStable(out, func(i, j int) bool { return out[i].PlayerCount < out[j].PlayerCount })
	}
	return out
}

// Decision is the action the core takes after a backend kicks a
// player (spec §5.2 KickedFromServerEvent, §4.6.1 banned-reason guard).
type Decision int

const (
	// Redirect silently retries the next fallback candidate.
	Redirect Decision = iota
	// NotifyAndRedirect retries the next candidate but first tells the
	// player why the previous one kicked them (non-login kicks only).
	NotifyAndRedirect
	// Disconnect has no further candidate or the kick happened during
	// an unsafe phase (mid legacy-Forge handshake); the player is
	// dropped with the original reason.
	Disconnect
)

// Decide implements spec §5.2/§4.5's table: a kick received while the
// connection phase is "unsafe to switch" (mid legacy-Forge handshake)
// always disconnects, regardless of remaining candidates; otherwise a
// remaining candidate is tried, silently during the initial login
// attempt and with notification afterward.
func Decide(unsafeToSwitch, duringLogin, hasCandidate bool) Decision {
	if unsafeToSwitch || !hasCandidate {
		return Disconnect
	}
	if duringLogin {
		return Redirect
	}
	return NotifyAndRedirect
}
