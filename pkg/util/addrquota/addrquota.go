// Package addrquota implements the per-remote-IP login rate limit of
// spec §4.4.1 as a map of token-bucket limiters, one bucket per
// address. Buckets idle for 10 intervals are swept once the map holds
// 4096 or more addresses.
package addrquota

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Quota tracks one rate.Limiter per address. Each address is allowed a
// single login attempt per interval; a burst of 1 means an address that
// just failed must wait out the full interval before retrying, matching
// the "earlier retries are rejected without opening a login session"
// boundary behavior in spec §8.
type Quota struct {
	mu       sync.Mutex
	interval time.Duration
	buckets  map[string]*bucket
}

type bucket struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// New returns a Quota allowing one attempt per interval, per address.
func New(interval time.Duration) *Quota {
	return &Quota{
		interval: interval,
		buckets:  make(map[string]*bucket),
	}
}

// Allow reports whether the host part of addr.String() (the whole
// string if it has no port) may attempt a login right now, consuming a
// token if so.
func (q *Quota) Allow(addr net.Addr) bool {
	if q.interval <= 0 {
		return true
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.buckets[host]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(q.interval), 1)}
		q.buckets[host] = b
	}
	b.lastUse = time.Now()
	q.evictLocked()
	return b.limiter.Allow()
}

// evictLocked drops buckets untouched for 10 intervals, once the map
// holds 4096 or more entries, to bound memory growth from
// scanning/one-shot clients. Caller must hold q.mu.
func (q *Quota) evictLocked() {
	if len(q.buckets) < 4096 {
		return
	}
	cutoff := time.Now().Add(-10 * q.interval)
	for host, b := range q.buckets {
		if b.lastUse.Before(cutoff) {
			delete(q.buckets, host)
		}
	}
}
