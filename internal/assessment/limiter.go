package assessment

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-examen/internal/domain"
)

// timedLimiter pairs a token bucket with its last use so idle buckets can be swept.
type timedLimiter struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// submitLimiter throttles submissions per answer. A zero rate disables it.
type submitLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	limiters  map[domain.ID]*timedLimiter
	lastSweep time.Time
}

func newSubmitLimiter(perSecond float64, burst int, idle time.Duration) *submitLimiter {
	if burst < 1 {
		burst = 1
	}
	return &submitLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		limiters: make(map[domain.ID]*timedLimiter),
	}
}

func (l *submitLimiter) enabled() bool { return l != nil && l.limit > 0 }

// allow takes a token for answerID at now. When the bucket is empty it
// returns the delay until the next token without consuming it.
func (l *submitLimiter) allow(answerID domain.ID, now time.Time) (time.Duration, bool) {
	if !l.enabled() {
		return 0, true
	}
	tl := l.get(answerID, now)

	if tl.limiter.AllowN(now, 1) {
		return 0, true
	}
	r := tl.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay, false
}

func (l *submitLimiter) get(answerID domain.ID, now time.Time) *timedLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.idle > 0 && now.Sub(l.lastSweep) >= l.idle {
		cutoff := now.Add(-l.idle).UnixNano()
		for id, tl := range l.limiters {
			if tl.lastUsed.Load() < cutoff {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	tl, ok := l.limiters[answerID]
	if !ok {
		tl = &timedLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[answerID] = tl
	}
	// Touched under the lock so a sweep never sees a fresh bucket as idle.
	tl.lastUsed.Store(now.UnixNano())
	return tl
}

// size returns the number of live buckets.
func (l *submitLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
