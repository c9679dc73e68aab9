package lalog

import (
	"sync"
	"time"
)

/*
RateLimit tracks the number of hits performed by each source ("actor") to
determine whether a source has exceeded the specified rate limit. Instead of
being a rolling counter, the tracking data is reset to empty at a regular
interval.

Remember to call Initialise() before use.
*/
type RateLimit struct {
	UnitSecs int64
	MaxCount int
	Logger   *Logger

	lastTimestamp int64
	counter       map[string]int
	logged        map[string]struct{}
	counterMutex  *sync.Mutex
}

// Initialise prepares internal counters. It must be called exactly once
// before the rate limiter's Add function is used.
func (limit *RateLimit) Initialise() {
	limit.counter = make(map[string]int)
	limit.logged = make(map[string]struct{})
	limit.counterMutex = new(sync.Mutex)
	if limit.Logger == nil {
		limit.Logger = DefaultLogger
	}
	if limit.UnitSecs < 1 || limit.MaxCount < 1 {
		panic("lalog: rate limit UnitSecs and MaxCount must be greater than 0")
	}
}

/*
Add increases the current counter by one for the actor name/ID if the max
count per time interval has not been exceeded, and returns true. Otherwise
the actor's counter stays until the interval passes, and the function
returns false.
*/
func (limit *RateLimit) Add(actor string, logIfLimitHit bool) bool {
	limit.counterMutex.Lock()
	defer limit.counterMutex.Unlock()
	// Reset all counters after the interval elapses.
	if now := time.Now().Unix(); now-limit.lastTimestamp >= limit.UnitSecs {
		limit.counter = make(map[string]int)
		limit.logged = make(map[string]struct{})
		limit.lastTimestamp = now
	}
	if count, exists := limit.counter[actor]; exists {
		if count >= limit.MaxCount {
			if _, hasLogged := limit.logged[actor]; !hasLogged && logIfLimitHit {
				limit.Logger.Info(actor, nil, "exceeded limit of %d hits per %d seconds", limit.MaxCount, limit.UnitSecs)
				limit.logged[actor] = struct{}{}
			}
			return false
		}
		limit.counter[actor] = count + 1
	} else {
		limit.counter[actor] = 1
	}
	return true
}
