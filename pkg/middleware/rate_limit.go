package middleware

import (
	"net/http"
	"sync"
	"time"

	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/session"
)

// ActorRateLimiter is a sliding window limiter keyed by actor id.
type ActorRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
	log      *logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewActorRateLimiter(limit int, window time.Duration, log *logger.Logger) *ActorRateLimiter {
	limiter := &ActorRateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		log:      log,
		stopCh:   make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *ActorRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := rl.now()
			rl.mu.Lock()
			for actorID, timestamps := range rl.requests {
				if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, actorID)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *ActorRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *ActorRateLimiter) Allow(actorID string) bool {
	if actorID == "" {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.requests[actorID]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[actorID] = valid
		return false
	}

	rl.requests[actorID] = append(valid, now)
	return true
}

// ActorRateLimit must run after ActorIdentity.
func ActorRateLimit(limiter *ActorRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := session.ActorFromContext(r.Context())
			if ok && !limiter.Allow(actor.ID) {
				reject(w, r, limiter.log,
					apperrors.New(apperrors.CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests),
					"Rate limit exceeded", "actor_id", actor.ID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
