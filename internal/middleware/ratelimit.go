package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	authPathPrefix = "/api/v1/auth"

	defaultGeneralRPM = 100
	defaultAuthRPM    = 10

	// Idle buckets are swept once the table grows past sweepThreshold.
	sweepThreshold = 1000
	idleAfter      = 10 * time.Minute
)

type bucketPair struct {
	general  *rate.Limiter
	auth     *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware keeps a token bucket per client IP. Auth endpoints get a
// tighter bucket to slow down credential stuffing.
type RateLimitMiddleware struct {
	generalRPM int
	authRPM    int
	mu         sync.Mutex
	clients    map[string]*bucketPair
	clientIP   *ClientIPResolver
	now        func() time.Time
}

// NewRateLimitMiddleware treats a zero rate as "use the default" and a
// negative rate as "no limit".
func NewRateLimitMiddleware(generalRPM int, authRPM int, clientIP *ClientIPResolver) *RateLimitMiddleware {
	if generalRPM == 0 {
		generalRPM = defaultGeneralRPM
	}
	if authRPM == 0 {
		authRPM = defaultAuthRPM
	}

	return &RateLimitMiddleware{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		clients:    map[string]*bucketPair{},
		clientIP:   clientIP,
		now:        time.Now,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buckets := m.bucketsFor(m.clientIP.Resolve(r))

		limiter := buckets.general
		if strings.HasPrefix(strings.ToLower(r.URL.Path), authPathPrefix) {
			limiter = buckets.auth
		}

		if limiter != nil && !limiter.Allow() {
			w.Header().Set("Retry-After", retryAfterSeconds(limiter))
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) bucketsFor(key string) *bucketPair {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	buckets, ok := m.clients[key]
	if !ok {
		buckets = &bucketPair{
			general: perMinute(m.generalRPM),
			auth:    perMinute(m.authRPM),
		}
		m.clients[key] = buckets
	}
	buckets.lastSeen = now

	if len(m.clients) > sweepThreshold {
		for k, b := range m.clients {
			if now.Sub(b.lastSeen) > idleAfter {
				delete(m.clients, k)
			}
		}
	}

	return buckets
}

// perMinute returns nil for an unlimited bucket.
func perMinute(rpm int) *rate.Limiter {
	if rpm < 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
}

// retryAfterSeconds is the time until the bucket refills one token.
func retryAfterSeconds(limiter *rate.Limiter) string {
	seconds := 1.0
	if limit := limiter.Limit(); limit > 0 && limit != rate.Inf {
		interval := time.Duration(float64(time.Second) / float64(limit)).Round(time.Millisecond)
		seconds = math.Max(1, math.Ceil(interval.Seconds()))
	}
	return strconv.Itoa(int(seconds))
}
