package middleware

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RateLimiter implements a token bucket algorithm for rate limiting
type RateLimiter struct {
	mu              sync.RWMutex
	requestsPerMin  int
	clients         map[string]*clientBucket
	cleanupInterval time.Duration
	lockoutDuration time.Duration // optional lockout after violations
	maxViolations   int           // number of violations before lockout
	trusted         []netip.Prefix
	log             zerolog.Logger
	now             func() time.Time
	done            chan struct{}
	closeOnce       sync.Once
}

// clientBucket tracks tokens and violations for a single client (IP)
type clientBucket struct {
	tokens      int
	lastRefill  time.Time
	violations  int
	lockedUntil time.Time
	mu          sync.Mutex
}

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	LockoutDuration   time.Duration
	MaxViolations     int
	TrustedProxies    []netip.Prefix
	Logger            zerolog.Logger
}

// NewRateLimiter creates a new rate limiter with the given configuration.
// Call Close to stop its background cleanup.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxViolations == 0 {
		config.MaxViolations = 10
	}

	rl := &RateLimiter{
		requestsPerMin:  config.RequestsPerMinute,
		clients:         make(map[string]*clientBucket),
		cleanupInterval: config.CleanupInterval,
		lockoutDuration: config.LockoutDuration,
		maxViolations:   config.MaxViolations,
		trusted:         config.TrustedProxies,
		log:             config.Logger,
		now:             func() time.Time { return time.Now().UTC() },
		done:            make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

// Middleware returns an HTTP middleware function
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r, rl.trusted)

			allowed, remaining, resetTime := rl.Allow(clientIP)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				retry := int(resetTime.Sub(rl.now()).Seconds())
				if retry < 1 {
					retry = 1
				}
				rl.log.Warn().Str("ip", clientIP).Str("path", r.URL.Path).Msg("rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests. Please try again later."})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Allow checks if a request from the given client IP is allowed
// Returns: (allowed bool, remaining tokens, reset time)
func (rl *RateLimiter) Allow(clientIP string) (bool, int, time.Time) {
	now := rl.now()

	rl.mu.Lock()
	bucket, exists := rl.clients[clientIP]
	if !exists {
		bucket = &clientBucket{
			tokens:     rl.requestsPerMin,
			lastRefill: now,
		}
		rl.clients[clientIP] = bucket
	}
	rl.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if !bucket.lockedUntil.IsZero() {
		if now.Before(bucket.lockedUntil) {
			return false, 0, bucket.lockedUntil
		}
		bucket.lockedUntil = time.Time{}
		bucket.violations = 0
	}

	// Full refill happens every minute, partial refill in between
	elapsed := now.Sub(bucket.lastRefill)
	if elapsed >= time.Minute {
		bucket.tokens = rl.requestsPerMin
		bucket.lastRefill = now
	} else {
		tokensToAdd := int(float64(rl.requestsPerMin) * (elapsed.Seconds() / 60.0))
		if tokensToAdd > 0 {
			bucket.tokens = min(bucket.tokens+tokensToAdd, rl.requestsPerMin)
			bucket.lastRefill = now
		}
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true, bucket.tokens, bucket.lastRefill.Add(time.Minute)
	}

	bucket.violations++
	if rl.lockoutDuration > 0 && bucket.violations >= rl.maxViolations {
		bucket.lockedUntil = now.Add(rl.lockoutDuration)
		rl.log.Warn().Str("ip", clientIP).Time("until", bucket.lockedUntil).
			Int("violations", bucket.violations).Msg("client locked out")
		return false, 0, bucket.lockedUntil
	}

	return false, 0, bucket.lastRefill.Add(time.Minute)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// cleanup removes client buckets that haven't been used recently
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	staleThreshold := 10 * time.Minute

	for ip, bucket := range rl.clients {
		bucket.mu.Lock()
		lastActivity := bucket.lastRefill
		isLocked := !bucket.lockedUntil.IsZero() && now.Before(bucket.lockedUntil)
		bucket.mu.Unlock()

		if !isLocked && now.Sub(lastActivity) > staleThreshold {
			delete(rl.clients, ip)
		}
	}
}
