package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/robalyx/warden/internal/rest/middleware/ip"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/robalyx/warden/internal/utils"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	errBlocked    = "temporarily blocked for repeated rate limit violations"
	errRateLimit  = "rate limit exceeded"
	headerRetryAt = "Retry-After"
)

type limiterState struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	strikes      int       // consecutive rejected requests
	blockedUntil time.Time // set once strikes reach the limit
}

// Middleware rate limits API requests per client IP. Clients that keep
// hitting the limit are blocked for the configured duration.
type Middleware struct {
	limiters *utils.TTLMap[string, *limiterState]
	config   *config.RateLimit
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a new rate limiting middleware.
func New(cfg *config.RateLimit, logger *zap.Logger) *Middleware {
	// Keep idle state around long enough to outlive both the burst window and a block
	ttl := time.Second * time.Duration(cfg.BurstSize*2)
	if blockTTL := time.Second * time.Duration(cfg.BlockDuration*2); blockTTL > ttl {
		ttl = blockTTL
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Middleware{
		limiters: utils.NewTTLMap[string, *limiterState](ttl),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Close stops the background cleanup of idle clients.
func (m *Middleware) Close() {
	m.limiters.Close()
}

// AsRESTMiddleware returns a bunrouter middleware handler for rate limiting.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		clientIP := ip.FromContext(req.Context())

		if allowed, retryAfter, msg := m.checkRateLimit(clientIP); !allowed {
			if retryAfter > 0 {
				w.Header().Set(headerRetryAt, fmt.Sprintf("%.0f", math.Ceil(retryAfter.Seconds())))
			}
			http.Error(w, msg, http.StatusTooManyRequests)
			return nil
		}

		return next(w, req)
	}
}

func (m *Middleware) getLimiter(clientIP string) *limiterState {
	return m.limiters.GetOrSet(clientIP, func() *limiterState {
		return &limiterState{
			limiter: rate.NewLimiter(rate.Limit(m.config.RequestsPerSecond), m.config.BurstSize),
		}
	})
}

// checkRateLimit reports whether the request may proceed, and if not, how
// long the client should wait and why.
func (m *Middleware) checkRateLimit(clientIP string) (bool, time.Duration, string) {
	state := m.getLimiter(clientIP)
	now := m.now()

	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.blockedUntil.IsZero() && now.Before(state.blockedUntil) {
		return false, state.blockedUntil.Sub(now).Round(time.Second), errBlocked
	}

	if state.limiter.AllowN(now, 1) {
		state.strikes = 0
		return true, 0, ""
	}

	state.strikes++
	if state.strikes >= m.config.StrikeLimit {
		blockDuration := time.Duration(m.config.BlockDuration) * time.Second
		state.blockedUntil = now.Add(blockDuration)
		state.strikes = 0

		m.logger.Warn("Client exceeded strike limit and is now blocked",
			zap.String("ip", clientIP),
			zap.Int("strikes", m.config.StrikeLimit),
			zap.Duration("block_duration", blockDuration))

		return false, blockDuration, errBlocked
	}

	retryAfter := time.Second
	if limit := float64(state.limiter.Limit()); limit > 0 {
		missing := 1 - state.limiter.TokensAt(now)
		retryAfter = time.Duration(missing / limit * float64(time.Second))
	}

	m.logger.Debug("Rate limit exceeded",
		zap.String("ip", clientIP),
		zap.Int("strikes", state.strikes))

	return false, retryAfter, errRateLimit
}
