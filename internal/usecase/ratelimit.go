package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/core/port"
	"github.com/arklim/auth-core/internal/infra/telemetry"
)

// Rate-limited operation names.
const (
	OpLogin    = "login"
	OpRegister = "register"
	OpRefresh  = "refresh"
)

// RateLimiter enforces fixed-window limits on sensitive operations. The
// counter lives in the shared store, so the limit holds across nodes: the
// increment and the window TTL are applied atomically on first touch.
type RateLimiter struct {
	cache   port.DistributedCache
	logger  *zap.Logger
	metrics *telemetry.Metrics
	window  time.Duration
	limits  map[string]int
}

// NewRateLimiter builds a limiter with per-operation limits over a shared
// window. Operations without a limit entry pass unchecked.
func NewRateLimiter(cache port.DistributedCache, logger *zap.Logger, metrics *telemetry.Metrics, window time.Duration, limits map[string]int) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		window:  window,
		limits:  limits,
	}
}

// Check counts one attempt for the key under the operation's window and
// returns ErrRateLimited once the limit is exceeded. A store outage fails
// closed: the attempt is rejected as ErrUnavailable rather than admitted
// uncounted.
func (r *RateLimiter) Check(ctx context.Context, operation, key string) error {
	limit, ok := r.limits[operation]
	if !ok || limit <= 0 {
		return nil
	}

	counterKey := fmt.Sprintf("rl:%s:%s", operation, key)
	count, err := r.cache.IncrementWithTTLOnCreate(ctx, counterKey, r.window)
	if err != nil {
		return fmt.Errorf("%w: rate limit counter: %v", ErrUnavailable, err)
	}

	if count > int64(limit) {
		if r.metrics != nil {
			r.metrics.RateLimitRejected.WithLabelValues(operation).Inc()
		}
		r.logger.Debug("rate limit exceeded",
			zap.String("operation", operation),
			zap.Int64("count", count),
			zap.Int("limit", limit),
		)
		return ErrRateLimited
	}

	return nil
}
