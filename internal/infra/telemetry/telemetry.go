package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and histograms exported by the auth core.
type Metrics struct {
	registry *prometheus.Registry

	LoginAttempts      *prometheus.CounterVec
	AccountLockouts    prometheus.Counter
	TokensIssued       prometheus.Counter
	TokensRevoked      *prometheus.CounterVec
	ValidationResults  *prometheus.CounterVec
	DenylistCacheHits  *prometheus.CounterVec
	SessionsActive     prometheus.Gauge
	SessionsEvicted    prometheus.Counter
	SessionsSwept      prometheus.Counter
	RateLimitRejected  *prometheus.CounterVec
	ValidationDuration prometheus.Histogram
}

// New builds the metric set on a fresh registry.
func New() *Metrics {
	return NewWith(prometheus.NewRegistry())
}

// NewWith builds the metric set on the supplied registry. Tests pass their
// own registry so repeated construction does not panic on re-registration.
func NewWith(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),

		AccountLockouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after exceeding the failed-attempt threshold",
		}),

		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "tokens_issued_total",
			Help:      "Access tokens minted",
		}),

		TokensRevoked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "tokens_revoked_total",
			Help:      "Tokens added to the blacklist by reason",
		}, []string{"reason"}),

		ValidationResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "token_validations_total",
			Help:      "Token validation outcomes by stage result",
		}, []string{"result"}),

		DenylistCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "denylist_cache_lookups_total",
			Help:      "Local denylist lookups by hit or miss",
		}, []string{"result"}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "authcore",
			Name:      "sessions_active",
			Help:      "Sessions currently tracked in the registry",
		}),

		SessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "sessions_evicted_total",
			Help:      "Sessions evicted by the per-identity cap",
		}),

		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the background sweeper",
		}),

		RateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the fixed-window rate limiter",
		}, []string{"operation"}),

		ValidationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authcore",
			Name:      "token_validation_duration_seconds",
			Help:      "End-to-end token validation latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry exposes the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
