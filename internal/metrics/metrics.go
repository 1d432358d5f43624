package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth holds the authentication counters. A nil *Auth is valid and records nothing.
type Auth struct {
	rejections     *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	sessionsSwept  prometheus.Counter
	activeSessions prometheus.Gauge
	cacheLookups   *prometheus.CounterVec
}

// Config selects where the collectors are registered.
type Config struct {
	Namespace string
	Registry  prometheus.Registerer
}

// New registers the authentication collectors.
func New(cfg Config) *Auth {
	if cfg.Namespace == "" {
		cfg.Namespace = "courier_auth"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Auth{
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "rejections_total",
			Help:      "Requests rejected by the authentication gate, by error code",
		}, []string{"code"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "refreshes_total",
			Help:      "Refresh attempts by outcome (existing, recovered, legacy, expired)",
		}, []string{"outcome"}),
		sessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sessions_swept_total",
			Help:      "Idle sessions removed by the periodic sweep",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "user_cache_lookups_total",
			Help:      "User cache lookups by result (hit, miss)",
		}, []string{"result"}),
	}
}

func (m *Auth) Rejected(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Auth) Refreshed(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Auth) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}

func (m *Auth) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Auth) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
