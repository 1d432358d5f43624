package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Probe checks one dependency. A failing required probe marks the service unhealthy.
type Probe struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) error
}

// Gauge reports a size sampled on each refresh.
type Gauge struct {
	Name string
	Read func() (int, error)
}

// PostgresProbe pings a pgx pool.
func PostgresProbe(pool *pgxpool.Pool) Probe {
	return Probe{Name: "postgresql", Required: true, Check: func(ctx context.Context) error {
		return pool.Ping(ctx)
	}}
}

// RedisProbe pings a redis client.
func RedisProbe(client *redislib.Client, required bool) Probe {
	return Probe{Name: "redis", Required: required, Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// Status is the last observed state of the service.
type Status struct {
	Healthy   bool            `json:"healthy"`
	Services  map[string]bool `json:"services"`
	Gauges    map[string]int  `json:"gauges,omitempty"`
	LastCheck time.Time       `json:"last_check"`
}

type Monitor struct {
	probes []Probe
	gauges []Gauge

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(probes []Probe, gauges []Gauge, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probes:   probes,
		gauges:   gauges,
		interval: interval,
		timeout:  3 * time.Second,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	m.Refresh()
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every probe and gauge once.
func (m *Monitor) Refresh() {
	status := Status{
		Healthy:   true,
		Services:  make(map[string]bool, len(m.probes)),
		Gauges:    make(map[string]int, len(m.gauges)),
		LastCheck: m.now(),
	}

	for _, p := range m.probes {
		ok := m.check(p)
		status.Services[p.Name] = ok
		if !ok && p.Required {
			status.Healthy = false
		}
	}
	for _, g := range m.gauges {
		n, err := g.Read()
		if err != nil {
			m.logger.Warn("gauge read failed", zap.String("gauge", g.Name), zap.Error(err))
			continue
		}
		status.Gauges[g.Name] = n
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Monitor) check(p Probe) bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := p.Check(ctx); err != nil {
		m.logger.Warn("dependency check failed", zap.String("service", p.Name), zap.Error(err))
		return false
	}
	return true
}
