package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/fastygo/courier-auth/domain"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockout     = 15 * time.Minute
)

type record struct {
	count       int
	lastFailure time.Time
}

// Guard counts authentication failures per identifier and locks the identifier
// out once the maximum is reached. State lives in memory only.
type Guard struct {
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time

	mu      sync.Mutex
	records map[string]*record
}

// Config tunes a Guard. Zero values fall back to the defaults.
type Config struct {
	MaxAttempts int
	Lockout     time.Duration
	Now         func() time.Time
}

// New creates a guard.
func New(cfg Config) *Guard {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = DefaultLockout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Guard{
		maxAttempts: cfg.MaxAttempts,
		lockout:     cfg.Lockout,
		now:         cfg.Now,
		records:     make(map[string]*record),
	}
}

// CheckLimit fails with *domain.TooManyAttemptsError while the identifier is
// locked out. A record whose window has elapsed is reset.
func (g *Guard) CheckLimit(identifier string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[identifier]
	if !ok {
		return nil
	}
	since := g.now().Sub(rec.lastFailure)
	if since >= g.lockout {
		rec.count = 0
	}
	if rec.count >= g.maxAttempts {
		remaining := int(math.Ceil((g.lockout - since).Minutes()))
		return &domain.TooManyAttemptsError{RemainingMinutes: remaining}
	}
	return nil
}

// RecordFailure bumps the failure count and stamps the failure time.
func (g *Guard) RecordFailure(identifier string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[identifier]
	if !ok {
		rec = &record{}
		g.records[identifier] = rec
	}
	rec.count++
	rec.lastFailure = g.now()
}

// ClearFailures forgets the identifier.
func (g *Guard) ClearFailures(identifier string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, identifier)
}

// Failures returns the stored failure count.
func (g *Guard) Failures(identifier string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.records[identifier]; ok {
		return rec.count
	}
	return 0
}
