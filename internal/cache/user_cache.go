package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/fastygo/courier-auth/domain"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 1000
)

type key struct {
	role domain.Role
	id   string
}

type entry struct {
	key      key
	user     *domain.User
	storedAt time.Time
}

// UserCache is a bounded, time-boxed cache of identity records keyed by role and id.
// Eviction is by insertion order, not recency of use. Cached records are advisory:
// callers still evaluate the active-status predicate on every read.
type UserCache struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	order   *list.List
	entries map[key]*list.Element
}

// Config tunes a UserCache. Zero values fall back to the defaults.
type Config struct {
	TTL      time.Duration
	Capacity int
	Now      func() time.Time
}

// NewUserCache creates an empty cache.
func NewUserCache(cfg Config) *UserCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &UserCache{
		ttl:      cfg.TTL,
		capacity: cfg.Capacity,
		now:      cfg.Now,
		order:    list.New(),
		entries:  make(map[key]*list.Element),
	}
}

// Get returns the record stored for (role, id) if it is younger than the TTL.
// Stale entries are evicted on the way out.
func (c *UserCache) Get(role domain.Role, id string) (*domain.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{role: role, id: id}
	el, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.removeElement(el)
		return nil, false
	}
	return e.user, true
}

// Put stores a record, evicting the oldest inserted entry when full.
// The record is copied so later mutation by the caller cannot leak in.
func (c *UserCache) Put(role domain.Role, id string, user *domain.User) {
	if user == nil {
		return
	}
	snapshot := *user

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{role: role, id: id}
	if el, ok := c.entries[k]; ok {
		c.removeElement(el)
	}
	for c.order.Len() >= c.capacity {
		c.removeElement(c.order.Front())
	}
	c.entries[k] = c.order.PushBack(&entry{key: k, user: &snapshot, storedAt: c.now()})
}

// Invalidate drops the entry for (role, id), if any.
func (c *UserCache) Invalidate(role domain.Role, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key{role: role, id: id}]; ok {
		c.removeElement(el)
	}
}

// Clear drops every entry.
func (c *UserCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[key]*list.Element)
}

// Len reports the number of stored entries, stale ones included.
func (c *UserCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *UserCache) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.entries, e.key)
}
