package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Store backed by go-cache. It serves development
// setups and tests, and acts as the fallback when no Redis URL is configured.
type Memory struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemory creates an in-process store.
func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, found := m.c.Get(key)
	if !found {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	// go-cache has IncrementInt64 but no create-with-TTL-if-absent, so the
	// check-then-set pair needs the mutex to stay atomic.
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.c.Get(key); !found {
		m.c.Set(key, "1", ttl)
		return 1, nil
	}
	v, _ := m.c.Get(key)
	n, err := strconv.ParseInt(v.(string), 10, 64)
	if err != nil {
		n = 0
	}
	n++
	// Keep the original expiry by re-reading the remaining TTL.
	if _, exp, ok := m.c.GetWithExpiration(key); ok && !exp.IsZero() {
		m.c.Set(key, strconv.FormatInt(n, 10), time.Until(exp))
	} else {
		m.c.Set(key, strconv.FormatInt(n, 10), ttl)
	}
	return n, nil
}
