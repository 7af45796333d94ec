package repository

import (
	"context"
	"sync"
	"time"

	"contact-guard/internal/window"

	"github.com/rs/zerolog/log"
)

// entry guards one key's counter. A dead entry has been swept from its map; a caller that
// raced onto it retries the lookup instead of mutating an orphan.
type entry[C any] struct {
	mu   sync.Mutex
	c    C
	dead bool
}

// counters maps keys to entries. The map lock only covers lookup and insertion; the check
// itself runs under the entry lock, so different keys proceed in parallel.
type counters[C any] struct {
	mu sync.RWMutex
	m  map[string]*entry[C]
}

func newCounters[C any]() *counters[C] {
	return &counters[C]{m: make(map[string]*entry[C])}
}

func (cs *counters[C]) do(key string, fn func(c *C)) {
	for {
		cs.mu.RLock()
		e, ok := cs.m[key]
		cs.mu.RUnlock()
		if !ok {
			cs.mu.Lock()
			if e, ok = cs.m[key]; !ok {
				e = &entry[C]{}
				cs.m[key] = e
			}
			cs.mu.Unlock()
		}

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		fn(&e.c)
		e.mu.Unlock()
		return
	}
}

func (cs *counters[C]) remove(key string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if e, ok := cs.m[key]; ok {
		e.mu.Lock()
		e.dead = true
		e.mu.Unlock()
		delete(cs.m, key)
	}
}

// sweep removes entries for which stale reports true, checked under each entry's lock.
func (cs *counters[C]) sweep(stale func(c *C) bool) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for k, e := range cs.m {
		e.mu.Lock()
		if stale(&e.c) {
			e.dead = true
			delete(cs.m, k)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

func (cs *counters[C]) len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.m)
}

type slidingCounter struct {
	w    window.Sliding
	span time.Duration
}

type cooldownCounter struct {
	c    window.Cooldown
	span time.Duration
}

// MemoryStore is the process-local Store used when no Redis is configured or reachable.
// Keys are never evicted unless the janitor is started.
type MemoryStore struct {
	sliding   *counters[slidingCounter]
	cooldowns *counters[cooldownCounter]
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sliding:   newCounters[slidingCounter](),
		cooldowns: newCounters[cooldownCounter](),
		now:       time.Now,
	}
}

func (m *MemoryStore) SlidingWindow(ctx context.Context, key string, limit int, span time.Duration, now time.Time) (bool, int, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, 0, err
	}
	var (
		allowed   bool
		remaining int
		retry     time.Duration
	)
	m.sliding.do(key, func(c *slidingCounter) {
		c.span = span
		allowed, remaining = c.w.Allow(now, limit, span)
		if !allowed {
			retry = c.w.RetryAfter(now, span)
		}
	})
	return allowed, remaining, retry, nil
}

func (m *MemoryStore) Cooldown(ctx context.Context, key string, cooldown time.Duration, now time.Time) (bool, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	var (
		allowed bool
		retry   time.Duration
	)
	m.cooldowns.do(key, func(c *cooldownCounter) {
		c.span = cooldown
		allowed, retry = c.c.Allow(now, cooldown)
	})
	return allowed, retry, nil
}

func (m *MemoryStore) Reset(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		m.sliding.remove(k)
		m.cooldowns.remove(k)
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Backend() string { return "memory" }

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of keys currently tracked.
func (m *MemoryStore) Len() int {
	return m.sliding.len() + m.cooldowns.len()
}

// Sweep drops counters that can no longer affect a verdict at now: sliding windows with
// no timestamp inside the window and cooldowns that have fully elapsed.
func (m *MemoryStore) Sweep(now time.Time) int {
	n := m.sliding.sweep(func(c *slidingCounter) bool {
		return c.w.Stale(now, c.span)
	})
	n += m.cooldowns.sweep(func(c *cooldownCounter) bool {
		return c.c.Stale(now, c.span)
	})
	return n
}

// StartJanitor sweeps stale counters every interval until ctx is cancelled.
func (m *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := m.Sweep(m.now()); n > 0 {
					log.Debug().Int("removed", n).Int("tracked", m.Len()).Msg("swept stale counters")
				}
			}
		}
	}()
}
