package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

type window struct {
	count   int
	resetAt time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryLimiter keeps fixed-window counters in process, spread over shards
// to limit lock contention. Expired windows are swept periodically.
type MemoryLimiter struct {
	shards [shardCount]*shard
	max    int
	window time.Duration
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter starts the sweeper. Call Close to stop it.
func NewMemoryLimiter(max int, windowSize time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		max:    max,
		window: windowSize,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*window)}
	}
	go l.sweepLoop(windowSize)
	return l
}

func (l *MemoryLimiter) shardFor(key string) *shard {
	return l.shards[xxhash.Sum64String(key)%shardCount]
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		s.windows[key] = w
	}
	w.count++
	return decide(w.count, l.max, w.resetAt.Sub(now)), nil
}

func (l *MemoryLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops windows that have already reset.
func (l *MemoryLimiter) sweep() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, w := range s.windows {
			if !now.Before(w.resetAt) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (l *MemoryLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}
