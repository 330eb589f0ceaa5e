package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// AdmissionGate decides whether a request from a client key is admitted.
// The settlement gateway depends on this contract only, so the in-process
// limiter can be swapped for an external store.
type AdmissionGate interface {
	Allow(key string) bool
}

type window struct {
	start time.Time
	count int
}

// WindowLimiter admits up to limit requests per client key per fixed
// window. Counters live in a size-bounded LRU so an adversarial key
// space cannot grow memory; expired windows are also purged by a
// periodic sweep.
type WindowLimiter struct {
	limit   int
	size    time.Duration
	now     func() time.Time
	logger  *zap.Logger
	done    chan struct{}
	stopped sync.Once

	mu    sync.Mutex
	cache *lru.Cache[string, *window]
}

func NewWindowLimiter(limit int, size time.Duration, maxKeys int, sweepEvery time.Duration, logger *zap.Logger) (*WindowLimiter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxKeys <= 0 {
		maxKeys = 10_000
	}
	cache, err := lru.New[string, *window](maxKeys)
	if err != nil {
		return nil, err
	}

	l := &WindowLimiter{
		limit:  limit,
		size:   size,
		now:    time.Now,
		logger: logger,
		done:   make(chan struct{}),
		cache:  cache,
	}
	if sweepEvery > 0 {
		go l.sweepLoop(sweepEvery)
	}
	return l, nil
}

// Allow admits the request unless the key's window is exhausted. An
// expired window found on access is replaced immediately, so eviction is
// lazy on the hot path and periodic otherwise.
func (l *WindowLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.cache.Get(key)
	if !ok || now.Sub(entry.start) >= l.size {
		l.cache.Add(key, &window{start: now, count: 1})
		return l.limit >= 1
	}
	if entry.count >= l.limit {
		return false
	}
	entry.count++
	return true
}

func (l *WindowLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *WindowLimiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, key := range l.cache.Keys() {
		entry, ok := l.cache.Peek(key)
		if ok && now.Sub(entry.start) >= l.size {
			l.cache.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("rate limiter sweep", zap.Int("evicted", removed))
	}
}

// Close stops the background sweep.
func (l *WindowLimiter) Close() {
	l.stopped.Do(func() { close(l.done) })
}
