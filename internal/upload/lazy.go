package upload

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Lazy holds a client that is built on first use and then kept for the
// lifetime of the process. A failed build is not cached: the next Get tries
// again. Concurrent first calls share one build.
type Lazy[T any] struct {
	build func(ctx context.Context) (T, error)

	mu    sync.RWMutex
	val   T
	ready bool
	group singleflight.Group
}

// NewLazy returns a Lazy that calls build until it succeeds once.
func NewLazy[T any](build func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{build: build}
}

// Get returns the cached client or builds it.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if v, ok := l.cached(); ok {
		return v, nil
	}
	v, err, _ := l.group.Do("build", func() (any, error) {
		if v, ok := l.cached(); ok {
			return v, nil
		}
		v, err := l.build(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.val, l.ready = v, true
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Ready reports whether a client has been built.
func (l *Lazy[T]) Ready() bool {
	_, ok := l.cached()
	return ok
}

func (l *Lazy[T]) cached() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.val, l.ready
}
