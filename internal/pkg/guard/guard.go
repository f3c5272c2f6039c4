package guard

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when another request holds the key.
var ErrBusy = errors.New("a request for this key is already in progress")

// Guard serializes work per key. Acquire never waits: it either takes the
// key or fails with ErrBusy. release is safe to call more than once.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalGuard is an in-process key set for single instance deployments.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, ErrBusy
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}
