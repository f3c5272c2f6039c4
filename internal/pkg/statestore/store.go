package statestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// DefaultWriteTimeout bounds a single snapshot write across all backends.
const DefaultWriteTimeout = 30 * time.Second

// ErrStoreClosed is returned by Flush once the writer has stopped with
// snapshots still unwritten.
var ErrStoreClosed = errors.New("state store is closed")

// Backend loads and saves complete documents. Load reports found=false when
// the backend holds no document yet.
type Backend[D any] interface {
	Name() string
	Load(ctx context.Context) (doc D, found bool, err error)
	Save(ctx context.Context, doc D) error
}

type snapshot[D any] struct {
	seq uint64
	doc D
}

// Store makes an in-memory document durable without blocking mutations on
// I/O. Every Store owns exactly one writer goroutine, so snapshots reach the
// backends strictly in the order Persist was called. An unwritten snapshot is
// replaced by a newer one, never reordered.
type Store[D any] struct {
	name         string
	fallback     func() D
	backends     []Backend[D]
	writeTimeout time.Duration

	mu       sync.Mutex
	pending  *snapshot[D]
	enqueued uint64
	written  uint64
	closed   bool
	progress chan struct{}

	wake     chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates a store and starts its writer. Backends are listed in
// hydration priority order; every backend receives every write.
func New[D any](name string, fallback func() D, backends ...Backend[D]) *Store[D] {
	s := &Store[D]{
		name:         name,
		fallback:     fallback,
		backends:     backends,
		writeTimeout: DefaultWriteTimeout,
		progress:     make(chan struct{}),
		wake:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	go s.run()
	return s
}

// Name returns the store name used in logs and blob keys.
func (s *Store[D]) Name() string {
	return s.name
}

// Hydrate returns the first document found in priority order. Backend errors
// are logged and skipped; if no backend has a document the fallback is used.
func (s *Store[D]) Hydrate(ctx context.Context) D {
	for _, b := range s.backends {
		doc, found, err := b.Load(ctx)
		if err != nil {
			log.Warnf("[StateStore:%s] Hydration from %s failed: %v", s.name, b.Name(), err)
			continue
		}
		if !found {
			log.Debugf("[StateStore:%s] No document in %s", s.name, b.Name())
			continue
		}
		log.Infof("[StateStore:%s] Hydrated from %s", s.name, b.Name())
		return doc
	}
	log.Infof("[StateStore:%s] No persisted state found, starting empty", s.name)
	return s.fallback()
}

// Persist enqueues doc as the newest snapshot and returns immediately. The
// caller must not mutate doc afterwards.
func (s *Store[D]) Persist(doc D) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Warnf("[StateStore:%s] Persist after shutdown dropped", s.name)
		return
	}
	s.enqueued++
	s.pending = &snapshot[D]{seq: s.enqueued, doc: doc}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Flush waits until every snapshot enqueued before the call has been written
// (or its write attempt has failed and been logged).
func (s *Store[D]) Flush(ctx context.Context) error {
	s.mu.Lock()
	target := s.enqueued
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.written >= target {
			s.mu.Unlock()
			return nil
		}
		progress := s.progress
		s.mu.Unlock()

		select {
		case <-progress:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.doneCh:
			s.mu.Lock()
			done := s.written >= target
			s.mu.Unlock()
			if done {
				return nil
			}
			return ErrStoreClosed
		}
	}
}

// Shutdown rejects further snapshots, writes the pending one and stops the
// writer.
func (s *Store[D]) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.doneCh:
		log.Infof("[StateStore:%s] Writer stopped", s.name)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written returns the sequence number of the last attempted snapshot.
func (s *Store[D]) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *Store[D]) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.stopCh:
			s.drain()
			return
		}
	}
}

func (s *Store[D]) drain() {
	for {
		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		s.mu.Unlock()

		if snap == nil {
			return
		}
		s.write(snap)
	}
}

func (s *Store[D]) write(snap *snapshot[D]) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	for _, b := range s.backends {
		if err := b.Save(ctx, snap.doc); err != nil {
			// In-memory state stays authoritative; the next snapshot retries.
			log.Errorf("[StateStore:%s] Write #%d to %s failed: %v", s.name, snap.seq, b.Name(), err)
		}
	}

	s.mu.Lock()
	s.written = snap.seq
	close(s.progress)
	s.progress = make(chan struct{})
	s.mu.Unlock()
}
