package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tagroute/internal/telemetry"
)

var (
	ErrClosed  = errors.New("task service closed")
	ErrNoTasks = errors.New("no pending or completed tasks")
)

// Result is the outcome of one keyed task.
type Result[K comparable, V any] struct {
	Key   K
	Value V
	Err   error
}

// TaskService runs keyed tasks and hands back their results in completion
// order. Results stay owned by the service until reclaimed.
type TaskService[K comparable, V any] interface {
	Submit(key K, fn func() (V, error)) error
	HasPending() bool
	HasComplete() bool

	// Reclaim blocks until a result is available and removes it. It fails
	// with ErrNoTasks when nothing is pending or complete.
	Reclaim(ctx context.Context) (Result[K, V], error)

	// Ready is signalled whenever a result completes.
	Ready() <-chan struct{}

	// Close stops accepting tasks. Running and unreclaimed tasks are kept.
	Close()
}

func run[V any](fn func() (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn()
}

// Service is a TaskService backed by a Pool.
type Service[K comparable, V any] struct {
	name  string
	pool  *Pool
	ready chan struct{}

	mu      sync.Mutex
	pending int
	done    []Result[K, V]
	closed  bool
}

// NewService returns a threaded task service. name labels its metrics.
func NewService[K comparable, V any](name string, pool *Pool) *Service[K, V] {
	return &Service[K, V]{
		name:  name,
		pool:  pool,
		ready: make(chan struct{}, 1),
	}
}

func (s *Service[K, V]) Submit(key K, fn func() (V, error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.pending++
	s.mu.Unlock()

	telemetry.TasksInFlight.WithLabelValues(s.name).Inc()
	s.pool.Run(func() {
		start := time.Now()
		v, err := run(fn)
		telemetry.ObserveTask(s.name, start, err)
		telemetry.TasksInFlight.WithLabelValues(s.name).Dec()

		s.mu.Lock()
		s.pending--
		s.done = append(s.done, Result[K, V]{Key: key, Value: v, Err: err})
		s.mu.Unlock()

		select {
		case s.ready <- struct{}{}:
		default:
		}
	})
	return nil
}

func (s *Service[K, V]) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending > 0
}

func (s *Service[K, V]) HasComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done) > 0
}

func (s *Service[K, V]) Reclaim(ctx context.Context) (Result[K, V], error) {
	for {
		s.mu.Lock()
		if len(s.done) > 0 {
			r := s.done[0]
			s.done = s.done[1:]
			s.mu.Unlock()
			return r, nil
		}
		pending := s.pending
		s.mu.Unlock()

		if pending == 0 {
			return Result[K, V]{}, ErrNoTasks
		}
		select {
		case <-s.ready:
		case <-ctx.Done():
			return Result[K, V]{}, ctx.Err()
		}
	}
}

func (s *Service[K, V]) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service[K, V]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Unthreaded is a TaskService that runs each task inside Submit.
type Unthreaded[K comparable, V any] struct {
	name   string
	done   []Result[K, V]
	closed bool
	ready  chan struct{}
}

func NewUnthreaded[K comparable, V any](name string) *Unthreaded[K, V] {
	ready := make(chan struct{})
	close(ready)
	return &Unthreaded[K, V]{name: name, ready: ready}
}

func (s *Unthreaded[K, V]) Submit(key K, fn func() (V, error)) error {
	if s.closed {
		return ErrClosed
	}
	start := time.Now()
	v, err := run(fn)
	telemetry.ObserveTask(s.name, start, err)
	s.done = append(s.done, Result[K, V]{Key: key, Value: v, Err: err})
	return nil
}

func (s *Unthreaded[K, V]) HasPending() bool { return false }

func (s *Unthreaded[K, V]) HasComplete() bool { return len(s.done) > 0 }

func (s *Unthreaded[K, V]) Reclaim(ctx context.Context) (Result[K, V], error) {
	if err := ctx.Err(); err != nil {
		return Result[K, V]{}, err
	}
	if len(s.done) == 0 {
		return Result[K, V]{}, ErrNoTasks
	}
	r := s.done[0]
	s.done = s.done[1:]
	return r, nil
}

// Ready is always closed: results are available as soon as Submit returns.
func (s *Unthreaded[K, V]) Ready() <-chan struct{} { return s.ready }

func (s *Unthreaded[K, V]) Close() { s.closed = true }
