package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tagroute/internal/telemetry"
)

var ErrAlreadyRunning = errors.New("job already running")

// Phase is the run state of a unit service.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseWedged
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseWedged:
		return "wedged"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// WedgedError is the sticky failure of a unit service. Every Execute after
// a job fails returns it until Reset.
type WedgedError struct {
	Unit  string
	Cause error
}

func (e *WedgedError) Error() string {
	return fmt.Sprintf("%s wedged: %v", e.Unit, e.Cause)
}

func (e *WedgedError) Unwrap() error { return e.Cause }

// Deferred is a message fired at another layer once a job has committed.
type Deferred func() error

// Status is a snapshot of a unit service.
type Status[S comparable] struct {
	State     S
	Phase     Phase
	Completed int
	Cause     error
}

// Unit is a single-flight state machine: at most one job runs at a time, and
// the state moves to the job's next state only when the job succeeds.
type Unit[S comparable] struct {
	name string
	pool *Pool
	log  *slog.Logger

	mu        sync.Mutex
	state     S
	phase     Phase
	cause     error
	completed int
	idle      chan struct{}
}

func NewUnit[S comparable](name string, initial S, pool *Pool, log *slog.Logger) *Unit[S] {
	if log == nil {
		log = slog.Default()
	}
	idle := make(chan struct{})
	close(idle)
	return &Unit[S]{
		name:  name,
		pool:  pool,
		log:   log.With(slog.String("layer", name)),
		state: initial,
		idle:  idle,
	}
}

func (u *Unit[S]) checkLocked() error {
	switch u.phase {
	case PhaseRunning:
		return fmt.Errorf("%s: %w", u.name, ErrAlreadyRunning)
	case PhaseWedged:
		return &WedgedError{Unit: u.name, Cause: u.cause}
	}
	return nil
}

// Execute starts job on the pool and returns immediately. When job succeeds
// the state becomes next, and then each deferred message is sent in order on
// the job's goroutine. A failed job or a rejected message wedges the unit.
func (u *Unit[S]) Execute(job func() error, next S, deferred ...Deferred) error {
	u.mu.Lock()
	if err := u.checkLocked(); err != nil {
		u.mu.Unlock()
		return err
	}
	u.phase = PhaseRunning
	idle := make(chan struct{})
	u.idle = idle
	u.mu.Unlock()

	u.pool.Spawn(func() {
		defer close(idle)
		u.finish(job, next, deferred)
	})
	return nil
}

func (u *Unit[S]) finish(job func() error, next S, deferred []Deferred) {
	err := runJob(job)

	u.mu.Lock()
	if err != nil {
		u.phase = PhaseWedged
		u.cause = err
		u.mu.Unlock()

		telemetry.JobsTotal.WithLabelValues(u.name, "failed").Inc()
		u.log.Error("job failed", slog.Any("error", err))
		return
	}
	prev := u.state
	u.state = next
	u.completed++
	u.phase = PhaseIdle
	u.mu.Unlock()

	telemetry.JobsTotal.WithLabelValues(u.name, "ok").Inc()
	u.log.Debug("job complete", slog.Any("from", prev), slog.Any("to", next))

	for _, msg := range deferred {
		if err := msg(); err != nil {
			u.wedge(fmt.Errorf("deferred message rejected: %w", err))
		}
	}
}

func runJob(job func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job()
}

func (u *Unit[S]) wedge(err error) {
	u.mu.Lock()
	if u.cause == nil {
		u.cause = err
	}
	if u.phase == PhaseIdle {
		u.phase = PhaseWedged
	}
	u.mu.Unlock()
	u.log.Error("layer wedged", slog.Any("error", err))
}

// Transition changes the state without running a job.
func (u *Unit[S]) Transition(to S) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkLocked(); err != nil {
		return err
	}
	u.log.Debug("transition", slog.Any("from", u.state), slog.Any("to", to))
	u.state = to
	return nil
}

func (u *Unit[S]) Status() Status[S] {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Status[S]{State: u.state, Phase: u.phase, Completed: u.completed, Cause: u.cause}
}

// Wait blocks until the last job started has finished and its deferred
// messages have been sent.
func (u *Unit[S]) Wait(ctx context.Context) error {
	u.mu.Lock()
	idle := u.idle
	u.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears a sticky failure. The state is left as it was.
func (u *Unit[S]) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cause = nil
	if u.phase == PhaseWedged {
		u.phase = PhaseIdle
	}
}

func (u *Unit[S]) Name() string { return u.name }
