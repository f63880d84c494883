package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func drain[K comparable, V any](t *testing.T, s TaskService[K, V]) map[K]Result[K, V] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(map[K]Result[K, V])
	for {
		r, err := s.Reclaim(ctx)
		if errors.Is(err, ErrNoTasks) {
			return out
		}
		if err != nil {
			t.Fatalf("reclaim: %v", err)
		}
		out[r.Key] = r
	}
}

func TestService_SubmitReclaim(t *testing.T) {
	pool := NewPool(4)
	svc := NewService[int, int]("test", pool)

	for i := 0; i < 50; i++ {
		i := i
		if err := svc.Submit(i, func() (int, error) {
			if i == 7 {
				return 0, errors.New("boom")
			}
			return i * i, nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	got := drain[int, int](t, svc)
	if len(got) != 50 {
		t.Fatalf("expected 50 results, got %d", len(got))
	}
	if got[7].Err == nil {
		t.Error("expected task 7 to fail")
	}
	if got[9].Value != 81 {
		t.Errorf("expected 81, got %d", got[9].Value)
	}
	if svc.HasPending() || svc.HasComplete() {
		t.Error("service should be drained")
	}
}

func TestService_CallerRunsWhenSaturated(t *testing.T) {
	pool := NewPool(1)
	block := make(chan struct{})
	pool.Run(func() { <-block })

	svc := NewService[string, string]("test", pool)
	// The only worker is blocked, so Submit must run the task inline.
	if err := svc.Submit("inline", func() (string, error) { return "ok", nil }); err != nil {
		t.Fatal(err)
	}
	if !svc.HasComplete() {
		t.Error("saturated pool should run the task on the caller")
	}
	close(block)
}

func TestService_Close(t *testing.T) {
	svc := NewService[int, int]("test", NewPool(2))
	_ = svc.Submit(1, func() (int, error) { return 1, nil })
	svc.Close()
	if err := svc.Submit(2, func() (int, error) { return 2, nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if got := drain[int, int](t, svc); len(got) != 1 {
		t.Errorf("results submitted before Close must survive, got %d", len(got))
	}
}

func TestService_PanicBecomesError(t *testing.T) {
	svc := NewService[int, int]("test", NewPool(2))
	_ = svc.Submit(1, func() (int, error) { panic("bad") })
	got := drain[int, int](t, svc)
	if got[1].Err == nil {
		t.Error("expected panic to surface as an error")
	}
}

func TestUnthreaded(t *testing.T) {
	svc := NewUnthreaded[int, int]("test")
	_ = svc.Submit(1, func() (int, error) { return 10, nil })
	if svc.HasPending() {
		t.Error("unthreaded service never has pending tasks")
	}
	if !svc.HasComplete() {
		t.Fatal("result should be ready after Submit")
	}
	got := drain[int, int](t, svc)
	if got[1].Value != 10 {
		t.Errorf("expected 10, got %d", got[1].Value)
	}
}

type state int

func TestUnit_ExecuteAndDefer(t *testing.T) {
	u := NewUnit[state]("test", 0, NewPool(4), nil)

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	err := u.Execute(func() error {
		<-release
		mu.Lock()
		order = append(order, "job")
		mu.Unlock()
		return nil
	}, 1, func() error {
		mu.Lock()
		order = append(order, "msg")
		mu.Unlock()
		if st := u.Status(); st.State != 1 || st.Phase != PhaseIdle {
			t.Errorf("deferred message ran before commit: %+v", st)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := u.Execute(func() error { return nil }, 2); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := u.Transition(5); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("transition while running: expected ErrAlreadyRunning, got %v", err)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	st := u.Status()
	if st.State != 1 || st.Completed != 1 {
		t.Errorf("expected state 1 after 1 job, got %+v", st)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "job" || order[1] != "msg" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestUnit_StickyFailure(t *testing.T) {
	u := NewUnit[state]("test", 0, NewPool(2), nil)
	boom := errors.New("boom")

	if err := u.Execute(func() error { return boom }, 1); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = u.Wait(ctx)

	st := u.Status()
	if st.Phase != PhaseWedged || st.State != 0 {
		t.Fatalf("expected wedged in state 0, got %+v", st)
	}

	err := u.Execute(func() error { return nil }, 1)
	var wedged *WedgedError
	if !errors.As(err, &wedged) || !errors.Is(err, boom) {
		t.Fatalf("expected WedgedError wrapping boom, got %v", err)
	}

	u.Reset()
	if err := u.Transition(3); err != nil {
		t.Fatalf("transition after reset: %v", err)
	}
	if u.Status().State != 3 {
		t.Error("expected state 3")
	}
}

func TestUnit_PanicWedges(t *testing.T) {
	u := NewUnit[state]("test", 0, NewPool(2), nil)
	_ = u.Execute(func() error { panic("bad") }, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = u.Wait(ctx)
	if u.Status().Phase != PhaseWedged {
		t.Error("panicking job should wedge the unit")
	}
}

func TestRejections(t *testing.T) {
	err := Reject(MsgReqMoreData, ReasonBadTiming)
	if !IsBadTiming(err) || IsInvalidMessage(err) {
		t.Errorf("unexpected classification of %v", err)
	}
	if !IsNoMoreData(Reject(MsgReqMoreData, ReasonNoMoreData)) {
		t.Error("expected no-more-data rejection")
	}
	if IsBadTiming(errors.New("bad timing")) {
		t.Error("plain errors are not rejections")
	}
}
