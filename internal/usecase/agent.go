package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"tagroute/internal/domain"
	"tagroute/internal/exec"
)

// ErrNoResults is returned when a process runs out of steps before any
// result appears.
var ErrNoResults = errors.New("no results")

// Agent drives a process by repeatedly asking for more data.
type Agent struct {
	interval time.Duration
	maxSteps int
	log      *slog.Logger

	// OnStep, when set, is called after every step.
	OnStep func(Stats)
}

// NewAgent creates an agent that pauses interval between steps. A zero
// interval waits for the process to go idle instead.
func NewAgent(interval time.Duration, maxSteps int, log *slog.Logger) (*Agent, error) {
	if interval != 0 && interval < 10*time.Millisecond {
		return nil, fmt.Errorf("agent interval must be 0 or at least 10ms: %v", interval)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Agent{interval: interval, maxSteps: maxSteps, log: log}, nil
}

// NextStep asks p for more data once. Rejections caused by timing are
// expected while layers are busy and are dropped. A wedged layer and an
// exhausted network are returned as errors; anything else is logged.
func (a *Agent) NextStep(ctx context.Context, p *Process) error {
	err := p.GetMoreData()
	switch {
	case err == nil:
	case exec.IsBadTiming(err), exec.IsInvalidMessage(err):
	case exec.IsNoMoreData(err):
		return err
	default:
		var wedged *exec.WedgedError
		if errors.As(err, &wedged) {
			return err
		}
		a.log.Debug("step rejected", slog.Any("error", err))
	}

	if a.interval == 0 {
		return p.WaitIdle(ctx)
	}
	t := time.NewTimer(a.interval)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunUntilAfter steps p until it has results, then n more times. It gives up
// after the agent's step limit when set.
func (a *Agent) RunUntilAfter(ctx context.Context, p *Process, n int) (domain.Results, error) {
	steps := 0
	step := func() error {
		if a.maxSteps > 0 && steps >= a.maxSteps {
			return ErrNoResults
		}
		steps++
		if err := a.NextStep(ctx, p); err != nil {
			return err
		}
		if a.OnStep != nil {
			a.OnStep(p.Stats())
		}
		return nil
	}

	for p.Results().Len() == 0 {
		if err := step(); err != nil {
			if errors.Is(err, ErrNoResults) || exec.IsNoMoreData(err) {
				return p.Results(), fmt.Errorf("%w after %d steps", ErrNoResults, steps)
			}
			return p.Results(), err
		}
	}
	a.log.Debug("first results", slog.Int("steps", steps), slog.String("stats", p.Stats().String()))

	for i := 0; i < n; i++ {
		if err := step(); err != nil {
			if errors.Is(err, ErrNoResults) || exec.IsNoMoreData(err) {
				break
			}
			return p.Results(), err
		}
	}
	return p.Results(), nil
}

// FormatLookups renders the finished lookups as a matrix with one row per
// tag and one column per index; '+' marks a finished lookup.
func FormatLookups(lookups map[domain.Addr]domain.Set[domain.Tag], tags []domain.Tag) []string {
	idxs := make([]domain.Addr, 0, len(lookups))
	for idx := range lookups {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	width := 0
	for _, t := range tags {
		width = max(width, len(t))
	}

	lines := make([]string, 0, len(tags)+1)
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width))
	for _, idx := range idxs {
		fmt.Fprintf(&b, " %d", idx)
	}
	lines = append(lines, b.String())

	for _, t := range tags {
		b.Reset()
		fmt.Fprintf(&b, "%-*s", width, t)
		for _, idx := range idxs {
			cell := "."
			if lookups[idx].Has(t) {
				cell = "+"
			}
			col := len(fmt.Sprint(idx))
			fmt.Fprintf(&b, " %*s", col, cell)
		}
		lines = append(lines, b.String())
	}
	return lines
}
