package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"tagroute/internal/compose"
	"tagroute/internal/domain"
	"tagroute/internal/exec"
	"tagroute/internal/telemetry"
)

type ContactState int

const (
	ContactNew ContactState = iota
	ContactIdle
)

func (s ContactState) String() string {
	if s == ContactNew {
		return "NEW"
	}
	return "IDLE"
}

// Contact is the bottom layer. On the first request it fetches the
// preference tables of the querying identity and its friends and fuses them
// into the seeds of the other two layers.
type Contact struct {
	ctx      context.Context
	env      *Environment
	identity domain.Addr
	unit     *exec.Unit[ContactState]
	log      *slog.Logger
	composer PTableComposer

	naming  *Naming
	routing *Routing

	mu    sync.Mutex
	table atomic.Pointer[domain.PTable[domain.Probability]]
}

func newContact(ctx context.Context, env *Environment, identity domain.Addr, log *slog.Logger) *Contact {
	return &Contact{
		ctx:      ctx,
		env:      env,
		identity: identity,
		unit:     exec.NewUnit[ContactState]("contact", ContactNew, env.pool, log),
		log:      log.With(slog.String("layer", "contact")),
		composer: NewPTableComposer(env.opts.Compose.PTableAlpha),
	}
}

// Receive handles a message from the naming layer.
func (c *Contact) Receive(msg exec.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.unit.Status()
	if err := busy(c.unit.Name(), msg, st.Phase, st.Cause); err != nil {
		return err
	}
	switch st.State {
	case ContactNew:
		if msg != exec.MsgReqMoreData {
			return reject(c.unit.Name(), msg, exec.ReasonInvalidMessage)
		}
		return c.unit.Execute(c.makePTable, ContactIdle,
			func() error { return c.naming.Receive(exec.MsgRecvSeedG) },
			func() error { return c.routing.Receive(exec.MsgRecvSeedH) },
		)
	default:
		if msg != exec.MsgReqMoreData {
			return reject(c.unit.Name(), msg, exec.ReasonInvalidMessage)
		}
		return reject(c.unit.Name(), msg, exec.ReasonNoMoreData)
	}
}

func (c *Contact) makePTable() error {
	ids, err := c.env.TrustedIDs(c.identity)
	if err != nil {
		return err
	}

	svc := newTasks[domain.Addr, domain.PTable[domain.Probability]](c.env, "ptable")
	defer svc.Close()

	keys := make([]domain.Addr, 0, len(ids))
	for id := range ids {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, id := range keys {
		id := id
		if err := svc.Submit(id, func() (domain.PTable[domain.Probability], error) {
			return c.env.store.GetPTable(id)
		}); err != nil {
			return fmt.Errorf("failed to submit ptable lookup: %w", err)
		}
	}

	var sources []compose.Source[domain.PTable[domain.Probability]]
	for {
		r, err := svc.Reclaim(c.ctx)
		if errors.Is(err, exec.ErrNoTasks) {
			break
		}
		if err != nil {
			return err
		}
		if r.Err != nil {
			c.log.Warn("ptable lookup failed", slog.Int64("peer", int64(r.Key)), slog.Any("error", r.Err))
			continue
		}
		sources = append(sources, compose.Source[domain.PTable[domain.Probability]]{View: r.Value, Weight: ids[r.Key]})
	}

	table, err := c.composer.Compose(sources)
	if err != nil {
		return fmt.Errorf("failed to compose ptable: %w", err)
	}
	c.table.Store(&table)
	c.log.Debug("ptable composed",
		slog.Int("peers", len(sources)),
		slog.Int("tgraphs", len(table.TGraphs)),
		slog.Int("indexes", len(table.Indexes)))
	return nil
}

// SeedTGraphs returns the recommended tag-graphs, or nil before the first job.
func (c *Contact) SeedTGraphs() map[domain.Addr]domain.Probability {
	if t := c.table.Load(); t != nil {
		return t.TGraphs
	}
	return nil
}

// SeedIndexes returns the recommended indexes, or nil before the first job.
func (c *Contact) SeedIndexes() map[domain.Addr]domain.Probability {
	if t := c.table.Load(); t != nil {
		return t.Indexes
	}
	return nil
}

func (c *Contact) Status() exec.Status[ContactState] { return c.unit.Status() }

// busy rejects every message while a job runs and surfaces a sticky failure.
func busy(layer string, msg exec.Msg, phase exec.Phase, cause error) error {
	switch phase {
	case exec.PhaseRunning:
		return reject(layer, msg, exec.ReasonBadTiming)
	case exec.PhaseWedged:
		return &exec.WedgedError{Unit: layer, Cause: cause}
	}
	return nil
}

func reject(layer string, msg exec.Msg, reason string) error {
	telemetry.Rejections.WithLabelValues(layer, reason).Inc()
	return exec.Reject(msg, reason)
}
