package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"tagroute/internal/domain"
	"tagroute/internal/exec"
	"tagroute/internal/scheme"
)

// Query names what a process is looking for, and on whose behalf.
type Query struct {
	Identity domain.Addr
	Tag      domain.Tag
}

// Process runs one query through the contact, naming and routing layers.
// Each call to GetMoreData advances it by at most one job.
type Process struct {
	Query

	contact *Contact
	naming  *Naming
	routing *Routing
	log     *slog.Logger
	steps   atomic.Int64
}

// NewProcess wires the three layers of a query. Jobs stop when ctx is
// cancelled.
func NewProcess(ctx context.Context, env *Environment, q Query) (*Process, error) {
	if q.Tag == "" {
		return nil, fmt.Errorf("query tag must not be empty")
	}
	log := env.log.With(slog.Int64("identity", int64(q.Identity)), slog.String("tag", string(q.Tag)))

	c := newContact(ctx, env, q.Identity, log)
	n := newNaming(ctx, env, q.Tag, log)
	r := newRouting(ctx, env, log)
	c.naming, c.routing = n, r
	n.contact, n.routing = c, r
	r.contact, r.naming = c, n

	return &Process{Query: q, contact: c, naming: n, routing: r, log: log}, nil
}

// GetMoreData asks routing for more results. The step counter only moves
// when the request is accepted.
func (p *Process) GetMoreData() error {
	if err := p.routing.Receive(exec.MsgReqMoreData); err != nil {
		return err
	}
	p.steps.Add(1)
	return nil
}

// Results returns the latest scored documents (M0) and indexes (M1).
func (p *Process) Results() domain.Results { return p.routing.Results() }

// AddressScheme returns the latest address scheme, or nil before the first.
func (p *Process) AddressScheme() *scheme.Scheme { return p.naming.Scheme() }

// CompletedLookups returns the finished index lookups per index.
func (p *Process) CompletedLookups() map[domain.Addr]domain.Set[domain.Tag] {
	return p.routing.CompletedLookups()
}

// WaitIdle blocks until no layer runs a job.
func (p *Process) WaitIdle(ctx context.Context) error {
	for {
		if err := p.contact.unit.Wait(ctx); err != nil {
			return err
		}
		if err := p.naming.unit.Wait(ctx); err != nil {
			return err
		}
		if err := p.routing.unit.Wait(ctx); err != nil {
			return err
		}
		if p.contact.Status().Phase != exec.PhaseRunning &&
			p.naming.Status().Phase != exec.PhaseRunning &&
			p.routing.Status().Phase != exec.PhaseRunning {
			return nil
		}
	}
}

// Stats is a summary of a process' progress.
type Stats struct {
	Steps   int64
	Sources int // tag-graphs in use
	Tags    int // tags in the address scheme
	Lookups int // finished index lookups
	Docs    int
	Indexes int
}

func (s Stats) String() string {
	return fmt.Sprintf("(%d) | G:%d | T:%d | L:%d | D:%d | H:%d |",
		s.Steps, s.Sources, s.Tags, s.Lookups, s.Docs, s.Indexes)
}

func (p *Process) Stats() Stats {
	s := Stats{
		Steps:   p.steps.Load(),
		Sources: p.naming.CountSources(),
		Lookups: p.routing.CountLookups(),
	}
	if sch := p.naming.Scheme(); sch != nil {
		s.Tags = sch.TagSet().Len()
	}
	res := p.Results()
	s.Docs, s.Indexes = len(res.M0), len(res.M1)
	return s
}

// Status renders the state of each layer as [phase|state|completed jobs],
// with phase A (active), I (idle) or E (wedged).
func (p *Process) Status() string {
	var b strings.Builder
	writeStatus(&b, "C", p.contact.Status())
	b.WriteByte(' ')
	writeStatus(&b, "N", p.naming.Status())
	b.WriteByte(' ')
	writeStatus(&b, "R", p.routing.Status())
	return b.String()
}

func writeStatus[S ~int](b *strings.Builder, name string, st exec.Status[S]) {
	phase := "I"
	switch st.Phase {
	case exec.PhaseRunning:
		phase = "A"
	case exec.PhaseWedged:
		phase = "E"
	}
	fmt.Fprintf(b, "%s:[%s|%d|%d]", name, phase, int(st.State), st.Completed)
}
