package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"tagroute/internal/domain"
	"tagroute/internal/exec"
	"tagroute/internal/port"
	"tagroute/internal/pqueue"
	"tagroute/internal/scheme"
	"tagroute/internal/telemetry"
	"tagroute/internal/view"
)

type RoutingState int

const (
	RoutingNew RoutingState = iota
	RoutingAwaitSeeds
	RoutingAwaitAddrScheme
	RoutingIdle
)

func (s RoutingState) String() string {
	switch s {
	case RoutingNew:
		return "NEW"
	case RoutingAwaitSeeds:
		return "AWAIT_SEEDS"
	case RoutingAwaitAddrScheme:
		return "AWAIT_ADDR_SCH"
	default:
		return "IDLE"
	}
}

// Routing is the top layer. It looks up the tags of the address scheme in
// the indexes recommended by contact and reached from them, most promising
// lookup first, and scores the documents and indexes found.
type Routing struct {
	ctx      context.Context
	env      *Environment
	unit     *exec.Unit[RoutingState]
	log      *slog.Logger
	composer IndexComposer
	scorer   port.LookupScorer

	contact *Contact
	naming  *Naming

	mu        sync.Mutex
	sources   *view.DataSources[*view.LocalIndex]
	queue     *pqueue.Queue[domain.Lookup, domain.Probability]
	completed map[domain.Addr]domain.Set[domain.Tag]
	inflight  domain.Set[domain.Lookup]
	dirty     bool

	results atomic.Pointer[domain.Results]
}

func newRouting(ctx context.Context, env *Environment, log *slog.Logger) *Routing {
	return &Routing{
		ctx:       ctx,
		env:       env,
		unit:      exec.NewUnit[RoutingState]("routing", RoutingNew, env.pool, log),
		log:       log.With(slog.String("layer", "routing")),
		composer:  NewIndexComposer(env.opts.Compose),
		scorer:    ProbabilityLookupScorer{},
		sources:   env.newIndexSources(),
		queue:     newLookupQueue(),
		completed: make(map[domain.Addr]domain.Set[domain.Tag]),
		inflight:  domain.NewSet[domain.Lookup](),
	}
}

// newLookupQueue orders lookups by descending score.
func newLookupQueue() *pqueue.Queue[domain.Lookup, domain.Probability] {
	return pqueue.New[domain.Lookup](func(a, b domain.Probability) bool {
		return a.Compare(b) > 0
	})
}

// Receive handles a request from the agent or a message from a lower layer.
func (r *Routing) Receive(msg exec.Msg) error {
	forward, err := r.receive(msg)
	if err != nil || forward == nil {
		return err
	}
	return forward()
}

func (r *Routing) receive(msg exec.Msg) (func() error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := r.unit.Name()
	st := r.unit.Status()
	if st.Phase == exec.PhaseWedged {
		return nil, &exec.WedgedError{Unit: name, Cause: st.Cause}
	}
	running := st.Phase == exec.PhaseRunning

	switch st.State {
	case RoutingNew:
		if msg != exec.MsgReqMoreData {
			return nil, reject(name, msg, exec.ReasonInvalidMessage)
		}
		if err := r.unit.Transition(RoutingAwaitSeeds); err != nil {
			return nil, err
		}
		return r.requestNaming, nil

	case RoutingAwaitSeeds:
		switch msg {
		case exec.MsgRecvSeedH:
			r.sources.SetSeeds(r.contact.SeedIndexes())
			return nil, r.unit.Transition(RoutingAwaitAddrScheme)
		case exec.MsgReqMoreData:
			// seeds never arrive from a failed contact
			if cs := r.contact.Status(); cs.Phase == exec.PhaseWedged {
				return nil, &exec.WedgedError{Unit: r.contact.unit.Name(), Cause: cs.Cause}
			}
			return nil, reject(name, msg, exec.ReasonBadTiming)
		}
		return nil, reject(name, msg, exec.ReasonInvalidMessage)

	case RoutingAwaitAddrScheme:
		switch msg {
		case exec.MsgReqMoreData:
			return r.requestNaming, nil
		case exec.MsgRecvAddrScheme:
			sch := r.naming.Scheme()
			for _, idx := range sortedAddrs(r.sources.Seeds()) {
				if _, err := r.sources.UseSource(idx); err != nil {
					return nil, fmt.Errorf("failed to use seed index %d: %w", idx, err)
				}
			}
			r.sources.CalculateScores()
			r.queueLookups(sch, r.sources.InUse())
			r.dirty = true
			return nil, r.unit.Transition(RoutingIdle)
		}
		return nil, reject(name, msg, exec.ReasonInvalidMessage)

	default:
		switch msg {
		case exec.MsgRecvAddrScheme:
			r.requeue(r.naming.Scheme())
			r.dirty = true
			return nil, nil
		case exec.MsgReqMoreData:
		default:
			return nil, reject(name, msg, exec.ReasonInvalidMessage)
		}
		if running {
			return nil, reject(name, msg, exec.ReasonBadTiming)
		}

		sch := r.naming.Scheme()
		r.updateResults(sch)
		idx, score, ok := r.mostRelevantIndex()
		if !ok {
			if r.queue.Len() == 0 {
				return r.requestNaming, nil
			}
			return nil, r.unit.Execute(r.runLookups, RoutingIdle)
		}

		_, top, queued := r.queue.Peek()
		if !queued || score.Compare(top) > 0 {
			if _, err := r.sources.UseSource(idx); err != nil {
				return nil, fmt.Errorf("failed to use index %d: %w", idx, err)
			}
			r.log.Debug("index in use", slog.Int64("index", int64(idx)), slog.String("score", score.String()))
			r.sources.CalculateScores()
			r.queueLookups(sch, []domain.Addr{idx})
			r.dirty = true
		}
		return nil, r.unit.Execute(r.runLookups, RoutingIdle)
	}
}

func (r *Routing) requestNaming() error {
	return r.naming.Receive(exec.MsgReqMoreData)
}

// mostRelevantIndex returns the best scored index in the current results
// that is not in use yet.
func (r *Routing) mostRelevantIndex() (domain.Addr, domain.Probability, bool) {
	res := r.results.Load()
	if res == nil {
		return 0, domain.Probability{}, false
	}
	for _, idx := range byScore(res.M1) {
		if !r.sources.IsInUse(idx) && r.sources.Known(idx) {
			return idx, res.M1[idx], true
		}
	}
	return 0, domain.Probability{}, false
}

// lookupsFor returns the scheme tags worth looking up in idx: every tag for
// a seed, otherwise the tags through which in-use indexes point at idx along
// with their ancestors in the scheme.
func (r *Routing) lookupsFor(sch *scheme.Scheme, idx domain.Addr) domain.Set[domain.Tag] {
	if _, seed := r.sources.Seeds()[idx]; seed {
		return sch.TagSet()
	}
	tags := domain.NewSet[domain.Tag]()
	for in := range r.sources.Incoming(idx) {
		v, ok := r.sources.Local(in)
		if !ok {
			continue
		}
		for t := range v.IncomingH(idx) {
			if _, ok := sch.Attr(t); !ok {
				continue
			}
			tags.Add(t)
			for a := range sch.Ancestors(domain.TagNode(t)) {
				tags.Add(a)
			}
		}
	}
	return tags
}

// queueLookups queues the lookups of every idx that are neither complete nor
// in flight. Callers hold r.mu and have calculated the scores.
func (r *Routing) queueLookups(sch *scheme.Scheme, idxs []domain.Addr) {
	if sch == nil {
		return
	}
	for _, idx := range idxs {
		score := r.sources.Score(idx)
		for _, t := range domain.Sorted(r.lookupsFor(sch, idx)) {
			lk := domain.Lookup{Source: idx, Tag: t}
			if r.completed[idx].Has(t) || r.inflight.Has(lk) {
				continue
			}
			attr, _ := sch.Attr(t)
			r.queue.Push(lk, r.scorer.LookupScore(score, attr))
		}
	}
}

// requeue rebuilds the lookup queue against a new address scheme.
func (r *Routing) requeue(sch *scheme.Scheme) {
	r.queue = newLookupQueue()
	r.sources.CalculateScores()
	r.queueLookups(sch, r.sources.InUse())
}

// runLookups performs one batch of the most promising lookups.
func (r *Routing) runLookups() error {
	r.mu.Lock()
	batch := make([]domain.Lookup, 0, r.env.opts.ParallelIndexLookups)
	for len(batch) < r.env.opts.ParallelIndexLookups {
		lk, _, ok := r.queue.Pop()
		if !ok {
			break
		}
		r.inflight.Add(lk)
		batch = append(batch, lk)
	}
	r.mu.Unlock()

	svc := newTasks[domain.Lookup, domain.IndexArcs](r.env, "index")
	defer svc.Close()
	for _, lk := range batch {
		lk := lk
		if err := svc.Submit(lk, func() (domain.IndexArcs, error) {
			return r.env.store.GetIndexOutgoing(lk.Source, lk.Tag)
		}); err != nil {
			return fmt.Errorf("failed to submit index lookup: %w", err)
		}
	}

	for {
		res, err := svc.Reclaim(r.ctx)
		if errors.Is(err, exec.ErrNoTasks) {
			break
		}
		if err != nil {
			return err
		}
		r.applyLookup(res)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateResults(r.naming.Scheme())
	return nil
}

func (r *Routing) applyLookup(res exec.Result[domain.Lookup, domain.IndexArcs]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lk := res.Key
	r.inflight.Remove(lk)
	done, ok := r.completed[lk.Source]
	if !ok {
		done = domain.NewSet[domain.Tag]()
		r.completed[lk.Source] = done
	}
	// failed lookups count as done and are not retried
	done.Add(lk.Tag)

	if res.Err != nil {
		r.log.Warn("index lookup failed", slog.String("lookup", lk.String()), slog.Any("error", res.Err))
		return
	}
	v, ok := r.sources.Local(lk.Source)
	if !ok {
		return
	}
	if err := v.SetOutgoingT(lk.Tag, res.Value); err != nil {
		r.log.Warn("rejected index arcs", slog.String("lookup", lk.String()), slog.Any("error", err))
		return
	}
	r.sources.SetOutgoing(lk.Source, sortedAddrs(res.Value.M1)...)
	r.dirty = true
}

// updateResults recomputes the composite index and the results when new
// data arrived. Callers hold r.mu.
func (r *Routing) updateResults(sch *scheme.Scheme) {
	if !r.dirty && r.results.Load() != nil {
		return
	}
	r.sources.CalculateScores()
	x, err := r.composer.Compose(sourcesOf(r.sources), r.sources.IsInUse)
	if err != nil {
		r.log.Warn("failed to compose index", slog.Any("error", err))
		return
	}
	res := r.score(sch, x)
	r.results.Store(&res)
	r.dirty = false

	telemetry.Results.WithLabelValues("doc").Set(float64(len(res.M0)))
	telemetry.Results.WithLabelValues("index").Set(float64(len(res.M1)))
}

// score rates every document and index in x through the most relevant
// scheme tag pointing at it.
func (r *Routing) score(sch *scheme.Scheme, x *view.FullIndex) domain.Results {
	res := domain.TargetMap[domain.Probability]()
	if sch == nil {
		return res
	}
	rate := func(dst domain.Target, in domain.Set[domain.Tag]) {
		tag, attr, ok := sch.MostRelevant(in)
		if !ok {
			return
		}
		out, _ := x.Outgoing(tag)
		w, ok := out.Get(dst)
		if !ok {
			return
		}
		res.Put(dst, r.scorer.ResultAttr(attr, w))
	}
	for _, d := range x.Docs() {
		rate(domain.DocTarget(d), x.IncomingD(d))
	}
	for _, h := range x.Indexes() {
		rate(domain.IndexTarget(h), x.IncomingH(h))
	}
	return res
}

// Results returns the latest scored documents and indexes.
func (r *Routing) Results() domain.Results {
	if res := r.results.Load(); res != nil {
		return *res
	}
	return domain.TargetMap[domain.Probability]()
}

// CompletedLookups returns the finished lookups per index.
func (r *Routing) CompletedLookups() map[domain.Addr]domain.Set[domain.Tag] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.Addr]domain.Set[domain.Tag], len(r.completed))
	for idx, tags := range r.completed {
		out[idx] = tags.Clone()
	}
	return out
}

// CountLookups returns the number of finished lookups.
func (r *Routing) CountLookups() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tags := range r.completed {
		n += tags.Len()
	}
	return n
}

// InUse returns the indexes in use, sorted by address.
func (r *Routing) InUse() []domain.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sources.InUse()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Routing) Status() exec.Status[RoutingState] { return r.unit.Status() }
