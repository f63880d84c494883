package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"tagroute/internal/domain"
	"tagroute/internal/exec"
	"tagroute/internal/scheme"
	"tagroute/internal/view"
)

type NamingState int

const (
	NamingNew NamingState = iota
	NamingAwaitSeeds
	NamingIdle
)

func (s NamingState) String() string {
	switch s {
	case NamingNew:
		return "NEW"
	case NamingAwaitSeeds:
		return "AWAIT_SEEDS"
	default:
		return "IDLE"
	}
}

// Naming is the middle layer. It loads tag-graphs recommended by contact,
// fuses them and builds the address scheme around the query tag.
type Naming struct {
	ctx      context.Context
	env      *Environment
	seed     domain.Tag
	unit     *exec.Unit[NamingState]
	log      *slog.Logger
	composer TGraphComposer
	build    func(*view.FullTGraph, domain.Tag) (*scheme.Scheme, error)

	contact *Contact
	routing *Routing

	// mu guards sources and failed. Jobs take it only while applying
	// results, so readers never wait on the store.
	mu      sync.Mutex
	sources *view.DataSources[*view.LocalTGraph]
	failed  map[domain.Addr]domain.Set[domain.Tag]

	scheme atomic.Pointer[scheme.Scheme]
}

func newNaming(ctx context.Context, env *Environment, seed domain.Tag, log *slog.Logger) *Naming {
	return &Naming{
		ctx:      ctx,
		env:      env,
		seed:     seed,
		unit:     exec.NewUnit[NamingState]("naming", NamingNew, env.pool, log),
		log:      log.With(slog.String("layer", "naming")),
		composer: NewTGraphComposer(env.opts.Compose),
		build:    env.schemeBuilder(),
		sources:  env.newTGraphSources(),
		failed:   make(map[domain.Addr]domain.Set[domain.Tag]),
	}
}

// Receive handles a message from contact or routing.
func (n *Naming) Receive(msg exec.Msg) error {
	forward, err := n.receive(msg)
	if err != nil || forward == nil {
		return err
	}
	return forward()
}

func (n *Naming) receive(msg exec.Msg) (func() error, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	name := n.unit.Name()
	st := n.unit.Status()
	if err := busy(name, msg, st.Phase, st.Cause); err != nil {
		return nil, err
	}

	switch st.State {
	case NamingNew:
		if msg != exec.MsgReqMoreData {
			return nil, reject(name, msg, exec.ReasonInvalidMessage)
		}
		if err := n.unit.Transition(NamingAwaitSeeds); err != nil {
			return nil, err
		}
		return n.requestContact, nil

	case NamingAwaitSeeds:
		switch msg {
		case exec.MsgRecvSeedG:
			n.sources.SetSeeds(n.contact.SeedTGraphs())
			return nil, n.unit.Transition(NamingIdle)
		case exec.MsgReqMoreData:
			return nil, reject(name, msg, exec.ReasonBadTiming)
		}
		return nil, reject(name, msg, exec.ReasonInvalidMessage)

	default:
		if msg != exec.MsgReqMoreData {
			return nil, reject(name, msg, exec.ReasonInvalidMessage)
		}
		notify := func() error { return n.routing.Receive(exec.MsgRecvAddrScheme) }

		sch := n.scheme.Load()
		if sch != nil && sch.Incomplete() {
			tag := sch.Last().Must0()
			return nil, n.unit.Execute(func() error { return n.addTag(tag) }, NamingIdle, notify)
		}
		if addr, ok := n.nextTGraph(sch); ok {
			return nil, n.unit.Execute(func() error { return n.addDataSource(addr) }, NamingIdle, notify)
		}
		return n.requestContact, nil
	}
}

func (n *Naming) requestContact() error {
	return n.contact.Receive(exec.MsgReqMoreData)
}

// nextTGraph picks the nearest known tag-graph in the scheme that is not in
// use yet, falling back to the best unused seed.
func (n *Naming) nextTGraph(sch *scheme.Scheme) (domain.Addr, bool) {
	if sch != nil {
		addr, ok := sch.NearestTGraph(func(a domain.Addr) bool {
			return n.sources.Known(a) && !n.sources.IsInUse(a)
		})
		if ok {
			return addr, true
		}
	}
	for _, a := range byScore(n.sources.Seeds()) {
		if !n.sources.IsInUse(a) {
			return a, true
		}
	}
	return 0, false
}

// addDataSource puts addr in use and loads into it every tag already
// complete in the other views.
func (n *Naming) addDataSource(addr domain.Addr) error {
	n.mu.Lock()
	tags := n.completedTags()
	if len(n.sources.InUse()) == 0 {
		tags = domain.NewSet(n.seed)
	}
	v, err := n.sources.UseSource(addr)
	n.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to use tgraph %d: %w", addr, err)
	}
	n.log.Debug("tgraph in use", slog.Int64("tgraph", int64(addr)), slog.Int("tags", tags.Len()))

	if err := n.fetchTags(map[domain.Addr]*view.LocalTGraph{addr: v}, tags); err != nil {
		return err
	}
	return n.update()
}

// addTag loads tag into every view in use.
func (n *Naming) addTag(tag domain.Tag) error {
	n.mu.Lock()
	views := make(map[domain.Addr]*view.LocalTGraph)
	for _, a := range n.sources.InUse() {
		v, _ := n.sources.Local(a)
		views[a] = v
	}
	n.mu.Unlock()
	n.log.Debug("loading tag", slog.String("tag", string(tag)), slog.Int("views", len(views)))

	if err := n.fetchTags(views, domain.NewSet(tag)); err != nil {
		return err
	}
	return n.update()
}

// fetchTags loads the weight, the out-arcs and the out-neighbour weights of
// every tag in every view. A lookup that fails marks its tag as failed in
// that view so completion can still make progress.
func (n *Naming) fetchTags(views map[domain.Addr]*view.LocalTGraph, tags domain.Set[domain.Tag]) error {
	store := n.env.store
	arcSvc := newTasks[domain.Lookup, domain.TGraphArcs](n.env, "tgraph-arcs")
	nodeSvc := newTasks[domain.NodeLookup, domain.NodeAttr](n.env, "tgraph-nodes")
	defer arcSvc.Close()
	defer nodeSvc.Close()

	submitted := domain.NewSet[domain.NodeLookup]()
	buffered := make(map[domain.Lookup]domain.TGraphArcs)

	submitNode := func(src domain.Addr, node domain.Node) error {
		lk := domain.NodeLookup{Source: src, Node: node}
		if submitted.Has(lk) || views[src].Loaded(node) {
			return nil
		}
		submitted.Add(lk)
		return nodeSvc.Submit(lk, func() (domain.NodeAttr, error) {
			w, ok, err := store.GetTGraphNodeAttr(src, node)
			return domain.NodeAttr{Weight: w, Present: ok}, err
		})
	}

	for _, src := range sortedAddrs(views) {
		v := views[src]
		for _, tag := range domain.Sorted(tags) {
			if err := submitNode(src, domain.TagNode(tag)); err != nil {
				return fmt.Errorf("failed to submit node lookup: %w", err)
			}
			if v.OutgoingLoaded(tag) {
				continue
			}
			lk := domain.Lookup{Source: src, Tag: tag}
			if err := arcSvc.Submit(lk, func() (domain.TGraphArcs, error) {
				return store.GetTGraphOutgoing(lk.Source, lk.Tag)
			}); err != nil {
				return fmt.Errorf("failed to submit arc lookup: %w", err)
			}
		}
	}

	for {
		for nodeSvc.HasComplete() {
			r, err := nodeSvc.Reclaim(n.ctx)
			if err != nil {
				return err
			}
			n.applyNode(views[r.Key.Source], r, buffered)
		}
		for arcSvc.HasComplete() {
			r, err := arcSvc.Reclaim(n.ctx)
			if err != nil {
				return err
			}
			if !n.applyArcs(views[r.Key.Source], r, buffered) {
				continue
			}
			var submitErr error
			r.Value.Range(func(dst domain.Node, _ domain.Probability) bool {
				submitErr = submitNode(r.Key.Source, dst)
				return submitErr == nil
			})
			if submitErr != nil {
				return fmt.Errorf("failed to submit node lookup: %w", submitErr)
			}
		}

		if nodeSvc.HasComplete() || arcSvc.HasComplete() {
			continue
		}
		if !nodeSvc.HasPending() && !arcSvc.HasPending() {
			break
		}
		select {
		case <-nodeSvc.Ready():
		case <-arcSvc.Ready():
		case <-n.ctx.Done():
			return n.ctx.Err()
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for lk := range buffered {
		// arcs whose tag weight never arrived
		n.markFailed(lk.Source, lk.Tag)
	}
	return nil
}

func (n *Naming) applyNode(v *view.LocalTGraph, r exec.Result[domain.NodeLookup, domain.NodeAttr], buffered map[domain.Lookup]domain.TGraphArcs) {
	n.mu.Lock()
	defer n.mu.Unlock()

	src, node := r.Key.Source, r.Key.Node
	if r.Err != nil {
		n.log.Warn("node lookup failed", slog.String("lookup", r.Key.String()), slog.Any("error", r.Err))
		n.failNode(src, v, node)
		return
	}

	var err error
	if r.Value.Present {
		err = v.SetNodeAttr(node, r.Value.Weight)
	} else {
		err = v.SetNodeAbsent(node)
	}
	if err != nil {
		n.log.Warn("rejected node data", slog.String("lookup", r.Key.String()), slog.Any("error", err))
		n.failNode(src, v, node)
		return
	}

	if node.Is1() {
		return
	}
	lk := domain.Lookup{Source: src, Tag: node.Must0()}
	if out, ok := buffered[lk]; ok {
		delete(buffered, lk)
		n.setOutgoing(v, lk, out)
	}
}

// applyArcs stores the out-arcs of a tag, or buffers them until the tag's
// weight is loaded. It reports whether the out-neighbours should be fetched.
func (n *Naming) applyArcs(v *view.LocalTGraph, r exec.Result[domain.Lookup, domain.TGraphArcs], buffered map[domain.Lookup]domain.TGraphArcs) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if r.Err != nil {
		n.log.Warn("arc lookup failed", slog.String("lookup", r.Key.String()), slog.Any("error", r.Err))
		n.markFailed(r.Key.Source, r.Key.Tag)
		return false
	}
	if !v.Loaded(domain.TagNode(r.Key.Tag)) {
		buffered[r.Key] = r.Value
		return true
	}
	return n.setOutgoing(v, r.Key, r.Value)
}

func (n *Naming) setOutgoing(v *view.LocalTGraph, lk domain.Lookup, out domain.TGraphArcs) bool {
	if err := v.SetOutgoingT(lk.Tag, out); err != nil {
		n.log.Warn("rejected tgraph arcs", slog.String("lookup", lk.String()), slog.Any("error", err))
		n.markFailed(lk.Source, lk.Tag)
		return false
	}
	addrs := make([]domain.Addr, 0, len(out.M1))
	for a := range out.M1 {
		addrs = append(addrs, a)
	}
	n.sources.SetOutgoing(lk.Source, addrs...)
	return true
}

// failNode marks as failed every tag that can no longer complete because the
// weight of node will never load.
func (n *Naming) failNode(src domain.Addr, v *view.LocalTGraph, node domain.Node) {
	if node.Is0() {
		n.markFailed(src, node.Must0())
	}
	for t := range v.Incoming(node) {
		n.markFailed(src, t)
	}
}

func (n *Naming) markFailed(src domain.Addr, tag domain.Tag) {
	f, ok := n.failed[src]
	if !ok {
		f = domain.NewSet[domain.Tag]()
		n.failed[src] = f
	}
	f.Add(tag)
}

// completedTags returns the tags that are complete, or have failed, in every
// view in use. Callers hold n.mu.
func (n *Naming) completedTags() domain.Set[domain.Tag] {
	var out domain.Set[domain.Tag]
	for _, a := range n.sources.InUse() {
		v, _ := n.sources.Local(a)
		done := v.CompletedTags()
		for t := range n.failed[a] {
			done.Add(t)
		}
		if out == nil {
			out = done
			continue
		}
		out.Retain(done)
	}
	if out == nil {
		return domain.NewSet[domain.Tag]()
	}
	return out
}

// update recomputes the source scores, the composite tag-graph and the
// address scheme.
func (n *Naming) update() error {
	n.mu.Lock()
	n.sources.CalculateScores()
	g, err := n.composer.Compose(sourcesOf(n.sources), n.sources.IsInUse, n.completedTags())
	n.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to compose tgraph: %w", err)
	}

	sch, err := n.build(g, n.seed)
	if err != nil {
		return fmt.Errorf("failed to build address scheme: %w", err)
	}
	n.scheme.Store(sch)
	n.log.Debug("address scheme updated",
		slog.Int("nodes", sch.Len()),
		slog.Bool("incomplete", sch.Incomplete()))
	return nil
}

// Scheme returns the latest address scheme, or nil before the first one.
func (n *Naming) Scheme() *scheme.Scheme { return n.scheme.Load() }

// CountSources returns the number of tag-graphs in use.
func (n *Naming) CountSources() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sources.InUse())
}

func (n *Naming) Status() exec.Status[NamingState] { return n.unit.Status() }
