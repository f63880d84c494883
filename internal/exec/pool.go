// Package exec runs store fetches and layer jobs on a shared bounded pool.
package exec

import (
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 0x40

// Pool is a fixed-size worker pool shared by every task and unit service of
// a query environment.
type Pool struct {
	group *errgroup.Group
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	return &Pool{group: g}
}

// Run executes fn on a free worker, or on the calling goroutine when every
// worker is busy.
func (p *Pool) Run(fn func()) {
	if p.group.TryGo(func() error { fn(); return nil }) {
		return
	}
	fn()
}

// Spawn hands fn to the pool without ever running it on the caller. It
// returns at once; fn starts when a worker frees up.
func (p *Pool) Spawn(fn func()) {
	go p.group.Go(func() error { fn(); return nil })
}
