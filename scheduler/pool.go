package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// pool is a fixed set of worker goroutines started once and reused every
// frame.
type pool struct {
	jobs chan func()
	wg   sync.WaitGroup
	size int
}

func newPool(size int) *pool {
	p := &pool{jobs: make(chan func(), size), size: size}
	p.wg.Add(size)
	for range size {
		go p.work()
	}
	return p
}

func (p *pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

func (p *pool) submit(job func()) {
	p.jobs <- job
}

func (p *pool) close() {
	close(p.jobs)
	p.wg.Wait()
}

// barrier joins one wave. The last participant to finish signals done; the
// joiner spins briefly before parking so short waves avoid a wake-up.
type barrier struct {
	pending atomic.Int64
	done    chan struct{}
	spin    int
}

func newBarrier(spin int) *barrier {
	return &barrier{done: make(chan struct{}, 1), spin: spin}
}

func (b *barrier) arm(n int) {
	b.pending.Store(int64(n))
}

func (b *barrier) leave() {
	if b.pending.Add(-1) == 0 {
		b.done <- struct{}{}
	}
}

// wait blocks until every participant left. The receive also consumes the
// completion signal so the barrier can be re-armed.
func (b *barrier) wait() {
	for i := 0; i < b.spin && b.pending.Load() != 0; i++ {
		runtime.Gosched()
	}
	<-b.done
}
