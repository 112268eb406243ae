// Package parallel runs instance producers on a fixed set of goroutines.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// RunError reports the failure of one run of a Pool.Run call.
type RunError struct {
	// Run is the index of the failed run.
	Run int
	Err error
}

func (e *RunError) Error() string { return fmt.Sprintf("run %d: %v", e.Run, e.Err) }

// Unwrap returns the run's error.
func (e *RunError) Unwrap() error { return e.Err }

// round is one Run call: n runs of the same function, each writing its own
// error slot.
type round struct {
	fill func(run int) error
	errs []error
	wg   sync.WaitGroup
}

// ticket is one queued run of a round.
type ticket struct {
	r   *round
	run int
}

func (t ticket) exec() {
	defer t.r.wg.Done()
	t.r.errs[t.run] = t.r.fill(t.run)
}

// Pool fills numbered runs on a fixed set of goroutines.
//
// Each worker owns a queue of tickets. An idle worker takes tickets from
// the other queues, so one slow producer does not leave the rest of the
// pool waiting behind it.
//
// Pool is safe for concurrent use; concurrent Run calls share the workers.
type Pool struct {
	workers int
	queues  []chan ticket

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		workers: workers,
		queues:  make([]chan ticket, workers),
		done:    make(chan struct{}),
	}
	depth := max(workers*4, 8)
	for i := range workers {
		p.queues[i] = make(chan ticket, depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.work(i)
	}
	return p
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case t := <-own:
			t.exec()
		default:
			if t, ok := p.take(id); ok {
				t.exec()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case t := <-own:
				t.exec()
			}
		}
	}
}

func (p *Pool) drain(queue chan ticket) {
	for {
		select {
		case t := <-queue:
			t.exec()
		default:
			return
		}
	}
}

// take removes a ticket from another worker's queue.
func (p *Pool) take(id int) (ticket, bool) {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case t := <-p.queues[i]:
			return t, true
		default:
		}
	}
	return ticket{}, false
}

// Run calls fill for every run in [0, n) and returns when all have
// finished. Runs execute in any order and on any worker; each must only
// write state owned by its index.
//
// The result is nil or a *RunError for the lowest failing index, so the
// reported failure does not depend on scheduling. Once the pool is closed,
// runs execute on the calling goroutine.
func (p *Pool) Run(n int, fill func(run int) error) error {
	if n <= 0 {
		return nil
	}
	r := &round{fill: fill, errs: make([]error, n)}
	r.wg.Add(n)
	for i := range n {
		t := ticket{r: r, run: i}
		if !p.running.Load() {
			t.exec()
			continue
		}
		select {
		case p.queues[i%p.workers] <- t:
		case <-p.done:
			t.exec()
		}
	}
	r.wg.Wait()

	for i, err := range r.errs {
		if err != nil {
			return &RunError{Run: i, Err: err}
		}
	}
	return nil
}

// Close stops the workers after the queued runs have executed.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int { return p.workers }

// IsRunning reports whether the pool still dispatches to its workers.
func (p *Pool) IsRunning() bool { return p.running.Load() }
