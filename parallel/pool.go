// Package parallel runs row-banded work across a set of persistent worker
// goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Threshold is the minimum row count to fan out. Below this, running inline
// is faster than the channel round trip.
const Threshold = 32

// band is a contiguous range of rows for a worker to process.
type band struct {
	y0, y1 int
	fn     func(y0, y1 int)
}

// Pool is a fixed set of workers. Run is not safe for concurrent use; the
// simulator issues one pass at a time.
type Pool struct {
	numWorkers int

	workChan chan band      // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

// NewPool creates a pool with n workers. n <= 0 uses GOMAXPROCS.
// Workers start lazily on the first Run that needs them.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: n}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.numWorkers }

func (p *Pool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan band, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker processes bands until stopped.
func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case b, ok := <-p.workChan:
			if !ok {
				return
			}
			b.fn(b.y0, b.y1)
			p.doneChan <- struct{}{}
		}
	}
}

// Run splits [0, rows) into contiguous bands, one per worker, and blocks
// until every band has completed.
func (p *Pool) Run(rows int, fn func(y0, y1 int)) {
	if rows <= 0 {
		return
	}
	if rows < Threshold || p.numWorkers == 1 {
		fn(0, rows)
		return
	}

	p.start()

	bandSize := (rows + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		y0 := w * bandSize
		y1 := min(y0+bandSize, rows)
		if y0 >= y1 {
			continue
		}
		p.workChan <- band{y0: y0, y1: y1, fn: fn}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

// Close signals all workers to exit and waits for them. The pool can be
// reused afterwards; workers restart on the next Run.
func (p *Pool) Close() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}
