// Package workers provides a persistent goroutine pool for data-parallel
// passes over particle index ranges.
package workers

import (
	"runtime"
	"sync"
)

// Threshold is the minimum item count to use parallel processing.
// Below this, running inline is faster than the channel round trips.
const Threshold = 256

// chunk represents a range of items for a worker to process.
type chunk struct {
	lo, hi int
	fn     func(lo, hi, worker int)
}

// Pool runs chunked work on persistent goroutines. Dispatch is a barrier:
// it returns only after every chunk has finished, so consecutive dispatches
// never overlap. A Pool is driven by one goroutine at a time.
type Pool struct {
	numWorkers int

	workChan chan chunk    // sends work to workers
	doneChan chan struct{} // workers signal completion
	stopChan chan struct{} // signals workers to exit
	wg       sync.WaitGroup
	running  bool
}

// New creates a pool with n workers. n <= 0 uses GOMAXPROCS.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: n}
}

// Workers returns the number of workers, which is also the number of
// distinct worker indices passed to dispatched functions.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.numWorkers
}

// start launches the worker goroutines.
func (p *Pool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan chunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case c, ok := <-p.workChan:
			if !ok {
				return
			}
			c.fn(c.lo, c.hi, id)
			p.doneChan <- struct{}{}
		}
	}
}

// Dispatch splits [0,n) into contiguous chunks, one per worker, and runs fn
// on each. fn must only write state owned by its own index range or by its
// worker index. A nil pool or small n runs inline as worker 0.
func (p *Pool) Dispatch(n int, fn func(lo, hi, worker int)) {
	if n <= 0 {
		return
	}
	if p == nil || p.numWorkers == 1 || n < Threshold {
		fn(0, n, 0)
		return
	}
	p.DispatchChunks(n, fn)
}

// DispatchChunks is Dispatch without the inline shortcut. Callers that size
// per-worker buffers from chunk boundaries use it so the chunking is the
// same for every n.
func (p *Pool) DispatchChunks(n int, fn func(lo, hi, worker int)) {
	if n <= 0 {
		return
	}
	if p == nil {
		fn(0, n, 0)
		return
	}
	if !p.running {
		p.start()
	}

	size := ChunkSize(n, p.numWorkers)
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		lo := w * size
		hi := min(lo+size, n)
		if lo >= hi {
			continue
		}
		p.workChan <- chunk{lo: lo, hi: hi, fn: fn}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

// ChunkSize returns the chunk length DispatchChunks uses for n items over
// the given number of workers.
func ChunkSize(n, workers int) int {
	if workers < 1 {
		workers = 1
	}
	return (n + workers - 1) / workers
}

// Close stops the workers and waits for them to exit.
func (p *Pool) Close() {
	if p == nil || !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}
