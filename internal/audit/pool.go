package audit

import (
	"context"
	"sync"
)

// WorkerPool manages a bounded set of goroutines for parallel instrument audits
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// Run calls fn once for every index in [0, n) across the pool and blocks until
// all calls return. Indexes not yet started when ctx is cancelled are passed to
// skip instead of fn.
func (wp *WorkerPool) Run(ctx context.Context, n int, fn func(ctx context.Context, idx int), skip func(idx int)) {
	if n == 0 {
		return
	}

	jobs := make(chan int, n)

	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n // Don't spawn more workers than jobs
	}

	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					skip(idx)
					continue
				}
				fn(ctx, idx)
			}
		}()
	}

	for idx := 0; idx < n; idx++ {
		jobs <- idx
	}
	close(jobs)

	wg.Wait()
}
