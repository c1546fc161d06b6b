package pack

import (
	"context"

	"stempack/internal/archive"
)

// runParallel packages stems on a pool of workers owned by this call. Results are
// collected in completion order by a single goroutine, which is also the only caller
// of the hook. An error is returned only when the pool cannot be created, before any
// stem has been dispatched.
func (r *runner) runParallel(ctx context.Context, stems []string, workers int) ([]archive.Result, error) {
	pool, err := r.poolFactory(workers)
	if err != nil {
		return nil, err
	}

	resultsChan := make(chan archive.Result, workers)
	collected := make([]archive.Result, 0, len(stems))
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for res := range resultsChan {
			r.emitResult(res)
			collected = append(collected, res)
		}
	}()

	func() {
		defer pool.Wait()
		for _, stemName := range stems {
			pool.Go(func() {
				resultsChan <- r.execute(ctx, stemName)
			})
		}
	}()

	close(resultsChan)
	<-collectorDone
	return collected, nil
}
