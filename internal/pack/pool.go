package pack

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool runs jobs on a bounded set of workers.
type Pool interface {
	// Go hands job to a worker, blocking while every worker is busy.
	Go(job func())
	// Wait blocks until all submitted jobs have returned and releases the workers.
	// It is safe to call more than once.
	Wait()
}

// PoolFactory constructs the pool owned by a single parallel run.
type PoolFactory func(size int) (Pool, error)

type workerPool struct {
	jobs  chan func()
	group errgroup.Group
	once  sync.Once
}

// NewWorkerPool starts size workers that live until Wait is called.
func NewWorkerPool(size int) (Pool, error) { //nolint:ireturn
	if size < 1 {
		return nil, fmt.Errorf("%w: size %d", ErrPoolUnavailable, size)
	}
	p := &workerPool{jobs: make(chan func())}
	for i := 0; i < size; i++ {
		p.group.Go(func() error {
			for job := range p.jobs {
				job()
			}
			return nil
		})
	}
	return p, nil
}

func (p *workerPool) Go(job func()) { p.jobs <- job }

func (p *workerPool) Wait() {
	p.once.Do(func() { close(p.jobs) })
	_ = p.group.Wait()
}
