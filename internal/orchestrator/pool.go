package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pool bounds concurrent task execution to Config.Concurrency futures
// (spec.md §4.6 main loop step 4, §5 "bounded concurrency") using a
// golang.org/x/sync/semaphore weighted semaphore.
type pool struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	futures map[string]*future
}

type future struct {
	done chan struct{}
	err  error
}

func newPool(concurrency int) *pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &pool{sem: semaphore.NewWeighted(int64(concurrency)), futures: make(map[string]*future)}
}

// submit runs fn in a new goroutine tagged with taskID, acquiring a pool
// slot first. Acquisition failure (context already done) is treated as a
// submission error recorded against the future.
func (p *pool) submit(taskID string, fn func() error) {
	f := &future{done: make(chan struct{})}

	p.mu.Lock()
	p.futures[taskID] = f
	p.mu.Unlock()

	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		f.err = fmt.Errorf("orchestrator: acquire pool slot: %w", err)
		close(f.done)
		return
	}

	go func() {
		defer p.sem.Release(1)
		defer close(f.done)
		f.err = fn()
	}()
}

// running reports the number of in-flight futures.
func (p *pool) running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, f := range p.futures {
		select {
		case <-f.done:
		default:
			n++
		}
	}
	return n
}

// reapCompleted removes finished futures, invoking onErr for any that
// returned a non-nil error (spec.md §4.6 main loop step 1: "sweep completed
// futures, log any that raised").
func (p *pool) reapCompleted(onErr func(taskID string, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, f := range p.futures {
		select {
		case <-f.done:
			if f.err != nil && onErr != nil {
				onErr(id, f.err)
			}
			delete(p.futures, id)
		default:
		}
	}
}

// await blocks until taskID's future completes, returning its error.
// Returns nil immediately if no future is tracked for taskID.
func (p *pool) await(taskID string) error {
	p.mu.Lock()
	f, ok := p.futures[taskID]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	<-f.done
	return f.err
}

// wait blocks until every tracked future completes, used on shutdown.
func (p *pool) wait() {
	p.mu.Lock()
	futures := make([]*future, 0, len(p.futures))
	for _, f := range p.futures {
		futures = append(futures, f)
	}
	p.mu.Unlock()
	for _, f := range futures {
		<-f.done
	}
}
