package service

import (
	"context"
	"sync"
)

// AllSolutions is the solution key of a job that touches every solution.
const AllSolutions = ""

type jobKey struct {
	job      string
	solution string
}

// JobGuard keeps background jobs on the store from overlapping. A job runs
// either on one solution (an import) or on all of them (a maintenance
// sweep). Two jobs conflict when they share a job name and solution, and a
// sweep conflicts with every other running job. Maintenance and the import
// watcher share one guard so a sweep never prunes a solution mid-import.
type JobGuard struct {
	mu      sync.Mutex
	running map[jobKey]struct{}
	wg      sync.WaitGroup
}

func NewJobGuard() *JobGuard {
	return &JobGuard{running: make(map[jobKey]struct{})}
}

// TryLock claims job on solution; false if a conflicting job is running.
func (g *JobGuard) TryLock(job, solution string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[jobKey]struct{})
	}
	for k := range g.running {
		if k.solution == AllSolutions || solution == AllSolutions || k == (jobKey{job, solution}) {
			return false
		}
	}
	g.running[jobKey{job, solution}] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock must follow a successful TryLock with the same arguments.
func (g *JobGuard) Unlock(job, solution string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, jobKey{job, solution})
	g.wg.Done()
}

// Busy reports whether any job holds solution, including a sweep.
func (g *JobGuard) Busy(solution string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.running {
		if k.solution == AllSolutions || k.solution == solution {
			return true
		}
	}
	return false
}

// WaitAll blocks until running jobs finish or ctx ends.
func (g *JobGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
