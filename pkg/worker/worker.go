// Package worker provides the deterministic task partitioning and local
// fan-out used in the convolution phase. Every worker derives its own
// slice of the task list from (worker count, worker index, task count)
// alone, so no coordination is needed beyond the phase barriers.
package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Context identifies one worker within a run. It is passed explicitly
// wherever rank-dependent decisions are made; there is no ambient
// process-global rank.
type Context struct {
	// Rank is the worker index, 0 <= Rank < WorldSize.
	Rank int

	// WorldSize is the total number of workers.
	WorldSize int
}

// Validate checks the rank/world-size invariants.
func (c Context) Validate() error {
	if c.WorldSize < 1 {
		return fmt.Errorf("world size must be positive, got %d", c.WorldSize)
	}
	if c.Rank < 0 || c.Rank >= c.WorldSize {
		return fmt.Errorf("rank %d out of range for world size %d", c.Rank, c.WorldSize)
	}
	return nil
}

// Partition returns the half-open range [start, end) of tasks owned by
// this worker out of total. The split is contiguous with any remainder
// going to the first workers: for 10 tasks over 3 workers the block
// sizes are 4, 3, 3.
func (c Context) Partition(total int) (start, end int) {
	count := total / c.WorldSize
	rem := total % c.WorldSize
	if c.Rank < rem {
		start = c.Rank * (count + 1)
		return start, start + count + 1
	}
	start = c.Rank*count + rem
	return start, start + count
}

// Run executes fn once per worker rank, all ranks concurrently, and
// fails fast: the first error cancels the context shared by the others
// and aborts the run. Used for the embarrassingly parallel phases.
func Run(ctx context.Context, workers int, fn func(ctx context.Context, wc Context) error) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < workers; rank++ {
		wc := Context{Rank: rank, WorldSize: workers}
		g.Go(func() error {
			return fn(ctx, wc)
		})
	}
	return g.Wait()
}
