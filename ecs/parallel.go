package ecs

import (
	"context"
	"math/bits"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Executor is the pluggable concurrency substrate both a Join's parallel
// iteration and a dispatcher's parallel stages run their independent
// tasks through, per spec.md §9's design note: "the core depends on a
// small interface (spawn, join) rather than a specific runtime." Run folds
// spawn and join into one call, since nothing here needs a task handle
// that outlives the batch it belongs to.
type Executor interface {
	Run(ctx context.Context, tasks ...func() error) error
}

// ErrgroupExecutor runs tasks through a golang.org/x/sync/errgroup.Group.
// It is the default Executor for both Join.ForEachParallel and
// dispatch.Dispatcher's parallel stages.
type ErrgroupExecutor struct{}

func (ErrgroupExecutor) Run(ctx context.Context, tasks ...func() error) error {
	g, _ := errgroup.WithContext(ctx)
	for _, fn := range tasks {
		g.Go(fn)
	}
	return g.Wait()
}

// GoroutineExecutor runs tasks on plain goroutines synchronized with a
// WaitGroup, with no dependency on errgroup — the fallback spec.md §9
// leaves room for, so a host can swap in its own scheduling primitive
// without pulling errgroup into the build at all.
type GoroutineExecutor struct{}

func (GoroutineExecutor) Run(ctx context.Context, tasks ...func() error) error {
	errs := make(chan error, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for _, fn := range tasks {
		go func(fn func() error) {
			defer wg.Done()
			errs <- fn()
		}(fn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Executor = ErrgroupExecutor{}
	_ Executor = GoroutineExecutor{}
)

// DefaultExecutor is used wherever a caller leaves its Executor nil.
var DefaultExecutor Executor = ErrgroupExecutor{}

// ForEachTopRange calls fn for every set index in m whose top-layer bit
// falls in [lo, hi), in increasing order. Top-layer bit k is bit k%64 of
// layer-3 word k/64; it summarizes layer-2 word k, i.e. the 262144 indices
// starting at k*262144. It is the
// sequential unit Join.ForEachParallel hands each worker a disjoint
// partition of, per spec.md §4.4: "partitions the top-layer bits among
// workers; each worker walks its sub-range sequentially."
func ForEachTopRange(m mask, bound, lo, hi int, fn func(i uint32) bool) {
	if bound <= 0 || hi <= lo {
		return
	}
	words1 := ceilDiv(bound, wordBits)
	words2 := ceilDiv(words1, wordBits)
	words3 := ceilDiv(words2, wordBits)
	if hi > words2 {
		hi = words2
	}
	for w3 := lo / wordBits; w3 < words3; w3++ {
		word3 := m.layer3Word(w3)
		if word3 == 0 {
			continue
		}
		for b3 := 0; b3 < wordBits; b3++ {
			if word3&(1<<uint(b3)) == 0 {
				continue
			}
			w2 := w3*wordBits + b3
			if w2 < lo || w2 >= hi {
				continue
			}
			word2 := m.layer2Word(w2)
			if word2 == 0 {
				continue
			}
			for b2 := 0; b2 < wordBits; b2++ {
				if word2&(1<<uint(b2)) == 0 {
					continue
				}
				w1 := w2*wordBits + b2
				word1 := m.layer1Word(w1)
				if word1 == 0 {
					continue
				}
				for b1 := 0; b1 < wordBits; b1++ {
					if word1&(1<<uint(b1)) == 0 {
						continue
					}
					w0 := w1*wordBits + b1
					if w0 >= bound {
						return
					}
					word0 := m.layer0Word(w0)
					for word0 != 0 {
						b0 := bits.TrailingZeros64(word0)
						idx := uint32(w0*wordBits) + uint32(b0)
						if !fn(idx) {
							return
						}
						word0 &^= 1 << uint(b0)
					}
				}
			}
		}
	}
}

// ForEachParallel bisects j's top occupancy layer into up to workers
// disjoint partitions and walks each partition on its own task through
// exec, per spec.md §4.4. fn is invoked concurrently across workers, once
// per matching index with that worker's own scratch values slice; it must
// not assume ordering across partitions the way ForEach's single-threaded
// callers can. Safe with respect to component storages: NewJoin already
// rejects more than one mutable accessor per storage, and disjoint
// partitions visit disjoint indices, so no two workers ever touch the same
// component slot.
//
// A nil exec uses DefaultExecutor. workers <= 1, or a join whose bound
// spans a single top-layer bit, falls back to a plain sequential ForEach;
// otherwise at most one partition per top-layer bit is made.
func (j *Join) ForEachParallel(ctx context.Context, exec Executor, workers int, fn func(i uint32, values []any)) error {
	sequential := func() error {
		j.ForEach(func(i uint32, values []any) bool {
			fn(i, values)
			return true
		})
		return nil
	}
	if workers <= 1 {
		return sequential()
	}
	if exec == nil {
		exec = DefaultExecutor
	}

	words1 := ceilDiv(j.bound, wordBits)
	words2 := ceilDiv(words1, wordBits) // number of top-layer bits in range
	if words2 <= 1 {
		return sequential()
	}
	if workers > words2 {
		workers = words2
	}

	chunk := ceilDiv(words2, workers)
	var tasks []func() error
	for lo := 0; lo < words2; lo += chunk {
		lo := lo
		hi := lo + chunk
		if hi > words2 {
			hi = words2
		}
		tasks = append(tasks, func() error {
			values := make([]any, len(j.terms))
			ForEachTopRange(j.m, j.bound, lo, hi, func(i uint32) bool {
				for k, t := range j.terms {
					values[k] = t.at(i)
				}
				fn(i, values)
				return true
			})
			return nil
		})
	}
	return exec.Run(ctx, tasks...)
}
