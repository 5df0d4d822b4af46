package ecs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
)

func wideWordIndex(w int) uint32 { return uint32(w) * wordBits * wordBits * wordBits }

func TestForEachTopRangePartitionsDisjointly(t *testing.T) {
	b := NewBitSet()
	// One index in each of three distinct top-layer (layer-3) bits.
	idx0 := wideWordIndex(0)
	idx1 := wideWordIndex(1) + 5
	idx2 := wideWordIndex(2) + 9
	b.Add(idx0)
	b.Add(idx1)
	b.Add(idx2)

	var first, second []uint32
	ForEachTopRange(b, b.bound(), 0, 2, func(i uint32) bool { first = append(first, i); return true })
	ForEachTopRange(b, b.bound(), 2, 3, func(i uint32) bool { second = append(second, i); return true })

	if !sliceEq(first, []uint32{idx0, idx1}) {
		t.Fatalf("expected partition [0,2) to see idx0,idx1, got %v", first)
	}
	if !sliceEq(second, []uint32{idx2}) {
		t.Fatalf("expected partition [2,3) to see idx2, got %v", second)
	}
}

func TestJoinForEachParallelVisitsEveryIndexExactlyOnce(t *testing.T) {
	pos := NewSparseStore[position]()
	vel := NewSparseStore[velocity]()
	const n = 5
	for w := 0; w < n; w++ {
		i := wideWordIndex(w) + uint32(w)
		pos.Insert(i, position{float64(i), 0})
		vel.Insert(i, velocity{1, 0})
	}

	j, err := NewJoin(WriteTerm(pos), ReadTerm(vel))
	if err != nil {
		t.Fatalf("NewJoin: %v", err)
	}

	var mu sync.Mutex
	var got []uint32
	err = j.ForEachParallel(context.Background(), nil, 4, func(i uint32, values []any) {
		mu.Lock()
		got = append(got, i)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("ForEachParallel: %v", err)
	}

	sort.Slice(got, func(a, b int) bool { return got[a] < got[b] })
	var want []uint32
	for w := 0; w < n; w++ {
		want = append(want, wideWordIndex(w)+uint32(w))
	}
	if !sliceEq(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestJoinForEachParallelFallsBackToSequentialForSmallJoins(t *testing.T) {
	pos := NewSparseStore[position]()
	pos.Insert(1, position{1, 1})
	pos.Insert(2, position{2, 2})

	j, err := NewJoin(ReadTerm(pos))
	if err != nil {
		t.Fatalf("NewJoin: %v", err)
	}

	n := 0
	err = j.ForEachParallel(context.Background(), nil, 8, func(uint32, []any) { n++ })
	if err != nil {
		t.Fatalf("ForEachParallel: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 visits, got %d", n)
	}
}

func TestJoinForEachParallelPropagatesExecutorError(t *testing.T) {
	pos := NewSparseStore[position]()
	for w := 0; w < 4; w++ {
		pos.Insert(wideWordIndex(w), position{})
	}
	j, err := NewJoin(ReadTerm(pos))
	if err != nil {
		t.Fatalf("NewJoin: %v", err)
	}

	boom := errors.New("worker failed")
	failing := failingExecutor{err: boom}
	err = j.ForEachParallel(context.Background(), failing, 4, func(uint32, []any) {})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the executor's error to propagate, got %v", err)
	}
}

type failingExecutor struct{ err error }

func (f failingExecutor) Run(ctx context.Context, tasks ...func() error) error {
	for _, fn := range tasks {
		if err := fn(); err != nil {
			return err
		}
	}
	return f.err
}

func TestGoroutineExecutorRunsAllTasksAndPropagatesError(t *testing.T) {
	var exec GoroutineExecutor

	var mu sync.Mutex
	count := 0
	err := exec.Run(context.Background(),
		func() error { mu.Lock(); count++; mu.Unlock(); return nil },
		func() error { mu.Lock(); count++; mu.Unlock(); return nil },
		func() error { mu.Lock(); count++; mu.Unlock(); return fmt.Errorf("boom") },
	)
	if err == nil {
		t.Fatalf("expected the failing task's error to propagate")
	}
	if count != 3 {
		t.Fatalf("expected every task to run even though one failed, got %d", count)
	}
}

func TestErrgroupExecutorRunsAllTasks(t *testing.T) {
	var exec ErrgroupExecutor
	var mu sync.Mutex
	count := 0
	err := exec.Run(context.Background(),
		func() error { mu.Lock(); count++; mu.Unlock(); return nil },
		func() error { mu.Lock(); count++; mu.Unlock(); return nil },
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected both tasks to run, got %d", count)
	}
}
