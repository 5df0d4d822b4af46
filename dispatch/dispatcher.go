package dispatch

import (
	"context"
	"fmt"

	"github.com/forgelabs/ecsframe/ecs"
)

type node struct {
	name         string
	sys          System
	dependsOn    []string
	threadLocal  bool
	barrierIndex int // insertion-order position of the barrier preceding this node, or -1
}

// DispatcherBuilder assembles systems, explicit dependency edges, and
// barriers into a Dispatcher. Grounded on spec.md §4.7 ("Dispatcher build
// takes a sequence of (system, name, depends_on) plus explicit barrier
// markers"), echoing DangerosoDavo-ecs's Scheduler/WorkGroup vocabulary for
// the barrier/thread-local split.
type DispatcherBuilder struct {
	nodes         []node
	names         map[string]int
	parallelCount int // number of non-thread-local nodes added so far
	barrierMark   int // parallelCount as of the most recent AddBarrier
	executor      ecs.Executor
	err           error
}

// NewDispatcherBuilder returns an empty builder.
func NewDispatcherBuilder() *DispatcherBuilder {
	return &DispatcherBuilder{names: make(map[string]int), barrierMark: -1}
}

// WithExecutor overrides the Executor each parallel stage runs its systems
// through. Build installs ecs.DefaultExecutor when none is given — the
// same pluggable "spawn, join" substrate a parallel join partitions its
// worker tasks through (spec.md §9, ecs.Executor).
func (b *DispatcherBuilder) WithExecutor(exec ecs.Executor) *DispatcherBuilder {
	b.executor = exec
	return b
}

// Add registers sys under name, runnable once every system named in
// dependsOn has completed.
func (b *DispatcherBuilder) Add(sys System, name string, dependsOn ...string) *DispatcherBuilder {
	return b.add(sys, name, dependsOn, false)
}

// AddThreadLocal registers sys as part of the sequential tail that runs,
// in insertion order among thread-local systems, after every parallel
// stage of a Dispatch completes — for non-Send operations such as
// rendering (spec.md §4.7).
func (b *DispatcherBuilder) AddThreadLocal(sys System, name string, dependsOn ...string) *DispatcherBuilder {
	return b.add(sys, name, dependsOn, true)
}

func (b *DispatcherBuilder) add(sys System, name string, dependsOn []string, threadLocal bool) *DispatcherBuilder {
	if b.err != nil {
		return b
	}
	if _, exists := b.names[name]; exists {
		b.err = fmt.Errorf("dispatch: duplicate system name %q", name)
		return b
	}
	for _, dep := range dependsOn {
		if _, ok := b.names[dep]; !ok {
			b.err = fmt.Errorf("dispatch: system %q depends on unknown system %q", name, dep)
			return b
		}
	}
	b.names[name] = len(b.nodes)
	b.nodes = append(b.nodes, node{
		name:         name,
		sys:          sys,
		dependsOn:    append([]string(nil), dependsOn...),
		threadLocal:  threadLocal,
		barrierIndex: b.barrierMark,
	})
	if !threadLocal {
		b.parallelCount++
	}
	return b
}

// AddBarrier forces every system added so far to complete before any
// system added afterward starts. Thread-local systems are unaffected —
// they always run after every parallel stage regardless of barriers.
func (b *DispatcherBuilder) AddBarrier() *DispatcherBuilder {
	if b.err != nil {
		return b
	}
	b.barrierMark = b.parallelCount
	return b
}

// Build validates the graph (no cycles, no unresolved names) and computes
// the parallel-stage schedule.
func (b *DispatcherBuilder) Build() (*Dispatcher, error) {
	if b.err != nil {
		return nil, b.err
	}

	parallel := make([]node, 0, len(b.nodes))
	var threadLocal []node
	for _, n := range b.nodes {
		if n.threadLocal {
			threadLocal = append(threadLocal, n)
		} else {
			parallel = append(parallel, n)
		}
	}

	edges, err := b.buildEdges(parallel)
	if err != nil {
		return nil, err
	}
	levels, err := levelize(parallel, edges)
	if err != nil {
		return nil, err
	}

	executor := b.executor
	if executor == nil {
		executor = ecs.DefaultExecutor
	}

	return &Dispatcher{
		parallel:    parallel,
		levels:      levels,
		threadLocal: threadLocal,
		executor:    executor,
	}, nil
}

// buildEdges returns, for each node index (into parallel), the set of node
// indices that must complete first: explicit dependsOn edges, barrier
// edges (every node before the barrier feeds every node after it), and
// implicit edges from reservation-set conflicts with no existing explicit
// ordering, resolved by insertion order (spec.md §4.7).
func (b *DispatcherBuilder) buildEdges(parallel []node) ([][]int, error) {
	index := make(map[string]int, len(parallel))
	for i, n := range parallel {
		index[n.name] = i
	}

	edges := make([][]int, len(parallel))
	has := make([]map[int]bool, len(parallel))
	for i := range has {
		has[i] = make(map[int]bool)
	}
	addEdge := func(from, to int) {
		if from == to || has[to][from] {
			return
		}
		has[to][from] = true
		edges[to] = append(edges[to], from)
	}

	for i, n := range parallel {
		for _, dep := range n.dependsOn {
			j, ok := index[dep]
			if !ok {
				// The dependency names a thread-local system; thread-local
				// systems always run after every parallel stage, so a
				// parallel system can't meaningfully depend on one.
				return nil, fmt.Errorf("dispatch: system %q depends on %q, which is thread-local", n.name, dep)
			}
			addEdge(j, i)
		}
		if n.barrierIndex >= 0 {
			for j := 0; j < n.barrierIndex && j < len(parallel); j++ {
				addEdge(j, i)
			}
		}
	}

	for i := 0; i < len(parallel); i++ {
		for j := i + 1; j < len(parallel); j++ {
			if !reservationsConflict(parallel[i].sys.Reservations(), parallel[j].sys.Reservations()) {
				continue
			}
			addEdge(i, j)
		}
	}

	return edges, nil
}

func reservationsConflict(a, b []Reservation) bool {
	for _, ra := range a {
		for _, rb := range b {
			if ra.Type != rb.Type {
				continue
			}
			if ra.Mode == Write || rb.Mode == Write {
				return true
			}
		}
	}
	return false
}

// levelize assigns each node a stage number equal to one more than the
// maximum stage of its predecessors (longest-path layering), which
// guarantees two nodes at the same stage share no edge and so may run
// concurrently. Detects cycles (which should be unreachable given
// insertion-order edge construction, but user-supplied explicit
// dependsOn could in principle still form one if misused).
func levelize(parallel []node, edges [][]int) ([][]int, error) {
	level := make([]int, len(parallel))
	state := make([]int, len(parallel)) // 0=unvisited 1=visiting 2=done

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("dispatch: dependency cycle involving %q", parallel[i].name)
		}
		state[i] = 1
		max := -1
		for _, dep := range edges[i] {
			if err := visit(dep); err != nil {
				return err
			}
			if level[dep] > max {
				max = level[dep]
			}
		}
		level[i] = max + 1
		state[i] = 2
		return nil
	}

	for i := range parallel {
		if err := visit(i); err != nil {
			return nil, err
		}
	}

	maxLevel := -1
	for _, l := range level {
		if l > maxLevel {
			maxLevel = l
		}
	}
	stages := make([][]int, maxLevel+1)
	for i, l := range level {
		stages[l] = append(stages[l], i)
	}
	return stages, nil
}

// Dispatcher runs a fixed system graph against a World, once per Dispatch
// call.
type Dispatcher struct {
	parallel    []node
	levels      [][]int
	threadLocal []node
	executor    ecs.Executor
}

// Setup visits every system once, in insertion order (parallel systems
// first in their original order, then thread-local systems), per spec.md
// §4.7's setup pass.
func (d *Dispatcher) Setup(w *ecs.World) {
	for _, n := range d.parallel {
		n.sys.Setup(w)
	}
	for _, n := range d.threadLocal {
		n.sys.Setup(w)
	}
}

// Dispatch runs every parallel stage in order, waiting for each to
// complete before starting the next, then runs the thread-local tail
// sequentially. Each stage runs as one batch through the Dispatcher's
// ecs.Executor; with either executor in package ecs, sibling systems
// already running in a stage finish before that stage's Run returns.
//
// A panic inside any system is recovered and turned into an error, and
// marks w poisoned (ecs.World.Poison) for the remainder of the process:
// every subsequent Dispatch call returns an error immediately, without
// running any system, until the host calls w.Acknowledge() — spec.md §9's
// explicit-acknowledgment policy, deliberately no silent auto-recovery.
func (d *Dispatcher) Dispatch(ctx context.Context, w *ecs.World) error {
	if poisoned, err := w.Poisoned(); poisoned {
		return fmt.Errorf("dispatch: world is poisoned, call Acknowledge before dispatching again: %w", err)
	}

	if err := d.runStages(ctx, w); err != nil {
		w.Poison(err)
		return err
	}
	return nil
}

func (d *Dispatcher) runStages(ctx context.Context, w *ecs.World) error {
	for _, stage := range d.levels {
		tasks := make([]func() error, len(stage))
		for k, i := range stage {
			n := d.parallel[i]
			tasks[k] = func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("dispatch: system %q panicked: %v", n.name, r)
					}
				}()
				n.sys.Run(w)
				return nil
			}
		}
		if err := d.executor.Run(ctx, tasks...); err != nil {
			return err
		}
	}
	for _, n := range d.threadLocal {
		if err := runThreadLocal(n, w); err != nil {
			return err
		}
	}
	return nil
}

func runThreadLocal(n node, w *ecs.World) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: system %q panicked: %v", n.name, r)
		}
	}()
	n.sys.Run(w)
	return nil
}
