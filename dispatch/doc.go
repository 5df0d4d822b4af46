// Package dispatch schedules systems over a github.com/forgelabs/ecsframe/ecs
// World: a dependency DAG built from explicit edges plus reservation-set
// conflicts, executed in conflict-free parallel stages with barriers and a
// sequential thread-local tail.
//
// Grounded on the teacher's internal/core/system package (Phase-ordered
// System interface, Runner.Tick), generalized from a fixed phase-sorted
// sequential loop into a full dependency graph executed concurrently
// through a pluggable ecs.Executor (backed by golang.org/x/sync/errgroup
// unless DispatcherBuilder.WithExecutor installs another).
package dispatch
