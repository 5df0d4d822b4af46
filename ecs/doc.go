// Package ecs provides the storage and iteration core of a parallel
// entity-component-system runtime: a generational entity allocator,
// layered occupancy bitsets, component storage variants, a join algebra
// over them, change-tracking events, and a type-keyed resource registry.
//
// The scheduler that executes user systems over this storage lives in the
// sibling package github.com/forgelabs/ecsframe/dispatch.
package ecs
