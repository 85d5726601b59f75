// Package scheduler implements the central coordination core: the task
// graph store, the resource ledger, the worker registry with silence-based
// staleness reclaim, and the work assignment algorithm. All state is owned
// by this package and mutated only through the exported operations.
package scheduler
