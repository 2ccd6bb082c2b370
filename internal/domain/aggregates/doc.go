// Package aggregates declares the write boundaries of the catalog: the
// operations whose lifecycle invariants must hold atomically, their inputs,
// results and error codes. Implementations live in internal/data/aggregates.
package aggregates
