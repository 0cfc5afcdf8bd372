// Package repository defines the storage contracts for Tabularium.
//
// This package provides the store abstraction both backends implement. The
// actual implementations live in the sqlite and tree subpackages; callers
// select one through configuration and program against the interfaces here.
//
// # Store Interface
//
// The Store interface covers document decomposition and reconstruction,
// structure listing, the retention sweep, and cross-document attribute
// search. PathStore extends it with the tree backend's path-addressed
// writes and paginated child queries.
//
// # SQLite Implementation
//
// The sqlite implementation decomposes documents into dynamically created
// tables: one table per object, one TEXT column per observed key, and a
// sentinel marker cell for keys whose value is a nested object. Tables are
// widened when new keys appear and never shrink or retype.
//
// # Tree Implementation
//
// The tree implementation decomposes documents into a parent-referencing
// node store addressed by /-delimited paths, with idempotent
// resolve-or-create path chains and historical sibling versions.
//
// # Concurrency
//
// Each implementation guards all operations with one coarse mutex held for
// the full duration of every call. There is deliberately no finer locking
// and no cancellation semantic at this layer.
//
// # Testing
//
// Both implementations are tested against in-memory or temporary databases
// covering round-trips, schema widening, retention, and search.
package repository
