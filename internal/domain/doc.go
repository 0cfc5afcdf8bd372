// Package domain defines the core domain types for the Tabularium document archive.
//
// This package contains the fundamental entities and value objects shared by
// both storage backends: documents, decomposed cells, tree paths, write
// policies, and the error kinds surfaced to callers.
//
// # Core Types
//
// Document is a decoded JSON object, the unit of storage. Top-level values
// must be objects; nested values may be any JSON shape.
//
// Cell is one decomposed document value in its canonical text form. Columns
// and tree leaves are always text; the cell's kind records what the text
// encodes, including the sentinel marker for object-valued keys whose
// content lives in a child structure.
//
// PathQuery and PathEntry carry the parameters and results of paginated
// child queries against the tree backend.
//
// # Write Policies
//
// WritePolicy selects how repeated stores behave: append_history keeps every
// record, upsert_singleton keeps exactly one logical record per structure.
// The policy is configuration, never inferred from data.
//
// # Errors
//
// ErrNotAnObject, ErrPathNotFound, ValidationError, and StorageError are the
// error kinds operations surface. Callers match them with errors.Is and
// errors.As; StorageError preserves the substrate cause verbatim.
package domain
