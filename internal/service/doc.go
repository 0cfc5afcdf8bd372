// Package service implements business logic for the Tabularium archive.
//
// This package provides the service layer that coordinates between the
// HTTP handlers, ingestion sources, and the repository layer,
// implementing validation, pagination limits, and event publishing.
//
// # Services
//
// ArchiveService manages document operations (store, load, search,
// sweep) against whichever store backs the archive, and exposes path
// addressing when the backend supports it. Import and export run
// through codec adapters so HTTP ingress and spool ingestion share one
// parsing path.
//
// Retention runs the periodic sweep loop that expires aged records from
// configured roots.
//
// # Event System
//
// The service publishes events via EventBus for real-time updates to
// connected clients via Server-Sent Events (SSE). Event types cover
// document writes, path writes, sweep completions, and source syncs.
//
// # Design Principles
//
// - Services own business logic and validation
// - Repository pattern for data access
// - Event-driven for real-time updates
// - Context-aware for cancellation and timeouts
package service
