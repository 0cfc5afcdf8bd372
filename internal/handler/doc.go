// Package handler implements HTTP request handlers for the Tabularium API.
//
// This package provides the HTTP layer for the Tabularium REST API, handling
// requests for document storage, path queries, attribute search, retention
// sweeps, and secret listings.
//
// # Handlers
//
// ArchiveHandler covers the document surface: store and load by structure
// name, structure listings, attribute search, sweeps, and health.
//
// TreeHandler covers the path-addressed surface backed by the tree store.
//
// SecretsHandler exposes secret summaries without their data.
//
// Middleware provides request logging, panic recovery, and CORS support.
//
// # API Design
//
// All handlers follow REST conventions:
// - GET for retrieval
// - POST for writes
//
// Errors are returned as JSON with appropriate HTTP status codes: 400 for
// rejected input, 404 for missing paths, 500 for substrate failures.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes (200, 201).
// Error responses return JSON with {error, details} structure.
//
// # Server-Sent Events
//
// The /api/events endpoint provides real-time archive updates via SSE,
// allowing clients to follow stores, path writes, sweeps, and source syncs.
package handler
