// Package source implements document ingestion sources for Tabularium.
//
// Sources are pluggable components that pull documents from outside
// the HTTP surface and feed them into the archive. Each source
// implements a common lifecycle and registers with the central source
// registry.
//
// # Source Types
//
// SourceTypePolling syncs on a schedule (spool scans, SSH collectors)
// SourceTypeOneShot runs only when triggered manually
//
// # Core Sources
//
// SpoolSource watches a drop directory for JSON and YAML files. Each
// recognized file is parsed, stored into its target structure, and
// deleted; unparseable files move to a rejected/ subdirectory so they
// stop blocking the scan.
//
// SSHPullSource connects to a remote host with credentials from the
// secret store, runs a collector command, and ingests the JSON
// document the command prints. Any machine that can emit JSON on
// stdout can feed the archive this way.
//
// # Source Registry
//
// Registry manages source lifecycle: it starts enabled sources, runs
// their polling loops, supports manual sync triggers, and reports
// sync outcomes for event publishing.
package source
