// Package internal contains the core implementation packages for fiddle.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the fiddle playground.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - workspace: The three editable buffers and their revision tracking
//   - composer: Assembly of buffers into a previewable HTML document
//   - sharelink: Encoding and decoding of stateless share links
//   - registry: Template registry with change broadcasting
//   - server: HTTP server, WebSocket sessions, and middleware
//   - watcher: File system monitoring with debouncing
//   - config: Configuration management with validation
//   - errors: Error types, collection, and actionable suggestions
//   - logging: Structured logging used across the server
//   - validation: Input validation shared by config and server
//   - version: Build metadata for the version command and endpoint
//
// # Inter-Package Communication
//
// The server coordinates everything: it owns sessions, asks the
// composer for preview documents, uses sharelink for the share
// endpoints, reads templates from the registry, and reloads the
// registry when the watcher reports changes. The packages below the
// server do not know about each other's existence beyond the shared
// workspace types.
//
// Security is layered the same way: config validates its inputs,
// the server enforces origin checks and rate limits, and the composer
// never interprets buffer content, so user code runs only inside the
// sandboxed preview frame the browser isolates.
package internal
