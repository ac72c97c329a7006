// Package services defines shared utilities consumed by the orchestration
// components and their external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp content IDs, scheduled run IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers (the CLI and
//     the HTTP API) can classify failures without string matching.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform.
package services
