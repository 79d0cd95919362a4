// Package services defines shared utilities consumed by the task handlers
// and external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across collaborators (validation vs
//     transcription vs media tool vs parse failures).
//
// Use these helpers when wiring new handler logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
