// Package services defines shared utilities consumed by the pipeline stages and
// the provider integrations underneath it.
//
// Key responsibilities:
//   - Context helpers that stamp cache keys, stage names, and correlation
//     identifiers for logging and tracing.
//   - The error taxonomy (InvalidQuery through BuildFailure) plus the Wrap and
//     SourceFailure helpers that tag failures with stage or source context.
//
// Only ErrInvalidQuery and ErrBuildFailure are meant to reach callers; every
// other marker identifies a failure that a stage absorbs and records.
package services
