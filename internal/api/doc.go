// Package api defines wire-format types and converters shared by the HTTP
// server and the CLI's JSON output. It translates internal profile and store
// records into transport-friendly DTOs so consumers do not couple to
// internal types.
//
// # Key Types
//
// SearchRequest / CandidatesRequest: request bodies for the profile search and
// candidate listing endpoints. Reference photos travel as base64 (optionally a
// data URL) or as a URL the server downloads.
//
// ProfileResponse: a profile plus how the request was satisfied (stored,
// shared with a concurrent build, or freshly built).
//
// ProfileSummary / ProfileListResponse: stored profile listings.
//
// ErrorResponse: the error kind from the service taxonomy plus a message.
//
// # Design Notes
//
// Profile and Candidate already carry JSON tags and are embedded as-is.
// Timestamps added here use RFC3339 with milliseconds.
package api
