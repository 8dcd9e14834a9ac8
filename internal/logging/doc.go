// Package logging assembles structured slog loggers and formatting helpers used
// across dossier services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code automatically
// tags log lines with cache keys, stages, and correlation IDs. Absorbed
// failures (a dead adapter, a dropped asset, a degraded verifier) go through
// WarnWithContext so every warning carries event_type, error_hint, and impact.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// records with the same shape as the rest of the system.
package logging
