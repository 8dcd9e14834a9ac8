// Package config loads, normalizes, and validates dossier configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for every
// provider credential (LLM_API_KEY, PDL_API_KEY, SERPAPI_API_KEY and friends).
// The Config type centralizes every knob the CLI and API server need, so the
// data directory, asset storage, and enrichment providers are discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
