// Package llm provides an OpenAI-compatible chat client that returns JSON.
//
// This package is used by:
//   - Web summary enrichment: summary, basic info, socials, photos, mentions
//   - Candidate discovery: last-resort candidate listing
//   - Semantic deduplication of candidates
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive the JSON payload.
// Client.CompleteInto: CompleteJSON plus DecodeLLMJSON into a target.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, network timeouts, and empty
// completions with exponential backoff (base 1s, max 10s, up to 3 attempts by
// default). Retry-After is honoured up to the max delay. Context cancellation
// aborts retries immediately.
//
// # Decoding
//
// Models frequently wrap JSON in code fences or prose. DecodeLLMJSON tries the
// raw payload first, then the first object or array it can find.
package llm
