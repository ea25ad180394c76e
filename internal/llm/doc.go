// Package llm is the client for an Ollama-compatible model endpoint.
//
// It provides embeddings (/api/embed), single-shot completions with optional
// token log probabilities (/api/generate) and model management (/api/show,
// /api/pull).
//
// # Caching
//
// Embed and Generate responses are stored in an injected cache.Store under a
// digest of the server URL, the endpoint and the exact JSON payload. A hit
// never touches the network. Entries are removed only by explicit cleanup.
//
// # Missing models
//
// A request for a model the endpoint does not have fails with
// ErrModelNotFound. The client then pulls the model and retries the request
// exactly once:
//
//	attempt -> pull -> retry -> fail
//
// Every other failure is ErrModelUnavailable (usually an *APIError) and is
// returned without retry.
package llm
