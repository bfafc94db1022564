package llm

import "context"

// LanguageModel is the interface every generation backend implements.
// Both methods issue exactly one invocation against the backend; retries,
// timeouts and backoff are the caller's concern, layered on via ctx.
type LanguageModel interface {
	// Provider returns the backend identifier (e.g. "claude-cli").
	Provider() string

	// ModelID returns the model identifier this handle is bound to.
	ModelID() string

	// DoGenerate runs one invocation to completion and returns the full
	// accumulated response.
	DoGenerate(ctx context.Context, opts CallOptions) (*GenerateResult, error)

	// DoStream runs one invocation and returns a channel of stream parts.
	// The channel is always terminated by a finish or error part and then
	// closed, including under cancellation.
	DoStream(ctx context.Context, opts CallOptions) (<-chan StreamPart, error)
}
