package llm

// StreamPartType discriminates the kind of part received on a stream.
type StreamPartType string

const (
	StreamStart            StreamPartType = "stream-start"
	StreamResponseMetadata StreamPartType = "response-metadata"
	StreamTextStart        StreamPartType = "text-start"
	StreamTextDelta        StreamPartType = "text-delta"
	StreamTextEnd          StreamPartType = "text-end"
	StreamFinish           StreamPartType = "finish"
	StreamError            StreamPartType = "error"
)

// StreamPart is a single unit in a streaming response. A well-formed
// stream is: one stream-start, an optional response-metadata, zero or more
// text-delta parts bounded by a text-start/text-end pair, and exactly one
// terminal part (finish or error). The stream is single-pass and not
// restartable.
type StreamPart struct {
	Type StreamPartType `json:"type"`

	// Warnings accompany the stream-start part.
	Warnings []CallWarning `json:"warnings,omitempty"`

	// Response accompanies the response-metadata part.
	Response *ResponseInfo `json:"response,omitempty"`

	// TextID ties text-start/text-delta/text-end parts together; Delta is
	// the incremental text on text-delta parts.
	TextID string `json:"text_id,omitempty"`
	Delta  string `json:"delta,omitempty"`

	// FinishReason, Usage and Metadata accompany the finish part.
	FinishReason FinishReason      `json:"finish_reason,omitempty"`
	Usage        *Usage            `json:"usage,omitempty"`
	Metadata     *ProviderMetadata `json:"metadata,omitempty"`

	// Err accompanies the error part.
	Err error `json:"-"`
}
