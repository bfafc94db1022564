// Package llm defines the provider-agnostic language model contract that
// ccbridge exposes. The types here mirror what generic model frameworks
// expect: a structured multi-turn prompt, request/response call options,
// a closed set of finish reasons, token usage accounting, and non-fatal
// warnings. Backends implement the LanguageModel interface.
package llm

import "time"

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind discriminates the type of data carried by a ContentPart.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentImage      ContentKind = "image"
	ContentImageURL   ContentKind = "image_url"
	ContentToolCall   ContentKind = "tool_call"
	ContentToolResult ContentKind = "tool_result"
)

// ContentPart is a tagged union representing one piece of message content.
// The field corresponding to Kind is the one that carries data; others are
// left at their zero value.
type ContentPart struct {
	Kind ContentKind `json:"kind"`

	// Text is set for ContentText parts.
	Text string `json:"text,omitempty"`

	// ImageURL is set for ContentImageURL parts. ContentImage parts carry
	// inline binary data in ImageData; the agent CLI cannot transport it,
	// so converters render a placeholder.
	ImageURL  string `json:"image_url,omitempty"`
	ImageData []byte `json:"image_data,omitempty"`

	// ToolCall is set for ContentToolCall parts.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolResult is set for ContentToolResult parts.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolCall describes a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult holds the output returned from a tool execution. Content may
// be a plain string or any JSON-serializable value.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name"`
	Content    any    `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is a single turn in a conversation.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextMessage creates a Message with a single text part.
func TextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentPart{{Kind: ContentText, Text: text}},
	}
}

// ResponseFormat constrains the structure of the model's output.
type ResponseFormat struct {
	// Type is "text" or "json".
	Type string `json:"type"`
	// Schema optionally describes the expected JSON shape. It is appended
	// to the prompt verbatim; the agent does not enforce it.
	Schema map[string]any `json:"schema,omitempty"`
}

// CallOptions carries everything a single DoGenerate/DoStream call needs.
// Cancellation travels on the context, not in here.
type CallOptions struct {
	Prompt         []Message       `json:"prompt"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Generic sampling parameters. The agent CLI honors none of these;
	// any that are set are reported back as unsupported-setting warnings
	// rather than errors.
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	MaxOutputTokens  *int     `json:"max_output_tokens,omitempty"`
}

// FinishReason describes why generation ended.
type FinishReason string

const (
	FinishStop    FinishReason = "stop"
	FinishLength  FinishReason = "length"
	FinishError   FinishReason = "error"
	FinishUnknown FinishReason = "unknown"
)

// Usage captures token consumption for one call. InputTokens already
// includes prompt-cache reads and writes; TotalTokens is always
// InputTokens + OutputTokens. All three are zero when the agent reported
// no usage block.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Warning types.
const (
	WarningUnsupportedSetting = "unsupported-setting"
	WarningOther              = "other"
)

// CallWarning is a non-fatal advisory attached to a response. Warnings
// never abort a call.
type CallWarning struct {
	Type    string `json:"type"`
	Setting string `json:"setting,omitempty"`
	Message string `json:"message"`
}

// UnsupportedWarning builds the standard warning for a sampling parameter
// the backend cannot honor.
func UnsupportedWarning(setting string) CallWarning {
	return CallWarning{
		Type:    WarningUnsupportedSetting,
		Setting: setting,
		Message: setting + " is not supported by the agent CLI and was ignored",
	}
}

// ProviderMetadata is the namespaced block of backend-specific details
// returned with every response. SessionID is always populated once the
// agent has reported one; cost and duration are set only when the terminal
// event carried them.
type ProviderMetadata struct {
	SessionID  string   `json:"session_id"`
	CostUSD    *float64 `json:"cost_usd,omitempty"`
	DurationMS *int64   `json:"duration_ms,omitempty"`
	NumTurns   int      `json:"num_turns,omitempty"`
}

// GenerateResult is the outcome of a non-streaming call.
type GenerateResult struct {
	Text         string            `json:"text"`
	FinishReason FinishReason      `json:"finish_reason"`
	Usage        Usage             `json:"usage"`
	Warnings     []CallWarning     `json:"warnings,omitempty"`
	Metadata     *ProviderMetadata `json:"metadata,omitempty"`

	// RawRequest echoes what was sent to the agent, for debugging.
	RawRequest *RawRequest `json:"raw_request,omitempty"`
}

// RawRequest echoes the flattened prompt and the model id of a call.
type RawRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// ResponseInfo identifies a response on the stream.
type ResponseInfo struct {
	ID        string    `json:"id"`
	ModelID   string    `json:"model_id"`
	Timestamp time.Time `json:"timestamp"`
}
