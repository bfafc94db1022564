// Package claudecli wraps the agent CLI as a subprocess, exposing each
// invocation as an ordered stream of typed events. The adapter treats this
// package as a black-box event source: one Query per prompt, events
// consumed strictly in arrival order, terminated by a result event.
package claudecli

import (
	"encoding/json"
	"strings"
)

// Event is one item in the agent's output stream. It is a closed tagged
// union: SystemEvent, AssistantEvent or ResultEvent. Engines match it
// exhaustively.
type Event interface {
	isEvent()
}

// SystemEvent is the initialization event emitted once at the start of an
// invocation. It carries the session id the agent assigned and its
// tool/server inventory.
type SystemEvent struct {
	SessionID  string
	CWD        string
	Model      string
	Tools      []string
	MCPServers []string
}

func (SystemEvent) isEvent() {}

// AssistantEvent carries zero or more text fragments of assistant output.
type AssistantEvent struct {
	Fragments []string
	Model     string
}

func (AssistantEvent) isEvent() {}

// Result subtypes the agent CLI reports on its terminal event.
const (
	ResultSuccess         = "success"
	ResultMaxTurns        = "error_max_turns"
	ResultDuringExecution = "error_during_execution"
)

// Usage holds the raw token counters from a terminal result event.
// Prompt-cache reads and writes are reported separately from fresh input.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	OutputTokens             int `json:"output_tokens"`
}

// ResultEvent is the terminal event of an invocation.
type ResultEvent struct {
	Subtype    string
	IsError    bool
	DurationMS int64
	NumTurns   int
	SessionID  string
	Usage      *Usage
	// TotalCostUSD is nil when the agent did not report a cost.
	TotalCostUSD *float64
	// Result is the agent's formatted answer on success, or the error
	// detail on failure. Engines never use it as response text; the
	// accumulated assistant fragments are authoritative.
	Result string
}

func (ResultEvent) isEvent() {}

// Wire shapes of the CLI's stream-json output.

type wireEnvelope struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	CWD       string          `json:"cwd"`
	Model     string          `json:"model"`
	Tools     []string        `json:"tools"`
	MCP       []wireMCPServer `json:"mcp_servers"`
	Message   *wireMessage    `json:"message"`

	IsError      bool            `json:"is_error"`
	DurationMS   int64           `json:"duration_ms"`
	NumTurns     int             `json:"num_turns"`
	Usage        *Usage          `json:"usage"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	Result       json.RawMessage `json:"result"`
}

type wireMCPServer struct {
	Name string `json:"name"`
}

type wireMessage struct {
	Model   string      `json:"model"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ParseEvent decodes one stream-json line. Lines of kinds the adapter does
// not consume (tool traffic, user echoes) decode to (nil, nil) and are
// skipped by the stream.
func ParseEvent(line []byte) (Event, error) {
	var env wireEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case "system":
		if env.Subtype != "init" {
			return nil, nil
		}
		servers := make([]string, 0, len(env.MCP))
		for _, s := range env.MCP {
			servers = append(servers, s.Name)
		}
		return SystemEvent{
			SessionID:  env.SessionID,
			CWD:        env.CWD,
			Model:      env.Model,
			Tools:      env.Tools,
			MCPServers: servers,
		}, nil

	case "assistant":
		ev := AssistantEvent{}
		if env.Message != nil {
			ev.Model = env.Message.Model
			for _, block := range env.Message.Content {
				if block.Type == "text" && block.Text != "" {
					ev.Fragments = append(ev.Fragments, block.Text)
				}
			}
		}
		return ev, nil

	case "result":
		return ResultEvent{
			Subtype:      strings.TrimSpace(env.Subtype),
			IsError:      env.IsError,
			DurationMS:   env.DurationMS,
			NumTurns:     env.NumTurns,
			SessionID:    env.SessionID,
			Usage:        env.Usage,
			TotalCostUSD: env.TotalCostUSD,
			Result:       decodeResultText(env.Result),
		}, nil

	default:
		return nil, nil
	}
}

// decodeResultText handles the result field being either a plain string or
// a structured object with a text field.
func decodeResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text
	}
	return string(raw)
}
