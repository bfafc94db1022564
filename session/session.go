// Package session keeps a local conversation transcript. The transcript is
// the caller-side message history handed to the model on each call; it is
// independent of the agent's own server-side session, which is addressed by
// the opaque session id the adapter remembers.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/m4xw311/ccbridge/llm"
)

// Transcript is a named, append-only message history with optional
// persistence. It is safe for concurrent use.
type Transcript struct {
	mu sync.Mutex

	Name string `json:"name"`
	// AgentSessionID records the agent-side session this transcript maps
	// to, when known, so a saved transcript can be resumed against it.
	AgentSessionID string        `json:"agent_session_id,omitempty"`
	Messages       []llm.Message `json:"messages"`

	path string
}

// New creates an empty transcript under the local session directory.
func New(name string) (*Transcript, error) {
	path, err := transcriptPath(name)
	if err != nil {
		return nil, err
	}
	return &Transcript{
		Name:     name,
		Messages: []llm.Message{},
		path:     path,
	}, nil
}

// Load reads a previously saved transcript from disk.
func Load(name string) (*Transcript, error) {
	path, err := transcriptPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read transcript file %s: %w", path, err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("could not parse transcript file %s: %w", path, err)
	}
	t.path = path
	return &t, nil
}

// Save writes the current transcript state to disk.
func (t *Transcript) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize transcript: %w", err)
	}
	return os.WriteFile(t.path, data, 0644)
}

// Append adds a message to the history.
func (t *Transcript) Append(msg llm.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Messages = append(t.Messages, msg)
}

// AppendText is a convenience for plain text turns.
func (t *Transcript) AppendText(role llm.Role, text string) {
	t.Append(llm.TextMessage(role, text))
}

// SetAgentSessionID records the agent-side session id once it is known.
func (t *Transcript) SetAgentSessionID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AgentSessionID = id
}

// History returns a copy of the messages so far, suitable for passing as a
// call prompt.
func (t *Transcript) History() []llm.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]llm.Message, len(t.Messages))
	copy(out, t.Messages)
	return out
}

// Len returns the number of recorded messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Messages)
}

func transcriptPath(name string) (string, error) {
	dir := filepath.Join(".ccbridge", "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create session directory: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.json", name)), nil
}
