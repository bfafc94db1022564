package provider

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/m4xw311/ccbridge/claudecli"
	"github.com/m4xw311/ccbridge/config"
	"github.com/m4xw311/ccbridge/errors"
	"github.com/m4xw311/ccbridge/llm"
	"github.com/m4xw311/ccbridge/logging"
)

// fakeStream replays a fixed event sequence and then returns io.EOF, or
// finalErr when set.
type fakeStream struct {
	events   []claudecli.Event
	finalErr error
	i        int
	closed   bool
}

func (f *fakeStream) Next() (claudecli.Event, error) {
	if f.i < len(f.events) {
		ev := f.events[f.i]
		f.i++
		return ev, nil
	}
	if f.finalErr != nil {
		return nil, f.finalErr
	}
	return nil, io.EOF
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

// capture records what the engine handed to the invocation layer.
type capture struct {
	prompt string
	opts   claudecli.Options
	calls  int
}

func newTestModel(settings config.Settings, events []claudecli.Event, queryErr error, cap *capture) *Model {
	return &Model{
		modelID:  "sonnet",
		settings: settings,
		log:      logging.Nop(),
		query: func(ctx context.Context, prompt string, opts claudecli.Options) (claudecli.EventStream, error) {
			if cap != nil {
				cap.prompt = prompt
				cap.opts = opts
				cap.calls++
			}
			if queryErr != nil {
				return nil, queryErr
			}
			return &fakeStream{events: events}, nil
		},
	}
}

func floatPtr(f float64) *float64 { return &f }

func successEvents(sessionID string, fragments ...string) []claudecli.Event {
	events := []claudecli.Event{
		claudecli.SystemEvent{SessionID: sessionID, Model: "claude-sonnet-4"},
	}
	for _, f := range fragments {
		events = append(events, claudecli.AssistantEvent{Fragments: []string{f}})
	}
	events = append(events, claudecli.ResultEvent{
		Subtype:      claudecli.ResultSuccess,
		DurationMS:   1500,
		NumTurns:     2,
		SessionID:    sessionID,
		Usage:        &claudecli.Usage{InputTokens: 10, CacheCreationInputTokens: 5, CacheReadInputTokens: 20, OutputTokens: 7},
		TotalCostUSD: floatPtr(0.01),
	})
	return events
}

func userPrompt(text string) llm.CallOptions {
	return llm.CallOptions{Prompt: []llm.Message{llm.TextMessage(llm.RoleUser, text)}}
}

func TestDoGenerateHappyPath(t *testing.T) {
	cap := &capture{}
	m := newTestModel(config.Settings{}, successEvents("sess-1", "Hello", " world"), nil, cap)

	result, err := m.DoGenerate(context.Background(), userPrompt("hi"))
	if err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}

	if result.Text != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", result.Text)
	}
	if result.FinishReason != llm.FinishStop {
		t.Errorf("Expected finish reason stop, got %s", result.FinishReason)
	}

	// Input tokens include cache writes and reads.
	if result.Usage.InputTokens != 35 {
		t.Errorf("Expected 35 input tokens, got %d", result.Usage.InputTokens)
	}
	if result.Usage.OutputTokens != 7 {
		t.Errorf("Expected 7 output tokens, got %d", result.Usage.OutputTokens)
	}
	if result.Usage.TotalTokens != 42 {
		t.Errorf("Expected 42 total tokens, got %d", result.Usage.TotalTokens)
	}

	if result.Metadata == nil {
		t.Fatalf("Expected provider metadata")
	}
	if result.Metadata.SessionID != "sess-1" {
		t.Errorf("Expected session id 'sess-1', got '%s'", result.Metadata.SessionID)
	}
	if result.Metadata.NumTurns != 2 {
		t.Errorf("Expected 2 turns, got %d", result.Metadata.NumTurns)
	}
	if result.Metadata.DurationMS == nil || *result.Metadata.DurationMS != 1500 {
		t.Errorf("Unexpected duration: %v", result.Metadata.DurationMS)
	}
	if result.Metadata.CostUSD == nil || *result.Metadata.CostUSD != 0.01 {
		t.Errorf("Unexpected cost: %v", result.Metadata.CostUSD)
	}

	if result.RawRequest == nil || result.RawRequest.Model != "sonnet" {
		t.Errorf("Expected raw request echo, got %+v", result.RawRequest)
	}
	if cap.prompt != "hi" {
		t.Errorf("Expected prompt 'hi' on the wire, got '%s'", cap.prompt)
	}
	if m.SessionID() != "sess-1" {
		t.Errorf("Expected remembered session 'sess-1', got '%s'", m.SessionID())
	}
}

func TestDoGenerateAbsentUsageZeroed(t *testing.T) {
	events := []claudecli.Event{
		claudecli.SystemEvent{SessionID: "s"},
		claudecli.ResultEvent{Subtype: claudecli.ResultSuccess},
	}
	m := newTestModel(config.Settings{}, events, nil, nil)

	result, err := m.DoGenerate(context.Background(), userPrompt("hi"))
	if err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if result.Usage.InputTokens != 0 || result.Usage.OutputTokens != 0 || result.Usage.TotalTokens != 0 {
		t.Errorf("Expected zeroed usage, got %+v", result.Usage)
	}
}

func TestDoGenerateErrorResult(t *testing.T) {
	events := []claudecli.Event{
		claudecli.SystemEvent{SessionID: "sess-9"},
		claudecli.ResultEvent{
			Subtype:    claudecli.ResultDuringExecution,
			IsError:    true,
			DurationMS: 800,
			NumTurns:   4,
			SessionID:  "sess-9",
			Result:     "tool crashed",
		},
	}
	m := newTestModel(config.Settings{}, events, nil, nil)

	_, err := m.DoGenerate(context.Background(), userPrompt("do the thing"))
	if err == nil {
		t.Fatalf("Expected an error")
	}
	ce, ok := errors.AsCallError(err)
	if !ok {
		t.Fatalf("Expected CallError, got %T", err)
	}
	if ce.Message != "tool crashed" {
		t.Errorf("Expected message 'tool crashed', got '%s'", ce.Message)
	}
	if ce.SessionID != "sess-9" {
		t.Errorf("Expected session id 'sess-9', got '%s'", ce.SessionID)
	}
	if ce.DurationMS != 800 || ce.NumTurns != 4 {
		t.Errorf("Unexpected diagnostics: %d/%d", ce.DurationMS, ce.NumTurns)
	}
	if ce.PromptExcerpt != "do the thing" {
		t.Errorf("Unexpected prompt excerpt: '%s'", ce.PromptExcerpt)
	}
}

func TestDoGenerateMaxTurnsFinishReason(t *testing.T) {
	events := []claudecli.Event{
		claudecli.AssistantEvent{Fragments: []string{"partial"}},
		claudecli.ResultEvent{Subtype: claudecli.ResultMaxTurns},
	}
	m := newTestModel(config.Settings{}, events, nil, nil)

	result, err := m.DoGenerate(context.Background(), userPrompt("hi"))
	if err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if result.FinishReason != llm.FinishLength {
		t.Errorf("Expected finish reason length, got %s", result.FinishReason)
	}
	if result.Text != "partial" {
		t.Errorf("Expected partial text to be kept, got '%s'", result.Text)
	}
}

func TestDoGenerateQueryAuthError(t *testing.T) {
	m := newTestModel(config.Settings{}, nil, errors.New("exit status 1: not authenticated"), nil)

	_, err := m.DoGenerate(context.Background(), userPrompt("hi"))
	if !errors.IsAuthentication(err) {
		t.Errorf("Expected authentication error, got %v", err)
	}
}

func TestDoGenerateSamplingWarnings(t *testing.T) {
	m := newTestModel(config.Settings{}, successEvents("s", "ok"), nil, nil)

	temp := 0.7
	seed := 42
	opts := userPrompt("hi")
	opts.Temperature = &temp
	opts.Seed = &seed
	opts.StopSequences = []string{"END"}

	result, err := m.DoGenerate(context.Background(), opts)
	if err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}

	settings := map[string]bool{}
	for _, w := range result.Warnings {
		if w.Type == llm.WarningUnsupportedSetting {
			settings[w.Setting] = true
		}
	}
	for _, expected := range []string{"temperature", "seed", "stop_sequences"} {
		if !settings[expected] {
			t.Errorf("Expected unsupported-setting warning for %s, got %v", expected, result.Warnings)
		}
	}
	if settings["top_p"] {
		t.Errorf("Did not expect a warning for an unset parameter")
	}
}

func TestDoGenerateJSONMode(t *testing.T) {
	cap := &capture{}
	events := successEvents("s", "Here you go:\n```json\n{\"colors\": [\"red\"]}\n```")
	m := newTestModel(config.Settings{}, events, nil, cap)

	opts := userPrompt("list colors")
	opts.ResponseFormat = &llm.ResponseFormat{Type: "json"}

	result, err := m.DoGenerate(context.Background(), opts)
	if err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if result.Text != `{"colors": ["red"]}` {
		t.Errorf("Expected extracted JSON, got '%s'", result.Text)
	}
	if !strings.Contains(cap.prompt, jsonInstruction) {
		t.Errorf("Expected the JSON instruction in the wire prompt")
	}
	for _, w := range result.Warnings {
		if w.Type == llm.WarningOther && strings.Contains(w.Message, "valid JSON") {
			t.Errorf("Did not expect an invalid-JSON warning: %v", w)
		}
	}
}

func TestDoGenerateJSONModeInvalidWarns(t *testing.T) {
	events := successEvents("s", "I cannot answer that in JSON, sorry.")
	m := newTestModel(config.Settings{}, events, nil, nil)

	opts := userPrompt("list colors")
	opts.ResponseFormat = &llm.ResponseFormat{Type: "json"}

	result, err := m.DoGenerate(context.Background(), opts)
	if err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w.Message, "valid JSON") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected an invalid-JSON warning, got %v", result.Warnings)
	}
	if result.Text != "I cannot answer that in JSON, sorry." {
		t.Errorf("Expected best-effort text back, got '%s'", result.Text)
	}
}

func TestSessionNotReusedWithoutContinue(t *testing.T) {
	cap := &capture{}
	m := newTestModel(config.Settings{}, successEvents("sess-1", "ok"), nil, cap)

	if _, err := m.DoGenerate(context.Background(), userPrompt("first")); err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if _, err := m.DoGenerate(context.Background(), userPrompt("second")); err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}

	// The session id is remembered but never forwarded.
	if m.SessionID() != "sess-1" {
		t.Errorf("Expected remembered session, got '%s'", m.SessionID())
	}
	if cap.opts.Resume != "" {
		t.Errorf("Expected no continuation directive, got resume '%s'", cap.opts.Resume)
	}
}

func TestSessionContinueUsesRememberedID(t *testing.T) {
	cap := &capture{}
	m := newTestModel(config.Settings{Continue: true}, successEvents("sess-1", "ok"), nil, cap)

	if _, err := m.DoGenerate(context.Background(), userPrompt("first")); err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	// Nothing remembered yet on the first call.
	if cap.calls != 1 || cap.opts.Resume != "" {
		t.Errorf("Expected first call without resume, got '%s'", cap.opts.Resume)
	}

	if _, err := m.DoGenerate(context.Background(), userPrompt("second")); err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if cap.opts.Resume != "sess-1" {
		t.Errorf("Expected second call to resume 'sess-1', got '%s'", cap.opts.Resume)
	}
}

func TestSessionExplicitResumeWins(t *testing.T) {
	cap := &capture{}
	m := newTestModel(config.Settings{Continue: true, Resume: "pinned"}, successEvents("sess-1", "ok"), nil, cap)

	if _, err := m.DoGenerate(context.Background(), userPrompt("first")); err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if _, err := m.DoGenerate(context.Background(), userPrompt("second")); err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if cap.opts.Resume != "pinned" {
		t.Errorf("Expected explicit resume to win over remembered id, got '%s'", cap.opts.Resume)
	}
}

func TestSessionFirstWriteWins(t *testing.T) {
	m := newTestModel(config.Settings{}, nil, nil, nil)
	calls := 0
	m.query = func(ctx context.Context, prompt string, opts claudecli.Options) (claudecli.EventStream, error) {
		calls++
		id := "sess-1"
		if calls > 1 {
			id = "sess-2"
		}
		return &fakeStream{events: successEvents(id, "ok")}, nil
	}

	if _, err := m.DoGenerate(context.Background(), userPrompt("first")); err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if _, err := m.DoGenerate(context.Background(), userPrompt("second")); err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	if m.SessionID() != "sess-1" {
		t.Errorf("Expected first session id to stick, got '%s'", m.SessionID())
	}
}

func TestProviderIdentity(t *testing.T) {
	p, err := New(config.Settings{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model, err := p.LanguageModel("opus")
	if err != nil {
		t.Fatalf("LanguageModel failed: %v", err)
	}
	if model.Provider() != "claude-cli" {
		t.Errorf("Expected provider 'claude-cli', got '%s'", model.Provider())
	}
	if model.ModelID() != "opus" {
		t.Errorf("Expected model id 'opus', got '%s'", model.ModelID())
	}
}

func TestLanguageModelEmptyID(t *testing.T) {
	p, err := New(config.Settings{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.LanguageModel("  "); err == nil {
		t.Errorf("Expected an error for an empty model id")
	}
}

func TestLanguageModelUnknownIDWarns(t *testing.T) {
	p, err := New(config.Settings{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	lm, err := p.LanguageModel("gpt-4o")
	if err != nil {
		t.Fatalf("LanguageModel failed: %v", err)
	}

	m := lm.(*Model)
	m.query = func(ctx context.Context, prompt string, opts claudecli.Options) (claudecli.EventStream, error) {
		return &fakeStream{events: successEvents("s", "ok")}, nil
	}
	result, err := m.DoGenerate(context.Background(), userPrompt("hi"))
	if err != nil {
		t.Fatalf("DoGenerate failed: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w.Message, "gpt-4o") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a pass-through warning for the unknown model id, got %v", result.Warnings)
	}
}
