package session

import (
	"testing"

	"github.com/m4xw311/ccbridge/llm"
)

func TestTranscriptSaveLoadRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())

	transcript, err := New("roundtrip")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	transcript.AppendText(llm.RoleUser, "Hello")
	transcript.AppendText(llm.RoleAssistant, "Hi there")
	transcript.SetAgentSessionID("sess-1")

	if err := transcript.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load("roundtrip")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "roundtrip" {
		t.Errorf("Expected name 'roundtrip', got '%s'", loaded.Name)
	}
	if loaded.AgentSessionID != "sess-1" {
		t.Errorf("Expected agent session 'sess-1', got '%s'", loaded.AgentSessionID)
	}
	if loaded.Len() != 2 {
		t.Fatalf("Expected 2 messages, got %d", loaded.Len())
	}

	history := loaded.History()
	if history[0].Role != llm.RoleUser || history[0].Content[0].Text != "Hello" {
		t.Errorf("Unexpected first message: %+v", history[0])
	}
	if history[1].Role != llm.RoleAssistant || history[1].Content[0].Text != "Hi there" {
		t.Errorf("Unexpected second message: %+v", history[1])
	}
}

func TestTranscriptLoadMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load("does-not-exist"); err == nil {
		t.Errorf("Expected an error for a missing transcript")
	}
}

func TestTranscriptHistoryIsACopy(t *testing.T) {
	t.Chdir(t.TempDir())

	transcript, err := New("copy")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	transcript.AppendText(llm.RoleUser, "one")

	history := transcript.History()
	history[0] = llm.TextMessage(llm.RoleUser, "mutated")

	if transcript.History()[0].Content[0].Text != "one" {
		t.Errorf("Expected the stored transcript to be unaffected by caller mutation")
	}
}
