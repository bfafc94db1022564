package config

import (
	"strings"
	"testing"

	"github.com/m4xw311/ccbridge/llm"
)

func TestValidateZeroValue(t *testing.T) {
	s := &Settings{}
	warnings, err := s.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings for the zero value, got %v", warnings)
	}
	if s.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got '%s'", s.LogLevel)
	}
}

func TestValidateNegativeMaxTurns(t *testing.T) {
	s := &Settings{MaxTurns: -3}
	warnings, err := s.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if s.MaxTurns != 0 {
		t.Errorf("Expected max turns clamped to 0, got %d", s.MaxTurns)
	}
	if len(warnings) != 1 {
		t.Errorf("Expected 1 warning, got %v", warnings)
	}
}

func TestValidateUnknownLogLevel(t *testing.T) {
	s := &Settings{LogLevel: "chatty"}
	warnings, err := s.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if s.LogLevel != "info" {
		t.Errorf("Expected fallback to 'info', got '%s'", s.LogLevel)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "chatty") {
		t.Errorf("Expected a log level warning, got %v", warnings)
	}
}

func TestValidateResumeWithoutContinue(t *testing.T) {
	s := &Settings{Resume: "sess-1"}
	warnings, err := s.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w.Message, "resume") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a resume-without-continue warning, got %v", warnings)
	}
}

func TestValidateResumeWithContinueSilent(t *testing.T) {
	s := &Settings{Resume: "sess-1", Continue: true}
	warnings, err := s.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	for _, w := range warnings {
		if strings.Contains(w.Message, "resume") {
			t.Errorf("Did not expect a resume warning when continue is set: %v", w)
		}
	}
}

func TestValidateBadPermissionRules(t *testing.T) {
	s := &Settings{PermissionRules: []string{"Read", "Bash(npm run *"}}
	warnings, err := s.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	found := false
	for _, w := range warnings {
		if w.Type == llm.WarningOther && strings.Contains(w.Message, "permission rule") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a permission rule warning, got %v", warnings)
	}
}

func TestValidateMCPServerWithoutCommand(t *testing.T) {
	s := &Settings{MCPServers: map[string]MCPServer{
		"broken": {},
	}}
	if _, err := s.Validate(); err == nil {
		t.Errorf("Expected an error for an MCP server without a command")
	}
}
