package provider

import (
	"testing"

	"github.com/m4xw311/ccbridge/llm"
)

func TestMapFinishReason(t *testing.T) {
	if got := mapFinishReason("success"); got != llm.FinishStop {
		t.Errorf("Expected stop for success, got %s", got)
	}
	if got := mapFinishReason("error_max_turns"); got != llm.FinishLength {
		t.Errorf("Expected length for error_max_turns, got %s", got)
	}
	if got := mapFinishReason("error_during_execution"); got != llm.FinishError {
		t.Errorf("Expected error for error_during_execution, got %s", got)
	}
	if got := mapFinishReason("some_future_subtype"); got != llm.FinishUnknown {
		t.Errorf("Expected unknown for unrecognized subtype, got %s", got)
	}
	if got := mapFinishReason(""); got != llm.FinishUnknown {
		t.Errorf("Expected unknown for empty subtype, got %s", got)
	}
}
