package provider

import (
	"github.com/m4xw311/ccbridge/claudecli"
	"github.com/m4xw311/ccbridge/llm"
)

// mapFinishReason maps the agent's terminal result subtype onto the
// generic contract's closed finish-reason set. It is total: any subtype
// it does not recognize, including the empty string, maps to unknown.
func mapFinishReason(subtype string) llm.FinishReason {
	switch subtype {
	case claudecli.ResultSuccess:
		return llm.FinishStop
	case claudecli.ResultMaxTurns:
		return llm.FinishLength
	case claudecli.ResultDuringExecution:
		return llm.FinishError
	default:
		return llm.FinishUnknown
	}
}
