package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m4xw311/ccbridge/llm"
)

// jsonInstruction is prepended to the prompt when the caller requested
// structured output. The agent cannot be forced into JSON mode, so the
// instruction plus post-hoc extraction is the whole mechanism.
const jsonInstruction = "Respond with a single valid JSON object. Do not include any explanation, prose, or markdown code fences around it."

// ConvertMessages flattens a structured multi-turn prompt into the single
// prompt string the agent CLI consumes. Messages are rendered in order
// with role prefixes and joined by blank lines; an empty prompt yields an
// empty string. Content parts the agent cannot carry (inline images)
// degrade to placeholders with a warning; content kinds this converter
// does not know are silently skipped.
func ConvertMessages(prompt []llm.Message, format *llm.ResponseFormat) (string, []llm.CallWarning) {
	var blocks []string
	var warnings []llm.CallWarning

	if format != nil && format.Type == "json" {
		instr := jsonInstruction
		if format.Schema != nil {
			if encoded, err := json.Marshal(format.Schema); err == nil {
				instr += "\nThe JSON must conform to this schema:\n" + string(encoded)
			}
		}
		blocks = append(blocks, instr)
	}

	for _, msg := range prompt {
		var rendered string
		switch msg.Role {
		case llm.RoleSystem:
			rendered = renderSystem(msg)
		case llm.RoleUser:
			var userWarnings []llm.CallWarning
			rendered, userWarnings = renderUser(msg)
			warnings = append(warnings, userWarnings...)
		case llm.RoleAssistant:
			rendered = renderAssistant(msg)
		case llm.RoleTool:
			rendered = renderTool(msg)
		}
		if rendered != "" {
			blocks = append(blocks, rendered)
		}
	}

	return strings.Join(blocks, "\n\n"), warnings
}

func renderSystem(msg llm.Message) string {
	var lines []string
	for _, part := range msg.Content {
		if part.Kind == llm.ContentText {
			lines = append(lines, "System: "+part.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// renderUser concatenates text parts without a role prefix; image parts
// become bracketed placeholders since binary transport is not supported.
func renderUser(msg llm.Message) (string, []llm.CallWarning) {
	var lines []string
	var warnings []llm.CallWarning
	for _, part := range msg.Content {
		switch part.Kind {
		case llm.ContentText:
			lines = append(lines, part.Text)
		case llm.ContentImage:
			lines = append(lines, "[Image: binary image data omitted]")
			warnings = append(warnings, llm.CallWarning{
				Type:    llm.WarningOther,
				Message: "inline image data is not supported by the agent CLI; a placeholder was substituted",
			})
		case llm.ContentImageURL:
			lines = append(lines, fmt.Sprintf("[Image URL: %s]", part.ImageURL))
		}
	}
	return strings.Join(lines, "\n"), warnings
}

func renderAssistant(msg llm.Message) string {
	var lines []string
	for _, part := range msg.Content {
		switch part.Kind {
		case llm.ContentText:
			lines = append(lines, "Assistant: "+part.Text)
		case llm.ContentToolCall:
			if part.ToolCall != nil {
				args := ""
				if part.ToolCall.Arguments != nil {
					if encoded, err := json.Marshal(part.ToolCall.Arguments); err == nil {
						args = string(encoded)
					}
				}
				lines = append(lines, fmt.Sprintf("[Tool Call: %s(%s)]", part.ToolCall.Name, args))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func renderTool(msg llm.Message) string {
	var lines []string
	for _, part := range msg.Content {
		if part.Kind != llm.ContentToolResult || part.ToolResult == nil {
			continue
		}
		value := stringifyToolContent(part.ToolResult.Content)
		lines = append(lines, fmt.Sprintf("Tool Result (%s): %s", part.ToolResult.Name, value))
	}
	return strings.Join(lines, "\n")
}

// stringifyToolContent renders string results verbatim and everything else
// as JSON.
func stringifyToolContent(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	if encoded, err := json.Marshal(content); err == nil {
		return string(encoded)
	}
	return fmt.Sprintf("%v", content)
}
