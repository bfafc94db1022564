package provider

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON returns the best available JSON candidate from free-form
// model output. It tries, in order: the whole input, the first fenced code
// block, the first {...} span, the first [...] span. When nothing parses
// it returns the input unchanged; the caller is responsible for surfacing
// a warning. The function is pure and total: it never fails.
func ExtractJSON(text string) string {
	if json.Valid([]byte(text)) {
		return text
	}

	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}

	if candidate, ok := braceSpan(text, '{', '}'); ok {
		return candidate
	}
	if candidate, ok := braceSpan(text, '[', ']'); ok {
		return candidate
	}

	return text
}

// braceSpan tries the greedy span from the first open delimiter to the
// last close delimiter.
func braceSpan(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return "", false
	}
	candidate := text[start : end+1]
	if json.Valid([]byte(candidate)) {
		return candidate, true
	}
	return "", false
}
