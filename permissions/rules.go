// Package permissions implements the permission rule list the agent CLI
// accepts. A rule is either a bare tool name ("Read") or a tool name with
// a glob-matched target ("Bash(npm run *)", "Edit(src/**/*.go)"). Rules
// are passed through to the agent; Match exists so callers can reason
// about a rule set locally before granting it.
package permissions

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/ccbridge/errors"
)

// Rule is one parsed permission rule.
type Rule struct {
	// Tool is the tool name the rule applies to.
	Tool string
	// Pattern is the optional glob the tool's target must match. Empty
	// means the rule covers every use of the tool.
	Pattern string
}

// String renders the rule back into the CLI's rule syntax.
func (r Rule) String() string {
	if r.Pattern == "" {
		return r.Tool
	}
	return r.Tool + "(" + r.Pattern + ")"
}

// Parse parses a single rule. It rejects empty tool names, unbalanced
// parentheses, and glob patterns doublestar cannot compile.
func Parse(raw string) (Rule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Rule{}, errors.New("empty permission rule")
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return Rule{Tool: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return Rule{}, errors.New("permission rule %q: missing closing parenthesis", raw)
	}
	tool := strings.TrimSpace(s[:open])
	if tool == "" {
		return Rule{}, errors.New("permission rule %q: missing tool name", raw)
	}
	pattern := s[open+1 : len(s)-1]
	if !doublestar.ValidatePattern(pattern) {
		return Rule{}, errors.New("permission rule %q: invalid glob pattern %q", raw, pattern)
	}
	return Rule{Tool: tool, Pattern: pattern}, nil
}

// RuleSet is an ordered list of rules.
type RuleSet []Rule

// ParseAll parses every rule in raw, collecting all parse errors instead
// of stopping at the first.
func ParseAll(raw []string) (RuleSet, []error) {
	var set RuleSet
	var errs []error
	for _, r := range raw {
		rule, err := Parse(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set = append(set, rule)
	}
	return set, errs
}

// Match reports whether the rule set allows the given tool to act on the
// given target. A bare-tool rule matches any target, including an empty
// one.
func (s RuleSet) Match(tool, target string) bool {
	for _, r := range s {
		if r.Tool != tool {
			continue
		}
		if r.Pattern == "" {
			return true
		}
		if ok, err := doublestar.Match(r.Pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

// Strings renders the rule set back into the CLI's flag syntax.
func (s RuleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, r.String())
	}
	return out
}
