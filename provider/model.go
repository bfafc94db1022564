package provider

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/m4xw311/ccbridge/claudecli"
	"github.com/m4xw311/ccbridge/config"
	"github.com/m4xw311/ccbridge/errors"
	"github.com/m4xw311/ccbridge/llm"
	"github.com/m4xw311/ccbridge/logging"
)

// Model is one language-model handle. It is safe for concurrent calls;
// the only shared mutable state is the remembered session id, which is
// written at most once (first-write-wins) and read thereafter.
type Model struct {
	modelID  string
	settings config.Settings
	warnings []llm.CallWarning
	query    claudecli.QueryFunc
	log      logging.Logger
	session  sessionCell
}

func (m *Model) Provider() string { return ProviderName }
func (m *Model) ModelID() string  { return m.modelID }

// SessionID returns the session id remembered from the first
// initialization event this handle observed, or "" before any call.
func (m *Model) SessionID() string { return m.session.Get() }

// buildOptions assembles a fresh invocation options bag for one call. The
// continuation directive is only populated when continuation was
// explicitly requested: a false Continue always leaves it unset, even when
// a session id is remembered, so sessions never bleed silently.
func (m *Model) buildOptions() claudecli.Options {
	resume := ""
	if m.settings.Continue {
		if m.settings.Resume != "" {
			resume = m.settings.Resume
		} else {
			resume = m.session.Get()
		}
	}
	return claudecli.Options{
		ExecutablePath:  m.settings.ExecutablePath,
		WorkingDir:      m.settings.WorkingDir,
		Model:           m.modelID,
		Resume:          resume,
		MaxTurns:        m.settings.MaxTurns,
		SkipPermissions: m.settings.SkipPermissions,
		PermissionRules: m.settings.PermissionRules,
		MCPServers:      m.settings.MCPServers,
		Env:             m.settings.Env,
		ToolboxPath:     m.settings.ToolboxPath,
		LogLevel:        m.settings.LogLevel,
		LogFile:         m.settings.LogFile,
		Verbose:         m.settings.Verbose,
	}
}

// baseWarnings collects the settings/model warnings plus one
// unsupported-setting warning per sampling parameter the agent cannot
// honor.
func (m *Model) baseWarnings(opts llm.CallOptions) []llm.CallWarning {
	warnings := append([]llm.CallWarning(nil), m.warnings...)
	if opts.Temperature != nil {
		warnings = append(warnings, llm.UnsupportedWarning("temperature"))
	}
	if opts.TopP != nil {
		warnings = append(warnings, llm.UnsupportedWarning("top_p"))
	}
	if opts.TopK != nil {
		warnings = append(warnings, llm.UnsupportedWarning("top_k"))
	}
	if opts.PresencePenalty != nil {
		warnings = append(warnings, llm.UnsupportedWarning("presence_penalty"))
	}
	if opts.FrequencyPenalty != nil {
		warnings = append(warnings, llm.UnsupportedWarning("frequency_penalty"))
	}
	if len(opts.StopSequences) > 0 {
		warnings = append(warnings, llm.UnsupportedWarning("stop_sequences"))
	}
	if opts.Seed != nil {
		warnings = append(warnings, llm.UnsupportedWarning("seed"))
	}
	if opts.MaxOutputTokens != nil {
		warnings = append(warnings, llm.UnsupportedWarning("max_output_tokens"))
	}
	return warnings
}

func jsonMode(format *llm.ResponseFormat) bool {
	return format != nil && format.Type == "json"
}

// usageFromCounters derives the usage triple from the terminal event's raw
// counters. Input tokens sum fresh input with cache writes and cache reads
// so prompt caching is accounted for; absent counters zero everything.
func usageFromCounters(u *claudecli.Usage) llm.Usage {
	if u == nil {
		return llm.Usage{}
	}
	input := u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
	return llm.Usage{
		InputTokens:  input,
		OutputTokens: u.OutputTokens,
		TotalTokens:  input + u.OutputTokens,
	}
}

// resultCallError builds the classified error for a terminal event that
// reported failure, carrying the event's diagnostics.
func resultCallError(e claudecli.ResultEvent, prompt, sessionID string) error {
	msg := e.Result
	if msg == "" {
		msg = "agent reported an error result"
	}
	cerr := errors.NewCallError(msg, prompt, nil)
	cerr.SessionID = sessionID
	if cerr.SessionID == "" {
		cerr.SessionID = e.SessionID
	}
	cerr.DurationMS = e.DurationMS
	cerr.NumTurns = e.NumTurns
	return cerr
}

// DoGenerate drives one invocation to completion and returns the full
// accumulated response. The terminal result's own formatted answer field
// is deliberately not used as output: only the incrementally accumulated
// assistant text is authoritative.
func (m *Model) DoGenerate(ctx context.Context, opts llm.CallOptions) (*llm.GenerateResult, error) {
	warnings := m.baseWarnings(opts)
	prompt, promptWarnings := ConvertMessages(opts.Prompt, opts.ResponseFormat)
	warnings = append(warnings, promptWarnings...)

	stream, err := m.query(ctx, prompt, m.buildOptions())
	if err != nil {
		return nil, classifyError(err, prompt)
	}
	defer stream.Close()

	var text strings.Builder
	meta := &llm.ProviderMetadata{}
	result := &llm.GenerateResult{
		FinishReason: llm.FinishUnknown,
		RawRequest:   &llm.RawRequest{Prompt: prompt, Model: m.modelID},
	}

	for {
		ev, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, classifyError(err, prompt)
		}

		switch e := ev.(type) {
		case claudecli.SystemEvent:
			if m.session.Set(e.SessionID) {
				m.log.Info("agent session started", "session_id", e.SessionID)
			}
			meta.SessionID = e.SessionID
			m.log.Debug("agent initialized",
				"session_id", e.SessionID, "cwd", e.CWD,
				"tools", len(e.Tools), "mcp_servers", len(e.MCPServers))

		case claudecli.AssistantEvent:
			for _, fragment := range e.Fragments {
				text.WriteString(fragment)
			}

		case claudecli.ResultEvent:
			if meta.SessionID == "" {
				meta.SessionID = e.SessionID
			}
			meta.NumTurns = e.NumTurns
			if e.DurationMS > 0 {
				d := e.DurationMS
				meta.DurationMS = &d
			}
			if e.TotalCostUSD != nil {
				c := *e.TotalCostUSD
				meta.CostUSD = &c
			}
			if e.IsError {
				return nil, resultCallError(e, prompt, meta.SessionID)
			}
			result.FinishReason = mapFinishReason(e.Subtype)
			result.Usage = usageFromCounters(e.Usage)
		}
	}

	out := text.String()
	if jsonMode(opts.ResponseFormat) && out != "" {
		extracted := ExtractJSON(out)
		if !json.Valid([]byte(extracted)) {
			warnings = append(warnings, llm.CallWarning{
				Type:    llm.WarningOther,
				Message: "the response did not contain valid JSON; returning the best-effort extraction",
			})
		}
		out = extracted
	}

	result.Text = out
	result.Warnings = warnings
	result.Metadata = meta
	return result, nil
}
