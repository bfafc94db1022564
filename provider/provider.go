// Package provider implements the translation core: it drives the agent
// CLI through claudecli and exposes the result through the generic llm
// contract. One Model handle wraps one model id plus one settings bag and
// may serve many calls; each call is one CLI invocation.
package provider

import (
	"strings"

	"github.com/m4xw311/ccbridge/claudecli"
	"github.com/m4xw311/ccbridge/config"
	"github.com/m4xw311/ccbridge/errors"
	"github.com/m4xw311/ccbridge/llm"
	"github.com/m4xw311/ccbridge/logging"
)

// ProviderName identifies this backend in provider metadata.
const ProviderName = "claude-cli"

// modelAliases are the short names the CLI resolves itself; they pass
// model id validation silently.
var modelAliases = map[string]bool{
	"opus":   true,
	"sonnet": true,
	"haiku":  true,
}

// Provider creates language model handles bound to one settings bag.
type Provider struct {
	settings config.Settings
	warnings []llm.CallWarning
	log      logging.Logger
	query    claudecli.QueryFunc
}

// New validates the settings once and returns a provider. Advisory
// validation problems become warnings attached to every response from
// models created by this provider.
func New(settings config.Settings) (*Provider, error) {
	warnings, err := settings.Validate()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid settings")
	}
	return &Provider{
		settings: settings,
		warnings: warnings,
		log:      settings.ResolveLogger(),
		query:    claudecli.Query,
	}, nil
}

// LanguageModel returns a model handle for the given model id. Unknown
// ids are passed through to the CLI with a warning rather than rejected,
// since the CLI accepts full model names this adapter does not enumerate.
func (p *Provider) LanguageModel(modelID string) (llm.LanguageModel, error) {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return nil, errors.New("model id must not be empty")
	}

	warnings := append([]llm.CallWarning(nil), p.warnings...)
	if !modelAliases[id] && !strings.HasPrefix(id, "claude-") {
		warnings = append(warnings, llm.CallWarning{
			Type:    llm.WarningOther,
			Message: "model " + id + " is not a recognized alias or claude model name; passing it through to the CLI",
		})
	}

	return &Model{
		modelID:  id,
		settings: p.settings,
		warnings: warnings,
		query:    p.query,
		log:      p.log,
	}, nil
}
