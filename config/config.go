// Package config defines the adapter-level settings surface: everything a
// caller can tune about how the agent CLI is invoked. Settings are
// validated and defaulted once when a model handle is created; validation
// problems that are advisory become warnings on every response instead of
// errors.
package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/m4xw311/ccbridge/errors"
	"github.com/m4xw311/ccbridge/llm"
	"github.com/m4xw311/ccbridge/logging"
	"github.com/m4xw311/ccbridge/permissions"
	"gopkg.in/yaml.v3"
)

// MCPServer describes one entry in the MCP server table forwarded to the
// agent CLI.
type MCPServer struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Settings configures one adapter instance. The zero value is usable: no
// working-directory override, permissions enforced, no continuation, no
// turn limit, log level "info", console logging.
type Settings struct {
	// WorkingDir overrides the agent process working directory.
	WorkingDir string `yaml:"working_dir"`

	// ExecutablePath locates the agent CLI binary. Empty means "claude"
	// resolved via PATH.
	ExecutablePath string `yaml:"executable_path"`

	// SkipPermissions disables all of the agent's permission prompts.
	SkipPermissions bool `yaml:"skip_permissions"`

	// Continue requests session continuation. Without it a remembered
	// session id is never reused: every call starts a fresh agent session.
	// This is deliberate opt-in, not an oversight.
	Continue bool `yaml:"continue"`

	// Resume names the session to continue. Only consulted when Continue
	// is set; it then takes precedence over any remembered session id.
	Resume string `yaml:"resume"`

	// MaxTurns limits agent turns per invocation. Zero means no limit.
	MaxTurns int `yaml:"max_turns"`

	// LogLevel is one of debug, info, warn, error. LogFile redirects agent
	// CLI logging to a file when set.
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// MCPServers is the MCP server table forwarded to the agent.
	MCPServers map[string]MCPServer `yaml:"mcp_servers"`

	// Env holds extra environment variables for the agent process.
	Env map[string]string `yaml:"env"`

	// ToolboxPath points the agent at an additional toolbox directory.
	ToolboxPath string `yaml:"toolbox_path"`

	// PermissionRules lists allowed tools in the CLI's rule syntax, e.g.
	// "Read" or "Bash(npm run *)".
	PermissionRules []string `yaml:"permission_rules"`

	// Verbose asks the agent CLI for verbose event output.
	Verbose bool `yaml:"verbose"`

	// Logger receives adapter logs. Nil means a console logger at
	// LogLevel. DisableLogging wins over both.
	Logger         logging.Logger `yaml:"-"`
	DisableLogging bool           `yaml:"disable_logging"`
}

// Load reads settings from the user-level file and then the project-level
// file, with the latter taking precedence. Missing files are not an error.
func Load() (*Settings, error) {
	s := &Settings{}

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".ccbridge", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, s); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectPath := filepath.Join(wd, ".ccbridge", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, s); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return s, nil
}

func loadFromFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, so project-level
	// values replace user-level ones.
	return yaml.Unmarshal(data, s)
}

// Validate normalizes the settings in place and returns warnings for the
// advisory problems it fixed up. It only returns an error for settings
// that cannot be worked around.
func (s *Settings) Validate() ([]llm.CallWarning, error) {
	var warnings []llm.CallWarning

	if s.MaxTurns < 0 {
		warnings = append(warnings, llm.CallWarning{
			Type:    llm.WarningOther,
			Message: "max_turns cannot be negative; the limit was removed",
		})
		s.MaxTurns = 0
	}

	switch s.LogLevel {
	case "", "debug", "info", "warn", "error":
		if s.LogLevel == "" {
			s.LogLevel = "info"
		}
	default:
		warnings = append(warnings, llm.CallWarning{
			Type:    llm.WarningOther,
			Message: "unknown log_level " + s.LogLevel + "; using info",
		})
		s.LogLevel = "info"
	}

	if s.Resume != "" && !s.Continue {
		warnings = append(warnings, llm.CallWarning{
			Type:    llm.WarningOther,
			Message: "resume is set but continue is false; the session id will be ignored",
		})
	}

	if _, errs := permissions.ParseAll(s.PermissionRules); len(errs) > 0 {
		for _, err := range errs {
			warnings = append(warnings, llm.CallWarning{
				Type:    llm.WarningOther,
				Message: err.Error(),
			})
		}
	}

	for name, srv := range s.MCPServers {
		if srv.Command == "" {
			return nil, errors.New("mcp server %q has no command", name)
		}
	}

	return warnings, nil
}

// ResolveLogger picks the logger the adapter should use.
func (s *Settings) ResolveLogger() logging.Logger {
	if s.DisableLogging {
		return logging.Nop()
	}
	if s.Logger != nil {
		return s.Logger
	}
	if s.LogFile != "" {
		if f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			return logging.New(io.Writer(f), s.LogLevel)
		}
	}
	return logging.Default(s.LogLevel)
}
