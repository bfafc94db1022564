package claudecli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/m4xw311/ccbridge/config"
)

// Options configures a single agent CLI invocation. Engines build a fresh
// Options per call from adapter settings and never mutate it afterwards.
type Options struct {
	// ExecutablePath locates the CLI binary; empty means "claude" on PATH.
	ExecutablePath string

	// WorkingDir is the process working directory for the invocation.
	WorkingDir string

	// Model is the model identifier forwarded via --model.
	Model string

	// Resume is the continuation directive: the session id the agent
	// should resume. Empty means a fresh session.
	Resume string

	// MaxTurns limits agent turns; zero means unlimited.
	MaxTurns int

	// SkipPermissions disables all permission prompts.
	SkipPermissions bool

	// PermissionRules is the allowed-tool rule list in CLI syntax.
	PermissionRules []string

	// MCPServers is forwarded as a generated --mcp-config file.
	MCPServers map[string]config.MCPServer

	// Env holds extra environment variables for the agent process.
	Env map[string]string

	// ToolboxPath is forwarded via --add-dir so the agent can reach an
	// additional toolbox directory.
	ToolboxPath string

	// LogLevel and LogFile configure the wrapper's own invocation logging.
	LogLevel string
	LogFile  string

	// Verbose asks the CLI for verbose event output. stream-json output
	// requires it, so Args always sets it.
	Verbose bool
}

// Args builds the CLI argument list. The prompt itself is not part of the
// arguments: it is written to the process stdin to avoid OS argument
// length limits. The returned cleanup removes any temp files Args created
// and must be called after the process exits.
func (o Options) Args() (args []string, cleanup func(), err error) {
	cleanup = func() {}

	args = []string{"-p", "--output-format", "stream-json", "--verbose"}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.MaxTurns > 0 {
		args = append(args, "--max-turns", fmt.Sprintf("%d", o.MaxTurns))
	}
	if o.Resume != "" {
		args = append(args, "--resume", o.Resume)
	}
	if o.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	for _, rule := range o.PermissionRules {
		args = append(args, "--allowedTools", rule)
	}
	if o.ToolboxPath != "" {
		args = append(args, "--add-dir", o.ToolboxPath)
	}
	if len(o.MCPServers) > 0 {
		path, err := writeMCPConfig(o.MCPServers)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = os.Remove(path) }
		args = append(args, "--mcp-config", path)
	}
	return args, cleanup, nil
}

// writeMCPConfig serializes the MCP server table into a temp file in the
// shape the CLI expects.
func writeMCPConfig(servers map[string]config.MCPServer) (string, error) {
	table := make(map[string]any, len(servers))
	for name, srv := range servers {
		entry := map[string]any{
			"command": srv.Command,
			"type":    "stdio",
		}
		if len(srv.Args) > 0 {
			entry["args"] = srv.Args
		}
		if len(srv.Env) > 0 {
			entry["env"] = srv.Env
		}
		table[name] = entry
	}
	payload := map[string]any{"mcpServers": table}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("ccbridge-mcp-%s.json", uuid.NewString()))
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// executable returns the binary to spawn.
func (o Options) executable() string {
	if o.ExecutablePath != "" {
		return o.ExecutablePath
	}
	return "claude"
}
