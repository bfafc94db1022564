// Package mcp provides a preflight probe for the MCP server table in the
// adapter settings. The agent CLI starts configured servers itself; the
// probe lets callers verify a table is usable before handing it over,
// by connecting to each server and listing its tools.
package mcp

import (
	"context"
	"os"
	"os/exec"

	"github.com/m4xw311/ccbridge/config"
	"github.com/m4xw311/ccbridge/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerStatus is the result of probing one configured MCP server.
type ServerStatus struct {
	Name  string
	Tools []string
	Err   error
}

// OK reports whether the server answered the probe.
func (s ServerStatus) OK() bool { return s.Err == nil }

// Preflight connects to every server in the table over stdio, lists its
// tools, and shuts it down again. A failing server does not abort the
// probe; its error is recorded in the corresponding status.
func Preflight(ctx context.Context, servers map[string]config.MCPServer) []ServerStatus {
	statuses := make([]ServerStatus, 0, len(servers))
	for name, srv := range servers {
		tools, err := probeServer(ctx, name, srv)
		statuses = append(statuses, ServerStatus{Name: name, Tools: tools, Err: err})
	}
	return statuses
}

func probeServer(ctx context.Context, name string, srv config.MCPServer) ([]string, error) {
	cmd := exec.Command(srv.Command, srv.Args...)
	cmd.Stderr = os.Stderr
	if len(srv.Env) > 0 {
		env := append([]string{}, os.Environ()...)
		for k, v := range srv.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "ccbridge-preflight", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	defer conn.Close()

	var tools []string
	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			tools = append(tools, t.Name)
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}
	return tools, nil
}
