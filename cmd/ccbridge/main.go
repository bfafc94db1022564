// Command ccbridge is an interactive front end for the adapter. It drives
// the agent CLI through the generic model contract, keeping a local
// transcript so multi-turn conversations can be saved and resumed.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m4xw311/ccbridge/acp"
	"github.com/m4xw311/ccbridge/config"
	"github.com/m4xw311/ccbridge/llm"
	"github.com/m4xw311/ccbridge/mcp"
	"github.com/m4xw311/ccbridge/provider"
	"github.com/m4xw311/ccbridge/session"
)

func main() {
	modelFlag := flag.String("model", "sonnet", "Model id or alias to use")
	sessionFlag := flag.String("s", "", "Transcript name to create or use")
	resumeFlag := flag.String("r", "", "Resume a saved transcript by name")
	streamFlag := flag.Bool("stream", true, "Stream output incrementally")
	jsonFlag := flag.Bool("json", false, "Request structured JSON output")
	continueFlag := flag.Bool("continue", false, "Continue the remembered agent session across calls")
	agentSessionFlag := flag.String("resume-session", "", "Agent session id to resume (implies -continue)")
	skipPermissionsFlag := flag.Bool("skip-permissions", false, "Skip all agent permission prompts")
	acpFlag := flag.Bool("acp", false, "Run as an Agent Client Protocol server over stdio")
	traceFlag := flag.Bool("trace", false, "Enable execution tracing to troubleshoot issues")
	probeFlag := flag.Bool("probe-mcp", false, "Probe configured MCP servers and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	if *continueFlag {
		cfg.Continue = true
	}
	if *agentSessionFlag != "" {
		cfg.Continue = true
		cfg.Resume = *agentSessionFlag
	}
	if *skipPermissionsFlag {
		cfg.SkipPermissions = true
	}

	ctx := context.Background()

	if *probeFlag {
		probeServers(ctx, cfg)
		return
	}

	p, err := provider.New(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing provider: %+v\n", err)
		os.Exit(1)
	}
	model, err := p.LanguageModel(*modelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving model '%s': %+v\n", *modelFlag, err)
		os.Exit(1)
	}

	if *acpFlag {
		fmt.Fprintln(os.Stderr, "Starting ccbridge in ACP mode...")
		in := bufio.NewReader(os.Stdin)
		out := bufio.NewWriter(os.Stdout)
		if err := acp.Run(ctx, model, in, out, *traceFlag); err != nil {
			fmt.Fprintf(os.Stderr, "ACP mode failed: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	transcript, name, err := openTranscript(*sessionFlag, *resumeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening transcript '%s': %+v\n", name, err)
		os.Exit(1)
	}

	repl := &repl{
		model:      model,
		transcript: transcript,
		stream:     *streamFlag,
		jsonMode:   *jsonFlag,
	}

	initialPrompt := strings.Join(flag.Args(), " ")
	if err := repl.run(ctx, initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "ccbridge stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

func openTranscript(sessionName, resumeName string) (*session.Transcript, string, error) {
	if resumeName != "" {
		t, err := session.Load(resumeName)
		if err == nil {
			fmt.Printf("Resuming transcript: %s\n", resumeName)
		}
		return t, resumeName, err
	}
	name := sessionName
	if name == "" {
		name = defaultTranscriptName()
	}
	t, err := session.New(name)
	if err == nil {
		fmt.Printf("Starting new transcript: %s\n", name)
	}
	return t, name, err
}

func probeServers(ctx context.Context, cfg *config.Settings) {
	if len(cfg.MCPServers) == 0 {
		fmt.Println("No MCP servers configured.")
		return
	}
	failed := false
	for _, status := range mcp.Preflight(ctx, cfg.MCPServers) {
		if status.OK() {
			fmt.Printf("%s: ok (%d tools: %s)\n", status.Name, len(status.Tools), strings.Join(status.Tools, ", "))
		} else {
			failed = true
			fmt.Printf("%s: FAILED: %v\n", status.Name, status.Err)
		}
	}
	if failed {
		os.Exit(1)
	}
}

type repl struct {
	model      llm.LanguageModel
	transcript *session.Transcript
	stream     bool
	jsonMode   bool
}

func (r *repl) run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		if err := r.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			break
		}

		if err := r.processTurn(ctx, userInput); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
	return scanner.Err()
}

// processTurn sends the accumulated history plus the new input to the model
// and records both sides in the transcript.
func (r *repl) processTurn(ctx context.Context, userInput string) error {
	r.transcript.AppendText(llm.RoleUser, userInput)

	opts := llm.CallOptions{Prompt: r.transcript.History()}
	if r.jsonMode {
		opts.ResponseFormat = &llm.ResponseFormat{Type: "json"}
	}

	var reply string
	var err error
	if r.stream {
		reply, err = r.streamTurn(ctx, opts)
	} else {
		reply, err = r.generateTurn(ctx, opts)
	}
	if err != nil {
		return err
	}

	r.transcript.AppendText(llm.RoleAssistant, reply)
	return r.transcript.Save()
}

func (r *repl) generateTurn(ctx context.Context, opts llm.CallOptions) (string, error) {
	result, err := r.model.DoGenerate(ctx, opts)
	if err != nil {
		return "", err
	}
	printWarnings(result.Warnings)
	fmt.Printf("Agent: %s\n", result.Text)
	if result.Metadata != nil && result.Metadata.SessionID != "" {
		r.transcript.SetAgentSessionID(result.Metadata.SessionID)
	}
	return result.Text, nil
}

func (r *repl) streamTurn(ctx context.Context, opts llm.CallOptions) (string, error) {
	parts, err := r.model.DoStream(ctx, opts)
	if err != nil {
		return "", err
	}

	var reply strings.Builder
	printed := false
	for part := range parts {
		switch part.Type {
		case llm.StreamStart:
			printWarnings(part.Warnings)
		case llm.StreamTextDelta:
			if !printed {
				fmt.Print("Agent: ")
				printed = true
			}
			fmt.Print(part.Delta)
			reply.WriteString(part.Delta)
		case llm.StreamFinish:
			if printed {
				fmt.Println()
			}
			if part.Metadata != nil && part.Metadata.SessionID != "" {
				r.transcript.SetAgentSessionID(part.Metadata.SessionID)
			}
		case llm.StreamError:
			if printed {
				fmt.Println()
			}
			return "", part.Err
		}
	}
	return reply.String(), nil
}

func printWarnings(warnings []llm.CallWarning) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w.Message)
	}
}

func defaultTranscriptName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "ccbridge"
	}
	dirName := filepath.Base(wd)
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s_%s", dirName, timestamp)
}
