package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/ccbridge/llm"
	"github.com/m4xw311/ccbridge/session"
)

// Run starts the ACP server over stdio using JSON-RPC.
// It implements a minimal subset of ACP:
// - initialize
// - session/new
// - session/load (replays saved history)
// - session/prompt (emits session/update notifications with agent_message_chunk)
// Notes:
// - Nothing is written to stdout except JSON-RPC messages.
// - Debug output goes to a trace file when tracing is enabled.
func Run(ctx context.Context, model llm.LanguageModel, in *bufio.Reader, out *bufio.Writer, traceEnabled bool) error {
	trace := func(msg string) {}
	if traceEnabled {
		traceFile, err := os.OpenFile("acp.trace", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer traceFile.Close()
			trace = func(msg string) {
				fmt.Fprintf(traceFile, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
			}
		}
	}

	trace("Run: starting ACP server")
	server := &acpServer{
		ctx:          ctx,
		model:        model,
		sessions:     make(map[string]*session.Transcript),
		StdinReader:  in,
		StdoutWriter: out,
		writeLock:    &sync.Mutex{},
		trace:        trace,
	}

	for {
		payload, err := server.readFramedMessage()
		if err != nil {
			if err == io.EOF {
				trace("Run: EOF received, exiting")
				return nil
			}
			// Broken framing cannot be recovered from on a shared pipe.
			trace(fmt.Sprintf("Run: read error: %v", err))
			return fmt.Errorf("ACP: read error: %w", err)
		}
		if len(payload) == 0 {
			continue
		}

		trace(fmt.Sprintf("Run: received payload: %s", string(payload)))
		var req jsonrpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			trace(fmt.Sprintf("Run: JSON parse error: %v", err))
			_ = server.writeResponseError(nil, -32700, "Parse error", nil)
			continue
		}

		trace(fmt.Sprintf("Run: dispatching method: %s with ID: %v", req.Method, req.ID))
		switch req.Method {
		case "initialize":
			server.handleInitialize(&req)
		case "session/new":
			server.handleSessionNew(&req)
		case "session/load":
			server.handleSessionLoad(&req)
		case "session/prompt":
			server.handleSessionPrompt(&req)
		default:
			_ = server.writeResponseError(req.ID, -32601, "Method not found", nil)
		}
	}
}

// ---- Minimal ACP handling types ----

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ---- acpServer ----

type acpServer struct {
	ctx          context.Context
	model        llm.LanguageModel
	sessions     map[string]*session.Transcript
	sessionsLock sync.Mutex

	StdinReader  *bufio.Reader
	StdoutWriter *bufio.Writer
	writeLock    *sync.Mutex
	trace        func(string)
}

// readFramedMessage reads a single newline-delimited JSON-RPC payload.
func (s *acpServer) readFramedMessage() ([]byte, error) {
	line, _, err := s.StdinReader.ReadLine()
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (s *acpServer) writeFramedJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize JSON-RPC message: %w", err)
	}
	s.trace(fmt.Sprintf("writeFramedJSON: %s", string(data)))

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.StdoutWriter.Write(data); err != nil {
		return err
	}
	// Newline terminates the frame.
	if _, err := s.StdoutWriter.WriteString("\n"); err != nil {
		return err
	}
	return s.StdoutWriter.Flush()
}

func (s *acpServer) writeResponseOK(id any, result json.RawMessage) error {
	return s.writeFramedJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *acpServer) writeResponseError(id any, code int, msg string, data any) error {
	s.trace(fmt.Sprintf("writeResponseError: code=%d, msg=%s, data=%+v", code, msg, data))
	return s.writeFramedJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &jsonrpcError{
			Code:    code,
			Message: msg,
			Data:    data,
		},
	})
}

func (s *acpServer) writeNotification(method string, params any) error {
	// Notifications have no id.
	return s.writeFramedJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

// ---- Handlers ----

func (s *acpServer) handleInitialize(req *jsonrpcRequest) {
	s.trace("handleInitialize: starting")
	resp := map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		s.trace(fmt.Sprintf("handleInitialize: marshal error: %v", err))
	}
	_ = s.writeResponseOK(req.ID, json.RawMessage(respBytes))
}

func (s *acpServer) handleSessionNew(req *jsonrpcRequest) {
	s.trace("handleSessionNew: starting")
	sid := s.nextSessionID()

	transcript, err := session.New(sid)
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("failed to create session: %v", err))
		return
	}
	if err := transcript.Save(); err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: warning - failed to save transcript: %v", err))
	}

	s.sessionsLock.Lock()
	s.sessions[sid] = transcript
	s.sessionsLock.Unlock()

	respBytes, _ := json.Marshal(map[string]any{"sessionId": sid})
	_ = s.writeResponseOK(req.ID, json.RawMessage(respBytes))
}

func (s *acpServer) handleSessionLoad(req *jsonrpcRequest) {
	s.trace("handleSessionLoad: starting")
	type sessionLoadParams struct {
		SessionID string `json:"sessionId"`
		Cwd       string `json:"cwd"`
	}
	var p sessionLoadParams
	if err := decodeParams(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}

	transcript, err := session.Load(p.SessionID)
	if err != nil {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("session not found: %v", err))
		return
	}

	s.sessionsLock.Lock()
	s.sessions[p.SessionID] = transcript
	s.sessionsLock.Unlock()

	// Replay the conversation history to the client.
	history := transcript.History()
	s.trace(fmt.Sprintf("handleSessionLoad: replaying %d messages", len(history)))
	for _, msg := range history {
		text := flattenText(msg)
		if text == "" {
			continue
		}
		switch msg.Role {
		case llm.RoleUser:
			_ = s.sendMessageChunk(p.SessionID, "user_message_chunk", text)
		case llm.RoleAssistant:
			_ = s.sendMessageChunk(p.SessionID, "agent_message_chunk", text)
		}
	}

	_ = s.writeResponseOK(req.ID, json.RawMessage("null"))
}

// contentBlock represents a content block in ACP prompt requests.
// Only text blocks are handled.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (s *acpServer) handleSessionPrompt(req *jsonrpcRequest) {
	s.trace("handleSessionPrompt: starting")
	type promptParams struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}

	var p promptParams
	if err := decodeParams(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}

	s.sessionsLock.Lock()
	transcript, ok := s.sessions[p.SessionID]
	s.sessionsLock.Unlock()
	if !ok {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", "unknown sessionId")
		return
	}

	userText := extractUserText(p.Prompt)
	transcript.AppendText(llm.RoleUser, userText)

	parts, err := s.model.DoStream(s.ctx, llm.CallOptions{Prompt: transcript.History()})
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("model call failed: %v", err))
		return
	}

	var reply strings.Builder
	finish := llm.FinishUnknown
	for part := range parts {
		switch part.Type {
		case llm.StreamTextDelta:
			reply.WriteString(part.Delta)
			_ = s.sendMessageChunk(p.SessionID, "agent_message_chunk", part.Delta)
		case llm.StreamFinish:
			finish = part.FinishReason
			if part.Metadata != nil && part.Metadata.SessionID != "" {
				transcript.SetAgentSessionID(part.Metadata.SessionID)
			}
		case llm.StreamError:
			s.trace(fmt.Sprintf("handleSessionPrompt: stream error: %v", part.Err))
			_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("model stream failed: %v", part.Err))
			return
		}
	}

	transcript.AppendText(llm.RoleAssistant, reply.String())
	if err := transcript.Save(); err != nil {
		s.trace(fmt.Sprintf("handleSessionPrompt: warning - failed to save transcript: %v", err))
	}

	respBytes, _ := json.Marshal(map[string]any{"stopReason": stopReason(finish)})
	_ = s.writeResponseOK(req.ID, json.RawMessage(respBytes))
}

// sendMessageChunk emits a session/update notification carrying one text chunk.
func (s *acpServer) sendMessageChunk(sessionID, kind, text string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": kind,
			"content": map[string]any{
				"type": "text",
				"text": text,
			},
		},
	})
}

func (s *acpServer) nextSessionID() string {
	id := "sess_" + uuid.NewString()
	s.trace(fmt.Sprintf("nextSessionID: generated %s", id))
	return id
}

func decodeParams(params any, dst any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}
	return nil
}

func stopReason(reason llm.FinishReason) string {
	if reason == llm.FinishLength {
		return "max_turn_requests"
	}
	return "end_turn"
}

func flattenText(msg llm.Message) string {
	var parts []string
	for _, p := range msg.Content {
		if p.Kind == llm.ContentText && strings.TrimSpace(p.Text) != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
