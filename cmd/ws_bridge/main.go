// Command ws_bridge exposes the adapter over a WebSocket. Each text frame
// from the client is one prompt; the server answers with a sequence of
// JSON-encoded stream parts, so browser clients see the same part protocol
// as in-process consumers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
	"github.com/m4xw311/ccbridge/config"
	"github.com/m4xw311/ccbridge/llm"
	"github.com/m4xw311/ccbridge/provider"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientRequest is one prompt frame from the client.
type clientRequest struct {
	Prompt string `json:"prompt"`
	JSON   bool   `json:"json,omitempty"`
}

// wirePart is the JSON shape of one stream part on the socket. Errors are
// flattened to strings so the frame stays serializable.
type wirePart struct {
	Type         llm.StreamPartType    `json:"type"`
	Warnings     []llm.CallWarning     `json:"warnings,omitempty"`
	Response     *llm.ResponseInfo     `json:"response,omitempty"`
	TextID       string                `json:"text_id,omitempty"`
	Delta        string                `json:"delta,omitempty"`
	FinishReason llm.FinishReason      `json:"finish_reason,omitempty"`
	Usage        *llm.Usage            `json:"usage,omitempty"`
	Metadata     *llm.ProviderMetadata `json:"metadata,omitempty"`
	Error        string                `json:"error,omitempty"`
}

func main() {
	addrFlag := flag.String("addr", ":8080", "Listen address")
	modelFlag := flag.String("model", "sonnet", "Model id or alias to use")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
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

	http.HandleFunc("/ws", handleWS(model))

	fmt.Printf("WebSocket bridge running on ws://localhost%s/ws\n", *addrFlag)
	log.Fatal(http.ListenAndServe(*addrFlag, nil))
}

func handleWS(model llm.LanguageModel) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		ctx := r.Context()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Println("WS read error:", err)
				}
				return
			}

			var req clientRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				// Plain text frames are accepted as bare prompts.
				req = clientRequest{Prompt: string(msg)}
			}
			if req.Prompt == "" {
				continue
			}

			if err := streamPrompt(ctx, conn, model, req); err != nil {
				log.Println("WS write error:", err)
				return
			}
		}
	}
}

// streamPrompt runs one call and relays every part. The part sequence on
// the wire carries the same termination guarantee as the channel: the last
// frame for a prompt is always a finish or an error part.
func streamPrompt(ctx context.Context, conn *websocket.Conn, model llm.LanguageModel, req clientRequest) error {
	opts := llm.CallOptions{
		Prompt: []llm.Message{llm.TextMessage(llm.RoleUser, req.Prompt)},
	}
	if req.JSON {
		opts.ResponseFormat = &llm.ResponseFormat{Type: "json"}
	}

	parts, err := model.DoStream(ctx, opts)
	if err != nil {
		return writePart(conn, wirePart{Type: llm.StreamError, Error: err.Error()})
	}

	for part := range parts {
		wp := wirePart{
			Type:         part.Type,
			Warnings:     part.Warnings,
			Response:     part.Response,
			TextID:       part.TextID,
			Delta:        part.Delta,
			FinishReason: part.FinishReason,
			Usage:        part.Usage,
			Metadata:     part.Metadata,
		}
		if part.Err != nil {
			wp.Error = part.Err.Error()
		}
		if err := writePart(conn, wp); err != nil {
			return err
		}
	}
	return nil
}

func writePart(conn *websocket.Conn, part wirePart) error {
	data, err := json.Marshal(part)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
