package provider

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/ccbridge/claudecli"
	"github.com/m4xw311/ccbridge/llm"
)

// DoStream drives one invocation and emits an incremental part stream.
// The sequence is finite, single-pass, and always terminated by a finish
// or error part before the channel closes, including under cancellation.
//
// Text mode streams assistant fragments as they arrive. JSON mode buffers
// everything: a structured payload cannot be validated until complete, so
// nothing is emitted between the start marker and the terminal event, and
// the extracted JSON goes out as a single text triple at the end.
func (m *Model) DoStream(ctx context.Context, opts llm.CallOptions) (<-chan llm.StreamPart, error) {
	warnings := m.baseWarnings(opts)
	prompt, promptWarnings := ConvertMessages(opts.Prompt, opts.ResponseFormat)
	warnings = append(warnings, promptWarnings...)

	invOpts := m.buildOptions()
	isJSON := jsonMode(opts.ResponseFormat)

	parts := make(chan llm.StreamPart, 1)

	go func() {
		defer close(parts)

		// emit blocks until the consumer pulls the part; a cancelled
		// context with a gone consumer aborts production.
		emit := func(p llm.StreamPart) bool {
			select {
			case parts <- p:
				return true
			case <-ctx.Done():
				select {
				case parts <- p:
					return true
				default:
					return false
				}
			}
		}

		if !emit(llm.StreamPart{Type: llm.StreamStart, Warnings: warnings}) {
			return
		}

		stream, err := m.query(ctx, prompt, invOpts)
		if err != nil {
			emit(llm.StreamPart{Type: llm.StreamError, Err: classifyError(err, prompt)})
			return
		}
		defer stream.Close()

		textID := uuid.NewString()
		textOpen := false
		var buffered []string
		meta := &llm.ProviderMetadata{}

		for {
			ev, err := stream.Next()
			if err == io.EOF {
				// A stream that ends without a result event is a protocol
				// violation; terminate it as an error rather than hang the
				// contract.
				emit(llm.StreamPart{Type: llm.StreamError, Err: classifyError(
					io.ErrUnexpectedEOF, prompt)})
				return
			}
			if err != nil {
				emit(llm.StreamPart{Type: llm.StreamError, Err: classifyError(err, prompt)})
				return
			}

			switch e := ev.(type) {
			case claudecli.SystemEvent:
				if !emit(llm.StreamPart{Type: llm.StreamResponseMetadata, Response: &llm.ResponseInfo{
					ID:        e.SessionID,
					ModelID:   m.modelID,
					Timestamp: time.Now(),
				}}) {
					return
				}
				if m.session.Set(e.SessionID) {
					m.log.Info("agent session started", "session_id", e.SessionID)
				}
				meta.SessionID = e.SessionID

			case claudecli.AssistantEvent:
				for _, fragment := range e.Fragments {
					if isJSON {
						buffered = append(buffered, fragment)
						continue
					}
					if !textOpen {
						if !emit(llm.StreamPart{Type: llm.StreamTextStart, TextID: textID}) {
							return
						}
						textOpen = true
					}
					if !emit(llm.StreamPart{Type: llm.StreamTextDelta, TextID: textID, Delta: fragment}) {
						return
					}
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
					emit(llm.StreamPart{Type: llm.StreamError, Err: resultCallError(e, prompt, meta.SessionID)})
					return
				}

				if isJSON {
					if len(buffered) > 0 {
						extracted := ExtractJSON(strings.Join(buffered, ""))
						if !emit(llm.StreamPart{Type: llm.StreamTextStart, TextID: textID}) {
							return
						}
						if !emit(llm.StreamPart{Type: llm.StreamTextDelta, TextID: textID, Delta: extracted}) {
							return
						}
						if !emit(llm.StreamPart{Type: llm.StreamTextEnd, TextID: textID}) {
							return
						}
					}
				} else if textOpen {
					if !emit(llm.StreamPart{Type: llm.StreamTextEnd, TextID: textID}) {
						return
					}
				}

				usage := usageFromCounters(e.Usage)
				emit(llm.StreamPart{
					Type:         llm.StreamFinish,
					FinishReason: mapFinishReason(e.Subtype),
					Usage:        &usage,
					Metadata:     meta,
				})
				return
			}
		}
	}()

	return parts, nil
}
