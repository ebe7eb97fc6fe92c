// Package groq provides the ProviderAdapter for Groq. Groq speaks the same
// choice-delta chunk shape as OpenAI over a hand-rolled SSE client.
package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/davidbz/polyphony/internal/domain"
	"github.com/davidbz/polyphony/internal/observability"
	"github.com/davidbz/polyphony/internal/provider/sse"
)

// Adapter implements the domain.ProviderAdapter interface for Groq.
type Adapter struct {
	client *Client
	name   string
}

// NewAdapter creates a new Groq adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Groq API key is required")
	}

	return &Adapter{
		client: NewClient(config),
		name:   "groq",
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return a.name
}

// StreamCompletion opens one streaming chat completion and relays each
// choice-delta as a fragment.
func (a *Adapter) StreamCompletion(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.Fragment, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Groq streaming API")

	messages := make([]chatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	resp, err := a.client.Stream(ctx, chatRequest{
		Model:     req.ModelID,
		Messages:  messages,
		MaxTokens: req.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("groq stream: %w", err)
	}

	fragments := make(chan domain.Fragment)

	go func() {
		defer close(fragments)
		defer resp.Body.Close()
		defer logger.Debug("Groq stream finished")

		scanner := sse.NewScanner(resp.Body)
		for {
			payload, scanErr := scanner.Next()
			if scanErr != nil {
				if !errors.Is(scanErr, io.EOF) {
					emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("groq stream: %w", scanErr)})
				}
				return
			}

			var chunk streamChunk
			if parseErr := json.Unmarshal([]byte(payload), &chunk); parseErr != nil {
				emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("groq stream: decode chunk: %w", parseErr)})
				return
			}

			if chunk.Error != nil {
				emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("groq stream: %s", chunk.Error.Message)})
				return
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !emit(ctx, fragments, domain.Fragment{Text: delta}) {
					return
				}
			}

			if chunk.Choices[0].FinishReason != nil && *chunk.Choices[0].FinishReason != "" {
				return
			}
		}
	}()

	return fragments, nil
}

// emit sends one fragment unless the context is done. Reports whether the
// fragment was delivered.
func emit(ctx context.Context, fragments chan<- domain.Fragment, fragment domain.Fragment) bool {
	select {
	case fragments <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}
