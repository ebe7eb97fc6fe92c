// Package cohere provides the ProviderAdapter for Cohere's Chat API. Cohere
// streams newline-delimited JSON instead of SSE: each text-generation event
// carries the incremental text, and the terminal stream-end event repeats the
// whole response, which is dropped to avoid duplicating the transcript.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/davidbz/polyphony/internal/domain"
	"github.com/davidbz/polyphony/internal/observability"
)

// Adapter implements the domain.ProviderAdapter interface for Cohere.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	name       string
}

// NewAdapter creates a new Cohere adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Cohere API key is required")
	}

	return &Adapter{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		name: "cohere",
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return a.name
}

// StreamCompletion opens one streaming chat request and relays each
// text-generation event as a fragment.
func (a *Adapter) StreamCompletion(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.Fragment, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Cohere streaming API")

	resp, err := a.openStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("cohere stream: %w", err)
	}

	fragments := make(chan domain.Fragment)

	go func() {
		defer close(fragments)
		defer resp.Body.Close()
		defer logger.Debug("Cohere stream finished")

		decoder := json.NewDecoder(resp.Body)
		for {
			var event streamEvent
			if decodeErr := decoder.Decode(&event); decodeErr != nil {
				// stream-end normally terminates first; a bare EOF is still a
				// clean termination.
				if !errors.Is(decodeErr, io.EOF) {
					emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("cohere stream: %w", decodeErr)})
				}
				return
			}

			switch event.EventType {
			case "text-generation":
				if event.Text == "" {
					continue
				}
				if !emit(ctx, fragments, domain.Fragment{Text: event.Text}) {
					return
				}

			case "stream-end":
				// The accumulated response in the payload duplicates what was
				// already streamed.
				if event.FinishReason != "" && event.FinishReason != "COMPLETE" && event.FinishReason != "MAX_TOKENS" {
					emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("cohere stream: finished with reason %s", event.FinishReason)})
				}
				return

			default:
				if event.Error != nil {
					emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("cohere stream: %s", event.Error.Message)})
					return
				}
				// stream-start and tool events carry no text.
			}
		}
	}()

	return fragments, nil
}

// openStream sends the streaming request and validates the response status.
func (a *Adapter) openStream(ctx context.Context, req *domain.CompletionRequest) (*http.Response, error) {
	last := req.Messages[len(req.Messages)-1]

	history := make([]chatMessage, 0, len(req.Messages)-1)
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		role := "USER"
		if msg.Role == domain.RoleAssistant {
			role = "CHATBOT"
		}
		history = append(history, chatMessage{Role: role, Message: msg.Content})
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:       req.ModelID,
		Message:     last.Content,
		ChatHistory: history,
		MaxTokens:   req.MaxOutputTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.baseURL+"/chat",
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
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
