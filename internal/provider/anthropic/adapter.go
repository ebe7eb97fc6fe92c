// Package anthropic provides the ProviderAdapter for Anthropic's Messages
// API. Anthropic streams typed delta events: the text arrives in
// content_block_delta events with a separate text_delta payload, and
// message_stop terminates the stream.
package anthropic

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
	"github.com/davidbz/polyphony/internal/provider/sse"
)

// Adapter implements the domain.ProviderAdapter interface for Anthropic.
type Adapter struct {
	apiKey     string
	baseURL    string
	version    string
	httpClient *http.Client
	name       string
}

// NewAdapter creates a new Anthropic adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &Adapter{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		version: config.Version,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		name: "anthropic",
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return a.name
}

// StreamCompletion opens one streaming messages request and relays each
// text_delta as a fragment.
func (a *Adapter) StreamCompletion(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.Fragment, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic streaming API")

	resp, err := a.openStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	fragments := make(chan domain.Fragment)

	go func() {
		defer close(fragments)
		defer resp.Body.Close()
		defer logger.Debug("Anthropic stream finished")

		scanner := sse.NewScanner(resp.Body)
		for {
			payload, scanErr := scanner.Next()
			if scanErr != nil {
				// message_stop normally ends the stream before EOF; a bare
				// EOF here is still a clean termination.
				if !errors.Is(scanErr, io.EOF) {
					emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("anthropic stream: %w", scanErr)})
				}
				return
			}

			var event streamEvent
			if parseErr := json.Unmarshal([]byte(payload), &event); parseErr != nil {
				emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("anthropic stream: decode event: %w", parseErr)})
				return
			}

			switch event.Type {
			case "content_block_delta":
				if event.Delta == nil || event.Delta.Type != "text_delta" {
					continue
				}
				if event.Delta.Text == "" {
					continue
				}
				if !emit(ctx, fragments, domain.Fragment{Text: event.Delta.Text}) {
					return
				}

			case "message_stop":
				return

			case "error":
				errMsg := "unknown stream error"
				if event.Error != nil {
					errMsg = event.Error.Message
				}
				emit(ctx, fragments, domain.Fragment{Err: fmt.Errorf("anthropic stream: %s", errMsg)})
				return

			default:
				// message_start, content_block_start/stop, message_delta and
				// ping carry no text; unknown types are skipped for forward
				// compatibility.
			}
		}
	}()

	return fragments, nil
}

// openStream sends the streaming request and validates the response status.
func (a *Adapter) openStream(ctx context.Context, req *domain.CompletionRequest) (*http.Response, error) {
	messages := make([]chatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	reqBody, err := json.Marshal(messagesRequest{
		Model:     req.ModelID,
		MaxTokens: req.MaxOutputTokens,
		Messages:  messages,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.baseURL+"/messages",
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", a.version)

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
