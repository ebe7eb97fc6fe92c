// Package gemini provides the ProviderAdapter for the Google Gemini API via
// the official Gen AI SDK. Gemini is a chat-stream API: prior turns seed a
// chat session's history and the current prompt is sent on it; each streamed
// response chunk carries only the new text in its candidate parts.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/davidbz/polyphony/internal/domain"
	"github.com/davidbz/polyphony/internal/observability"
)

// Adapter implements the domain.ProviderAdapter interface for Gemini.
type Adapter struct {
	client *genai.Client
	name   string
}

// NewAdapter creates a new Gemini adapter. The SDK client is long-lived and
// reused across all requests.
func NewAdapter(ctx context.Context, config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Adapter{
		client: client,
		name:   "gemini",
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return a.name
}

// Close releases the underlying SDK client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// StreamCompletion opens one chat-session stream and relays each chunk's
// candidate text as a fragment.
func (a *Adapter) StreamCompletion(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.Fragment, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Gemini streaming API")

	gm := a.client.GenerativeModel(req.ModelID)
	if req.MaxOutputTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}

	// All but the last message seed the chat history; the final user turn is
	// sent on the session.
	cs := gm.StartChat()
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	last := req.Messages[len(req.Messages)-1]
	iter := cs.SendMessageStream(ctx, genai.Text(last.Content))

	fragments := make(chan domain.Fragment)

	go func() {
		defer close(fragments)
		defer logger.Debug("Gemini stream finished")

		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				select {
				case fragments <- domain.Fragment{Err: fmt.Errorf("gemini stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			for _, candidate := range resp.Candidates {
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					text, ok := part.(genai.Text)
					if !ok || text == "" {
						continue
					}
					select {
					case fragments <- domain.Fragment{Text: string(text)}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return fragments, nil
}
