package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/polyphony/internal/domain"
	"github.com/davidbz/polyphony/internal/provider/anthropic"
)

func newStreamServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, event := range events {
			fmt.Fprintf(w, "data: %s\n\n", event)
		}
	}))
}

func newAdapter(t *testing.T, baseURL string) *anthropic.Adapter {
	t.Helper()
	adapter, err := anthropic.NewAdapter(anthropic.Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Version: "2023-06-01",
		Timeout: 5,
	})
	require.NoError(t, err)
	return adapter
}

func collect(t *testing.T, fragments <-chan domain.Fragment) (string, error) {
	t.Helper()
	var text string
	for fragment := range fragments {
		if fragment.Err != nil {
			return text, fragment.Err
		}
		text += fragment.Text
	}
	return text, nil
}

func TestNewAdapter(t *testing.T) {
	t.Run("should require an API key", func(t *testing.T) {
		adapter, err := anthropic.NewAdapter(anthropic.Config{APIKey: ""})

		require.Error(t, err)
		require.Nil(t, adapter)
		require.Contains(t, err.Error(), "Anthropic API key is required")
	})

	t.Run("should expose the provider name", func(t *testing.T) {
		adapter, err := anthropic.NewAdapter(anthropic.Config{APIKey: "test-key"})

		require.NoError(t, err)
		require.Equal(t, "anthropic", adapter.Name())
	})
}

func TestAdapter_StreamCompletion(t *testing.T) {
	t.Run("should relay text deltas and stop at message_stop", func(t *testing.T) {
		server := newStreamServer(t,
			`{"type":"message_start"}`,
			`{"type":"content_block_start"}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`,
			`{"type":"content_block_stop"}`,
			`{"type":"message_delta"}`,
			`{"type":"message_stop"}`,
		)
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID:         "claude-3-5-haiku-20241022",
			MaxOutputTokens: 8192,
			Messages:        []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		})

		require.NoError(t, err)
		text, streamErr := collect(t, fragments)
		require.NoError(t, streamErr)
		require.Equal(t, "Hello", text)
	})

	t.Run("should ignore non-text deltas", func(t *testing.T) {
		server := newStreamServer(t,
			`{"type":"content_block_delta","delta":{"type":"input_json_delta","text":"ignored"}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"kept"}}`,
			`{"type":"message_stop"}`,
		)
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID:  "claude-3-5-haiku-20241022",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		})

		require.NoError(t, err)
		text, streamErr := collect(t, fragments)
		require.NoError(t, streamErr)
		require.Equal(t, "kept", text)
	})

	t.Run("should surface an error event as the terminal fragment", func(t *testing.T) {
		server := newStreamServer(t,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`,
			`{"type":"error","error":{"message":"overloaded"}}`,
		)
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID:  "claude-3-5-haiku-20241022",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		})

		require.NoError(t, err)
		text, streamErr := collect(t, fragments)
		require.Equal(t, "partial", text)
		require.Error(t, streamErr)
		require.Contains(t, streamErr.Error(), "overloaded")
	})

	t.Run("should fail synchronously on a non-200 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID:  "claude-3-5-haiku-20241022",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		})

		require.Error(t, err)
		require.Nil(t, fragments)
		require.Contains(t, err.Error(), "401")
	})

	t.Run("should reject nil request", func(t *testing.T) {
		adapter := newAdapter(t, "http://localhost:0")

		fragments, err := adapter.StreamCompletion(context.Background(), nil)

		require.Error(t, err)
		require.Nil(t, fragments)
		require.Contains(t, err.Error(), "request cannot be nil")
	})
}
