package cohere_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/polyphony/internal/domain"
	"github.com/davidbz/polyphony/internal/provider/cohere"
)

func newStreamServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/stream+json")
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}))
}

func newAdapter(t *testing.T, baseURL string) *cohere.Adapter {
	t.Helper()
	adapter, err := cohere.NewAdapter(cohere.Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
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
		adapter, err := cohere.NewAdapter(cohere.Config{APIKey: ""})

		require.Error(t, err)
		require.Nil(t, adapter)
		require.Contains(t, err.Error(), "Cohere API key is required")
	})

	t.Run("should expose the provider name", func(t *testing.T) {
		adapter, err := cohere.NewAdapter(cohere.Config{APIKey: "test-key"})

		require.NoError(t, err)
		require.Equal(t, "cohere", adapter.Name())
	})
}

func TestAdapter_StreamCompletion(t *testing.T) {
	t.Run("should relay only incremental text and not the final transcript", func(t *testing.T) {
		server := newStreamServer(t,
			`{"event_type":"stream-start"}`,
			`{"event_type":"text-generation","text":"Hel"}`,
			`{"event_type":"text-generation","text":"lo"}`,
			`{"event_type":"stream-end","finish_reason":"COMPLETE","response":{"text":"Hello"}}`,
		)
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID:  "command-r-08-2024",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		})

		require.NoError(t, err)
		text, streamErr := collect(t, fragments)
		require.NoError(t, streamErr)
		// The stream-end transcript must not be appended a second time.
		require.Equal(t, "Hello", text)
	})

	t.Run("should split history into cohere roles and send the last prompt alone", func(t *testing.T) {
		var captured map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			fmt.Fprintln(w, `{"event_type":"stream-end","finish_reason":"COMPLETE"}`)
		}))
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID: "command-r-08-2024",
			Messages: []domain.Message{
				{Role: domain.RoleUser, Content: "first question"},
				{Role: domain.RoleAssistant, Content: "first answer"},
				{Role: domain.RoleUser, Content: "second question"},
			},
		})
		require.NoError(t, err)
		_, streamErr := collect(t, fragments)
		require.NoError(t, streamErr)

		require.Equal(t, "second question", captured["message"])
		history, ok := captured["chat_history"].([]any)
		require.True(t, ok)
		require.Len(t, history, 2)

		first, ok := history[0].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "USER", first["role"])
		require.Equal(t, "first question", first["message"])

		second, ok := history[1].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "CHATBOT", second["role"])
	})

	t.Run("should surface an abnormal finish reason as an error", func(t *testing.T) {
		server := newStreamServer(t,
			`{"event_type":"text-generation","text":"partial"}`,
			`{"event_type":"stream-end","finish_reason":"ERROR_TOXIC"}`,
		)
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID:  "command-r-08-2024",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		})

		require.NoError(t, err)
		text, streamErr := collect(t, fragments)
		require.Equal(t, "partial", text)
		require.Error(t, streamErr)
		require.Contains(t, streamErr.Error(), "ERROR_TOXIC")
	})

	t.Run("should treat max tokens as a clean finish", func(t *testing.T) {
		server := newStreamServer(t,
			`{"event_type":"text-generation","text":"truncated"}`,
			`{"event_type":"stream-end","finish_reason":"MAX_TOKENS"}`,
		)
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID:  "command-r-08-2024",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		})

		require.NoError(t, err)
		text, streamErr := collect(t, fragments)
		require.NoError(t, streamErr)
		require.Equal(t, "truncated", text)
	})

	t.Run("should fail synchronously on a non-200 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		adapter := newAdapter(t, server.URL)
		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID:  "command-r-08-2024",
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		})

		require.Error(t, err)
		require.Nil(t, fragments)
		require.Contains(t, err.Error(), "401")
	})

	t.Run("should reject empty messages", func(t *testing.T) {
		adapter := newAdapter(t, "http://localhost:0")

		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID: "command-r-08-2024",
		})

		require.Error(t, err)
		require.Nil(t, fragments)
		require.Contains(t, err.Error(), "messages cannot be empty")
	})
}
