package gemini_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/polyphony/internal/domain"
	"github.com/davidbz/polyphony/internal/provider/gemini"
)

func TestNewAdapter(t *testing.T) {
	t.Run("should create adapter with an API key", func(t *testing.T) {
		adapter, err := gemini.NewAdapter(context.Background(), gemini.Config{
			APIKey: "test-api-key",
		})

		require.NoError(t, err)
		require.NotNil(t, adapter)
		require.Equal(t, "gemini", adapter.Name())
		require.NoError(t, adapter.Close())
	})

	t.Run("should require an API key", func(t *testing.T) {
		adapter, err := gemini.NewAdapter(context.Background(), gemini.Config{})

		require.Error(t, err)
		require.Nil(t, adapter)
		require.Contains(t, err.Error(), "Gemini API key is required")
	})
}

func TestAdapter_StreamCompletion(t *testing.T) {
	t.Run("should reject nil request", func(t *testing.T) {
		adapter, err := gemini.NewAdapter(context.Background(), gemini.Config{APIKey: "test-key"})
		require.NoError(t, err)
		defer adapter.Close()

		fragments, err := adapter.StreamCompletion(context.Background(), nil)

		require.Error(t, err)
		require.Nil(t, fragments)
		require.Contains(t, err.Error(), "request cannot be nil")
	})

	t.Run("should reject empty messages", func(t *testing.T) {
		adapter, err := gemini.NewAdapter(context.Background(), gemini.Config{APIKey: "test-key"})
		require.NoError(t, err)
		defer adapter.Close()

		fragments, err := adapter.StreamCompletion(context.Background(), &domain.CompletionRequest{
			ModelID: "gemini-1.5-flash",
		})

		require.Error(t, err)
		require.Nil(t, fragments)
		require.Contains(t, err.Error(), "messages cannot be empty")
	})
}
