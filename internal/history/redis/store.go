// Package redis implements the conversation history store on Redis lists.
// Each (session, model) pair owns one list of JSON-encoded turn records,
// appended in completion order, so a fetch replays the conversation
// chronologically.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/polyphony/internal/domain"
	"github.com/davidbz/polyphony/internal/observability"
)

const keyPrefix = "history"

// Store implements the domain.HistoryStore interface on a Redis list per
// (session, model) pair.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis history store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Append pushes one completed turn onto the end of its conversation list.
func (s *Store) Append(ctx context.Context, record *domain.TurnRecord) error {
	logger := observability.FromContext(ctx)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal turn record: %w", err)
	}

	key := historyKey(record.SessionID, record.ModelName)
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		logger.Error("history append failed",
			observability.String("key", key),
			observability.Error(err))
		return fmt.Errorf("failed to append turn: %w", err)
	}

	logger.Debug("history turn appended",
		observability.String("key", key))
	return nil
}

// Fetch returns the conversation as alternating user and assistant messages,
// oldest first. An unknown pair yields an empty history, not an error.
func (s *Store) Fetch(ctx context.Context, sessionID, modelID string) ([]domain.Message, error) {
	logger := observability.FromContext(ctx)

	key := historyKey(sessionID, modelID)
	entries, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		logger.Error("history fetch failed",
			observability.String("key", key),
			observability.Error(err))
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	messages := make([]domain.Message, 0, len(entries)*2)
	for _, entry := range entries {
		var record domain.TurnRecord
		if unmarshalErr := json.Unmarshal([]byte(entry), &record); unmarshalErr != nil {
			logger.Warn("skipping undecodable history entry",
				observability.String("key", key),
				observability.Error(unmarshalErr))
			continue
		}
		messages = append(messages,
			domain.Message{Role: domain.RoleUser, Content: record.Prompt},
			domain.Message{Role: domain.RoleAssistant, Content: record.ModelResponse},
		)
	}

	logger.Debug("history fetched",
		observability.String("key", key),
		observability.Int("turns", len(entries)))
	return messages, nil
}

// Trim discards every turn after the first keepTurns records, so an edited
// turn can be resubmitted against the truncated conversation.
func (s *Store) Trim(ctx context.Context, sessionID, modelID string, keepTurns int) error {
	logger := observability.FromContext(ctx)

	key := historyKey(sessionID, modelID)
	if keepTurns <= 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		logger.Debug("history cleared",
			observability.String("key", key))
		return nil
	}

	if err := s.client.LTrim(ctx, key, 0, int64(keepTurns)-1).Err(); err != nil {
		logger.Error("history trim failed",
			observability.String("key", key),
			observability.Error(err))
		return fmt.Errorf("failed to trim history: %w", err)
	}

	logger.Debug("history trimmed",
		observability.String("key", key),
		observability.Int("kept_turns", keepTurns))
	return nil
}

// historyKey builds the list key for one (session, model) conversation.
func historyKey(sessionID, modelID string) string {
	return strings.Join([]string{keyPrefix, sessionID, modelID}, ":")
}
