package domain

import "time"

// Message roles replayed to upstream providers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message. Immutable once created; ordering within
// a conversation is significant and preserved oldest-first.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// CompletionRequest is the provider-agnostic request handed to an adapter.
// Messages must already have blank entries filtered out and must end with
// the current user turn.
type CompletionRequest struct {
	ModelID         string
	MaxOutputTokens int
	Messages        []Message
}

// Fragment is one raw text increment received from an upstream stream.
// A non-nil Err is the adapter's single failure signal; no further
// fragments follow it.
type Fragment struct {
	Text string
	Err  error
}

// DeltaEvent is the normalized wire unit relayed to the consumer.
// Exactly one of Content or Error is set per event.
type DeltaEvent struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DispatchRequest describes one streaming turn for one model.
// History, when nil, is reconstructed from the HistoryStore.
type DispatchRequest struct {
	Prompt    string
	SessionID string
	ModelID   string
	History   []Message
}

// DispatchState tracks a dispatch through its lifecycle.
type DispatchState int

// Dispatch lifecycle: Pending -> Streaming -> {Completed | Failed}.
const (
	StatePending DispatchState = iota
	StateStreaming
	StateCompleted
	StateFailed
)

// Terminal reports whether the state is Completed or Failed.
func (s DispatchState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s DispatchState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConversationTurn is one prompt/response pair scoped to one model.
// The dispatcher owns it exclusively until it is persisted.
type ConversationTurn struct {
	SessionID   string
	ModelID     string
	Prompt      string
	Response    string
	State       DispatchState
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
}

// TurnRecord is the persisted form of a completed turn.
type TurnRecord struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	Prompt         string    `json:"prompt"`
	ModelName      string    `json:"model_name"`
	ModelResponse  string    `json:"model_response"`
	CreatedAt      time.Time `json:"created_at"`
}

// ModelDescriptor describes one selectable model.
type ModelDescriptor struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	MaxOutputTokens int    `json:"max_output_tokens"`
	Enabled         bool   `json:"enabled"`
}

// ProviderDescriptor describes one upstream provider and its models.
// Static, read-only after initialization.
type ProviderDescriptor struct {
	Name          string            `json:"name"`
	ClientBinding string            `json:"client_binding"`
	Nickname      string            `json:"nickname"`
	Models        []ModelDescriptor `json:"models"`
}
