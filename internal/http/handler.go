package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/davidbz/polyphony/internal/domain"
	"github.com/davidbz/polyphony/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	dispatcher *domain.Dispatcher
	fanout     *domain.FanOut
	catalog    domain.ModelCatalog
	history    domain.HistoryStore
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	dispatcher *domain.Dispatcher,
	fanout *domain.FanOut,
	catalog domain.ModelCatalog,
	history domain.HistoryStore,
) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		fanout:     fanout,
		catalog:    catalog,
		history:    history,
	}
}

// streamRequest is the body of a single-model stream request. History, when
// present, is the caller's own copy of the conversation and is replayed as
// given; when absent, the stored history for (session, model) is used.
type streamRequest struct {
	Prompt    string           `json:"prompt"`
	SessionID string           `json:"session_id"`
	ModelID   string           `json:"model_id"`
	History   []domain.Message `json:"history,omitempty"`
}

// fanoutRequest is the body of a multi-model submission. EditedTurn, when
// present, replaces that turn: history after it is discarded before the
// models re-run.
type fanoutRequest struct {
	Prompt     string                      `json:"prompt"`
	SessionID  string                      `json:"session_id"`
	ModelIDs   []string                    `json:"model_ids"`
	Histories  map[string][]domain.Message `json:"histories,omitempty"`
	EditedTurn *int                        `json:"edited_turn,omitempty"`
}

// fanoutEvent is one model-tagged wire event on a fan-out stream. A done
// event marks that model's slot terminal; no further events follow for it.
type fanoutEvent struct {
	Model   string `json:"model"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Done    bool   `json:"done,omitempty"`
}

// HandleStream processes single-model streaming requests.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx = observability.WithModel(ctx, req.ModelID)
	ctx = observability.WithSession(ctx, req.SessionID)

	logger := observability.FromContext(ctx)
	logger.Info("stream request received",
		zap.String("model", req.ModelID),
	)

	sink, ok := newEventStream(w)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	turn := h.dispatcher.Dispatch(ctx, &domain.DispatchRequest{
		Prompt:    req.Prompt,
		SessionID: req.SessionID,
		ModelID:   req.ModelID,
		History:   req.History,
	}, domain.DeltaSinkFunc(func(_ context.Context, event domain.DeltaEvent) error {
		return sink.write(event)
	}))

	logger.Info("stream request finished",
		zap.String("state", turn.State.String()),
	)
}

// HandleFanOut processes multi-model submissions over one multiplexed stream.
// Each event carries the model it belongs to; slots stream independently and
// the response ends when the last slot reaches a terminal state.
func (h *Handler) HandleFanOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req fanoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.ModelIDs) == 0 {
		http.Error(w, "at least one model id is required", http.StatusBadRequest)
		return
	}

	ctx = observability.WithSession(ctx, req.SessionID)

	logger := observability.FromContext(ctx)
	logger.Info("fanout request received",
		zap.Int("models", len(req.ModelIDs)),
		zap.Bool("resubmit", req.EditedTurn != nil),
	)

	sink, ok := newEventStream(w)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sinks := func(modelID string) domain.DeltaSink {
		return domain.DeltaSinkFunc(func(_ context.Context, event domain.DeltaEvent) error {
			return sink.write(fanoutEvent{
				Model:   modelID,
				Content: event.Content,
				Error:   event.Error,
			})
		})
	}

	var batch *domain.Batch
	if req.EditedTurn != nil {
		batch = h.fanout.Resubmit(ctx, req.Prompt, req.SessionID, req.ModelIDs, *req.EditedTurn, req.Histories, sinks)
	} else {
		batch = h.fanout.Submit(ctx, req.Prompt, req.SessionID, req.ModelIDs, req.Histories, sinks)
	}

	// Announce each slot the moment it settles, so a consumer can tell a
	// finished model from a slow sibling before the whole batch ends.
	var done sync.WaitGroup
	for _, modelID := range batch.ModelIDs() {
		slot, ok := batch.Slot(modelID)
		if !ok {
			continue
		}
		done.Add(1)
		go func(modelID string, slot *domain.Slot) {
			defer done.Done()
			<-slot.Settled()
			if err := sink.write(fanoutEvent{Model: modelID, Done: true}); err != nil {
				logger.Warn("failed to write done event",
					zap.String("model", modelID), zap.Error(err))
			}
		}(modelID, slot)
	}

	batch.Wait()
	done.Wait()

	logger.Info("fanout request finished")
}

// HandleHistory returns one (session, model) conversation transcript. Model
// identifiers appearing in stored responses are masked with the provider's
// display nickname, so a transcript never reveals which model is answering.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	modelID := r.URL.Query().Get("model_id")
	if sessionID == "" || modelID == "" {
		http.Error(w, "session_id and model_id are required", http.StatusBadRequest)
		return
	}

	ctx = observability.WithModel(ctx, modelID)
	ctx = observability.WithSession(ctx, sessionID)
	logger := observability.FromContext(ctx)

	messages, err := h.history.Fetch(ctx, sessionID, modelID)
	if err != nil {
		logger.Error("history fetch failed", zap.Error(err))
		http.Error(w, "failed to fetch history", http.StatusInternalServerError)
		return
	}

	providers := h.catalog.Providers()
	for i, msg := range messages {
		if msg.Role == domain.RoleAssistant {
			messages[i].Content = domain.ReplaceNicknames(providers, msg.Content)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]domain.Message{
		"messages": messages,
	}); err != nil {
		logger.Error("failed to encode history", zap.Error(err))
	}
}

// HandleModels lists the selectable models.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]domain.ModelDescriptor{
		"models": h.catalog.AllModels(),
	}); err != nil {
		observability.FromContext(r.Context()).Error("failed to encode models", zap.Error(err))
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// eventStream serializes SSE writes onto one response. Concurrent fan-out
// slots share it, so every write flushes under the lock.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// newEventStream sets the SSE headers and wraps the response writer. Returns
// false when the writer cannot flush incrementally.
func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &eventStream{w: w, flusher: flusher}, true
}

// write emits one JSON payload as an SSE data event and flushes immediately,
// so each delta reaches the consumer before the next upstream pull.
func (s *eventStream) write(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
