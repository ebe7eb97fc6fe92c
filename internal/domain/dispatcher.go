package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/polyphony/internal/observability"
)

// Dispatcher drives one streaming turn per invocation through the
// Pending -> Streaming -> {Completed | Failed} lifecycle: it resolves the
// adapter, relays every upstream fragment to the sink as a DeltaEvent,
// accumulates the full response, and persists the completed turn.
type Dispatcher struct {
	catalog  ModelCatalog
	adapters map[string]ProviderAdapter
	history  HistoryStore
	timeout  time.Duration
}

// NewDispatcher creates a new dispatcher (DI constructor). The adapters map
// is keyed by provider client binding.
func NewDispatcher(
	catalog ModelCatalog,
	adapters map[string]ProviderAdapter,
	history HistoryStore,
	timeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		catalog:  catalog,
		adapters: adapters,
		history:  history,
		timeout:  timeout,
	}
}

// Dispatch runs one streaming turn for one model and returns the finalized
// turn. Every fragment received from the adapter is relayed to the sink
// before the next one is pulled, so a slow consumer throttles upstream
// consumption. All failures surface as exactly one error event on the sink;
// persistence failures after a completed stream are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, req *DispatchRequest, sink DeltaSink) *ConversationTurn {
	turn := &ConversationTurn{
		SessionID: req.SessionID,
		ModelID:   req.ModelID,
		Prompt:    req.Prompt,
		State:     StatePending,
		StartedAt: time.Now(),
	}

	ctx = observability.WithModel(ctx, req.ModelID)
	ctx = observability.WithSession(ctx, req.SessionID)
	logger := observability.FromContext(ctx)

	adapter, completion, err := d.prepare(ctx, req)
	if err != nil {
		return d.fail(ctx, turn, sink, err)
	}

	// Always cancelable, so abandoning the relay loop below releases an
	// adapter goroutine blocked on its next send.
	var cancel context.CancelFunc
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	fragments, err := adapter.StreamCompletion(ctx, completion)
	if err != nil {
		return d.fail(ctx, turn, sink, classify(err))
	}

	turn.State = StateStreaming
	if observer, ok := sink.(StreamObserver); ok {
		observer.ObserveStreaming()
	}
	logger.Info("dispatch streaming", observability.String("provider", adapter.Name()))

	var response strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			return d.fail(ctx, turn, sink, classify(fragment.Err))
		}
		if fragment.Text == "" {
			continue
		}
		if sendErr := sink.Send(ctx, DeltaEvent{Content: fragment.Text}); sendErr != nil {
			// The consumer went away. Abandon the turn without persisting
			// partial output and without writing anything further.
			turn.State = StateFailed
			turn.Err = fmt.Errorf("%w: sink closed: %v", ErrUpstream, sendErr)
			turn.CompletedAt = time.Now()
			logger.Warn("dispatch abandoned, sink closed", observability.Error(sendErr))
			return turn
		}
		response.WriteString(fragment.Text)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		// The adapter closed its channel because the context expired.
		return d.fail(ctx, turn, sink, classify(ctxErr))
	}

	turn.Response = response.String()
	turn.State = StateCompleted
	turn.CompletedAt = time.Now()

	d.persist(ctx, turn)

	logger.Info("dispatch completed",
		observability.Int("response_chars", len(turn.Response)),
		observability.Duration("elapsed", turn.CompletedAt.Sub(turn.StartedAt)),
	)
	return turn
}

// prepare performs the Pending-phase validation and context assembly. No
// upstream connection is opened when it fails.
func (d *Dispatcher) prepare(ctx context.Context, req *DispatchRequest) (ProviderAdapter, *CompletionRequest, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, nil, fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if req.ModelID == "" {
		return nil, nil, fmt.Errorf("%w: model id is required", ErrValidation)
	}

	model, err := d.catalog.ModelByID(req.ModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, req.ModelID)
	}
	if !model.Enabled {
		return nil, nil, fmt.Errorf("%w: %s is disabled", ErrUnsupportedModel, req.ModelID)
	}

	provider, err := d.catalog.ProviderForModel(req.ModelID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no provider for %s", ErrUnsupportedModel, req.ModelID)
	}

	adapter, bound := d.adapters[provider.ClientBinding]
	if !bound {
		return nil, nil, fmt.Errorf("%w: provider %s is not configured", ErrUnsupportedModel, provider.Name)
	}

	history := req.History
	if history == nil {
		history, err = d.history.Fetch(ctx, req.SessionID, req.ModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: history fetch: %v", ErrPersistence, err)
		}
	}

	messages := make([]Message, 0, len(history)+1)
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		messages = append(messages, msg)
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})

	return adapter, &CompletionRequest{
		ModelID:         model.ID,
		MaxOutputTokens: model.MaxOutputTokens,
		Messages:        messages,
	}, nil
}

// fail finalizes the turn, emits the single terminal error event, and logs.
func (d *Dispatcher) fail(ctx context.Context, turn *ConversationTurn, sink DeltaSink, err error) *ConversationTurn {
	turn.State = StateFailed
	turn.Err = err
	turn.CompletedAt = time.Now()

	logger := observability.FromContext(ctx)
	logger.Error("dispatch failed", observability.Error(err))

	if sendErr := sink.Send(ctx, DeltaEvent{Error: err.Error()}); sendErr != nil {
		logger.Warn("failed to deliver error event", observability.Error(sendErr))
	}
	return turn
}

// persist writes exactly one record for the completed turn. Best-effort: a
// store failure is logged and the turn stays Completed.
func (d *Dispatcher) persist(ctx context.Context, turn *ConversationTurn) {
	rec := &TurnRecord{
		ID:             uuid.New().String(),
		SessionID:      turn.SessionID,
		ConversationID: turn.SessionID + ":" + turn.ModelID,
		Prompt:         turn.Prompt,
		ModelName:      turn.ModelID,
		ModelResponse:  turn.Response,
		CreatedAt:      turn.CompletedAt,
	}

	if err := d.history.Append(ctx, rec); err != nil {
		observability.FromContext(ctx).Error("history append failed",
			observability.Error(fmt.Errorf("%w: %v", ErrPersistence, err)))
	}
}

// classify maps adapter and context errors onto the dispatch taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrTimeout) || errors.Is(err, ErrUpstream):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
}
