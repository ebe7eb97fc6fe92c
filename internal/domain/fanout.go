package domain

import (
	"context"
	"strings"
	"sync"

	"github.com/davidbz/polyphony/internal/observability"
)

// SinkFactory returns the external sink for one model's slot. A nil factory
// (or a nil sink for a model) means the slot only accumulates internally.
type SinkFactory func(modelID string) DeltaSink

// FanOut issues one dispatcher invocation per selected model concurrently.
// Slots are independent: one model finishing, erroring, or streaming slowly
// has no effect on sibling slots.
type FanOut struct {
	dispatcher *Dispatcher
}

// NewFanOut creates a new fan-out client (DI constructor).
func NewFanOut(dispatcher *Dispatcher) *FanOut {
	return &FanOut{dispatcher: dispatcher}
}

// Submit starts one dispatch per model id concurrently and returns the join
// handle immediately. All upstream connections are opened essentially
// simultaneously, never one-after-another. Duplicate model ids are collapsed
// so each (session, model) pair has at most one in-flight dispatch. A model's
// entry in histories, when present, is replayed as the caller's own copy of
// the conversation; absent entries are reconstructed from the store.
func (f *FanOut) Submit(
	ctx context.Context,
	prompt, sessionID string,
	modelIDs []string,
	histories map[string][]Message,
	sinks SinkFactory,
) *Batch {
	batch := &Batch{slots: make(map[string]*Slot, len(modelIDs))}

	for _, modelID := range modelIDs {
		if _, dup := batch.slots[modelID]; dup {
			continue
		}

		slot := &Slot{
			modelID: modelID,
			state:   StatePending,
			settled: make(chan struct{}),
		}
		if sinks != nil {
			slot.forward = sinks(modelID)
		}

		slotCtx, cancel := context.WithCancel(ctx)
		slot.cancel = cancel
		batch.slots[modelID] = slot
		batch.order = append(batch.order, modelID)

		batch.wg.Add(1)
		go func(slot *Slot, slotCtx context.Context) {
			defer batch.wg.Done()
			defer cancel()

			turn := f.dispatcher.Dispatch(slotCtx, &DispatchRequest{
				Prompt:    prompt,
				SessionID: sessionID,
				ModelID:   slot.modelID,
				History:   histories[slot.modelID],
			}, slot)
			slot.finish(turn)
		}(slot, slotCtx)
	}

	return batch
}

// Resubmit replaces an earlier turn: each selected model's history is trimmed
// to the turns strictly before the edited one, so the superseded turn's
// record is discarded rather than duplicated, then the fan-out re-runs for
// that turn only.
func (f *FanOut) Resubmit(
	ctx context.Context,
	prompt, sessionID string,
	modelIDs []string,
	editedTurn int,
	histories map[string][]Message,
	sinks SinkFactory,
) *Batch {
	logger := observability.FromContext(ctx)
	for _, modelID := range modelIDs {
		if err := f.dispatcher.history.Trim(ctx, sessionID, modelID, editedTurn); err != nil {
			logger.Error("history trim failed",
				observability.String("model", modelID),
				observability.Error(err))
		}
	}
	return f.Submit(ctx, prompt, sessionID, modelIDs, histories, sinks)
}

// Batch is the join handle over one submission's independent dispatches.
type Batch struct {
	slots map[string]*Slot
	order []string
	wg    sync.WaitGroup
}

// Wait blocks until every slot has reached a terminal state.
func (b *Batch) Wait() {
	b.wg.Wait()
}

// Loading reports whether any slot is still in flight. It becomes false only
// when all slots have reached Completed or Failed.
func (b *Batch) Loading() bool {
	for _, slot := range b.slots {
		if !slot.State().Terminal() {
			return true
		}
	}
	return false
}

// Slot returns the slot for one model id.
func (b *Batch) Slot(modelID string) (*Slot, bool) {
	slot, ok := b.slots[modelID]
	return slot, ok
}

// ModelIDs returns the slot model ids in submission order.
func (b *Batch) ModelIDs() []string {
	return b.order
}

// Cancel terminates one model's in-flight dispatch promptly, discarding its
// partial output. Sibling dispatches are unaffected.
func (b *Batch) Cancel(modelID string) {
	if slot, ok := b.slots[modelID]; ok {
		slot.cancel()
	}
}

// Slot tracks one model's independent stream state within a batch. It
// implements DeltaSink so the dispatcher's relayed events update only this
// model's accumulation before being forwarded.
type Slot struct {
	modelID string
	forward DeltaSink
	cancel  context.CancelFunc
	settled chan struct{}

	mu       sync.Mutex
	state    DispatchState
	response strings.Builder
	errMsg   string
}

// ModelID returns the model this slot belongs to.
func (s *Slot) ModelID() string {
	return s.modelID
}

// Send implements DeltaSink.
func (s *Slot) Send(ctx context.Context, event DeltaEvent) error {
	s.mu.Lock()
	if event.Error != "" {
		s.errMsg = event.Error
	} else {
		s.response.WriteString(event.Content)
	}
	s.mu.Unlock()

	if s.forward != nil {
		return s.forward.Send(ctx, event)
	}
	return nil
}

// ObserveStreaming implements StreamObserver. The dispatcher calls it once
// the upstream connection is open, so a slot that fails validation never
// reports Streaming.
func (s *Slot) ObserveStreaming() {
	s.setState(StateStreaming)
}

// State returns the slot's current lifecycle state.
func (s *Slot) State() DispatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Settled returns a channel that is closed when the slot reaches a terminal
// state, letting a consumer learn of one slot finishing while siblings are
// still streaming.
func (s *Slot) Settled() <-chan struct{} {
	return s.settled
}

// Response returns the text accumulated so far.
func (s *Slot) Response() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response.String()
}

// ErrMessage returns the slot's inline error string, if any.
func (s *Slot) ErrMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Slot) setState(state DispatchState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Slot) finish(turn *ConversationTurn) {
	s.mu.Lock()
	s.state = turn.State
	s.mu.Unlock()
	close(s.settled)
}
