package domain

import "context"

// ProviderAdapter translates a provider-agnostic completion request into one
// native upstream streaming call.
type ProviderAdapter interface {
	// StreamCompletion opens exactly one upstream connection and returns a
	// finite, forward-only sequence of text fragments. The channel is closed
	// when the upstream sequence ends; a fragment with a non-nil Err is the
	// single failure signal and is always the last element. The sequence is
	// not restartable. Connection-open failures are returned synchronously.
	StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan Fragment, error)

	// Name returns the provider identifier.
	Name() string
}

// ModelCatalog resolves model identifiers against the static provider
// directory. Pure, synchronous, safe under any number of concurrent
// dispatches.
type ModelCatalog interface {
	// AllModels returns all enabled models. Disabled models are never listed.
	AllModels() []ModelDescriptor

	// ModelByID resolves a model by exact id. Disabled models still resolve;
	// dispatch-time validation decides whether to reject them.
	ModelByID(id string) (ModelDescriptor, error)

	// ProviderForModel finds the provider whose model list contains the id.
	ProviderForModel(id string) (ProviderDescriptor, error)

	// Providers returns the full static directory, disabled models included.
	Providers() []ProviderDescriptor
}

// HistoryStore is the append-only per-session, per-model message log.
type HistoryStore interface {
	// Append stores one completed turn. Failures are caught and logged by
	// the caller, never propagated to the stream consumer.
	Append(ctx context.Context, rec *TurnRecord) error

	// Fetch returns the session's messages for one model in chronological
	// order with no gaps. An empty result is valid (first turn).
	Fetch(ctx context.Context, sessionID, modelID string) ([]Message, error)

	// Trim discards all turns at or after keepTurns, retaining the first
	// keepTurns turns. Used when an earlier prompt is edited and resubmitted.
	Trim(ctx context.Context, sessionID, modelID string, keepTurns int) error
}

// StreamObserver is implemented by sinks that track the dispatch lifecycle.
// The dispatcher calls ObserveStreaming exactly once, after the upstream
// connection is opened and before the first delta is relayed. Validation
// failures never reach it.
type StreamObserver interface {
	ObserveStreaming()
}

// DeltaSink receives normalized wire events for one dispatch. Send must
// complete before the dispatcher pulls the next upstream fragment, so a slow
// consumer naturally throttles upstream consumption.
type DeltaSink interface {
	Send(ctx context.Context, event DeltaEvent) error
}

// DeltaSinkFunc adapts a function to the DeltaSink interface.
type DeltaSinkFunc func(ctx context.Context, event DeltaEvent) error

// Send calls f.
func (f DeltaSinkFunc) Send(ctx context.Context, event DeltaEvent) error {
	return f(ctx, event)
}
