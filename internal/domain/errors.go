package domain

import "errors"

// Dispatch error taxonomy. Every dispatch-time error wraps exactly one of
// these sentinels and becomes exactly one terminal error event on the wire.
var (
	// ErrValidation indicates missing or invalid request fields; reported
	// before any upstream call is made.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedModel indicates an unknown or disabled model id.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrUpstream indicates a network, auth, or rate-limit failure opening
	// or reading the provider stream.
	ErrUpstream = errors.New("upstream connection failed")

	// ErrTimeout indicates the per-dispatch deadline was exceeded.
	ErrTimeout = errors.New("upstream deadline exceeded")

	// ErrPersistence indicates a history store failure. Append failures are
	// logged and never surfaced to the stream consumer.
	ErrPersistence = errors.New("persistence failed")
)
