package model

import "errors"

var (
	// ErrTimeout is returned when an attempt exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrConnection is returned for DNS, refused, reset or unreachable failures.
	ErrConnection = errors.New("connection error")
	// ErrProviderLogical is returned when the provider answered with a non-success status.
	ErrProviderLogical = errors.New("provider logical error")
	// ErrMalformedEnvelope is returned when the provider envelope cannot be parsed.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrMissingRequiredField marks a single entity that lacks an id.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrStoreWrite wraps failures of the snapshot store.
	ErrStoreWrite = errors.New("store write error")
)
