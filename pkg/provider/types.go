package provider

import (
	"context"
	"time"
)

// ProviderID identifies a usage source (e.g., "claude")
type ProviderID string

// Status is the tri-state outcome of a fetch attempt.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusError        Status = "error"
	StatusNotAttempted Status = "not_attempted"
)

// PollResult is the outcome of a single fetch attempt
type PollResult struct {
	ProviderID ProviderID
	Status     Status
	Error      error
	Timestamp  time.Time

	// Raw usage payload, set on success
	Payload []byte
}

// Success builds a PollResult carrying a live payload.
func Success(id ProviderID, payload []byte) PollResult {
	return PollResult{ProviderID: id, Status: StatusSuccess, Payload: payload, Timestamp: time.Now()}
}

// Failure builds a PollResult for an attempt that did not produce data.
func Failure(id ProviderID, err error) PollResult {
	return PollResult{ProviderID: id, Status: StatusError, Error: err, Timestamp: time.Now()}
}

// NotAttempted builds a PollResult for a fetch whose preconditions were not met.
func NotAttempted(id ProviderID, reason error) PollResult {
	return PollResult{ProviderID: id, Status: StatusNotAttempted, Error: reason, Timestamp: time.Now()}
}

// Message returns the user facing description of a failed or skipped attempt.
func (r PollResult) Message() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// Provider defines the interface for usage sources
type Provider interface {
	// ID returns the unique identifier for this provider
	ID() ProviderID

	// Poll fetches the current usage. Failures are reported in the result,
	// never as a panic or a separate error.
	Poll(ctx context.Context) PollResult
}
