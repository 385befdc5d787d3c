package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by admission and cancellation.
var (
	// ErrRequesterBusy rejects a second concurrent request from a
	// requester that already owns an active run.
	ErrRequesterBusy = errors.New("requester already has an active run")

	// ErrBanned rejects requests from banned requesters.
	ErrBanned = errors.New("requester is banned")

	// ErrCancelled marks a run aborted by requester action.
	ErrCancelled = errors.New("run cancelled")
)

// ValidationError reports structurally invalid input. Never retried,
// never forwarded to the operator.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// TransientFetchError wraps a network/timeout class failure that the
// fetch stage may retry up to its bound.
type TransientFetchError struct {
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ToolError reports a nonzero exit from an external tool. Not retried at
// the stage level. Stage records which pipeline stage invoked the tool so
// operator events attribute the failure correctly.
type ToolError struct {
	Tool   string
	Stage  RunState
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, e.Output)
	}
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// TimeoutError reports an external process that exceeded its wall-clock
// budget and was killed.
type TimeoutError struct {
	Tool   string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Tool, e.Budget)
}

// IntegrityError reports a tool that claimed success while its output is
// missing or empty.
type IntegrityError struct {
	Path string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("output artifact missing or empty: %s", e.Path)
}

// DeliveryError reports a failed transfer or upload.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// CapacityError rejects artifacts over the absolute size ceiling before
// any transfer is attempted.
type CapacityError struct {
	Size  int64
	Limit int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("artifact size %d exceeds ceiling %d", e.Size, e.Limit)
}
