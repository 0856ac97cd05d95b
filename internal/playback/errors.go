package playback

import (
	"errors"
	"fmt"
)

var (
	ErrEndOfSequence   = errors.New("end of sequence")
	ErrSessionStopped  = errors.New("session stopped")
	ErrNoActiveSession = errors.New("no active session")
	ErrGuardClosed     = errors.New("resource guard closed")
	ErrUnsupported     = errors.New("resource not supported")
	ErrInvalidState    = errors.New("invalid state for operation")
)

// ConfigurationError is fatal and raised before a session starts.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// FetchError is a recoverable per-item failure. ID is empty when the
// advance call itself failed.
type FetchError struct {
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("fetch next item: %v", e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.ID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ResourceAcquisitionError is non-fatal: the session runs without the resource.
type ResourceAcquisitionError struct {
	Kind ResourceKind
	Err  error
}

func (e *ResourceAcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Kind, e.Err)
}

func (e *ResourceAcquisitionError) Unwrap() error { return e.Err }

// TerminalError aborts a session from Initializing straight to Terminated.
type TerminalError struct {
	Reason string
	Err    error
}

func (e *TerminalError) Error() string {
	if e.Err == nil {
		return "terminal error: " + e.Reason
	}
	return fmt.Sprintf("terminal error: %s: %v", e.Reason, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// errorKind names the taxonomy bucket of err for event payloads.
func errorKind(err error) string {
	var (
		cfgErr   *ConfigurationError
		fetchErr *FetchError
		resErr   *ResourceAcquisitionError
		termErr  *TerminalError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &resErr):
		return "resource"
	case errors.As(err, &termErr):
		return "terminal"
	default:
		return "internal"
	}
}
