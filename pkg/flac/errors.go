// ABOUTME: Error taxonomy for the streaming FLAC API
// ABOUTME: Distinct types per failure class so callers can branch on errors.As
package flac

import "fmt"

// InitError reports that an encoder or decoder could not be constructed,
// usually because the configuration was rejected.
type InitError struct {
	Reason string
}

func (e *InitError) Error() string {
	return "flac: init failed: " + e.Reason
}

// ProcessError reports a fatal failure while feeding or pulling data on
// an initialized stream. The instance is unusable afterwards.
type ProcessError struct {
	Reason string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flac: process failed: %s: %v", e.Reason, e.Err)
	}
	return "flac: process failed: " + e.Reason
}

func (e *ProcessError) Unwrap() error { return e.Err }

// IOCallbackError reports that the underlying reader, writer or seeker
// failed while the codec was driving it. Op names the operation that
// failed ("read", "write", "seek", "tell").
type IOCallbackError struct {
	Op  string
	Err error
}

func (e *IOCallbackError) Error() string {
	return fmt.Sprintf("flac: %s failed: %v", e.Op, e.Err)
}

func (e *IOCallbackError) Unwrap() error { return e.Err }

// SeekError reports a failed decoder seek. The decoder remains usable:
// it is flushed back to a consistent state before the error is returned.
type SeekError struct {
	Reason string
}

func (e *SeekError) Error() string {
	return "flac: seek failed: " + e.Reason
}

// DecodeError reports that a one-shot decode could not produce a
// complete, verified result.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "flac: decode failed: " + e.Reason
}
