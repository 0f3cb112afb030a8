package flight

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the ingestion pipeline. All of them are recoverable at
// file granularity: none should terminate the host process.
var (
	// ErrIncompatibleFile means the file matched no known log format.
	// Permanently rejected, no retry path.
	ErrIncompatibleFile = errors.New("file is not a supported flight log format")

	// ErrNoTelemetryData means the parse succeeded structurally but zero
	// points survived validation.
	ErrNoTelemetryData = errors.New("no telemetry data found in flight log")

	// ErrEncryptionKeyRequired means the log uses an encrypted format
	// version and no decryption keychain is available. The user supplies a
	// key and retries the same file.
	ErrEncryptionKeyRequired = errors.New("flight log is encrypted and requires a decryption key")

	// ErrDecodeTimeout means the binary decoder exceeded its wall-clock
	// budget. Never auto-retried.
	ErrDecodeTimeout = errors.New("flight log decoding timed out")

	// ErrDecodeFailed means the binary decoder terminated abnormally. The
	// file is reported as incompatible with the decoder.
	ErrDecodeFailed = errors.New("flight log decoding failed")
)

// AlreadyImportedError signals that the file's content hash matches an
// existing flight. It is a no-op to the user, not a failure; DisplayName
// identifies the matching flight for a friendly message.
type AlreadyImportedError struct {
	DisplayName string
}

func (e *AlreadyImportedError) Error() string {
	return fmt.Sprintf("file already imported as %q", e.DisplayName)
}

// TimeoutError wraps ErrDecodeTimeout with the elapsed duration, so a user
// can tell a slow machine from a pathological file.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("flight log decoding timed out after %s", e.Elapsed)
}

func (e *TimeoutError) Unwrap() error { return ErrDecodeTimeout }

// DecodeError wraps ErrDecodeFailed with the diagnostic captured at the
// decode boundary.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("flight log decoding failed: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrDecodeFailed }
