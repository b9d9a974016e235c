package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransientError marks an oracle failure that may succeed on retry:
// timeouts, rate limits and server-side errors.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai %s: transient (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ai %s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError means the oracle answered but the structured result
// could not be decoded or failed validation. Retrying the same prompt is
// not expected to help.
type MalformedResponseError struct {
	Name string
	Raw  string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("ai %s: malformed response: %v", e.Name, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsMalformed reports whether err carries a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// RetryableStatus reports whether an HTTP status from a provider is transient.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

// Classify wraps provider errors. Status codes are supplied by the adapter
// when the SDK exposes one; network timeouts are transient. The caller's own
// cancellation is passed through untouched.
func Classify(op string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if statusCode != 0 {
		if RetryableStatus(statusCode) {
			return &TransientError{Op: op, StatusCode: statusCode, Err: err}
		}
		return fmt.Errorf("ai %s: status %d: %w", op, statusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("ai %s: %w", op, err)
}
