package graph

import (
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
)

// MalformedDataError marks data that violated its schema: an oracle answer
// that could not be decoded, or a stored row that cannot be used. It is never
// retried.
type MalformedDataError struct {
	Stage string
	Err   error
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("%s: malformed data: %v", e.Stage, e.Err)
}

func (e *MalformedDataError) Unwrap() error { return e.Err }

// IsMalformedData reports whether err carries a MalformedDataError.
func IsMalformedData(err error) bool {
	var me *MalformedDataError
	return errors.As(err, &me)
}

// classifyOracleErr wraps malformed oracle answers so callers can tell them
// apart from exhausted transient failures.
func classifyOracleErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	if ai.IsMalformed(err) {
		return &MalformedDataError{Stage: stage, Err: err}
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// ItemError records a failure confined to one extracted item or pair.
type ItemError struct {
	Item string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Item, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
