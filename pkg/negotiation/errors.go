package negotiation

import (
	"errors"
	"fmt"
)

var (
	// A description (or a candidate) arrived when the session can't apply it.
	// Always absorbed by the session, exposed for logging and tests.
	ErrInvalidSignalingState = errors.New("invalid signaling state")
	ErrInvalidDescription    = errors.New("invalid session description")
	ErrSameIdentity          = errors.New("local and remote endpoints share the same identifier")
	ErrSessionClosed         = errors.New("negotiation session is closed")
)

// A failure of the underlying transport during a negotiation step.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Op: op, Err: err}
}
