package peer

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransport = errors.New("no transport open")
	ErrNoRemote    = errors.New("remote peer unknown")
	ErrNoControl   = errors.New("control channel not open")
)

// NegotiationError is a failed offer/answer step. The transport is left on
// its last good description.
type NegotiationError struct {
	Op            string
	Renegotiation bool
	Err           error
}

func (e *NegotiationError) Error() string {
	if e.Renegotiation {
		return fmt.Sprintf("renegotiation: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func negotiationError(op string, reneg bool, err error) *NegotiationError {
	return &NegotiationError{Op: op, Renegotiation: reneg, Err: err}
}
