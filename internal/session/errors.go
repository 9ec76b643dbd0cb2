package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState = errors.New("not allowed in this state")
	ErrNoPeer       = errors.New("no peer in the room yet")
	ErrNoMedia      = errors.New("no local media")
	ErrStopped      = errors.New("session stopped")
)

// StateError rejects a command the current state does not accept. The
// session is left unchanged.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed while %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
