package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrClosed        = errors.New("signaling channel closed")
	ErrNotRegistered = errors.New("rendezvous did not confirm registration")
	ErrRejected      = errors.New("rendezvous rejected the request")
)

// TransportError is a failure of the websocket itself: dial, read or write.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("signaling %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
