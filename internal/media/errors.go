package media

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable      = errors.New("capture not available on this platform")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoDevice         = errors.New("no capture device")
	ErrStopped          = errors.New("stream stopped")
)

// MediaError reports that every capture attempt failed. It is not fatal to a
// call: the session continues without local media.
type MediaError struct {
	Op  string
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}
