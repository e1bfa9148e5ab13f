package ipc

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed means the niri socket could not be reached:
	// no path configured, no such file, permission denied, or niri is
	// not running.
	ErrConnectionFailed = errors.New("cannot connect to niri")

	// ErrProtocol means niri answered with something this tool does
	// not understand, usually a niri version mismatch.
	ErrProtocol = errors.New("niri protocol error")

	// ErrRequestRejected matches every *RejectedError.
	ErrRequestRejected = errors.New("niri rejected request")
)

// RejectedError is returned when niri answers a request with Err.
type RejectedError struct {
	Request string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("niri rejected %s request: %s", e.Request, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRequestRejected
}
