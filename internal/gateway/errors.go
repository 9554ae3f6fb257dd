package gateway

import (
	"errors"
	"fmt"
)

// Gateway errors
var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
	ErrConnLimit        = errors.New("connection limit exceeded")
	ErrPanic            = errors.New("panic error")
)

func errUnknown(event string) error {
	return fmt.Errorf("unknown event %q", event)
}

func errMissing(field string) error {
	return fmt.Errorf("missing %s", field)
}
