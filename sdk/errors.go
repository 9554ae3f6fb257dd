package sdk

import (
	"errors"
	"fmt"

	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Is matches errors with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func fromInfo(info *protocol.ErrorInfo) *Error {
	if info == nil {
		return ErrInternalServer
	}
	return &Error{Code: info.Code, Msg: info.Message}
}

// Common error codes
const (
	CodeSuccess = 0

	// Common errors (1xxx)
	CodeInvalidParam    = 1001
	CodeInternalServer  = 1002
	CodeNotFound        = 1005
	CodeTooManyRequests = 1006

	// Carrier errors (41xx)
	CodeCarrierRejected    = 4101
	CodeCarrierTimeout     = 4102
	CodeCarrierUnavailable = 4103
	CodeCarrierRateLimited = 4104

	// WebSocket errors (5xxx)
	CodeConnOverLimit   = 5001
	CodeConnClosed      = 5002
	CodeInvalidProtocol = 5003
	CodeUnknownEvent    = 5004
)

// Predefined errors
var (
	ErrInvalidParam       = NewError(CodeInvalidParam, "invalid parameter")
	ErrInternalServer     = NewError(CodeInternalServer, "internal server error")
	ErrCarrierRejected    = NewError(CodeCarrierRejected, "carrier rejected message")
	ErrCarrierTimeout     = NewError(CodeCarrierTimeout, "carrier timeout")
	ErrCarrierUnavailable = NewError(CodeCarrierUnavailable, "carrier unavailable")
	ErrCarrierRateLimited = NewError(CodeCarrierRateLimited, "carrier rate limited")
	ErrConnClosed         = NewError(CodeConnClosed, "connection closed")
)

// ErrNotConnected is returned by realtime calls before Connect
var ErrNotConnected = errors.New("sdk: not connected")
