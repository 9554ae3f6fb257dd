// Package carrier is the adapter to the external SMS carrier: outbound submission
// and the vocabulary of its inbound and status webhooks.
package carrier

import (
	"context"
	"errors"
	"fmt"
)

// Carrier errors
var (
	ErrTimeout     = errors.New("carrier submit timed out")
	ErrUnavailable = errors.New("carrier unavailable")
	ErrRateLimited = errors.New("carrier submit rate limited")
)

// Submission is one outbound message
type Submission struct {
	From string
	To   string
	Body string
}

// Receipt is the carrier's acknowledgment of a submission
type Receipt struct {
	ExternalId string
	Status     string
}

// Submitter submits outbound messages to the carrier
type Submitter interface {
	Submit(ctx context.Context, s *Submission) (*Receipt, error)
}

// Error is a rejection reported by the carrier (invalid number, auth failure, quota)
type Error struct {
	HTTPStatus int    `json:"status"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("carrier error: status=%d, code=%d, message=%s", e.HTTPStatus, e.Code, e.Message)
}

// Rejected reports whether the carrier refused the request itself (4xx), as opposed
// to failing to process it
func (e *Error) Rejected() bool {
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500 && e.HTTPStatus != 429
}
