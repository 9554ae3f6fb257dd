package carrier

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/smsdesk/pkg/idgen"
	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// Loopback acknowledges every submission locally without contacting a carrier.
// It is the development driver: ids come from the generator, status is queued.
type Loopback struct {
	ids idgen.IDGenerator
}

// NewLoopback creates a Loopback carrier
func NewLoopback(ids idgen.IDGenerator) *Loopback {
	return &Loopback{ids: ids}
}

// Submit acknowledges s
func (l *Loopback) Submit(ctx context.Context, s *Submission) (*Receipt, error) {
	id, err := l.ids.NextID()
	if err != nil {
		return nil, err
	}

	log.CtxDebug(ctx, "loopback submission: to=%s, external_id=%s", s.To, id)
	return &Receipt{ExternalId: id, Status: protocol.StatusQueued}, nil
}
