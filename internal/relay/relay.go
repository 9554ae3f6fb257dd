package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/smsdesk/internal/carrier"
	"github.com/mbeoliero/smsdesk/internal/metrics"
	"github.com/mbeoliero/smsdesk/pkg/constant"
	"github.com/mbeoliero/smsdesk/pkg/errcode"
	"github.com/mbeoliero/smsdesk/pkg/phone"
	"github.com/mbeoliero/smsdesk/pkg/protocol"
)

// Broadcaster delivers events to connected clients
type Broadcaster interface {
	// Broadcast queues an event for every connected client
	Broadcast(ctx context.Context, event string, data interface{})
	// SendTo queues an event for one connection; false if it is not connected
	SendTo(ctx context.Context, connId, event string, data interface{}) bool
}

// Locator resolves the connection registered for an identity
type Locator interface {
	Lookup(identity string) (string, bool)
}

// Options configures a Relay
type Options struct {
	From           string        // Sender number for outbound messages
	DefaultRegion  string        // Region for normalising national-format numbers
	SubmitTimeout  time.Duration // Bound on a single carrier submission
	DeliveryPolicy string        // constant.DeliveryBroadcast or constant.DeliveryTargeted
}

// Relay turns carrier callbacks and client send requests into broadcast events.
// Carrier failures never reach the broadcast channel; they are returned to the
// caller as *errcode.Error.
type Relay struct {
	carrier  carrier.Submitter
	presence Locator
	out      Broadcaster
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
}

// New creates a Relay. The broadcaster is set later with SetBroadcaster, since the
// websocket server that implements it also depends on the relay.
func New(submitter carrier.Submitter, presence Locator, m *metrics.Metrics, opts Options) *Relay {
	if opts.DeliveryPolicy == "" {
		opts.DeliveryPolicy = constant.DeliveryBroadcast
	}
	return &Relay{
		carrier:  submitter,
		presence: presence,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
	}
}

// SetBroadcaster sets the event broadcaster
func (r *Relay) SetBroadcaster(b Broadcaster) {
	r.out = b
}

// HandleInbound relays a message received by the carrier to every client
func (r *Relay) HandleInbound(ctx context.Context, in *InboundMessage) (*protocol.Message, error) {
	if err := in.Validate(); err != nil {
		r.metrics.DroppedPayloads.WithLabelValues("inbound").Inc()
		log.CtxWarn(ctx, "dropping inbound message: external_id=%s, error=%v", in.ExternalId, err)
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}

	msg := &protocol.Message{
		From:       in.From,
		To:         in.To,
		Body:       in.Body,
		Timestamp:  r.now().UnixMilli(),
		Direction:  protocol.DirectionInbound,
		ExternalId: in.ExternalId,
		Status:     protocol.StatusReceived,
	}

	r.metrics.InboundMessages.Inc()
	r.emitMessage(ctx, msg)

	log.CtxInfo(ctx, "inbound message relayed: from=%s, to=%s, external_id=%s", msg.From, msg.To, msg.ExternalId)
	return msg, nil
}

// HandleStatus relays a delivery status change to every client
func (r *Relay) HandleStatus(ctx context.Context, update *StatusUpdate) error {
	if err := update.Validate(); err != nil {
		r.metrics.DroppedPayloads.WithLabelValues("status").Inc()
		log.CtxWarn(ctx, "dropping status update: external_id=%s, error=%v", update.ExternalId, err)
		return errcode.ErrInvalidParam.Wrap(err)
	}

	r.metrics.StatusUpdates.Inc()
	r.broadcast(ctx, protocol.EventStatusUpdate, &protocol.StatusUpdateData{
		ExternalId: update.ExternalId,
		Status:     update.Status,
	})

	log.CtxDebug(ctx, "status update relayed: external_id=%s, status=%s", update.ExternalId, update.Status)
	return nil
}

// Send submits req to the carrier and waits for its answer. On success the
// confirmed message is emitted once; on failure nothing is emitted.
func (r *Relay) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	if err := req.Validate(); err != nil {
		r.metrics.Sends.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}

	to := phone.Normalize(req.To, r.opts.DefaultRegion)
	timestamp := req.Timestamp
	if timestamp <= 0 {
		timestamp = r.now().UnixMilli()
	}

	submitCtx := ctx
	if r.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, r.opts.SubmitTimeout)
		defer cancel()
	}

	receipt, err := r.submit(submitCtx, &carrier.Submission{From: r.opts.From, To: to, Body: req.Body})
	if err != nil {
		r.metrics.Sends.WithLabelValues(metrics.ResultFailure).Inc()
		e := classify(err)
		log.CtxWarn(ctx, "send failed: to=%s, code=%d, error=%v", to, e.Code, err)
		return nil, e
	}

	msg := &protocol.Message{
		From:       r.opts.From,
		To:         to,
		Body:       req.Body,
		Timestamp:  timestamp,
		Direction:  protocol.DirectionOutbound,
		ExternalId: receipt.ExternalId,
		Status:     receipt.Status,
	}

	r.metrics.Sends.WithLabelValues(metrics.ResultSuccess).Inc()
	r.emitMessage(ctx, msg)

	log.CtxInfo(ctx, "outbound message sent: to=%s, external_id=%s, status=%s", to, receipt.ExternalId, receipt.Status)
	return &SendResult{
		ExternalId: receipt.ExternalId,
		Status:     receipt.Status,
		Message:    *msg,
	}, nil
}

// submit calls the carrier, turning a panic in the adapter into an error
func (r *Relay) submit(ctx context.Context, s *carrier.Submission) (receipt *carrier.Receipt, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.CtxError(ctx, "carrier submit panic: to=%s, error=%v", s.To, p)
			receipt, err = nil, fmt.Errorf("%w: panic: %v", carrier.ErrUnavailable, p)
		}
	}()

	receipt, err = r.carrier.Submit(ctx, s)
	if err == nil && (receipt == nil || receipt.ExternalId == "") {
		err = fmt.Errorf("%w: empty receipt", carrier.ErrUnavailable)
	}
	return receipt, err
}

// emitMessage delivers new_message according to the delivery policy
func (r *Relay) emitMessage(ctx context.Context, msg *protocol.Message) {
	if r.opts.DeliveryPolicy == constant.DeliveryTargeted && r.presence != nil && r.out != nil {
		if connId, ok := r.presence.Lookup(msg.Identity()); ok && r.out.SendTo(ctx, connId, protocol.EventNewMessage, msg) {
			r.metrics.Broadcasts.WithLabelValues(protocol.EventNewMessage).Inc()
			return
		}
	}
	r.broadcast(ctx, protocol.EventNewMessage, msg)
}

// broadcast sends event to every client
func (r *Relay) broadcast(ctx context.Context, event string, data interface{}) {
	if r.out == nil {
		log.CtxWarn(ctx, "no broadcaster, event dropped: event=%s", event)
		return
	}
	r.out.Broadcast(ctx, event, data)
	r.metrics.Broadcasts.WithLabelValues(event).Inc()
}

// classify maps a carrier failure to the error returned to the requester
func classify(err error) *errcode.Error {
	var carrierErr *carrier.Error
	switch {
	case errors.Is(err, carrier.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return errcode.ErrCarrierTimeout
	case errors.Is(err, carrier.ErrRateLimited):
		return errcode.ErrCarrierRateLimited
	case errors.Is(err, carrier.ErrUnavailable):
		return errcode.ErrCarrierUnavailable
	case errors.As(err, &carrierErr):
		if carrierErr.HTTPStatus == http.StatusTooManyRequests {
			return errcode.ErrCarrierRateLimited
		}
		if carrierErr.Rejected() {
			return errcode.ErrCarrierRejected.Wrap(fmt.Errorf("%d %s", carrierErr.Code, carrierErr.Message))
		}
		return errcode.ErrCarrierUnavailable.Wrap(fmt.Errorf("%d %s", carrierErr.Code, carrierErr.Message))
	default:
		return errcode.ErrCarrierUnavailable.Wrap(err)
	}
}
