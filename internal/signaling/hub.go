package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/internal/models"
	"github.com/mossy-p/reception-signaling/internal/registry"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/logger"
)

// visitorErrorMessage is all a visitor learns about a server-side failure.
const visitorErrorMessage = "Failed to start or continue the conversation. Please try again."

// Outbound is a message addressed to a single connection.
type Outbound struct {
	To       string
	Envelope models.Envelope
}

type handlerFunc func(ctx context.Context, conn registry.Connection, payload json.RawMessage) ([]Outbound, error)

// Hub routes realtime events between visitors and staff. Event handlers only
// compute outbound messages; delivery happens in one place.
//
// Every queue mutation is paired with the delivery of its messages under
// deliverMu, so a peer never sees the outcome of a later transition before
// the outcome of an earlier one.
type Hub struct {
	registry *registry.Registry
	queue    *calls.Queue
	handlers map[models.EventType]handlerFunc
	log      *zap.Logger

	deliverMu     sync.Mutex
	afterDispatch func()
}

// NewHub wires the hub to the registry and queue and installs the disconnect
// cleanup hook on the registry.
func NewHub(reg *registry.Registry, queue *calls.Queue) *Hub {
	h := &Hub{
		registry: reg,
		queue:    queue,
		log:      logger.WithModule("signaling"),
	}
	h.handlers = map[models.EventType]handlerFunc{
		models.EventStartConversation: h.handleStartConversation,
		models.EventAcceptCall:        h.handleAcceptCall,
		models.EventCallDecision:      h.handleCallDecision,
		models.EventListWaiting:       h.handleListWaiting,
		models.EventOffer:             h.handleSignal(models.EventOffer),
		models.EventAnswer:            h.handleSignal(models.EventAnswer),
		models.EventCandidate:         h.handleSignal(models.EventCandidate),
		models.EventEndCall:           h.handleEndCall,
	}
	reg.OnUnregister(h.onUnregister)
	return h
}

// Connect registers a connection. Staff immediately receive the current
// waiting list so calls broadcast before they connected are not missed.
func (h *Hub) Connect(id string, role models.Role, identity models.Identity, outbox registry.Outbox) (registry.Connection, error) {
	conn, err := h.registry.Register(id, role, identity, outbox)
	if err != nil {
		return registry.Connection{}, err
	}

	h.log.Info("connection opened",
		zap.String("conn_id", id),
		zap.String("role", string(role)),
		zap.String("name", identity.Name),
	)

	if role == models.RoleStaff {
		h.deliverMu.Lock()
		h.deliver(h.waitingSnapshot(id))
		h.deliverMu.Unlock()
	}
	return conn, nil
}

// Disconnect unregisters a connection; call cleanup runs through the registry hook.
// It must not be called while deliverMu is held.
func (h *Hub) Disconnect(id string) {
	if _, err := h.registry.Unregister(id); err != nil {
		h.log.Debug("disconnect for unknown connection", zap.String("conn_id", id))
		return
	}
	h.log.Info("connection closed", zap.String("conn_id", id))
}

// Handle decodes one inbound frame from connID, dispatches it and delivers
// the results. Recoverable errors go back to the sender as an error event.
func (h *Hub) Handle(ctx context.Context, connID string, frame []byte) {
	conn, err := h.registry.Lookup(connID)
	if err != nil {
		h.log.Warn("frame from unregistered connection", zap.String("conn_id", connID))
		return
	}

	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		h.deliver(h.errorFor(conn, apperrors.ErrInvalidRequest.WithMessage("malformed message")))
		return
	}

	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	out, err := h.Dispatch(ctx, conn, env)
	if h.afterDispatch != nil {
		h.afterDispatch()
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrTargetUnreachable) {
			// Best effort: the sender is not told about dropped signaling.
			h.log.Debug("signaling target unreachable", zap.String("conn_id", connID), zap.Error(err))
		} else {
			h.log.Warn("event rejected",
				zap.String("conn_id", connID),
				zap.String("event", string(env.Type)),
				zap.String("code", apperrors.FromError(err).Code),
				zap.Error(err),
			)
			out = append(out, h.errorFor(conn, err)...)
		}
	}
	h.deliver(out)
}

// Dispatch runs the handler registered for env.Type and returns the messages
// it produced without delivering them.
func (h *Hub) Dispatch(ctx context.Context, conn registry.Connection, env models.Envelope) ([]Outbound, error) {
	handler, ok := h.handlers[env.Type]
	if !ok {
		return nil, apperrors.ErrInvalidRequest.WithMessage("unsupported event %q", env.Type)
	}
	return handler(ctx, conn, env.Payload)
}

// ExpireWaiting rejects calls waiting longer than maxWait and tells their visitors.
func (h *Hub) ExpireWaiting(ctx context.Context, maxWait time.Duration) int {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	expired := h.queue.ExpireWaiting(ctx, maxWait)
	var out []Outbound
	for _, call := range expired {
		out = append(out, h.callEnded(call.VisitorID, call, "")...)
		out = append(out, h.broadcastWithdrawn(call)...)
	}
	h.deliver(out)
	return len(expired)
}

func (h *Hub) onUnregister(conn registry.Connection) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	res, ok := h.queue.Abandon(context.Background(), conn.ID)
	if !ok {
		return
	}

	var out []Outbound
	switch {
	case res.Peer != "":
		out = h.callEnded(res.Peer, res.Call, conn.ID)
	case conn.Role == models.RoleVisitor:
		out = h.broadcastWithdrawn(res.Call)
	}
	h.deliver(out)
}

// deliver encodes and hands each message to its target's outbox. Messages for
// connections that are gone are dropped.
func (h *Hub) deliver(out []Outbound) int {
	delivered := 0
	for _, msg := range out {
		if err := h.send(msg); err != nil {
			h.log.Debug("dropping outbound message",
				zap.String("to", msg.To),
				zap.String("event", string(msg.Envelope.Type)),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) send(msg Outbound) error {
	target, err := h.registry.Lookup(msg.To)
	if err != nil {
		return apperrors.ErrTargetUnreachable.WithInternal(err)
	}
	data, err := encodeJSON(msg.Envelope)
	if err != nil {
		return apperrors.ErrInternal.WithInternal(err)
	}
	if !target.Deliver(data) {
		return apperrors.ErrTargetUnreachable.WithMessage("outbox for %s is full", msg.To)
	}
	return nil
}

// errorFor renders err for conn. Visitors get a generic message, staff the specific reason.
func (h *Hub) errorFor(conn registry.Connection, err error) []Outbound {
	appErr := apperrors.FromError(err)
	payload := models.ErrorPayload{Code: appErr.Code, Message: appErr.Message}
	if conn.Role == models.RoleVisitor {
		payload.Message = visitorErrorMessage
	}
	return h.to(conn.ID, models.EventError, payload)
}

func (h *Hub) to(connID string, t models.EventType, payload any) []Outbound {
	env, err := models.NewEnvelope(t, payload)
	if err != nil {
		h.log.Error("failed to encode event", zap.String("event", string(t)), zap.Error(err))
		return nil
	}
	return []Outbound{{To: connID, Envelope: env}}
}
