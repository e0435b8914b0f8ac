package signaling

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/internal/models"
	"github.com/mossy-p/reception-signaling/internal/registry"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/validator"
)

func decode(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return apperrors.ErrInvalidRequest.WithMessage("malformed payload")
	}
	if err := validator.ValidateStruct(dst); err != nil {
		return apperrors.ErrInvalidRequest.WithMessage("%s", err.Error()).WithInternal(err)
	}
	return nil
}

func requireRole(conn registry.Connection, role models.Role) error {
	if conn.Role != role {
		return apperrors.ErrInvalidRequest.WithMessage("only %s connections may send this event", role)
	}
	return nil
}

func (h *Hub) handleStartConversation(ctx context.Context, conn registry.Connection, payload json.RawMessage) ([]Outbound, error) {
	if err := requireRole(conn, models.RoleVisitor); err != nil {
		return nil, err
	}
	var req models.StartConversationPayload
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	identity := conn.Identity
	if req.Name != "" {
		identity.Name = req.Name
	}
	if req.Email != "" {
		identity.Email = req.Email
	}
	if err := h.registry.Identify(conn.ID, identity); err != nil {
		return nil, apperrors.ErrUnknownConnection.WithInternal(err)
	}

	// The queue snapshots the visitor identity from the registry, so it is
	// applied first and put back if the call is refused.
	call, err := h.queue.CreateCall(ctx, conn.ID, req.Purpose, req.Description)
	if err != nil {
		if restoreErr := h.registry.Identify(conn.ID, conn.Identity); restoreErr != nil {
			h.log.Debug("restoring identity failed", zap.String("conn_id", conn.ID), zap.Error(restoreErr))
		}
		return nil, err
	}

	out := h.to(conn.ID, models.EventConversationStarted, models.ConversationStartedPayload{
		SessionID: conn.ID,
		CallID:    call.ID,
		Purpose:   call.Purpose,
	})
	return append(out, h.BroadcastNewCall(call)...), nil
}

func (h *Hub) handleAcceptCall(ctx context.Context, conn registry.Connection, payload json.RawMessage) ([]Outbound, error) {
	if err := requireRole(conn, models.RoleStaff); err != nil {
		return nil, err
	}
	var req models.CallRefPayload
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	call, err := h.queue.AcceptCall(ctx, req.CallID, conn.ID)
	if err != nil {
		return nil, err
	}

	out := h.to(conn.ID, models.EventCallStarted, models.CallStartedPayload{
		CallID:     call.ID,
		ClientID:   call.VisitorID,
		ClientName: call.Visitor.DisplayName(),
	})
	out = append(out, h.NotifyVisitor(call, models.EventCallAccepted, models.CallAcceptedPayload{
		CallID:          call.ID,
		StaffID:         call.StaffID,
		StaffName:       call.Staff.Name,
		StaffDepartment: call.Staff.Department,
	})...)
	return append(out, h.broadcastClaimed(call)...), nil
}

func (h *Hub) handleCallDecision(ctx context.Context, conn registry.Connection, payload json.RawMessage) ([]Outbound, error) {
	if err := requireRole(conn, models.RoleStaff); err != nil {
		return nil, err
	}
	var req models.CallDecisionPayload
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	call, err := h.queue.RecordDecision(ctx, req.CallID, conn.ID, calls.Decision(req.Decision), req.Notes)
	if err != nil {
		return nil, err
	}

	out := h.to(conn.ID, models.EventDecisionSaved, models.DecisionSavedPayload{
		CallID:   call.ID,
		Decision: string(call.Decision),
	})
	return append(out, h.NotifyVisitor(call, models.EventCallCompleted, models.CallCompletedPayload{
		CallID:          call.ID,
		Decision:        string(call.Decision),
		Notes:           call.Notes,
		DurationSeconds: call.Duration.Seconds(),
	})...), nil
}

func (h *Hub) handleListWaiting(_ context.Context, conn registry.Connection, _ json.RawMessage) ([]Outbound, error) {
	if err := requireRole(conn, models.RoleStaff); err != nil {
		return nil, err
	}
	return h.waitingSnapshot(conn.ID), nil
}

func (h *Hub) handleSignal(kind models.EventType) handlerFunc {
	return func(_ context.Context, conn registry.Connection, payload json.RawMessage) ([]Outbound, error) {
		msg, err := parseSignal(kind, conn.ID, payload)
		if err != nil {
			return nil, err
		}
		return h.Relay(msg)
	}
}

// handleEndCall tells the other party that media should be torn down. The
// call stays in progress until staff records a decision.
func (h *Hub) handleEndCall(_ context.Context, conn registry.Connection, payload json.RawMessage) ([]Outbound, error) {
	var req models.CallRefPayload
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	call, ok := h.queue.ActiveCall(conn.ID)
	if !ok || call.ID != req.CallID {
		return nil, apperrors.ErrInvalidState.WithMessage("call %s is not active for this connection", req.CallID)
	}
	peer, bound := call.Peer(conn.ID)
	if call.Status != calls.StatusInProgress || !bound {
		return nil, apperrors.ErrInvalidState.WithMessage("call %s has not started", req.CallID)
	}
	return h.to(peer, models.EventCallEnded, models.CallEndedPayload{
		CallID: call.ID,
		Status: string(call.Status),
		Reason: calls.ReasonHangUp,
		From:   conn.ID,
	}), nil
}
