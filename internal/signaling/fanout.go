package signaling

import (
	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/internal/models"
)

// BroadcastNewCall addresses a new-call-request to every staff connection
// registered right now. Staff connecting later pick the call up from their
// waiting snapshot instead.
func (h *Hub) BroadcastNewCall(call calls.Call) []Outbound {
	return h.toStaff(models.EventNewCallRequest, call.Summary(), "")
}

// NotifyVisitor addresses an event to the call's visitor, or nothing if the
// visitor has already disconnected.
func (h *Hub) NotifyVisitor(call calls.Call, t models.EventType, payload any) []Outbound {
	if _, err := h.registry.Lookup(call.VisitorID); err != nil {
		return nil
	}
	return h.to(call.VisitorID, t, payload)
}

func (h *Hub) broadcastClaimed(call calls.Call) []Outbound {
	return h.toStaff(models.EventCallClaimed, models.CallClaimedPayload{
		CallID:  call.ID,
		StaffID: call.StaffID,
	}, call.StaffID)
}

func (h *Hub) broadcastWithdrawn(call calls.Call) []Outbound {
	return h.toStaff(models.EventCallWithdrawn, models.CallRefPayload{CallID: call.ID}, "")
}

func (h *Hub) callEnded(to string, call calls.Call, from string) []Outbound {
	return h.to(to, models.EventCallEnded, models.CallEndedPayload{
		CallID: call.ID,
		Status: string(call.Status),
		Reason: call.EndReason,
		From:   from,
	})
}

func (h *Hub) waitingSnapshot(staffID string) []Outbound {
	waiting := h.queue.ListWaiting()
	summaries := make([]models.CallSummary, 0, len(waiting))
	for _, call := range waiting {
		summaries = append(summaries, call.Summary())
	}
	return h.to(staffID, models.EventWaitingCalls, models.WaitingCallsPayload{Calls: summaries})
}

func (h *Hub) toStaff(t models.EventType, payload any, exclude string) []Outbound {
	env, err := models.NewEnvelope(t, payload)
	if err != nil {
		return nil
	}
	staff := h.registry.ListByRole(models.RoleStaff)
	out := make([]Outbound, 0, len(staff))
	for _, conn := range staff {
		if conn.ID == exclude {
			continue
		}
		out = append(out, Outbound{To: conn.ID, Envelope: env})
	}
	return out
}
