package calls

import (
	"time"

	"github.com/mossy-p/reception-signaling/internal/models"
)

// Status is the lifecycle state of a call.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Decision is the outcome staff records when closing a call.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

// Reasons recorded when a call is rejected without a decision, plus
// ReasonHangUp which only travels in call-ended events.
const (
	ReasonVisitorDisconnected = "visitor-disconnected"
	ReasonStaffDisconnected   = "staff-disconnected"
	ReasonExpired             = "expired"
	ReasonHangUp              = "hang-up"
)

// Call is a snapshot of one visitor's request for staff attention.
type Call struct {
	ID          string `json:"id"`
	Version     uint64 `json:"version"`
	Purpose     string `json:"purpose"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`

	VisitorID string          `json:"visitorId"`
	Visitor   models.Identity `json:"visitor"`

	StaffID string          `json:"staffId,omitempty"`
	Staff   models.Identity `json:"staff,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	Decision  Decision      `json:"decision,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	EndReason string        `json:"endReason,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Summary renders the call the way staff dashboards list it.
func (c Call) Summary() models.CallSummary {
	return models.CallSummary{
		CallID:      c.ID,
		ClientName:  c.Visitor.DisplayName(),
		Purpose:     c.Purpose,
		Description: c.Description,
		Timestamp:   c.CreatedAt,
	}
}

// Peer returns the other party's connection id for connID, if connID is bound to the call.
func (c Call) Peer(connID string) (string, bool) {
	switch connID {
	case c.VisitorID:
		return c.StaffID, c.StaffID != ""
	case c.StaffID:
		return c.VisitorID, c.StaffID != ""
	}
	return "", false
}
