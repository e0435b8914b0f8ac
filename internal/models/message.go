package models

import (
	"encoding/json"
	"time"
)

// EventType names a realtime event exchanged over the websocket channel.
type EventType string

const (
	// visitor -> server
	EventStartConversation EventType = "start-conversation"

	// staff -> server
	EventAcceptCall   EventType = "accept-call"
	EventCallDecision EventType = "call-decision"
	EventListWaiting  EventType = "list-waiting"

	// either -> server
	EventOffer     EventType = "offer"
	EventAnswer    EventType = "answer"
	EventCandidate EventType = "ice-candidate"
	EventEndCall   EventType = "end-call"

	// server -> client
	EventConversationStarted EventType = "conversation-started"
	EventNewCallRequest      EventType = "new-call-request"
	EventWaitingCalls        EventType = "waiting-calls"
	EventCallStarted         EventType = "call-started"
	EventCallAccepted        EventType = "call-accepted"
	EventCallClaimed         EventType = "call-claimed"
	EventCallWithdrawn       EventType = "call-withdrawn"
	EventCallCompleted       EventType = "call-completed"
	EventCallEnded           EventType = "call-ended"
	EventDecisionSaved       EventType = "decision-saved"
	EventError               EventType = "error"
)

// IsSignaling reports whether the event carries an opaque WebRTC handshake payload.
func (t EventType) IsSignaling() bool {
	switch t {
	case EventOffer, EventAnswer, EventCandidate:
		return true
	}
	return false
}

// Envelope frames every message on the realtime channel.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(t EventType, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: data}, nil
}

type StartConversationPayload struct {
	Name        string `json:"name" validate:"max=120"`
	Email       string `json:"email" validate:"omitempty,email"`
	Purpose     string `json:"purpose" validate:"required,notblank,max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

type ConversationStartedPayload struct {
	SessionID string `json:"sessionId"`
	CallID    string `json:"callId"`
	Purpose   string `json:"purpose"`
}

// CallSummary is what staff dashboards render for a queued call.
type CallSummary struct {
	CallID      string    `json:"callId"`
	ClientName  string    `json:"clientName"`
	Purpose     string    `json:"purpose"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type WaitingCallsPayload struct {
	Calls []CallSummary `json:"calls"`
}

type CallRefPayload struct {
	CallID string `json:"callId" validate:"required,callid"`
}

type CallStartedPayload struct {
	CallID     string `json:"callId"`
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName,omitempty"`
}

type CallAcceptedPayload struct {
	CallID          string `json:"callId"`
	StaffID         string `json:"staffId"`
	StaffName       string `json:"staffName"`
	StaffDepartment string `json:"staffDepartment"`
}

type CallClaimedPayload struct {
	CallID  string `json:"callId"`
	StaffID string `json:"staffId"`
}

type CallDecisionPayload struct {
	CallID   string `json:"callId" validate:"required,callid"`
	Decision string `json:"decision" validate:"required,oneof=accepted rejected"`
	Notes    string `json:"notes" validate:"max=4000"`
}

type CallCompletedPayload struct {
	CallID          string  `json:"callId"`
	Decision        string  `json:"decision"`
	Notes           string  `json:"notes"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type DecisionSavedPayload struct {
	CallID   string `json:"callId"`
	Decision string `json:"decision"`
}

type CallEndedPayload struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
	Reason string `json:"reason"`
	From   string `json:"from,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
