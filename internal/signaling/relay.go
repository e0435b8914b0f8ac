package signaling

import (
	"bytes"
	"encoding/json"

	"github.com/mossy-p/reception-signaling/internal/models"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/metrics"
)

// Message is one WebRTC handshake message. Payload is never interpreted
// beyond reading the target and stamping the sender.
type Message struct {
	Kind     models.EventType
	SenderID string
	TargetID string
	Payload  json.RawMessage
}

// Relay addresses msg to its target. The target must be live and bound to the
// sender by an in-progress call.
func (h *Hub) Relay(msg Message) ([]Outbound, error) {
	if !msg.Kind.IsSignaling() {
		return nil, apperrors.ErrInvalidRequest.WithMessage("%q is not a signaling event", msg.Kind)
	}
	if _, err := h.registry.Lookup(msg.TargetID); err != nil {
		metrics.RelayedMessages.WithLabelValues(string(msg.Kind), "unreachable").Inc()
		return nil, apperrors.ErrTargetUnreachable.WithInternal(err)
	}
	if _, ok := h.queue.Bound(msg.SenderID, msg.TargetID); !ok {
		metrics.RelayedMessages.WithLabelValues(string(msg.Kind), "rejected").Inc()
		return nil, apperrors.ErrInvalidState.WithMessage("no active call with %s", msg.TargetID)
	}

	payload, err := stampSender(msg.Payload, msg.SenderID)
	if err != nil {
		return nil, err
	}

	metrics.RelayedMessages.WithLabelValues(string(msg.Kind), "delivered").Inc()
	return []Outbound{{
		To:       msg.TargetID,
		Envelope: models.Envelope{Type: msg.Kind, Payload: payload},
	}}, nil
}

// parseSignal pulls the target out of an inbound signaling payload.
func parseSignal(kind models.EventType, senderID string, payload json.RawMessage) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return Message{}, apperrors.ErrInvalidRequest.WithMessage("%s payload must be an object", kind)
	}
	var target string
	if raw, ok := fields["target"]; ok {
		if err := json.Unmarshal(raw, &target); err != nil {
			return Message{}, apperrors.ErrInvalidRequest.WithMessage("%s target must be a string", kind).WithInternal(err)
		}
	}
	if target == "" {
		return Message{}, apperrors.ErrInvalidRequest.WithMessage("%s requires a target", kind)
	}
	return Message{Kind: kind, SenderID: senderID, TargetID: target, Payload: payload}, nil
}

// stampSender returns payload with "from" set to senderID. Every other member
// is carried over byte for byte.
func stampSender(payload json.RawMessage, senderID string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, apperrors.ErrInvalidRequest.WithMessage("signaling payload must be an object")
	}
	from, err := json.Marshal(senderID)
	if err != nil {
		return nil, apperrors.ErrInternal.WithInternal(err)
	}
	fields["from"] = from

	out, err := encodeJSON(fields)
	if err != nil {
		return nil, apperrors.ErrInternal.WithInternal(err)
	}
	return out, nil
}

// encodeJSON marshals v without HTML escaping so SDP and candidate strings
// reach the peer unchanged.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
