package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mossy-p/reception-signaling/internal/models"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		target  string
		errMsg  string
	}{
		{name: "valid", payload: `{"target":"s-1","sdp":"v=0"}`, target: "s-1"},
		{name: "not an object", payload: `["s-1"]`, errMsg: "must be an object"},
		{name: "missing target", payload: `{"sdp":"v=0"}`, errMsg: "requires a target"},
		{name: "empty target", payload: `{"target":""}`, errMsg: "requires a target"},
		{name: "numeric target", payload: `{"target":42}`, errMsg: "target must be a string"},
		{name: "object target", payload: `{"target":{"id":"s-1"}}`, errMsg: "target must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parseSignal(models.EventOffer, "v-1", json.RawMessage(tt.payload))
			if tt.errMsg != "" {
				require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
				require.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.target, msg.TargetID)
			require.Equal(t, "v-1", msg.SenderID)
			require.Equal(t, models.EventOffer, msg.Kind)
		})
	}
}

func TestStampSenderOverwritesFrom(t *testing.T) {
	out, err := stampSender(json.RawMessage(`{"target":"s-1","from":"forged","sdp":"<v=0>"}`), "v-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"target":"s-1","from":"v-1","sdp":"<v=0>"}`, string(out))
	require.Contains(t, string(out), "<v=0>")
}
