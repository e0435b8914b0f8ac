package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/reception-signaling/internal/models"
)

type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, path string) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsPeer{t: t, conn: conn}
}

func (p *wsPeer) send(eventType models.EventType, payload any) {
	p.t.Helper()
	env, err := models.NewEnvelope(eventType, payload)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteJSON(env))
}

// expect reads frames until one of the wanted type arrives.
func (p *wsPeer) expect(want models.EventType) map[string]any {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env models.Envelope
		require.NoError(p.t, p.conn.ReadJSON(&env), "waiting for %s", want)
		if env.Type != want {
			continue
		}
		payload := map[string]any{}
		if len(env.Payload) > 0 {
			require.NoError(p.t, json.Unmarshal(env.Payload, &payload))
		}
		return payload
	}
}

func TestStaffSocketRequiresToken(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/staff"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCallFlowOverWebsockets(t *testing.T) {
	presence := newFakePresence()
	e := newEnv(t, func(d *Dependencies) { d.Presence = presence })
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	staff := dial(t, srv, "/ws/staff?token="+staffToken(t, "Sam"))
	snapshot := staff.expect(models.EventWaitingCalls)
	require.Empty(t, snapshot["calls"])

	select {
	case joined := <-presence.joined:
		require.Equal(t, "Sam", joined.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("staff never joined presence")
	}

	visitor := dial(t, srv, "/ws/visitor")
	visitor.send(models.EventStartConversation, models.StartConversationPayload{
		Name:    "Ana",
		Purpose: "Billing question",
	})
	started := visitor.expect(models.EventConversationStarted)
	callID := started["callId"].(string)

	request := staff.expect(models.EventNewCallRequest)
	require.Equal(t, callID, request["callId"])
	require.Equal(t, "Ana", request["clientName"])

	staff.send(models.EventAcceptCall, models.CallRefPayload{CallID: callID})
	callStarted := staff.expect(models.EventCallStarted)
	visitorID := callStarted["clientId"].(string)
	accepted := visitor.expect(models.EventCallAccepted)
	staffID := accepted["staffId"].(string)
	require.Equal(t, "Sam", accepted["staffName"])

	visitor.send(models.EventOffer, map[string]any{"target": staffID, "sdp": "v=0\r\n"})
	offer := staff.expect(models.EventOffer)
	require.Equal(t, visitorID, offer["from"])
	require.Equal(t, "v=0\r\n", offer["sdp"])

	staff.send(models.EventAnswer, map[string]any{"target": visitorID, "sdp": "answer"})
	answer := visitor.expect(models.EventAnswer)
	require.Equal(t, staffID, answer["from"])

	require.NoError(t, visitor.conn.Close())
	ended := staff.expect(models.EventCallEnded)
	require.Equal(t, callID, ended["callId"])
	require.Equal(t, "visitor-disconnected", ended["reason"])

	require.NoError(t, staff.conn.Close())
	select {
	case left := <-presence.left:
		require.Equal(t, staffID, left)
	case <-time.After(3 * time.Second):
		t.Fatal("staff never left presence")
	}

	require.Eventually(t, func() bool {
		return e.registry.Count(models.RoleStaff) == 0 && e.registry.Count(models.RoleVisitor) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestVisitorReceivesGenericErrors(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	visitor := dial(t, srv, "/ws/visitor")
	require.NoError(t, visitor.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errPayload := visitor.expect(models.EventError)
	require.Equal(t, "INVALID_REQUEST", errPayload["code"])
	require.Contains(t, errPayload["message"], "Failed to start or continue the conversation")
}

func TestClientEnqueueClosesOnFullBuffer(t *testing.T) {
	c := newClient("c-1", nil, 1)
	require.True(t, c.Enqueue([]byte("a")))
	require.False(t, c.Enqueue([]byte("b")))

	select {
	case <-c.done:
	default:
		t.Fatal("client should be closed after overflow")
	}
	require.False(t, c.Enqueue([]byte("c")))
	c.Close()
}
