package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dinnerparty-backend/internal/models"
	"dinnerparty-backend/internal/repository"
	"dinnerparty-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenVerifier map[string]string

func (v tokenVerifier) ValidateJWT(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

func dialFeed(t *testing.T, hub *services.ChangeHub, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	views := &fakeViews{userGroup: &services.UserGroup{Group: &models.Group{ID: testGroup, LeaderID: testUser}, IsLeader: true}}
	h := NewWebSocketHandler(hub, tokenVerifier{"good": testUser}, views)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) services.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg services.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	_, resp, err := dialFeed(t, services.NewChangeHub(), "bad")

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketSubscribeReceivesChanges(t *testing.T) {
	hub := services.NewChangeHub()
	conn, _, err := dialFeed(t, hub, "good")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "subscribe", ID: "s1", Table: "groups", Filter: "id=eq." + testGroup}))
	ack := readMessage(t, conn)
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, "s1", ack.ID)

	hub.Publish(repository.Change{Table: "groups", Op: "UPDATE", Row: map[string]any{"id": hostGroup}})
	hub.Publish(repository.Change{Table: "groups", Op: "UPDATE", Row: map[string]any{"id": testGroup, "join_code": "ABC123"}})

	msg := readMessage(t, conn)
	assert.Equal(t, "change", msg.Type)
	assert.Equal(t, "UPDATE", msg.Op)
	assert.Equal(t, testGroup, msg.Row["id"])
	assert.NotContains(t, msg.Row, "join_code")
}

func TestWebSocketSubscribeStaysInsideOwnGroup(t *testing.T) {
	hub := services.NewChangeHub()
	conn, _, err := dialFeed(t, hub, "good")
	require.NoError(t, err)
	defer conn.Close()

	tests := []struct {
		name, table, filter string
	}{
		{name: "unfiltered", table: "groups"},
		{name: "another group", table: "groups", filter: "id=eq." + hostGroup},
		{name: "another group's requests", table: "party_requests", filter: "host_group_id=eq." + hostGroup},
		{name: "another user", table: "group_members", filter: "user_id=eq.someone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "subscribe", ID: tt.name, Table: tt.table, Filter: tt.filter}))
			reply := readMessage(t, conn)
			assert.Equal(t, "error", reply.Type)
			assert.Equal(t, tt.name, reply.ID)
		})
	}

	hub.Publish(repository.Change{Table: "groups", Op: "UPDATE", Row: map[string]any{"id": hostGroup}})
	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn).Type)
}

func TestWebSocketControlMessages(t *testing.T) {
	hub := services.NewChangeHub()
	conn, _, err := dialFeed(t, hub, "good")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "subscribe", ID: "s1", Table: "users"}))
	bad := readMessage(t, conn)
	assert.Equal(t, "error", bad.Type)
	assert.Equal(t, "s1", bad.ID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "error", readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "dance"}))
	assert.Equal(t, "Unknown message type", readMessage(t, conn).Message)
}

func TestWebSocketCloseUnregisters(t *testing.T) {
	hub := services.NewChangeHub()
	conn, _, err := dialFeed(t, hub, "good")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(services.WSMessage{Type: "ping"}))
	readMessage(t, conn)
	assert.Equal(t, 1, hub.Count())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
