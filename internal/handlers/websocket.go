package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"dinnerparty-backend/internal/middleware"
	"dinnerparty-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Mobile clients send no Origin
	},
}

// GroupLocator resolves the group a user currently belongs to
type GroupLocator interface {
	GetUserGroup(ctx context.Context, userID string) (*services.UserGroup, error)
}

// WebSocketHandler serves the row change feed
type WebSocketHandler struct {
	hub      *services.ChangeHub
	verifier middleware.TokenVerifier
	groups   GroupLocator
}

// NewWebSocketHandler creates a new WebSocket handler. Subscriptions are
// limited to the ids groups reports for the connected user.
func NewWebSocketHandler(hub *services.ChangeHub, verifier middleware.TokenVerifier, groups GroupLocator) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		verifier: verifier,
		groups:   groups,
	}
}

// HandleWebSocket handles GET /api/v1/ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.verifier)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := h.hub.Register(userID)
	go h.writePump(conn, client)
	h.readPump(r.Context(), conn, client)
}

// readPump handles subscribe/unsubscribe/ping until the connection closes
func (h *WebSocketHandler) readPump(ctx context.Context, conn *websocket.Conn, client *services.WSClient) {
	defer h.hub.Unregister(client)

	conn.SetReadLimit(maxMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", client.UserID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(client, services.WSMessage{Type: "error", Message: "Invalid message format"})
			continue
		}
		h.handleMessage(ctx, client, msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, client *services.WSClient, msg services.WSMessage) {
	switch msg.Type {
	case "subscribe":
		if msg.ID == "" {
			h.reply(client, services.WSMessage{Type: "error", Message: "id is required"})
			return
		}
		sub, err := services.ParseSubscription(msg.Table, msg.Filter)
		if err != nil {
			h.reply(client, services.WSMessage{Type: "error", ID: msg.ID, Message: err.Error()})
			return
		}
		current, err := h.groups.GetUserGroup(ctx, client.UserID)
		if err != nil {
			log.Error().Err(err).Str("user_id", client.UserID).Msg("Failed to resolve subscription scope")
			h.reply(client, services.WSMessage{Type: "error", ID: msg.ID, Message: "Failed to check subscription"})
			return
		}
		if !services.ScopeFor(client.UserID, current).Allows(sub) {
			h.reply(client, services.WSMessage{Type: "error", ID: msg.ID, Message: "Filter is outside your group"})
			return
		}
		client.Subscribe(msg.ID, sub)
		h.reply(client, services.WSMessage{Type: "subscribed", ID: msg.ID, Table: sub.Table, Filter: msg.Filter})
	case "unsubscribe":
		client.Unsubscribe(msg.ID)
		h.reply(client, services.WSMessage{Type: "unsubscribed", ID: msg.ID})
	case "ping":
		h.reply(client, services.WSMessage{Type: "pong"})
	default:
		h.reply(client, services.WSMessage{Type: "error", Message: "Unknown message type"})
	}
}

func (h *WebSocketHandler) reply(client *services.WSClient, msg services.WSMessage) {
	if !h.hub.Send(client, msg) {
		log.Warn().Str("user_id", client.UserID).Str("type", msg.Type).Msg("Failed to queue WebSocket reply")
	}
}

// writePump drains the client queue until the hub closes it
func (h *WebSocketHandler) writePump(conn *websocket.Conn, client *services.WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Messages():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("user_id", client.UserID).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
