package services

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"dinnerparty-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const clientBuffer = 64

// WSMessage represents a WebSocket message in either direction
type WSMessage struct {
	Type    string         `json:"type"`
	ID      string         `json:"id,omitempty"`
	Table   string         `json:"table,omitempty"`
	Filter  string         `json:"filter,omitempty"`
	Op      string         `json:"op,omitempty"`
	Row     map[string]any `json:"row,omitempty"`
	Message string         `json:"message,omitempty"`
}

// idKind tells whether a filter column holds a group or a user id
type idKind int

const (
	groupRef idKind = iota
	userRef
)

// filterColumns lists the key columns of each table a subscription may
// filter on. They are also the only columns a change message carries.
var filterColumns = map[string]map[string]idKind{
	"groups": {
		"id":                         groupRef,
		"leader_id":                  userRef,
		"accepted_attendee_group_id": groupRef,
		"attending_host_group_id":    groupRef,
	},
	"group_members":  {"group_id": groupRef, "user_id": userRef},
	"dinner_parties": {"group_id": groupRef},
	"party_requests": {"host_group_id": groupRef, "requesting_group_id": groupRef},
}

// Subscription selects the changes of one table whose Column equals Value
type Subscription struct {
	Table  string
	Column string
	Value  string
}

// ParseSubscription parses a table and a "column=eq.value" filter
func ParseSubscription(table, filter string) (Subscription, error) {
	columns, ok := filterColumns[table]
	if !ok {
		return Subscription{}, fmt.Errorf("unknown table %q", table)
	}
	if filter == "" {
		return Subscription{}, fmt.Errorf("filter is required for %s", table)
	}

	column, rest, ok := strings.Cut(filter, "=")
	if !ok {
		return Subscription{}, fmt.Errorf("malformed filter %q", filter)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok || value == "" {
		return Subscription{}, fmt.Errorf("unsupported filter %q, want column=eq.value", filter)
	}
	if _, ok := columns[column]; !ok {
		return Subscription{}, fmt.Errorf("cannot filter %s on %q", table, column)
	}
	return Subscription{Table: table, Column: column, Value: value}, nil
}

// Matches reports whether change falls under the subscription
func (s Subscription) Matches(change repository.Change) bool {
	return s.Table == change.Table && s.Column != "" && change.Field(s.Column) == s.Value
}

// FeedScope is the set of ids a user may watch: their own user id, their
// group and the groups paired with it
type FeedScope struct {
	UserID   string
	GroupIDs []string
}

// ScopeFor builds the feed scope of userID from their current group
func ScopeFor(userID string, current *UserGroup) FeedScope {
	scope := FeedScope{UserID: userID}
	if current == nil || current.Group == nil {
		return scope
	}
	g := current.Group
	scope.GroupIDs = append(scope.GroupIDs, g.ID)
	if g.AcceptedAttendeeGroupID != nil {
		scope.GroupIDs = append(scope.GroupIDs, *g.AcceptedAttendeeGroupID)
	}
	if g.AttendingHostGroupID != nil {
		scope.GroupIDs = append(scope.GroupIDs, *g.AttendingHostGroupID)
	}
	return scope
}

// Allows reports whether the subscription stays inside scope
func (f FeedScope) Allows(sub Subscription) bool {
	kind, ok := filterColumns[sub.Table][sub.Column]
	if !ok || sub.Value == "" {
		return false
	}
	if kind == userRef {
		return sub.Value == f.UserID
	}
	return slices.Contains(f.GroupIDs, sub.Value)
}

// changeKeys strips a change row down to the table's key columns
func changeKeys(change repository.Change) map[string]any {
	columns := filterColumns[change.Table]
	keys := make(map[string]any, len(columns)+1)
	for column, v := range change.Row {
		if _, ok := columns[column]; ok || column == "id" {
			keys[column] = v
		}
	}
	return keys
}

// WSClient is one connected WebSocket with its subscriptions
type WSClient struct {
	UserID string
	send   chan []byte

	mu   sync.Mutex
	subs map[string]Subscription
}

// Messages returns the client's outbound queue. It is closed on Unregister.
func (c *WSClient) Messages() <-chan []byte { return c.send }

// Subscribe adds or replaces the subscription stored under id
func (c *WSClient) Subscribe(id string, sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[id] = sub
}

// Unsubscribe removes the subscription stored under id
func (c *WSClient) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

func (c *WSClient) matches(change repository.Change) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		if s.Matches(change) {
			return true
		}
	}
	return false
}

// ChangeHub fans store changes out to subscribed WebSocket clients
type ChangeHub struct {
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewChangeHub creates a new change hub
func NewChangeHub() *ChangeHub {
	return &ChangeHub{clients: make(map[*WSClient]struct{})}
}

// Register adds a client for userID
func (h *ChangeHub) Register(userID string) *WSClient {
	c := &WSClient{
		UserID: userID,
		send:   make(chan []byte, clientBuffer),
		subs:   make(map[string]Subscription),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
	return c
}

// Unregister removes the client and closes its queue
func (h *ChangeHub) Unregister(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		log.Info().Str("user_id", c.UserID).Msg("WebSocket connection unregistered")
	}
}

// Publish delivers change to every client with a matching subscription.
// A client whose queue is full misses the change.
func (h *ChangeHub) Publish(change repository.Change) {
	data, err := json.Marshal(WSMessage{
		Type:  "change",
		Table: change.Table,
		Op:    change.Op,
		Row:   changeKeys(change),
	})
	if err != nil {
		log.Error().Err(err).Str("table", change.Table).Msg("Failed to marshal change")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.matches(change) {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Warn().Str("user_id", c.UserID).Str("table", change.Table).Msg("Client queue full, dropping change")
		}
	}
}

// Send queues a message for one client. It reports false if the queue is
// full or the client is gone.
func (h *ChangeHub) Send(c *WSClient, msg WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Count returns the number of connected clients
func (h *ChangeHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
