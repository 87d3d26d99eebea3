package services

import (
	"encoding/json"
	"testing"

	"dinnerparty-backend/internal/models"
	"dinnerparty-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscription(t *testing.T) {
	tests := []struct {
		table, filter string
		want          Subscription
		wantErr       bool
	}{
		{table: "groups", filter: "", wantErr: true},
		{table: "groups", filter: "id=eq.g1", want: Subscription{Table: "groups", Column: "id", Value: "g1"}},
		{table: "party_requests", filter: "host_group_id=eq.h1", want: Subscription{Table: "party_requests", Column: "host_group_id", Value: "h1"}},
		{table: "users", filter: "", wantErr: true},
		{table: "groups", filter: "join_code=eq.ABC", wantErr: true},
		{table: "dinner_parties", filter: "id=eq.p1", wantErr: true},
		{table: "groups", filter: "id=neq.g1", wantErr: true},
		{table: "groups", filter: "id", wantErr: true},
		{table: "groups", filter: "id=eq.", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.table+" "+tt.filter, func(t *testing.T) {
			got, err := ParseSubscription(tt.table, tt.filter)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChangeHubRoutesByFilter(t *testing.T) {
	hub := NewChangeHub()
	a := hub.Register("u1")
	b := hub.Register("u2")
	idle := hub.Register("u3")

	subA, err := ParseSubscription("groups", "id=eq.g1")
	require.NoError(t, err)
	a.Subscribe("s1", subA)
	subB, err := ParseSubscription("party_requests", "host_group_id=eq.g1")
	require.NoError(t, err)
	b.Subscribe("s1", subB)

	hub.Publish(repository.Change{Table: "groups", Op: "UPDATE", Row: map[string]any{"id": "g1"}})
	hub.Publish(repository.Change{Table: "groups", Op: "UPDATE", Row: map[string]any{"id": "g2"}})
	hub.Publish(repository.Change{Table: "party_requests", Op: "INSERT", Row: map[string]any{"id": "r1", "host_group_id": "g1"}})

	require.Len(t, a.Messages(), 1)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(<-a.Messages(), &msg))
	assert.Equal(t, "change", msg.Type)
	assert.Equal(t, "groups", msg.Table)
	assert.Equal(t, "UPDATE", msg.Op)
	assert.Equal(t, "g1", msg.Row["id"])

	require.Len(t, b.Messages(), 1)
	require.NoError(t, json.Unmarshal(<-b.Messages(), &msg))
	assert.Equal(t, "party_requests", msg.Table)

	assert.Empty(t, idle.Messages())
}

func TestChangeHubUnsubscribeAndUnregister(t *testing.T) {
	hub := NewChangeHub()
	c := hub.Register("u1")
	c.Subscribe("g1", Subscription{Table: "groups", Column: "id", Value: "g1"})
	c.Unsubscribe("g1")

	hub.Publish(repository.Change{Table: "groups", Op: "DELETE", Row: map[string]any{"id": "g1"}})
	assert.Empty(t, c.Messages())

	assert.True(t, hub.Send(c, WSMessage{Type: "pong"}))
	hub.Unregister(c)
	hub.Unregister(c)
	assert.Equal(t, 0, hub.Count())
	assert.False(t, hub.Send(c, WSMessage{Type: "pong"}))

	<-c.Messages()
	_, open := <-c.Messages()
	assert.False(t, open)
}

func TestChangeHubDropsForFullQueue(t *testing.T) {
	hub := NewChangeHub()
	c := hub.Register("u1")
	c.Subscribe("g1", Subscription{Table: "groups", Column: "id", Value: "g1"})

	for i := 0; i < clientBuffer+10; i++ {
		hub.Publish(repository.Change{Table: "groups", Op: "UPDATE", Row: map[string]any{"id": "g1"}})
	}
	assert.Len(t, c.Messages(), clientBuffer)
}

func TestChangeHubPublishesKeyColumnsOnly(t *testing.T) {
	hub := NewChangeHub()
	c := hub.Register("u1")
	c.Subscribe("g1", Subscription{Table: "groups", Column: "id", Value: "g1"})

	hub.Publish(repository.Change{Table: "groups", Op: "UPDATE", ID: "g1", GroupID: "g1", Row: map[string]any{
		"id":                      "g1",
		"join_code":               "ABC123",
		"video_links":             []string{"https://cdn.test/g1/a.mp4"},
		"attending_host_group_id": "h1",
	}})

	require.Len(t, c.Messages(), 1)
	raw := <-c.Messages()
	assert.NotContains(t, string(raw), "ABC123")
	assert.NotContains(t, string(raw), "cdn.test")

	var msg WSMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, map[string]any{"id": "g1", "attending_host_group_id": "h1"}, msg.Row)
}

func TestFeedScopeAllows(t *testing.T) {
	host := "h1"
	scope := ScopeFor("u1", &UserGroup{Group: &models.Group{ID: "g1", AttendingHostGroupID: &host}})
	assert.ElementsMatch(t, []string{"g1", "h1"}, scope.GroupIDs)

	tests := []struct {
		table, filter string
		want          bool
	}{
		{table: "groups", filter: "id=eq.g1", want: true},
		{table: "groups", filter: "id=eq.h1", want: true},
		{table: "groups", filter: "id=eq.stranger", want: false},
		{table: "groups", filter: "leader_id=eq.u1", want: true},
		{table: "groups", filter: "leader_id=eq.u2", want: false},
		{table: "group_members", filter: "user_id=eq.u1", want: true},
		{table: "party_requests", filter: "host_group_id=eq.g1", want: true},
		{table: "party_requests", filter: "host_group_id=eq.stranger", want: false},
		{table: "dinner_parties", filter: "group_id=eq.h1", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.table+" "+tt.filter, func(t *testing.T) {
			sub, err := ParseSubscription(tt.table, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, scope.Allows(sub))
		})
	}

	loner := ScopeFor("u9", &UserGroup{})
	assert.Empty(t, loner.GroupIDs)
	assert.False(t, loner.Allows(Subscription{Table: "groups", Column: "id", Value: ""}))
	assert.False(t, loner.Allows(Subscription{Table: "groups"}))
}
