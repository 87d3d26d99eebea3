package services

import (
	"context"
	"testing"
	"time"

	"dinnerparty-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db       *memDB
	now      time.Time
	groups   *GroupService
	matching *MatchingService
	views    *ViewService
	sweeper  *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	stores := db.stores()
	rules := DefaultRules()
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	groups := NewGroupService(stores, rules, nil)
	groups.now = clock
	matching := NewMatchingService(stores, nil)
	matching.now = clock
	views := NewViewService(stores, rules, matching)
	views.now = clock
	sweeper := NewSweeper(stores.Groups, matching, rules, nil)
	sweeper.now = clock

	return &fixture{db: db, now: now, groups: groups, matching: matching, views: views, sweeper: sweeper}
}

// user creates a profile and returns its id
func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, f.db.stores().Users.Create(context.Background(), &models.User{
		ID:          id,
		DisplayName: name,
		CreatedAt:   f.now,
	}))
	return id
}

// groupOf creates a group led by a new user and joins n-1 more users
func (f *fixture) groupOf(t *testing.T, n int) (*models.Group, []string) {
	t.Helper()
	ctx := context.Background()
	leader := f.user(t, "leader")
	group, err := f.groups.CreateGroup(ctx, leader)
	require.NoError(t, err)

	users := []string{leader}
	for i := 1; i < n; i++ {
		u := f.user(t, "member")
		_, err := f.groups.JoinGroup(ctx, u, group.JoinCode)
		require.NoError(t, err)
		users = append(users, u)
	}
	g := f.db.group(group.ID)
	return &g, users
}

// liveGroup creates a locked, live group of n members with stored videos
func (f *fixture) liveGroup(t *testing.T, n int) (*models.Group, []string) {
	t.Helper()
	ctx := context.Background()
	group, users := f.groupOf(t, n)

	_, err := f.groups.LockGroup(ctx, group.ID, users[0])
	require.NoError(t, err)

	links := make([]string, n)
	for i := range links {
		key := group.ID + "/1700000000000_" + string(rune('0'+i)) + ".mp4"
		f.db.putVideo(key)
		links[i] = "https://cdn.test/" + key
	}
	_, err = f.groups.UpdateGroupProfile(ctx, group.ID, users[0], links)
	require.NoError(t, err)

	g := f.db.group(group.ID)
	return &g, users
}

// hosting creates a live group with a dinner party at dinnerTime
func (f *fixture) hosting(t *testing.T, dinnerTime time.Time) (*models.Group, []string) {
	t.Helper()
	group, users := f.liveGroup(t, 3)
	_, err := f.groups.CreateDinnerParty(context.Background(), group.ID, users[0], DinnerPartyInput{
		MainDish:   "lasagna",
		Side:       "salad",
		Address:    "12 College Rd",
		Latitude:   40.1,
		Longitude:  -74.6,
		DinnerTime: dinnerTime,
	})
	require.NoError(t, err)
	return group, users
}

// paired returns a host and attendee that completed the request/accept flow
func (f *fixture) paired(t *testing.T, dinnerTime time.Time) (host, attendee *models.Group, hostUsers, attendeeUsers []string) {
	t.Helper()
	ctx := context.Background()
	host, hostUsers = f.hosting(t, dinnerTime)
	attendee, attendeeUsers = f.liveGroup(t, 3)

	req, err := f.matching.CreatePartyRequest(ctx, attendee.ID, host.ID, attendeeUsers[0])
	require.NoError(t, err)
	_, err = f.matching.AcceptPartyRequest(ctx, req.ID, hostUsers[0])
	require.NoError(t, err)

	h, a := f.db.group(host.ID), f.db.group(attendee.ID)
	return &h, &a, hostUsers, attendeeUsers
}

// requirePairingSymmetric checks that every accepted attendee points back at
// its host and vice versa
func (f *fixture) requirePairingSymmetric(t *testing.T) {
	t.Helper()
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for id, g := range f.db.groups {
		if g.AcceptedAttendeeGroupID != nil {
			other, ok := f.db.groups[*g.AcceptedAttendeeGroupID]
			require.True(t, ok)
			require.NotNil(t, other.AttendingHostGroupID, "attendee of %s has no host", id)
			require.Equal(t, id, *other.AttendingHostGroupID)
		}
		if g.AttendingHostGroupID != nil {
			other, ok := f.db.groups[*g.AttendingHostGroupID]
			require.True(t, ok)
			require.NotNil(t, other.AcceptedAttendeeGroupID, "host of %s has no attendee", id)
			require.Equal(t, id, *other.AcceptedAttendeeGroupID)
		}
	}
}
