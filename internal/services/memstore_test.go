package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"
)

var errInjected = errors.New("injected store failure")

// memDB is an in-memory store with the same constraints as the schema:
// unique join codes, one membership per user, one active party per group,
// one request per pair and one pairing per side. Methods can be made to fail
// with failOn.
type memDB struct {
	mu       sync.Mutex
	users    map[string]models.User
	groups   map[string]models.Group
	members  []models.GroupMember
	parties  map[string]models.DinnerParty
	requests map[string]models.PartyRequest
	videos   map[string]bool
	clock    time.Time

	faults map[string]func(id string) error
	calls  map[string]int
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]models.User{},
		groups:   map[string]models.Group{},
		parties:  map[string]models.DinnerParty{},
		requests: map[string]models.PartyRequest{},
		videos:   map[string]bool{},
		clock:    time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
		faults:   map[string]func(string) error{},
		calls:    map[string]int{},
	}
}

// failOn makes every call of method fail
func (db *memDB) failOn(method string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.faults[method] = func(string) error { return errInjected }
}

// failOnID makes calls of method whose first id argument is id fail
func (db *memDB) failOnID(method, id string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.faults[method] = func(got string) error {
		if got == id {
			return errInjected
		}
		return nil
	}
}

func (db *memDB) heal(method string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.faults, method)
}

// enter records a call and returns its injected failure; db.mu must be held
func (db *memDB) enter(method, id string) error {
	db.calls[method]++
	if f, ok := db.faults[method]; ok {
		return f(id)
	}
	return nil
}

func (db *memDB) stores() Stores {
	return Stores{
		Users:    memUsers{db},
		Groups:   memGroups{db},
		Members:  memMembers{db},
		Parties:  memParties{db},
		Requests: memRequests{db},
		Videos:   memVideos{db},
	}
}

func (db *memDB) group(id string) models.Group {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.groups[id]
}

func (db *memDB) hasGroup(id string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.groups[id]
	return ok
}

func (db *memDB) memberCount(groupID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, m := range db.members {
		if m.GroupID == groupID {
			n++
		}
	}
	return n
}

func (db *memDB) requestsReferencing(groupID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, r := range db.requests {
		if r.HostGroupID == groupID || r.RequestingGroupID == groupID {
			n++
		}
	}
	return n
}

func (db *memDB) videoCount(prefix string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for k := range db.videos {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

func (db *memDB) putVideo(key string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.videos[key] = true
}

func cloneGroup(g models.Group) *models.Group {
	g.VideoLinks = append([]string{}, g.VideoLinks...)
	if g.AcceptedAttendeeGroupID != nil {
		g.AcceptedAttendeeGroupID = models.String(*g.AcceptedAttendeeGroupID)
	}
	if g.AttendingHostGroupID != nil {
		g.AttendingHostGroupID = models.String(*g.AttendingHostGroupID)
	}
	return &g
}

type memUsers struct{ db *memDB }

func (s memUsers) Create(_ context.Context, u *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("users.Create", u.ID); err != nil {
		return err
	}
	if _, ok := s.db.users[u.ID]; ok {
		return apperr.ErrProfileAlreadyExist
	}
	s.db.users[u.ID] = *u
	return nil
}

func (s memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("users.GetByID", id); err != nil {
		return nil, err
	}
	u, ok := s.db.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return &u, nil
}

func (s memUsers) Update(_ context.Context, id string, displayName, pictureURL, phoneNum *string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("users.Update", id); err != nil {
		return nil, err
	}
	u, ok := s.db.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	if displayName != nil {
		u.DisplayName = *displayName
	}
	if pictureURL != nil {
		u.ProfilePictureURL = *pictureURL
	}
	if phoneNum != nil {
		u.PhoneNum = phoneNum
	}
	s.db.users[id] = u
	return &u, nil
}

type memGroups struct{ db *memDB }

func (s memGroups) Create(_ context.Context, g *models.Group) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.Create", g.ID); err != nil {
		return err
	}
	for _, other := range s.db.groups {
		if other.JoinCode == g.JoinCode {
			return errors.New("duplicate join code")
		}
	}
	s.db.groups[g.ID] = *cloneGroup(*g)
	return nil
}

func (s memGroups) GetByID(_ context.Context, id string) (*models.Group, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.GetByID", id); err != nil {
		return nil, err
	}
	g, ok := s.db.groups[id]
	if !ok {
		return nil, apperr.NotFound("group")
	}
	return cloneGroup(g), nil
}

func (s memGroups) GetByJoinCode(_ context.Context, code string) (*models.Group, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.GetByJoinCode", code); err != nil {
		return nil, err
	}
	for _, g := range s.db.groups {
		if g.JoinCode == code {
			return cloneGroup(g), nil
		}
	}
	return nil, apperr.NotFound("group")
}

func (s memGroups) JoinCodeExists(_ context.Context, code string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.JoinCodeExists", code); err != nil {
		return false, err
	}
	for _, g := range s.db.groups {
		if g.JoinCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (s memGroups) Update(_ context.Context, id string, upd models.GroupUpdate) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.Update", id); err != nil {
		return err
	}
	g, ok := s.db.groups[id]
	if !ok {
		return apperr.NotFound("group")
	}
	if upd.LeaderID != nil {
		g.LeaderID = *upd.LeaderID
	}
	if upd.IsReady != nil {
		g.IsReady = *upd.IsReady
	}
	if upd.IsLocked != nil {
		g.IsLocked = *upd.IsLocked
	}
	if upd.IsLive != nil {
		g.IsLive = *upd.IsLive
	}
	if upd.HasAttendant != nil {
		g.HasAttendant = *upd.HasAttendant
	}
	if upd.SetVideoLinks {
		g.VideoLinks = append([]string{}, upd.VideoLinks...)
	}
	if upd.ClearAccepted {
		g.AcceptedAttendeeGroupID = nil
	} else if upd.AcceptedAttendeeGroupID != nil {
		g.AcceptedAttendeeGroupID = models.String(*upd.AcceptedAttendeeGroupID)
	}
	if upd.ClearAttending {
		g.AttendingHostGroupID = nil
	} else if upd.AttendingHostGroupID != nil {
		g.AttendingHostGroupID = models.String(*upd.AttendingHostGroupID)
	}
	if g.IsLocked && !g.IsReady {
		return errors.New("groups_locked_requires_ready")
	}
	s.db.groups[id] = g
	return nil
}

func (s memGroups) ClaimAttendant(_ context.Context, hostID, attendeeID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.ClaimAttendant", hostID); err != nil {
		return false, err
	}
	g, ok := s.db.groups[hostID]
	if !ok || g.HasAttendant || g.AcceptedAttendeeGroupID != nil {
		return false, nil
	}
	for id, other := range s.db.groups {
		if id != hostID && other.AcceptedAttendeeGroupID != nil && *other.AcceptedAttendeeGroupID == attendeeID {
			return false, apperr.ErrAlreadyAttending
		}
	}
	g.HasAttendant = true
	g.AcceptedAttendeeGroupID = models.String(attendeeID)
	s.db.groups[hostID] = g
	return true, nil
}

func (s memGroups) ClaimHost(_ context.Context, attendeeID, hostID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.ClaimHost", attendeeID); err != nil {
		return false, err
	}
	g, ok := s.db.groups[attendeeID]
	if !ok || g.AttendingHostGroupID != nil {
		return false, nil
	}
	for id, other := range s.db.groups {
		if id != attendeeID && other.AttendingHostGroupID != nil && *other.AttendingHostGroupID == hostID {
			return false, apperr.ErrHostAlreadyTaken
		}
	}
	g.AttendingHostGroupID = models.String(hostID)
	s.db.groups[attendeeID] = g
	return true, nil
}

func (s memGroups) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.Delete", id); err != nil {
		return err
	}
	if _, ok := s.db.groups[id]; !ok {
		return apperr.NotFound("group")
	}
	delete(s.db.groups, id)
	for gid, g := range s.db.groups {
		if g.AcceptedAttendeeGroupID != nil && *g.AcceptedAttendeeGroupID == id {
			g.AcceptedAttendeeGroupID = nil
		}
		if g.AttendingHostGroupID != nil && *g.AttendingHostGroupID == id {
			g.AttendingHostGroupID = nil
		}
		s.db.groups[gid] = g
	}
	return nil
}

func (s memGroups) ListStaleHosts(_ context.Context, cutoff time.Time) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("groups.ListStaleHosts", ""); err != nil {
		return nil, err
	}
	var ids []string
	for id, g := range s.db.groups {
		p, ok := s.db.parties[id]
		if g.AcceptedAttendeeGroupID != nil && ok && p.IsActive && p.DinnerTime.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memMembers struct{ db *memDB }

func (s memMembers) Add(_ context.Context, groupID, userID string) (*models.GroupMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("members.Add", groupID); err != nil {
		return nil, err
	}
	for _, m := range s.db.members {
		if m.UserID == userID {
			return nil, apperr.ErrAlreadyInGroup
		}
	}
	s.db.clock = s.db.clock.Add(time.Second)
	m := models.GroupMember{GroupID: groupID, UserID: userID, JoinedAt: s.db.clock}
	s.db.members = append(s.db.members, m)
	return &m, nil
}

func (s memMembers) GetByUserID(_ context.Context, userID string) (*models.GroupMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("members.GetByUserID", userID); err != nil {
		return nil, err
	}
	for _, m := range s.db.members {
		if m.UserID == userID {
			return &m, nil
		}
	}
	return nil, apperr.NotFound("group membership")
}

func (s memMembers) Count(_ context.Context, groupID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("members.Count", groupID); err != nil {
		return 0, err
	}
	n := 0
	for _, m := range s.db.members {
		if m.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (s memMembers) ListByGroup(_ context.Context, groupID string) ([]models.GroupMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("members.ListByGroup", groupID); err != nil {
		return nil, err
	}
	var out []models.GroupMember
	for _, m := range s.db.members {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s memMembers) ListProfiles(ctx context.Context, groupID string) ([]models.MemberProfile, error) {
	members, err := s.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.MemberProfile, 0, len(members))
	for _, m := range members {
		u, ok := s.db.users[m.UserID]
		if !ok {
			continue
		}
		out = append(out, models.MemberProfile{
			UserID:            m.UserID,
			DisplayName:       u.DisplayName,
			ProfilePictureURL: u.ProfilePictureURL,
			JoinedAt:          m.JoinedAt,
		})
	}
	return out, nil
}

func (s memMembers) Remove(_ context.Context, groupID, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("members.Remove", groupID); err != nil {
		return err
	}
	for i, m := range s.db.members {
		if m.GroupID == groupID && m.UserID == userID {
			s.db.members = append(s.db.members[:i], s.db.members[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("group membership")
}

func (s memMembers) RemoveAll(_ context.Context, groupID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("members.RemoveAll", groupID); err != nil {
		return err
	}
	kept := s.db.members[:0]
	for _, m := range s.db.members {
		if m.GroupID != groupID {
			kept = append(kept, m)
		}
	}
	s.db.members = kept
	return nil
}

type memParties struct{ db *memDB }

func (s memParties) Create(_ context.Context, p *models.DinnerParty) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("parties.Create", p.GroupID); err != nil {
		return err
	}
	if existing, ok := s.db.parties[p.GroupID]; ok && existing.IsActive {
		return apperr.ErrPartyAlreadyActive
	}
	s.db.parties[p.GroupID] = *p
	return nil
}

func (s memParties) GetActiveByGroup(_ context.Context, groupID string) (*models.DinnerParty, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("parties.GetActiveByGroup", groupID); err != nil {
		return nil, err
	}
	p, ok := s.db.parties[groupID]
	if !ok || !p.IsActive {
		return nil, apperr.NotFound("dinner party")
	}
	return &p, nil
}

func (s memParties) ListActive(_ context.Context) ([]models.DinnerParty, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("parties.ListActive", ""); err != nil {
		return nil, err
	}
	var out []models.DinnerParty
	for _, p := range s.db.parties {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s memParties) DeleteByGroup(_ context.Context, groupID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("parties.DeleteByGroup", groupID); err != nil {
		return err
	}
	delete(s.db.parties, groupID)
	return nil
}

type memRequests struct{ db *memDB }

func (s memRequests) Create(_ context.Context, r *models.PartyRequest) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("requests.Create", r.RequestingGroupID); err != nil {
		return err
	}
	for _, other := range s.db.requests {
		if other.RequestingGroupID == r.RequestingGroupID && other.HostGroupID == r.HostGroupID {
			return apperr.ErrDuplicateRequest
		}
	}
	s.db.requests[r.ID] = *r
	return nil
}

func (s memRequests) GetByID(_ context.Context, id string) (*models.PartyRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("requests.GetByID", id); err != nil {
		return nil, err
	}
	r, ok := s.db.requests[id]
	if !ok {
		return nil, apperr.NotFound("party request")
	}
	return &r, nil
}

func (s memRequests) Exists(_ context.Context, requestingGroupID, hostGroupID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("requests.Exists", requestingGroupID); err != nil {
		return false, err
	}
	for _, r := range s.db.requests {
		if r.RequestingGroupID == requestingGroupID && r.HostGroupID == hostGroupID {
			return true, nil
		}
	}
	return false, nil
}

func (s memRequests) ListByHost(_ context.Context, hostGroupID string) ([]models.PartyRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("requests.ListByHost", hostGroupID); err != nil {
		return nil, err
	}
	var out []models.PartyRequest
	for _, r := range s.db.requests {
		if r.HostGroupID == hostGroupID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s memRequests) deleteWhere(method, id string, match func(models.PartyRequest) bool) ([]models.PartyRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter(method, id); err != nil {
		return nil, err
	}
	var out []models.PartyRequest
	for rid, r := range s.db.requests {
		if match(r) {
			out = append(out, r)
			delete(s.db.requests, rid)
		}
	}
	return out, nil
}

func (s memRequests) DeleteByHost(_ context.Context, hostGroupID string) ([]models.PartyRequest, error) {
	return s.deleteWhere("requests.DeleteByHost", hostGroupID, func(r models.PartyRequest) bool {
		return r.HostGroupID == hostGroupID
	})
}

func (s memRequests) DeleteByRequester(_ context.Context, requestingGroupID string) ([]models.PartyRequest, error) {
	return s.deleteWhere("requests.DeleteByRequester", requestingGroupID, func(r models.PartyRequest) bool {
		return r.RequestingGroupID == requestingGroupID
	})
}

func (s memRequests) DeleteByGroup(_ context.Context, groupID string) error {
	_, err := s.deleteWhere("requests.DeleteByGroup", groupID, func(r models.PartyRequest) bool {
		return r.RequestingGroupID == groupID || r.HostGroupID == groupID
	})
	return err
}

type memVideos struct{ db *memDB }

func (s memVideos) PresignUpload(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("videos.PresignUpload", key); err != nil {
		return "", err
	}
	return "https://upload.test/" + key + "?sig=x", nil
}

func (s memVideos) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (s memVideos) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("videos.DeletePrefix", prefix); err != nil {
		return 0, err
	}
	n := 0
	for k := range s.db.videos {
		if strings.HasPrefix(k, prefix) {
			delete(s.db.videos, k)
			n++
		}
	}
	return n, nil
}
