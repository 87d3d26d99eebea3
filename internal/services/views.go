package services

import (
	"context"
	"time"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// UserGroup is a user's current group, if any
type UserGroup struct {
	Group    *models.Group `json:"group"`
	IsLeader bool          `json:"is_leader"`
}

// GroupCard is the public face of a group: leader, members and videos
type GroupCard struct {
	ID         string                 `json:"id"`
	LeaderID   string                 `json:"leader_id"`
	Leader     *models.MemberProfile  `json:"leader"`
	Members    []models.MemberProfile `json:"members"`
	VideoLinks []string               `json:"video_links"`
}

// PartyListing is an active dinner party with its host group
type PartyListing struct {
	Party models.DinnerParty `json:"party"`
	Group GroupCard          `json:"group"`
}

// RequestView is a pending party request with its requesting group
type RequestView struct {
	Request models.PartyRequest `json:"request"`
	Group   GroupCard           `json:"group"`
}

// PairedGroup is the opposite side of a pairing
type PairedGroup struct {
	Group GroupCard           `json:"group"`
	Party *models.DinnerParty `json:"party,omitempty"`
}

// cardConcurrency bounds parallel group card loads per view
const cardConcurrency = 8

// ViewService recomposes store state into display-ready shapes
type ViewService struct {
	stores   Stores
	rules    Rules
	matching *MatchingService
	now      func() time.Time
}

// NewViewService creates a new view service. Stale pairings found while
// reading are cancelled through matching.
func NewViewService(stores Stores, rules Rules, matching *MatchingService) *ViewService {
	return &ViewService{
		stores:   stores,
		rules:    rules,
		matching: matching,
		now:      time.Now,
	}
}

// GetUserGroup returns the user's group and whether they lead it. A user
// without a group gets an empty result, not an error.
func (s *ViewService) GetUserGroup(ctx context.Context, userID string) (*UserGroup, error) {
	if err := validateIDs(userID); err != nil {
		return nil, err
	}

	membership, err := s.stores.Members.GetByUserID(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return &UserGroup{}, nil
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user group")
		return nil, storeErr("load group", err)
	}

	group, err := s.stores.Groups.GetByID(ctx, membership.GroupID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return &UserGroup{}, nil
		}
		return nil, storeErr("load group", err)
	}

	return &UserGroup{Group: group, IsLeader: group.LeaderID == userID}, nil
}

// GetActiveDinnerParties lists every active dinner party with its host
// group, newest first
func (s *ViewService) GetActiveDinnerParties(ctx context.Context) ([]PartyListing, error) {
	parties, err := s.stores.Parties.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list dinner parties")
		return nil, storeErr("load dinner parties", err)
	}

	listings := make([]PartyListing, len(parties))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cardConcurrency)
	for i, p := range parties {
		listings[i].Party = p
		g.Go(func() error {
			card, err := s.groupCard(gctx, p.GroupID)
			if err != nil {
				return err
			}
			listings[i].Group = *card
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr("load dinner parties", err)
	}
	return listings, nil
}

// GetPartyRequests lists the pending requests addressed to the host, oldest
// first, each with its requesting group
func (s *ViewService) GetPartyRequests(ctx context.Context, hostGroupID string) ([]RequestView, error) {
	if err := validateIDs(hostGroupID); err != nil {
		return nil, err
	}

	requests, err := s.stores.Requests.ListByHost(ctx, hostGroupID)
	if err != nil {
		log.Error().Err(err).Str("group_id", hostGroupID).Msg("Failed to list party requests")
		return nil, storeErr("load requests", err)
	}

	views := make([]RequestView, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cardConcurrency)
	for i, r := range requests {
		views[i].Request = r
		g.Go(func() error {
			card, err := s.groupCard(gctx, r.RequestingGroupID)
			if err != nil {
				return err
			}
			views[i].Group = *card
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr("load requests", err)
	}
	return views, nil
}

// GetGroupMembers lists the group's members in join order
func (s *ViewService) GetGroupMembers(ctx context.Context, groupID string) ([]models.MemberProfile, error) {
	if err := validateIDs(groupID); err != nil {
		return nil, err
	}
	members, err := s.stores.Members.ListProfiles(ctx, groupID)
	if err != nil {
		return nil, storeErr("load members", err)
	}
	return members, nil
}

// GetGroupDinnerParty returns the group's active dinner party, or nil
func (s *ViewService) GetGroupDinnerParty(ctx context.Context, groupID string) (*models.DinnerParty, error) {
	if err := validateIDs(groupID); err != nil {
		return nil, err
	}
	party, err := s.stores.Parties.GetActiveByGroup(ctx, groupID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, nil
		}
		return nil, storeErr("load dinner party", err)
	}
	return party, nil
}

// IsDinnerPartyActive reports whether the host's dinner party is scheduled
// no more than the stale window in the past. No party means inactive.
func (s *ViewService) IsDinnerPartyActive(ctx context.Context, hostGroupID string) (bool, error) {
	party, err := s.stores.Parties.GetActiveByGroup(ctx, hostGroupID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return false, nil
		}
		return false, storeErr("load dinner party", err)
	}
	cutoff := s.now().Add(-s.rules.StaleAfter)
	return !party.DinnerTime.Before(cutoff), nil
}

// GetHostGroupInfo returns the host the group is attending. A pairing whose
// dinner party is over is cancelled and nil is returned.
func (s *ViewService) GetHostGroupInfo(ctx context.Context, userGroupID string) (*PairedGroup, error) {
	if err := validateIDs(userGroupID); err != nil {
		return nil, err
	}
	group, err := s.stores.Groups.GetByID(ctx, userGroupID)
	if err != nil {
		return nil, storeErr("load host", err)
	}
	if group.AttendingHostGroupID == nil {
		return nil, nil
	}
	hostID := *group.AttendingHostGroupID

	active, err := s.IsDinnerPartyActive(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if !active {
		log.Info().Str("group_id", userGroupID).Str("host_group_id", hostID).Msg("Dinner party is over, cancelling attendance")
		if err := s.matching.CancelAttendance(ctx, userGroupID, CancelAsAttendee); err != nil {
			return nil, err
		}
		return nil, nil
	}

	card, err := s.groupCard(ctx, hostID)
	if err != nil {
		return nil, storeErr("load host", err)
	}
	party, err := s.GetGroupDinnerParty(ctx, hostID)
	if err != nil {
		return nil, err
	}
	return &PairedGroup{Group: *card, Party: party}, nil
}

// GetAttendeeGroupInfo returns the host's accepted attendee. A pairing whose
// dinner party is over is cancelled and nil is returned.
func (s *ViewService) GetAttendeeGroupInfo(ctx context.Context, hostGroupID string) (*PairedGroup, error) {
	if err := validateIDs(hostGroupID); err != nil {
		return nil, err
	}
	host, err := s.stores.Groups.GetByID(ctx, hostGroupID)
	if err != nil {
		return nil, storeErr("load attendee", err)
	}
	if host.AcceptedAttendeeGroupID == nil {
		return nil, nil
	}
	attendeeID := *host.AcceptedAttendeeGroupID

	active, err := s.IsDinnerPartyActive(ctx, hostGroupID)
	if err != nil {
		return nil, err
	}
	if !active {
		log.Info().Str("group_id", hostGroupID).Str("attendee_group_id", attendeeID).Msg("Dinner party is over, cancelling pairing")
		if err := s.matching.CancelAttendance(ctx, hostGroupID, CancelAsHost); err != nil {
			return nil, err
		}
		return nil, nil
	}

	card, err := s.groupCard(ctx, attendeeID)
	if err != nil {
		return nil, storeErr("load attendee", err)
	}
	return &PairedGroup{Group: *card}, nil
}

func (s *ViewService) groupCard(ctx context.Context, groupID string) (*GroupCard, error) {
	group, err := s.stores.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.stores.Members.ListProfiles(ctx, groupID)
	if err != nil {
		return nil, err
	}

	card := &GroupCard{
		ID:         group.ID,
		LeaderID:   group.LeaderID,
		Members:    members,
		VideoLinks: group.VideoLinks,
	}
	for i := range members {
		if members[i].UserID == group.LeaderID {
			card.Leader = &members[i]
			break
		}
	}
	return card, nil
}
