package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"
	"dinnerparty-backend/internal/saga"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GroupService owns group creation, membership and the ready/locked/live
// lifecycle, including disbanding
type GroupService struct {
	stores  Stores
	rules   Rules
	metrics *Metrics
	codes   CodeGenerator
	now     func() time.Time
}

// NewGroupService creates a new group service
func NewGroupService(stores Stores, rules Rules, metrics *Metrics) *GroupService {
	return &GroupService{
		stores:  stores,
		rules:   rules,
		metrics: metrics,
		codes:   generateJoinCode,
		now:     time.Now,
	}
}

// CreateGroup creates a group led by leaderID with a fresh join code. The
// leader becomes the first member; if that insert fails the group row is
// removed again.
func (s *GroupService) CreateGroup(ctx context.Context, leaderID string) (group *models.Group, err error) {
	defer func() { s.metrics.observe("create_group", err) }()

	if err := validateIDs(leaderID); err != nil {
		return nil, err
	}
	if err := s.ensureNotInGroup(ctx, leaderID, ""); err != nil {
		return nil, err
	}

	code, err := s.uniqueJoinCode(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrJoinCodeExhausted) {
			log.Error().Err(err).Str("user_id", leaderID).Msg("Join code space exhausted")
			return nil, err
		}
		return nil, storeErr("create group", err)
	}

	now := s.now()
	group = &models.Group{
		ID:         uuid.NewString(),
		LeaderID:   leaderID,
		JoinCode:   code,
		VideoLinks: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = saga.New("create_group").
		Add("insert group",
			func(ctx context.Context) error { return s.stores.Groups.Create(ctx, group) },
			func(ctx context.Context) error { return s.stores.Groups.Delete(ctx, group.ID) }).
		Add("insert leader membership",
			func(ctx context.Context) error {
				_, err := s.stores.Members.Add(ctx, group.ID, leaderID)
				return err
			}, nil).
		Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("user_id", leaderID).Msg("Failed to create group")
		return nil, storeErr("create group", err)
	}

	log.Info().
		Str("group_id", group.ID).
		Str("leader_id", leaderID).
		Str("join_code", code).
		Msg("Group created")

	return group, nil
}

// JoinGroup adds userID to the group holding joinCode. Joining a group the
// user already belongs to returns it unchanged.
func (s *GroupService) JoinGroup(ctx context.Context, userID, joinCode string) (group *models.Group, err error) {
	defer func() { s.metrics.observe("join_group", err) }()

	if err := validateIDs(userID); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(joinCode))
	if len(code) != joinCodeLength {
		return nil, apperr.ErrInvalidCode
	}

	group, err = s.stores.Groups.GetByJoinCode(ctx, code)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.ErrInvalidCode
		}
		log.Error().Err(err).Str("join_code", code).Msg("Failed to find group")
		return nil, storeErr("join group", err)
	}
	if group.IsLocked {
		return nil, apperr.ErrGroupLocked
	}

	membership, err := s.stores.Members.GetByUserID(ctx, userID)
	switch {
	case err == nil && membership.GroupID == group.ID:
		return group, nil
	case err == nil:
		return nil, apperr.ErrAlreadyInGroup
	case !apperr.IsNotFound(err):
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to check membership")
		return nil, storeErr("join group", err)
	}

	count, err := s.stores.Members.Count(ctx, group.ID)
	if err != nil {
		log.Error().Err(err).Str("group_id", group.ID).Msg("Failed to count members")
		return nil, storeErr("join group", err)
	}
	if count >= s.rules.MaxGroupSize {
		return nil, apperr.ErrGroupFull
	}

	if _, err := s.stores.Members.Add(ctx, group.ID, userID); err != nil {
		log.Error().Err(err).Str("group_id", group.ID).Str("user_id", userID).Msg("Failed to add member")
		return nil, storeErr("join group", err)
	}

	if err := s.recomputeReadiness(ctx, group.ID); err != nil {
		return nil, storeErr("join group", err)
	}

	log.Info().Str("group_id", group.ID).Str("user_id", userID).Int("members", count+1).Msg("Member joined group")

	refreshed, err := s.stores.Groups.GetByID(ctx, group.ID)
	if err != nil {
		log.Error().Err(err).Str("group_id", group.ID).Msg("Failed to reload joined group")
		return nil, storeErr("join group", err)
	}
	return refreshed, nil
}

// LockGroup closes the group to new members. Only the leader of a ready
// group may lock it; locking an already locked group is a no-op.
func (s *GroupService) LockGroup(ctx context.Context, groupID, userID string) (group *models.Group, err error) {
	defer func() { s.metrics.observe("lock_group", err) }()

	group, err = s.leaderGroup(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if group.IsLocked {
		return group, nil
	}

	count, err := s.stores.Members.Count(ctx, groupID)
	if err != nil {
		return nil, storeErr("lock group", err)
	}
	if count < s.rules.ReadyThreshold {
		return nil, apperr.ErrGroupNotReady
	}

	if err := s.stores.Groups.Update(ctx, groupID, models.GroupUpdate{
		IsReady:  models.Bool(true),
		IsLocked: models.Bool(true),
	}); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to lock group")
		return nil, storeErr("lock group", err)
	}

	group.IsReady = true
	group.IsLocked = true
	log.Info().Str("group_id", groupID).Msg("Group locked")
	return group, nil
}

// UpdateGroupProfile stores one video per member and marks the group live.
// Every link must point into the group's own upload prefix.
func (s *GroupService) UpdateGroupProfile(ctx context.Context, groupID, userID string, videoLinks []string) (group *models.Group, err error) {
	defer func() { s.metrics.observe("update_group_profile", err) }()

	group, err = s.leaderGroup(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !group.IsLocked {
		return nil, apperr.ErrGroupNotLocked
	}
	prefix := s.stores.Videos.PublicURL(groupID + "/")
	for _, link := range videoLinks {
		if strings.TrimSpace(link) == "" {
			return nil, apperr.ErrInvalidInput.With(errors.New("empty video link"))
		}
		if !strings.HasPrefix(link, prefix) {
			return nil, apperr.ErrInvalidInput.With(fmt.Errorf("video link %q is not under %s", link, prefix))
		}
	}

	count, err := s.stores.Members.Count(ctx, groupID)
	if err != nil {
		return nil, storeErr("update group profile", err)
	}
	if len(videoLinks) != count {
		return nil, apperr.ErrVideoCountMismatch
	}

	if err := s.stores.Groups.Update(ctx, groupID, models.GroupUpdate{
		VideoLinks:    videoLinks,
		SetVideoLinks: true,
		IsLive:        models.Bool(true),
	}); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to update group profile")
		return nil, storeErr("update group profile", err)
	}

	group.VideoLinks = videoLinks
	group.IsLive = true
	log.Info().Str("group_id", groupID).Int("videos", len(videoLinks)).Msg("Group is live")
	return group, nil
}

// LeaveGroup removes userID from the group. The leader leaving disbands the
// group, as does the last member leaving.
func (s *GroupService) LeaveGroup(ctx context.Context, userID, groupID string) (err error) {
	defer func() { s.metrics.observe("leave_group", err) }()

	if err := validateIDs(userID, groupID); err != nil {
		return err
	}

	group, err := s.stores.Groups.GetByID(ctx, groupID)
	if err != nil {
		return storeErr("leave group", err)
	}

	if group.LeaderID == userID {
		log.Info().Str("group_id", groupID).Str("user_id", userID).Msg("Group leader is leaving, disbanding group")
		return s.disband(ctx, group)
	}

	if err := s.stores.Members.Remove(ctx, groupID, userID); err != nil {
		if apperr.IsNotFound(err) {
			return apperr.ErrNotMember
		}
		log.Error().Err(err).Str("group_id", groupID).Str("user_id", userID).Msg("Failed to leave group")
		return storeErr("leave group", err)
	}

	remaining, err := s.stores.Members.ListByGroup(ctx, groupID)
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to count remaining members")
		return storeErr("leave group", err)
	}

	if len(remaining) == 0 {
		log.Info().Str("group_id", groupID).Msg("No members left in group, deleting group")
		return s.disband(ctx, group)
	}

	leaderPresent := false
	for _, m := range remaining {
		if m.UserID == group.LeaderID {
			leaderPresent = true
			break
		}
	}
	if !leaderPresent {
		if _, err := s.ReassignGroupLeader(ctx, groupID, group.LeaderID); err != nil {
			return err
		}
	}

	if err := s.recomputeReadiness(ctx, groupID); err != nil {
		return storeErr("leave group", err)
	}

	log.Info().Str("group_id", groupID).Str("user_id", userID).Int("members", len(remaining)).Msg("Member left group")
	return nil
}

// ReassignGroupLeader hands leadership to the earliest joiner other than
// excludeUserID and returns the new leader's id
func (s *GroupService) ReassignGroupLeader(ctx context.Context, groupID, excludeUserID string) (string, error) {
	members, err := s.stores.Members.ListByGroup(ctx, groupID)
	if err != nil {
		return "", storeErr("reassign group leader", err)
	}

	newLeader := ""
	for _, m := range members {
		if m.UserID != excludeUserID {
			newLeader = m.UserID
			break
		}
	}
	if newLeader == "" {
		return "", apperr.ErrNoEligibleLeader
	}

	if err := s.stores.Groups.Update(ctx, groupID, models.GroupUpdate{LeaderID: &newLeader}); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to reassign group leader")
		return "", storeErr("reassign group leader", err)
	}

	log.Info().Str("group_id", groupID).Str("leader_id", newLeader).Msg("Group leader reassigned")
	return newLeader, nil
}

// recomputeReadiness sets is_ready from the member count. A group that
// drops below the threshold is unlocked, taken offline and its videos purged.
func (s *GroupService) recomputeReadiness(ctx context.Context, groupID string) error {
	count, err := s.stores.Members.Count(ctx, groupID)
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to count members")
		return err
	}

	if count >= s.rules.ReadyThreshold {
		return s.stores.Groups.Update(ctx, groupID, models.GroupUpdate{IsReady: models.Bool(true)})
	}

	group, err := s.stores.Groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}

	if err := s.stores.Groups.Update(ctx, groupID, models.GroupUpdate{
		IsReady:       models.Bool(false),
		IsLocked:      models.Bool(false),
		IsLive:        models.Bool(false),
		VideoLinks:    []string{},
		SetVideoLinks: group.IsLive || len(group.VideoLinks) > 0,
	}); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to reset group state")
		return err
	}

	if group.IsLive || len(group.VideoLinks) > 0 {
		if _, err := s.stores.Videos.DeletePrefix(ctx, groupID+"/"); err != nil {
			log.Error().Err(err).Str("group_id", groupID).Msg("Failed to delete group videos")
		}
	}
	return nil
}

// disband tears a group down. Relationship reset and dinner party removal
// are compensated if the video purge fails; once videos are gone the
// remaining deletes only move forward, and a retry by the leader finishes them.
func (s *GroupService) disband(ctx context.Context, group *models.Group) error {
	groupID := group.ID

	party, err := s.stores.Parties.GetActiveByGroup(ctx, groupID)
	if err != nil && !apperr.IsNotFound(err) {
		return storeErr("leave group", err)
	}

	err = saga.New("disband_group").
		Add("reset group",
			func(ctx context.Context) error { return s.resetGroup(ctx, groupID) },
			func(ctx context.Context) error { return s.restoreGroup(ctx, group) }).
		Add("release attendee",
			func(ctx context.Context) error {
				if group.AcceptedAttendeeGroupID == nil {
					return nil
				}
				return ignoreNotFound(s.stores.Groups.Update(ctx, *group.AcceptedAttendeeGroupID, releaseAttendee))
			},
			func(ctx context.Context) error {
				if group.AcceptedAttendeeGroupID == nil {
					return nil
				}
				return ignoreNotFound(s.stores.Groups.Update(ctx, *group.AcceptedAttendeeGroupID, models.GroupUpdate{AttendingHostGroupID: &groupID}))
			}).
		Add("release host",
			func(ctx context.Context) error {
				if group.AttendingHostGroupID == nil {
					return nil
				}
				return ignoreNotFound(s.stores.Groups.Update(ctx, *group.AttendingHostGroupID, releaseHost))
			},
			func(ctx context.Context) error {
				if group.AttendingHostGroupID == nil {
					return nil
				}
				return ignoreNotFound(s.stores.Groups.Update(ctx, *group.AttendingHostGroupID, models.GroupUpdate{
					HasAttendant:            models.Bool(true),
					AcceptedAttendeeGroupID: &groupID,
				}))
			}).
		Add("delete dinner party",
			func(ctx context.Context) error { return s.stores.Parties.DeleteByGroup(ctx, groupID) },
			func(ctx context.Context) error {
				if party == nil {
					return nil
				}
				return s.stores.Parties.Create(ctx, party)
			}).
		Add("delete videos",
			func(ctx context.Context) error {
				_, err := s.stores.Videos.DeletePrefix(ctx, groupID+"/")
				return err
			}, nil).
		Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to disband group")
		return storeErr("leave group", err)
	}

	if err := s.stores.Members.RemoveAll(ctx, groupID); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to delete group members")
		return storeErr("leave group", err)
	}

	if err := s.stores.Requests.DeleteByGroup(ctx, groupID); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to delete party requests")
	}

	if err := s.stores.Groups.Delete(ctx, groupID); err != nil && !apperr.IsNotFound(err) {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to delete group")
		return storeErr("leave group", err)
	}

	log.Info().Str("group_id", groupID).Msg("Group disbanded")
	return nil
}

// resetGroup clears the group's own pairing columns and lifecycle flags.
// It runs before the partners are released, so a failure here leaves both
// sides of the pairing intact.
func (s *GroupService) resetGroup(ctx context.Context, groupID string) error {
	return s.stores.Groups.Update(ctx, groupID, models.GroupUpdate{
		HasAttendant:   models.Bool(false),
		ClearAccepted:  true,
		ClearAttending: true,
		IsReady:        models.Bool(false),
		IsLocked:       models.Bool(false),
		IsLive:         models.Bool(false),
	})
}

// restoreGroup puts back the columns resetGroup cleared
func (s *GroupService) restoreGroup(ctx context.Context, group *models.Group) error {
	return s.stores.Groups.Update(ctx, group.ID, models.GroupUpdate{
		HasAttendant:            models.Bool(group.HasAttendant),
		AcceptedAttendeeGroupID: group.AcceptedAttendeeGroupID,
		AttendingHostGroupID:    group.AttendingHostGroupID,
		IsReady:                 models.Bool(group.IsReady),
		IsLocked:                models.Bool(group.IsLocked),
		IsLive:                  models.Bool(group.IsLive),
	})
}

func ignoreNotFound(err error) error {
	if apperr.IsNotFound(err) {
		return nil
	}
	return err
}

// leaderGroup loads a group and checks that userID leads it
func (s *GroupService) leaderGroup(ctx context.Context, groupID, userID string) (*models.Group, error) {
	if err := validateIDs(groupID, userID); err != nil {
		return nil, err
	}
	group, err := s.stores.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, storeErr("load group", err)
	}
	if group.LeaderID != userID {
		return nil, apperr.ErrNotLeader
	}
	return group, nil
}

// ensureNotInGroup fails if userID belongs to a group other than allowedGroupID
func (s *GroupService) ensureNotInGroup(ctx context.Context, userID, allowedGroupID string) error {
	membership, err := s.stores.Members.GetByUserID(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return storeErr("check group membership", err)
	}
	if membership.GroupID != allowedGroupID {
		return apperr.ErrAlreadyInGroup
	}
	return nil
}
