package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"
	"dinnerparty-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DinnerPartyInput is the host-provided part of a dinner party
type DinnerPartyInput struct {
	MainDish   string
	Side       string
	Address    string
	Latitude   float64
	Longitude  float64
	DinnerTime time.Time
}

// VideoUpload is a pre-signed upload slot for one member video
type VideoUpload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateDinnerParty publishes the group's hosting offer. The group must be
// live and have no active dinner party.
func (s *GroupService) CreateDinnerParty(ctx context.Context, groupID, userID string, in DinnerPartyInput) (party *models.DinnerParty, err error) {
	defer func() { s.metrics.observe("create_dinner_party", err) }()

	group, err := s.leaderGroup(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !group.IsLive {
		return nil, apperr.ErrGroupNotLive
	}
	if strings.TrimSpace(in.MainDish) == "" || strings.TrimSpace(in.Address) == "" || in.DinnerTime.IsZero() {
		return nil, apperr.ErrInvalidInput.With(errors.New("main_dish, address and dinner_time are required"))
	}

	now := s.now()
	party = &models.DinnerParty{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		MainDish:   in.MainDish,
		Side:       in.Side,
		Address:    in.Address,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		DinnerTime: in.DinnerTime,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.stores.Parties.Create(ctx, party); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to create dinner party")
		return nil, storeErr("create dinner party", err)
	}

	log.Info().Str("group_id", groupID).Str("party_id", party.ID).Time("dinner_time", party.DinnerTime).Msg("Dinner party created")
	return party, nil
}

// DeleteDinnerParty withdraws the group's hosting offer, releasing any
// accepted attendee and dismissing pending requests.
func (s *GroupService) DeleteDinnerParty(ctx context.Context, groupID, userID string) (err error) {
	defer func() { s.metrics.observe("delete_dinner_party", err) }()

	group, err := s.leaderGroup(ctx, groupID, userID)
	if err != nil {
		return err
	}

	if _, err := s.stores.Parties.GetActiveByGroup(ctx, groupID); err != nil {
		if apperr.IsNotFound(err) {
			return apperr.ErrNoDinnerParty
		}
		return storeErr("delete dinner party", err)
	}

	if group.AcceptedAttendeeGroupID != nil {
		if err := releasePairing(ctx, s.stores.Groups, groupID, *group.AcceptedAttendeeGroupID); err != nil {
			return storeErr("delete dinner party", err)
		}
	} else if group.HasAttendant {
		if err := s.stores.Groups.Update(ctx, groupID, releaseHost); err != nil {
			return storeErr("delete dinner party", err)
		}
	}

	if _, err := s.stores.Requests.DeleteByHost(ctx, groupID); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to delete party requests")
		return storeErr("delete dinner party", err)
	}

	if err := s.stores.Parties.DeleteByGroup(ctx, groupID); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("Failed to delete dinner party")
		return storeErr("delete dinner party", err)
	}

	log.Info().Str("group_id", groupID).Msg("Dinner party deleted")
	return nil
}

// PresignVideoUpload returns an upload slot for the member video at index.
// The group must be locked and index must address a current member.
func (s *GroupService) PresignVideoUpload(ctx context.Context, groupID, userID string, index int) (upload *VideoUpload, err error) {
	defer func() { s.metrics.observe("presign_video_upload", err) }()

	if err := validateIDs(groupID, userID); err != nil {
		return nil, err
	}

	membership, err := s.stores.Members.GetByUserID(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.ErrNotMember
		}
		return nil, storeErr("prepare upload", err)
	}
	if membership.GroupID != groupID {
		return nil, apperr.ErrNotMember
	}

	group, err := s.stores.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, storeErr("prepare upload", err)
	}
	if !group.IsLocked {
		return nil, apperr.ErrGroupNotLocked
	}

	count, err := s.stores.Members.Count(ctx, groupID)
	if err != nil {
		return nil, storeErr("prepare upload", err)
	}
	if index < 0 || index >= count {
		return nil, apperr.ErrVideoCountMismatch
	}

	now := s.now()
	key := storage.VideoKey(groupID, index, now)
	url, err := s.stores.Videos.PresignUpload(ctx, key, "video/mp4", s.rules.VideoUploadExpiry)
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Str("key", key).Msg("Failed to presign video upload")
		return nil, storeErr("prepare upload", err)
	}

	return &VideoUpload{
		Key:       key,
		UploadURL: url,
		PublicURL: s.stores.Videos.PublicURL(key),
		ExpiresAt: now.Add(s.rules.VideoUploadExpiry),
	}, nil
}
