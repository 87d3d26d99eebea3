package services

import (
	"context"
	"time"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"
	"dinnerparty-backend/internal/saga"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Cancel types accepted by CancelAttendance
const (
	CancelAsHost     = "host"
	CancelAsAttendee = "attendee"
)

var (
	releaseHost     = models.GroupUpdate{HasAttendant: models.Bool(false), ClearAccepted: true}
	releaseAttendee = models.GroupUpdate{ClearAttending: true}
)

// MatchingService handles party requests and the host/attendee pairing
type MatchingService struct {
	stores  Stores
	metrics *Metrics
	now     func() time.Time
}

// NewMatchingService creates a new matching service
func NewMatchingService(stores Stores, metrics *Metrics) *MatchingService {
	return &MatchingService{
		stores:  stores,
		metrics: metrics,
		now:     time.Now,
	}
}

// CreatePartyRequest records that requestingGroupID wants to attend
// hostGroupID's dinner party. The unique index on the pair decides races
// the checks below let through.
func (s *MatchingService) CreatePartyRequest(ctx context.Context, requestingGroupID, hostGroupID, actorID string) (req *models.PartyRequest, err error) {
	defer func() { s.metrics.observe("create_party_request", err) }()

	if err := validateIDs(requestingGroupID, hostGroupID, actorID); err != nil {
		return nil, err
	}
	if requestingGroupID == hostGroupID {
		return nil, apperr.ErrSelfRequest
	}

	requester, err := s.stores.Groups.GetByID(ctx, requestingGroupID)
	if err != nil {
		return nil, storeErr("send request", err)
	}
	if requester.LeaderID != actorID {
		return nil, apperr.ErrNotLeader
	}
	if !requester.IsLive {
		return nil, apperr.ErrGroupNotLive
	}

	host, err := s.stores.Groups.GetByID(ctx, hostGroupID)
	if err != nil {
		return nil, storeErr("send request", err)
	}
	if pairedInReverse(requester, host) {
		return nil, apperr.ErrMutualPairing
	}
	if host.HasAttendant || host.AcceptedAttendeeGroupID != nil {
		return nil, apperr.ErrHostAlreadyTaken
	}
	if requester.AttendingHostGroupID != nil {
		return nil, apperr.ErrAlreadyAttending
	}

	if _, err := s.stores.Parties.GetActiveByGroup(ctx, hostGroupID); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.ErrNoDinnerParty
		}
		return nil, storeErr("send request", err)
	}

	exists, err := s.stores.Requests.Exists(ctx, requestingGroupID, hostGroupID)
	if err != nil {
		log.Error().Err(err).Str("group_id", requestingGroupID).Msg("Failed to check existing request")
		return nil, storeErr("send request", err)
	}
	if exists {
		return nil, apperr.ErrDuplicateRequest
	}

	req = &models.PartyRequest{
		ID:                uuid.NewString(),
		RequestingGroupID: requestingGroupID,
		HostGroupID:       hostGroupID,
		CreatedAt:         s.now(),
	}
	if err := s.stores.Requests.Create(ctx, req); err != nil {
		log.Error().Err(err).
			Str("group_id", requestingGroupID).
			Str("host_group_id", hostGroupID).
			Msg("Failed to create party request")
		return nil, storeErr("send request", err)
	}

	log.Info().
		Str("request_id", req.ID).
		Str("group_id", requestingGroupID).
		Str("host_group_id", hostGroupID).
		Msg("Party request created")
	return req, nil
}

// AcceptPartyRequest pairs the request's host with its requester. The host
// claim and attendee claim are conditional updates, so of two concurrent
// accepts exactly one wins. Losing requests to the host are removed with the
// pairing; the requester's other outgoing requests are cleaned up afterwards.
func (s *MatchingService) AcceptPartyRequest(ctx context.Context, requestID, actorID string) (req *models.PartyRequest, err error) {
	defer func() { s.metrics.observe("accept_party_request", err) }()

	if err := validateIDs(requestID, actorID); err != nil {
		return nil, err
	}

	req, err = s.stores.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeErr("accept request", err)
	}
	if err := validateIDs(req.RequestingGroupID, req.HostGroupID); err != nil {
		return nil, err
	}

	host, err := s.stores.Groups.GetByID(ctx, req.HostGroupID)
	if err != nil {
		return nil, storeErr("accept request", err)
	}
	if host.LeaderID != actorID {
		return nil, apperr.ErrNotLeader
	}
	if host.HasAttendant || host.AcceptedAttendeeGroupID != nil {
		return nil, apperr.ErrHostAlreadyTaken
	}

	requester, err := s.stores.Groups.GetByID(ctx, req.RequestingGroupID)
	if err != nil {
		return nil, storeErr("accept request", err)
	}
	if pairedInReverse(requester, host) {
		return nil, apperr.ErrMutualPairing
	}

	var removed []models.PartyRequest
	err = saga.New("accept_party_request").
		Add("claim attendant",
			func(ctx context.Context) error {
				ok, err := s.stores.Groups.ClaimAttendant(ctx, req.HostGroupID, req.RequestingGroupID)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.ErrHostAlreadyTaken
				}
				return nil
			},
			func(ctx context.Context) error {
				return s.stores.Groups.Update(ctx, req.HostGroupID, releaseHost)
			}).
		Add("claim host",
			func(ctx context.Context) error {
				ok, err := s.stores.Groups.ClaimHost(ctx, req.RequestingGroupID, req.HostGroupID)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.ErrAlreadyAttending
				}
				return nil
			},
			func(ctx context.Context) error {
				return s.stores.Groups.Update(ctx, req.RequestingGroupID, releaseAttendee)
			}).
		Add("delete host requests",
			func(ctx context.Context) error {
				var err error
				removed, err = s.stores.Requests.DeleteByHost(ctx, req.HostGroupID)
				return err
			}, nil).
		Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to accept party request")
		return nil, storeErr("accept request", err)
	}

	if _, err := s.stores.Requests.DeleteByRequester(ctx, req.RequestingGroupID); err != nil {
		log.Error().Err(err).
			Str("group_id", req.RequestingGroupID).
			Msg("Failed to delete other outgoing requests")
	}

	log.Info().
		Str("request_id", requestID).
		Str("host_group_id", req.HostGroupID).
		Str("attendee_group_id", req.RequestingGroupID).
		Int("dismissed", dismissed(removed, requestID)).
		Msg("Party request accepted")
	return req, nil
}

// CancelAttendance dissolves the pairing groupID is part of. cancelType says
// which side groupID is on.
func (s *MatchingService) CancelAttendance(ctx context.Context, groupID, cancelType string) (err error) {
	defer func() { s.metrics.observe("cancel_attendance", err) }()

	if err := validateIDs(groupID); err != nil {
		return err
	}
	if cancelType != CancelAsHost && cancelType != CancelAsAttendee {
		return apperr.ErrInvalidCancelType
	}

	group, err := s.stores.Groups.GetByID(ctx, groupID)
	if err != nil {
		return storeErr("cancel attendance", err)
	}

	hostID, attendeeID := groupID, ""
	if cancelType == CancelAsHost {
		if group.AcceptedAttendeeGroupID != nil {
			attendeeID = *group.AcceptedAttendeeGroupID
		}
	} else {
		attendeeID, hostID = groupID, ""
		if group.AttendingHostGroupID != nil {
			hostID = *group.AttendingHostGroupID
		}
	}
	if hostID == "" || attendeeID == "" {
		if cancelType == CancelAsHost && group.HasAttendant {
			// has_attendant without a partner id: reset the flag only
			if err := s.stores.Groups.Update(ctx, groupID, releaseHost); err != nil {
				return storeErr("cancel attendance", err)
			}
			return nil
		}
		return apperr.ErrNotPaired
	}

	if err := releasePairing(ctx, s.stores.Groups, hostID, attendeeID); err != nil {
		return storeErr("cancel attendance", err)
	}

	log.Info().
		Str("host_group_id", hostID).
		Str("attendee_group_id", attendeeID).
		Str("cancel_type", cancelType).
		Msg("Attendance cancelled")
	return nil
}

// CancelAttendanceAs checks that actorID leads groupID before cancelling
func (s *MatchingService) CancelAttendanceAs(ctx context.Context, groupID, actorID, cancelType string) error {
	if err := s.requireLeader(ctx, groupID, actorID); err != nil {
		return err
	}
	return s.CancelAttendance(ctx, groupID, cancelType)
}

// ClearPartyRequests dismisses every pending request addressed to the host
func (s *MatchingService) ClearPartyRequests(ctx context.Context, hostGroupID, actorID string) (n int, err error) {
	defer func() { s.metrics.observe("clear_party_requests", err) }()

	if err := s.requireLeader(ctx, hostGroupID, actorID); err != nil {
		return 0, err
	}
	removed, err := s.stores.Requests.DeleteByHost(ctx, hostGroupID)
	if err != nil {
		log.Error().Err(err).Str("group_id", hostGroupID).Msg("Failed to clear party requests")
		return 0, storeErr("clear requests", err)
	}
	log.Info().Str("group_id", hostGroupID).Int("removed", len(removed)).Msg("Party requests cleared")
	return len(removed), nil
}

// CheckGroupHasAttendant reports whether the host group already has an attendant
func (s *MatchingService) CheckGroupHasAttendant(ctx context.Context, hostGroupID string) (bool, error) {
	if err := validateIDs(hostGroupID); err != nil {
		return false, err
	}
	group, err := s.stores.Groups.GetByID(ctx, hostGroupID)
	if err != nil {
		return false, storeErr("check attendant", err)
	}
	return group.HasAttendant, nil
}

// CheckExistingRequest reports whether requestingGroupID already asked hostGroupID
func (s *MatchingService) CheckExistingRequest(ctx context.Context, requestingGroupID, hostGroupID string) (bool, error) {
	if err := validateIDs(requestingGroupID, hostGroupID); err != nil {
		return false, err
	}
	exists, err := s.stores.Requests.Exists(ctx, requestingGroupID, hostGroupID)
	if err != nil {
		return false, storeErr("check request", err)
	}
	return exists, nil
}

func (s *MatchingService) requireLeader(ctx context.Context, groupID, actorID string) error {
	if err := validateIDs(groupID, actorID); err != nil {
		return err
	}
	group, err := s.stores.Groups.GetByID(ctx, groupID)
	if err != nil {
		return storeErr("load group", err)
	}
	if group.LeaderID != actorID {
		return apperr.ErrNotLeader
	}
	return nil
}

// releasePairing resets both sides of a host/attendee pairing. The host is
// re-paired if the attendee cannot be released; a side that no longer
// exists is skipped.
func releasePairing(ctx context.Context, groups GroupStore, hostID, attendeeID string) error {
	err := saga.New("release_pairing").
		Add("release host",
			func(ctx context.Context) error { return ignoreNotFound(groups.Update(ctx, hostID, releaseHost)) },
			func(ctx context.Context) error {
				return ignoreNotFound(groups.Update(ctx, hostID, models.GroupUpdate{
					HasAttendant:            models.Bool(true),
					AcceptedAttendeeGroupID: &attendeeID,
				}))
			}).
		Add("release attendee",
			func(ctx context.Context) error { return ignoreNotFound(groups.Update(ctx, attendeeID, releaseAttendee)) },
			nil).
		Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("host_group_id", hostID).Str("attendee_group_id", attendeeID).Msg("Failed to release pairing")
	}
	return err
}

// dismissed counts the removed requests other than the accepted one
func dismissed(removed []models.PartyRequest, acceptedID string) int {
	n := 0
	for _, r := range removed {
		if r.ID != acceptedID {
			n++
		}
	}
	return n
}

// pairedInReverse reports whether host already attends requester's dinner
// party, so accepting would pair the two groups both ways
func pairedInReverse(requester, host *models.Group) bool {
	if requester.AcceptedAttendeeGroupID != nil && *requester.AcceptedAttendeeGroupID == host.ID {
		return true
	}
	return host.AttendingHostGroupID != nil && *host.AttendingHostGroupID == requester.ID
}
