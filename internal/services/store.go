package services

import (
	"context"
	"time"

	"dinnerparty-backend/internal/models"
)

// UserStore is the user profile persistence the services depend on
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id string, displayName, pictureURL, phoneNum *string) (*models.User, error)
}

// GroupStore is the group persistence the services depend on
type GroupStore interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id string) (*models.Group, error)
	GetByJoinCode(ctx context.Context, code string) (*models.Group, error)
	JoinCodeExists(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, id string, upd models.GroupUpdate) error
	ClaimAttendant(ctx context.Context, hostID, attendeeID string) (bool, error)
	ClaimHost(ctx context.Context, attendeeID, hostID string) (bool, error)
	Delete(ctx context.Context, id string) error
	ListStaleHosts(ctx context.Context, cutoff time.Time) ([]string, error)
}

// MemberStore is the group membership persistence the services depend on
type MemberStore interface {
	Add(ctx context.Context, groupID, userID string) (*models.GroupMember, error)
	GetByUserID(ctx context.Context, userID string) (*models.GroupMember, error)
	Count(ctx context.Context, groupID string) (int, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.GroupMember, error)
	ListProfiles(ctx context.Context, groupID string) ([]models.MemberProfile, error)
	Remove(ctx context.Context, groupID, userID string) error
	RemoveAll(ctx context.Context, groupID string) error
}

// PartyStore is the dinner party persistence the services depend on
type PartyStore interface {
	Create(ctx context.Context, p *models.DinnerParty) error
	GetActiveByGroup(ctx context.Context, groupID string) (*models.DinnerParty, error)
	ListActive(ctx context.Context) ([]models.DinnerParty, error)
	DeleteByGroup(ctx context.Context, groupID string) error
}

// RequestStore is the party request persistence the services depend on
type RequestStore interface {
	Create(ctx context.Context, req *models.PartyRequest) error
	GetByID(ctx context.Context, id string) (*models.PartyRequest, error)
	Exists(ctx context.Context, requestingGroupID, hostGroupID string) (bool, error)
	ListByHost(ctx context.Context, hostGroupID string) ([]models.PartyRequest, error)
	DeleteByHost(ctx context.Context, hostGroupID string) ([]models.PartyRequest, error)
	DeleteByRequester(ctx context.Context, requestingGroupID string) ([]models.PartyRequest, error)
	DeleteByGroup(ctx context.Context, groupID string) error
}

// VideoStore is the object storage the services depend on
type VideoStore interface {
	PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	PublicURL(key string) string
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Stores bundles the persistence dependencies
type Stores struct {
	Users    UserStore
	Groups   GroupStore
	Members  MemberStore
	Parties  PartyStore
	Requests RequestStore
	Videos   VideoStore
}

// Rules holds the group and pairing limits
type Rules struct {
	MaxGroupSize      int
	ReadyThreshold    int
	JoinCodeAttempts  int
	StaleAfter        time.Duration
	VideoUploadExpiry time.Duration
}

// DefaultRules returns the production limits
func DefaultRules() Rules {
	return Rules{
		MaxGroupSize:      5,
		ReadyThreshold:    3,
		JoinCodeAttempts:  10,
		StaleAfter:        6 * time.Hour,
		VideoUploadExpiry: 10 * time.Minute,
	}
}
