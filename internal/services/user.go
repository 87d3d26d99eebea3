package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const jwtExpDays = 30

// UserService handles user profiles and identity-provider tokens
type UserService struct {
	users     UserStore
	jwtSecret string
	audience  string
	now       func() time.Time
}

// NewUserService creates a new user service
func NewUserService(users UserStore, jwtSecret, audience string) *UserService {
	return &UserService{
		users:     users,
		jwtSecret: jwtSecret,
		audience:  audience,
		now:       time.Now,
	}
}

// GenerateJWT generates a token for userID. Production tokens come from the
// identity provider; this signs with the same shared secret.
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": now.AddDate(0, 0, jwtExpDays).Unix(),
		"iat": now.Unix(),
	}
	if s.audience != "" {
		claims["aud"] = s.audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates a token and returns its subject as the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	userID, err := token.Claims.GetSubject()
	if err != nil || userID == "" {
		return "", fmt.Errorf("sub not found in token")
	}
	if err := validateIDs(userID); err != nil {
		return "", err
	}
	return userID, nil
}

// ProfileUpdate lists the profile fields a partial update may change
type ProfileUpdate struct {
	DisplayName       *string
	ProfilePictureURL *string
	PhoneNum          *string
}

// CreateProfile creates the profile of an authenticated user
func (s *UserService) CreateProfile(ctx context.Context, userID, displayName, pictureURL string, phoneNum *string) (*models.User, error) {
	if err := validateIDs(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(displayName) == "" {
		return nil, apperr.ErrInvalidInput.With(errors.New("display_name is required"))
	}

	user := &models.User{
		ID:                userID,
		DisplayName:       strings.TrimSpace(displayName),
		ProfilePictureURL: pictureURL,
		PhoneNum:          phoneNum,
		CreatedAt:         s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create user profile")
		return nil, storeErr("create profile", err)
	}

	log.Info().Str("user_id", userID).Msg("User profile created")
	return user, nil
}

// GetProfile returns the user's profile
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	if err := validateIDs(userID); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr("load profile", err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of upd
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	if err := validateIDs(userID); err != nil {
		return nil, err
	}
	if upd.DisplayName != nil && strings.TrimSpace(*upd.DisplayName) == "" {
		return nil, apperr.ErrInvalidInput.With(errors.New("display_name cannot be empty"))
	}

	user, err := s.users.Update(ctx, userID, upd.DisplayName, upd.ProfilePictureURL, upd.PhoneNum)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update user profile")
		return nil, storeErr("update profile", err)
	}
	return user, nil
}
