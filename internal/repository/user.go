package repository

import (
	"context"
	"fmt"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"
)

// UserRepository handles database operations for user profiles
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, display_name, profile_picture_url, phone_num, created_at`

// Create creates a new user profile
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, display_name, profile_picture_url, phone_num, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, user.ID, user.DisplayName, user.ProfilePictureURL, user.PhoneNum, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrProfileAlreadyExist.With(err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.DisplayName, &user.ProfilePictureURL, &user.PhoneNum, &user.CreatedAt,
	)
	if err != nil {
		if nf := notFound("user", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Update applies a partial profile update and returns the stored row
func (r *UserRepository) Update(ctx context.Context, id string, displayName, pictureURL, phoneNum *string) (*models.User, error) {
	query := `
		UPDATE users SET
			display_name = COALESCE($2, display_name),
			profile_picture_url = COALESCE($3, profile_picture_url),
			phone_num = COALESCE($4, phone_num)
		WHERE id = $1
		RETURNING ` + userColumns
	var user models.User
	err := r.db.QueryRow(ctx, query, id, displayName, pictureURL, phoneNum).Scan(
		&user.ID, &user.DisplayName, &user.ProfilePictureURL, &user.PhoneNum, &user.CreatedAt,
	)
	if err != nil {
		if nf := notFound("user", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}
