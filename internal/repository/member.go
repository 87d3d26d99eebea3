package repository

import (
	"context"
	"fmt"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// MemberRepository handles database operations for group memberships
type MemberRepository struct {
	db DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Add inserts a membership row; joined_at is assigned by the store
func (r *MemberRepository) Add(ctx context.Context, groupID, userID string) (*models.GroupMember, error) {
	query := `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		RETURNING group_id, user_id, joined_at
	`
	var m models.GroupMember
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ErrAlreadyInGroup.With(err)
		}
		return nil, fmt.Errorf("failed to add group member: %w", err)
	}
	return &m, nil
}

// GetByUserID returns the membership of a user
func (r *MemberRepository) GetByUserID(ctx context.Context, userID string) (*models.GroupMember, error) {
	query := `SELECT group_id, user_id, joined_at FROM group_members WHERE user_id = $1`
	var m models.GroupMember
	err := r.db.QueryRow(ctx, query, userID).Scan(&m.GroupID, &m.UserID, &m.JoinedAt)
	if err != nil {
		if nf := notFound("group membership", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to get group membership: %w", err)
	}
	return &m, nil
}

// Count returns the number of members in a group
func (r *MemberRepository) Count(ctx context.Context, groupID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count group members: %w", err)
	}
	return n, nil
}

// ListByGroup returns a group's members, earliest joiner first
func (r *MemberRepository) ListByGroup(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	query := `
		SELECT group_id, user_id, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at ASC
	`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.GroupMember, error) {
		var m models.GroupMember
		err := row.Scan(&m.GroupID, &m.UserID, &m.JoinedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan group members: %w", err)
	}
	return members, nil
}

// ListProfiles returns a group's members with their profiles, earliest joiner first
func (r *MemberRepository) ListProfiles(ctx context.Context, groupID string) ([]models.MemberProfile, error) {
	query := `
		SELECT m.user_id, u.display_name, u.profile_picture_url, m.joined_at
		FROM group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1
		ORDER BY m.joined_at ASC
	`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member profiles: %w", err)
	}
	profiles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.MemberProfile, error) {
		var p models.MemberProfile
		err := row.Scan(&p.UserID, &p.DisplayName, &p.ProfilePictureURL, &p.JoinedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan member profiles: %w", err)
	}
	return profiles, nil
}

// Remove deletes one membership row
func (r *MemberRepository) Remove(ctx context.Context, groupID, userID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("group membership")
	}
	return nil
}

// RemoveAll deletes every membership row of a group
func (r *MemberRepository) RemoveAll(ctx context.Context, groupID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to remove group members: %w", err)
	}
	return nil
}
