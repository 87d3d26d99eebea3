package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// GroupRepository handles database operations for groups
type GroupRepository struct {
	db DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db DB) *GroupRepository {
	return &GroupRepository{db: db}
}

const groupColumns = `id, leader_id, join_code, is_ready, is_locked, is_live, has_attendant,
	video_links, accepted_attendee_group_id, attending_host_group_id, created_at, updated_at`

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	err := row.Scan(
		&g.ID, &g.LeaderID, &g.JoinCode, &g.IsReady, &g.IsLocked, &g.IsLive, &g.HasAttendant,
		&g.VideoLinks, &g.AcceptedAttendeeGroupID, &g.AttendingHostGroupID, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if g.VideoLinks == nil {
		g.VideoLinks = []string{}
	}
	return &g, nil
}

// Create inserts a new group
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	query := `
		INSERT INTO groups (id, leader_id, join_code, video_links, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	links := group.VideoLinks
	if links == nil {
		links = []string{}
	}
	_, err := r.db.Exec(ctx, query, group.ID, group.LeaderID, group.JoinCode, links, group.CreatedAt, group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GetByID retrieves a group by ID
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	g, err := scanGroup(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if nf := notFound("group", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// GetByJoinCode retrieves a group by its join code
func (r *GroupRepository) GetByJoinCode(ctx context.Context, code string) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE join_code = $1`
	g, err := scanGroup(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if nf := notFound("group", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to get group by join code: %w", err)
	}
	return g, nil
}

// JoinCodeExists checks if a join code is already taken
func (r *GroupRepository) JoinCodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM groups WHERE join_code = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check join code existence: %w", err)
	}
	return exists, nil
}

// Update applies the non-nil fields of upd to the group
func (r *GroupRepository) Update(ctx context.Context, id string, upd models.GroupUpdate) error {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.LeaderID != nil {
		add("leader_id", *upd.LeaderID)
	}
	if upd.IsReady != nil {
		add("is_ready", *upd.IsReady)
	}
	if upd.IsLocked != nil {
		add("is_locked", *upd.IsLocked)
	}
	if upd.IsLive != nil {
		add("is_live", *upd.IsLive)
	}
	if upd.HasAttendant != nil {
		add("has_attendant", *upd.HasAttendant)
	}
	if upd.SetVideoLinks {
		links := upd.VideoLinks
		if links == nil {
			links = []string{}
		}
		add("video_links", links)
	}
	if upd.ClearAccepted {
		sets = append(sets, "accepted_attendee_group_id = NULL")
	} else if upd.AcceptedAttendeeGroupID != nil {
		add("accepted_attendee_group_id", *upd.AcceptedAttendeeGroupID)
	}
	if upd.ClearAttending {
		sets = append(sets, "attending_host_group_id = NULL")
	} else if upd.AttendingHostGroupID != nil {
		add("attending_host_group_id", *upd.AttendingHostGroupID)
	}

	query := `UPDATE groups SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("group")
	}
	return nil
}

// ClaimAttendant marks the host as taken by attendeeID only if it has no
// attendant yet. It reports false when another caller won the race.
func (r *GroupRepository) ClaimAttendant(ctx context.Context, hostID, attendeeID string) (bool, error) {
	query := `
		UPDATE groups
		SET has_attendant = true, accepted_attendee_group_id = $2, updated_at = now()
		WHERE id = $1 AND NOT has_attendant AND accepted_attendee_group_id IS NULL
	`
	result, err := r.db.Exec(ctx, query, hostID, attendeeID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperr.ErrAlreadyAttending.With(err)
		}
		return false, fmt.Errorf("failed to claim attendant: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ClaimHost sets the attendee's host only if it is not attending anyone.
// It reports false when the attendee is already attending.
func (r *GroupRepository) ClaimHost(ctx context.Context, attendeeID, hostID string) (bool, error) {
	query := `
		UPDATE groups
		SET attending_host_group_id = $2, updated_at = now()
		WHERE id = $1 AND attending_host_group_id IS NULL
	`
	result, err := r.db.Exec(ctx, query, attendeeID, hostID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperr.ErrHostAlreadyTaken.With(err)
		}
		return false, fmt.Errorf("failed to set attending host: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Delete deletes a group by ID
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("group")
	}
	return nil
}

// ListStaleHosts returns host groups with an accepted attendee whose active
// dinner party was scheduled before cutoff.
func (r *GroupRepository) ListStaleHosts(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT g.id
		FROM groups g
		JOIN dinner_parties p ON p.group_id = g.id AND p.is_active
		WHERE g.accepted_attendee_group_id IS NOT NULL
		  AND p.dinner_time < $1
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale hosts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale hosts: %w", err)
	}
	return ids, nil
}
