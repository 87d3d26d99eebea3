package repository

import (
	"context"
	"fmt"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// RequestRepository handles database operations for party requests
type RequestRepository struct {
	db DB
}

// NewRequestRepository creates a new party request repository
func NewRequestRepository(db DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a party request. The unique index on
// (requesting_group_id, host_group_id) decides concurrent duplicates.
func (r *RequestRepository) Create(ctx context.Context, req *models.PartyRequest) error {
	query := `
		INSERT INTO party_requests (id, requesting_group_id, host_group_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (requesting_group_id, host_group_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, req.ID, req.RequestingGroupID, req.HostGroupID, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create party request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.ErrDuplicateRequest
	}
	return nil
}

// GetByID retrieves a party request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.PartyRequest, error) {
	query := `SELECT id, requesting_group_id, host_group_id, created_at FROM party_requests WHERE id = $1`
	var req models.PartyRequest
	err := r.db.QueryRow(ctx, query, id).Scan(&req.ID, &req.RequestingGroupID, &req.HostGroupID, &req.CreatedAt)
	if err != nil {
		if nf := notFound("party request", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to get party request: %w", err)
	}
	return &req, nil
}

// Exists checks for a pending request between two groups
func (r *RequestRepository) Exists(ctx context.Context, requestingGroupID, hostGroupID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM party_requests WHERE requesting_group_id = $1 AND host_group_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, requestingGroupID, hostGroupID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing request: %w", err)
	}
	return exists, nil
}

// ListByHost returns the pending requests addressed to a host, oldest first
func (r *RequestRepository) ListByHost(ctx context.Context, hostGroupID string) ([]models.PartyRequest, error) {
	query := `
		SELECT id, requesting_group_id, host_group_id, created_at
		FROM party_requests
		WHERE host_group_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, hostGroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list party requests: %w", err)
	}
	reqs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PartyRequest, error) {
		var req models.PartyRequest
		err := row.Scan(&req.ID, &req.RequestingGroupID, &req.HostGroupID, &req.CreatedAt)
		return req, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan party requests: %w", err)
	}
	return reqs, nil
}

// DeleteByHost deletes every request addressed to a host and returns them,
// so a caller can restore them if it needs to undo.
func (r *RequestRepository) DeleteByHost(ctx context.Context, hostGroupID string) ([]models.PartyRequest, error) {
	return r.deleteReturning(ctx, `DELETE FROM party_requests WHERE host_group_id = $1
		RETURNING id, requesting_group_id, host_group_id, created_at`, hostGroupID)
}

// DeleteByRequester deletes every outgoing request of a group
func (r *RequestRepository) DeleteByRequester(ctx context.Context, requestingGroupID string) ([]models.PartyRequest, error) {
	return r.deleteReturning(ctx, `DELETE FROM party_requests WHERE requesting_group_id = $1
		RETURNING id, requesting_group_id, host_group_id, created_at`, requestingGroupID)
}

// DeleteByGroup deletes every request referencing a group on either side
func (r *RequestRepository) DeleteByGroup(ctx context.Context, groupID string) error {
	query := `DELETE FROM party_requests WHERE requesting_group_id = $1 OR host_group_id = $1`
	if _, err := r.db.Exec(ctx, query, groupID); err != nil {
		return fmt.Errorf("failed to delete party requests: %w", err)
	}
	return nil
}

func (r *RequestRepository) deleteReturning(ctx context.Context, query, groupID string) ([]models.PartyRequest, error) {
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete party requests: %w", err)
	}
	reqs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PartyRequest, error) {
		var req models.PartyRequest
		err := row.Scan(&req.ID, &req.RequestingGroupID, &req.HostGroupID, &req.CreatedAt)
		return req, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete party requests: %w", err)
	}
	return reqs, nil
}
