package repository

import (
	"context"
	"fmt"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// PartyRepository handles database operations for dinner parties
type PartyRepository struct {
	db DB
}

// NewPartyRepository creates a new dinner party repository
func NewPartyRepository(db DB) *PartyRepository {
	return &PartyRepository{db: db}
}

const partyColumns = `id, group_id, main_dish, side, address, latitude, longitude,
	dinner_time, is_active, created_at, updated_at`

func scanParty(row pgx.Row) (models.DinnerParty, error) {
	var p models.DinnerParty
	err := row.Scan(
		&p.ID, &p.GroupID, &p.MainDish, &p.Side, &p.Address, &p.Latitude, &p.Longitude,
		&p.DinnerTime, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// Create inserts a dinner party
func (r *PartyRepository) Create(ctx context.Context, p *models.DinnerParty) error {
	query := `
		INSERT INTO dinner_parties (id, group_id, main_dish, side, address, latitude, longitude,
			dinner_time, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.GroupID, p.MainDish, p.Side, p.Address, p.Latitude, p.Longitude,
		p.DinnerTime, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrPartyAlreadyActive.With(err)
		}
		return fmt.Errorf("failed to create dinner party: %w", err)
	}
	return nil
}

// GetActiveByGroup returns a group's active dinner party
func (r *PartyRepository) GetActiveByGroup(ctx context.Context, groupID string) (*models.DinnerParty, error) {
	query := `SELECT ` + partyColumns + ` FROM dinner_parties WHERE group_id = $1 AND is_active`
	p, err := scanParty(r.db.QueryRow(ctx, query, groupID))
	if err != nil {
		if nf := notFound("dinner party", err); nf != nil {
			return nil, nf
		}
		return nil, fmt.Errorf("failed to get dinner party: %w", err)
	}
	return &p, nil
}

// ListActive returns all active dinner parties, newest first
func (r *PartyRepository) ListActive(ctx context.Context) ([]models.DinnerParty, error) {
	query := `SELECT ` + partyColumns + ` FROM dinner_parties WHERE is_active ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list dinner parties: %w", err)
	}
	parties, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DinnerParty, error) {
		return scanParty(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan dinner parties: %w", err)
	}
	return parties, nil
}

// DeleteByGroup deletes every dinner party of a group
func (r *PartyRepository) DeleteByGroup(ctx context.Context, groupID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM dinner_parties WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to delete dinner party: %w", err)
	}
	return nil
}
