package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ChangeChannel is the NOTIFY channel the schema triggers publish on
const ChangeChannel = "dinnerparty_changes"

// Change is one row change published by the store. Row carries only the
// key columns of the changed row.
type Change struct {
	Table   string         `json:"table"`
	Op      string         `json:"op"`
	ID      string         `json:"id"`
	GroupID string         `json:"group_id"`
	Row     map[string]any `json:"row"`
}

// Field returns a row column rendered as a string, or "" if absent or null
func (c Change) Field(column string) string {
	v, ok := c.Row[column]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ParseChange decodes a notification payload
func ParseChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("failed to decode change payload: %w", err)
	}
	if c.Table == "" {
		return Change{}, fmt.Errorf("change payload has no table")
	}
	return c, nil
}

// ChangeFeed listens for row changes on a dedicated pooled connection
type ChangeFeed struct {
	pool *pgxpool.Pool
}

// NewChangeFeed creates a change feed over pool
func NewChangeFeed(pool *pgxpool.Pool) *ChangeFeed {
	return &ChangeFeed{pool: pool}
}

// Listen blocks, calling fn for each change until ctx is cancelled or the
// connection fails.
func (f *ChangeFeed) Listen(ctx context.Context, fn func(Change)) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}
	log.Info().Str("channel", ChangeChannel).Msg("Change feed listening")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}

		change, err := ParseChange(n.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping malformed change notification")
			continue
		}
		fn(change)
	}
}
