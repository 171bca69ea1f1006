// Package anchor implements the durable "current pending order" slot.
//
// The slot is the only persisted state this service owns. It must survive a
// full navigation away from the application, so the production store lives
// in PostgreSQL; an in-memory store backs tests and no-database dev mode.
package anchor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

// PostgresStore implements domain.AnchorStore on a single-row-per-user
// table. Put upserts, so a new checkout atomically supersedes any prior
// unresolved order for the same user.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an anchor store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, userID, orderID string) error {
	query := `
		INSERT INTO purchase_anchors (user_id, order_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET order_id = EXCLUDED.order_id, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, orderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store anchor for user %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (string, error) {
	query := `
		SELECT order_id
		FROM purchase_anchors
		WHERE user_id = $1
	`
	var orderID string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", domain.ErrNoAnchor
		}
		return "", fmt.Errorf("failed to read anchor for user %s: %w", userID, err)
	}
	return orderID, nil
}

func (s *PostgresStore) Clear(ctx context.Context, userID string) error {
	query := `
		DELETE FROM purchase_anchors
		WHERE user_id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to clear anchor for user %s: %w", userID, err)
	}
	return nil
}
