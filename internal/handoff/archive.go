package handoff

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/osnovaresurs/leadbot/internal/session"
)

// Archive persists delivered leads to Postgres for reporting. A nil
// Archive or nil db is a no-op so deployments without a database skip
// persistence silently.
type Archive struct {
	db *sql.DB
}

// NewArchive wraps the database handle.
func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// Save inserts one delivered lead.
func (a *Archive) Save(ctx context.Context, userID int64, displayName string, rec session.Intake) error {
	if a == nil || a.db == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO lead_requests (id, user_id, client_name, address, gas_amount, phone, service_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		uuid.New(), userID, displayName, rec.Address, rec.Quantity, rec.Phone, rec.ServiceLabel,
	)
	if err != nil {
		return fmt.Errorf("handoff: insert lead request: %w", err)
	}
	return nil
}
