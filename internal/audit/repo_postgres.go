package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"conference-orchestrator/pkg/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepo stores the journal in audit_events. INSERT only.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	return utils.Migrate(ctx, r.db, migrationsFS, "migrations", "audit")
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_events (id, call_id, participant_id, type, action, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.CallID, e.ParticipantID, string(e.Type), e.Action, e.Message, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, callID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, call_id, participant_id, type, action, message, metadata, created_at
FROM audit_events
WHERE call_id = $1
ORDER BY created_at, id`, callID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.CallID, &e.ParticipantID, &typ, &e.Action, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
