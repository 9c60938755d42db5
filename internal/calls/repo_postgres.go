package calls

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"conference-orchestrator/pkg/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps each record as a JSONB document next to the columns
// needed for concurrency control and incoming-call lookup.
//
// Table: call_records (see migrations/). The version column is the CAS token.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

// Migrate creates the call_records schema if it is missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return utils.Migrate(ctx, s.db, migrationsFS, "migrations", "calls")
}

const selectRecord = `
SELECT data, listening, version, created_at, updated_at
FROM call_records
`

func (s *PostgresStore) Get(ctx context.Context, id string) (CallRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord+`WHERE id = $1`, id))
}

func (s *PostgresStore) Create(ctx context.Context, rec CallRecord) (CallRecord, error) {
	if err := rec.Validate(); err != nil {
		return CallRecord{}, err
	}
	now := s.clock().UTC()
	rec = rec.Clone()
	rec.Version = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	data, err := json.Marshal(rec)
	if err != nil {
		return CallRecord{}, fmt.Errorf("encode record: %w", err)
	}

	const q = `
INSERT INTO call_records (id, conference_phone_number, listening, version, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING
`
	res, err := s.db.ExecContext(ctx, q, rec.ID, rec.ConferencePhoneNumber, rec.Listening, rec.Version, data, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return CallRecord{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return CallRecord{}, err
	}
	if n == 0 {
		return CallRecord{}, ErrAlreadyExists
	}
	return rec, nil
}

func (s *PostgresStore) UpdateIfVersion(ctx context.Context, id string, version int64, rec CallRecord) (CallRecord, error) {
	rec = rec.Clone()
	rec.ID = id
	rec.Version = version + 1
	rec.UpdatedAt = s.clock().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return CallRecord{}, fmt.Errorf("encode record: %w", err)
	}

	err = utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE call_records
SET data = $3, listening = $4, version = version + 1, updated_at = $5
WHERE id = $1 AND version = $2
RETURNING created_at
`
		err := tx.QueryRowContext(ctx, q, id, version, data, rec.Listening, rec.UpdatedAt).Scan(&rec.CreatedAt)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		// Nothing matched: either the row is gone or someone else won the race.
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM call_records WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	})
	if err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM call_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListListening(ctx context.Context, conferenceNumber string) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+`WHERE conference_phone_number = $1 AND listening ORDER BY id`, conferenceNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (CallRecord, error) {
	var (
		data      []byte
		rec       CallRecord
		listening bool
		version   int64
		created   time.Time
		updated   time.Time
	)
	if err := row.Scan(&data, &listening, &version, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return CallRecord{}, fmt.Errorf("decode record: %w", err)
	}
	// Columns are authoritative for the fields the database maintains.
	rec.Listening = listening
	rec.Version = version
	rec.CreatedAt = created
	rec.UpdatedAt = updated
	return rec, nil
}
