package tpp

import (
	"context"
	"database/sql"
	"fmt"

	dErrors "xs2acms/pkg/domain-errors"
)

// PostgresStore persists stop list entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const stopListColumns = `
	id, tpp_authorisation_number, status, blocking_expires_at,
	instance_id, version, created_at, updated_at
`

func (s *PostgresStore) Save(ctx context.Context, entry *StopListEntry) error {
	query := `
		INSERT INTO tpp_stop_list (` + stopListColumns + `)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		ON CONFLICT (tpp_authorisation_number, instance_id) DO UPDATE SET
			status = EXCLUDED.status,
			blocking_expires_at = EXCLUDED.blocking_expires_at,
			updated_at = EXCLUDED.updated_at,
			version = tpp_stop_list.version + 1
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.TppAuthorisationNumber, entry.Status,
		entry.BlockingExpiresAt, entry.InstanceID, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save stop list entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAuthorisationNumber(ctx context.Context, authorisationNumber, instanceID string) (*StopListEntry, error) {
	query := `
		SELECT ` + stopListColumns + `
		FROM tpp_stop_list
		WHERE tpp_authorisation_number = $1 AND instance_id = $2
	`
	entry, err := scanStopListEntry(s.db.QueryRowContext(ctx, query, authorisationNumber, instanceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dErrors.New(dErrors.CodeNotFound, "stop list entry not found")
		}
		return nil, fmt.Errorf("find stop list entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) UpdateIfVersion(ctx context.Context, entry *StopListEntry) error {
	query := `
		UPDATE tpp_stop_list
		SET status = $3, blocking_expires_at = $4, updated_at = $5, version = version + 1
		WHERE tpp_authorisation_number = $1 AND instance_id = $6 AND version = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		entry.TppAuthorisationNumber, entry.Version, entry.Status,
		entry.BlockingExpiresAt, entry.UpdatedAt, entry.InstanceID,
	)
	if err != nil {
		return fmt.Errorf("update stop list entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stop list entry rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeStatusConflict, "stop list entry was modified concurrently")
	}
	entry.Version++
	return nil
}

func (s *PostgresStore) CountBlockedWithExpiry(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM tpp_stop_list WHERE status = 'BLOCKED' AND blocking_expires_at IS NOT NULL`
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count blocked tpps: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) FindBlockedWithExpiry(ctx context.Context, offset, limit int) ([]*StopListEntry, error) {
	query := `
		SELECT ` + stopListColumns + `
		FROM tpp_stop_list
		WHERE status = 'BLOCKED' AND blocking_expires_at IS NOT NULL
		ORDER BY id
		OFFSET $1 LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("find blocked tpps: %w", err)
	}
	defer rows.Close()

	var out []*StopListEntry
	for rows.Next() {
		entry, err := scanStopListEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stop list entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stop list entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveAll(ctx context.Context, batch []*StopListEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save stop list entries: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE tpp_stop_list
		SET status = $2, blocking_expires_at = $3, updated_at = $4, version = version + 1
		WHERE id = $1
	`
	for _, entry := range batch {
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.Status, entry.BlockingExpiresAt, entry.UpdatedAt); err != nil {
			return fmt.Errorf("save stop list entry %s: %w", entry.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save stop list entries: %w", err)
	}
	return nil
}

type stopListRow interface {
	Scan(dest ...any) error
}

func scanStopListEntry(row stopListRow) (*StopListEntry, error) {
	var entry StopListEntry
	var expiresAt sql.NullTime
	err := row.Scan(
		&entry.ID, &entry.TppAuthorisationNumber, &entry.Status, &expiresAt,
		&entry.InstanceID, &entry.Version, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		entry.BlockingExpiresAt = &expiresAt.Time
	}
	return &entry, nil
}
