package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	dErrors "xs2acms/pkg/domain-errors"
)

// PostgresStore persists consents in PostgreSQL. Pure I/O — expiry
// predicates and status policy live in the domain model and the scheduler.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const consentColumns = `
	id, external_id, status, recurring_indicator, valid_until, expire_date,
	frequency_per_day, multilevel_sca_required, psu_data, consent_data,
	last_used_at, signing_basket_blocked, tpp_authorisation_number,
	instance_id, version, created_at
`

func (s *PostgresStore) Save(ctx context.Context, c *Consent) error {
	psuData, err := json.Marshal(c.PsuData)
	if err != nil {
		return fmt.Errorf("marshal psu data: %w", err)
	}
	query := `
		INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $16, $15)
		ON CONFLICT (external_id) DO UPDATE SET
			status = EXCLUDED.status,
			valid_until = EXCLUDED.valid_until,
			psu_data = EXCLUDED.psu_data,
			consent_data = EXCLUDED.consent_data,
			last_used_at = EXCLUDED.last_used_at,
			signing_basket_blocked = EXCLUDED.signing_basket_blocked,
			version = consents.version + 1
		WHERE consents.version = $16
		  AND consents.status NOT IN ('REJECTED', 'EXPIRED', 'REVOKED_BY_PSU', 'TERMINATED_BY_TPP')
	`
	result, err := s.db.ExecContext(ctx, query,
		c.ID, c.ExternalID, c.Status, c.RecurringIndicator, c.ValidUntil,
		c.ExpireDate, c.FrequencyPerDay, c.MultilevelScaRequired, psuData,
		c.ConsentData, c.LastUsedAt, c.SigningBasketBlocked,
		c.TppAuthorisationNumber, c.InstanceID, c.CreatedAt, c.Version,
	)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save consent rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeStatusConflict, "consent is finalised or was modified concurrently")
	}
	return nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE external_id = $1`
	c, err := scanConsent(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dErrors.New(dErrors.CodeResourceUnknown, "consent not found")
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return c, nil
}

// UpdateStatusIfVersion is the compare-and-swap status write. Zero rows
// affected means a concurrent writer or a finalised consent won the race.
func (s *PostgresStore) UpdateStatusIfVersion(ctx context.Context, externalID string, expectedVersion int64, status Status) error {
	query := `
		UPDATE consents
		SET status = $3, version = version + 1
		WHERE external_id = $1
		  AND version = $2
		  AND status NOT IN ('REJECTED', 'EXPIRED', 'REVOKED_BY_PSU', 'TERMINATED_BY_TPP')
	`
	result, err := s.db.ExecContext(ctx, query, externalID, expectedVersion, status)
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent status rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeStatusConflict, "consent is finalised or was modified concurrently")
	}
	return nil
}

func (s *PostgresStore) CountByStatusIn(ctx context.Context, statuses []Status) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM consents WHERE status = ANY($1)`
	if err := s.db.QueryRowContext(ctx, query, pq.Array(statusStrings(statuses))).Scan(&count); err != nil {
		return 0, fmt.Errorf("count consents by status: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) FindByStatusIn(ctx context.Context, statuses []Status, offset, limit int) ([]*Consent, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE status = ANY($1)
		ORDER BY external_id
		OFFSET $2 LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(statusStrings(statuses)), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("find consents by status: %w", err)
	}
	defer rows.Close()

	var out []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return out, nil
}

// SaveAll batch-writes sweep results. One transaction per page keeps sweep
// commits bounded.
func (s *PostgresStore) SaveAll(ctx context.Context, batch []*Consent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save consents: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Rows that reached a terminal status after the page was fetched are
	// left alone; a sweep only ever force-transitions live rows.
	query := `
		UPDATE consents
		SET status = $2, version = version + 1
		WHERE external_id = $1
		  AND status NOT IN ('REJECTED', 'EXPIRED', 'REVOKED_BY_PSU', 'TERMINATED_BY_TPP')
	`
	for _, c := range batch {
		if _, err := tx.ExecContext(ctx, query, c.ExternalID, c.Status); err != nil {
			return fmt.Errorf("save consent %s: %w", c.ExternalID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save consents: %w", err)
	}
	return nil
}

// IncrementUsage bumps the per-day counter atomically. INSERT ... ON
// CONFLICT with a forced increment never drops a count under concurrency.
func (s *PostgresStore) IncrementUsage(ctx context.Context, consentExternalID, requestURI string, usageDate time.Time) (int, error) {
	query := `
		INSERT INTO consent_usages (consent_external_id, request_uri, usage_date, usage_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (consent_external_id, request_uri, usage_date) DO UPDATE SET
			usage_count = consent_usages.usage_count + 1
		RETURNING usage_count
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, consentExternalID, requestURI, usageDate.Format("2006-01-02")).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment consent usage: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UsageCount(ctx context.Context, consentExternalID string, usageDate time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(usage_count), 0)
		FROM consent_usages
		WHERE consent_external_id = $1 AND usage_date = $2
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, consentExternalID, usageDate.Format("2006-01-02")).Scan(&count); err != nil {
		return 0, fmt.Errorf("consent usage count: %w", err)
	}
	return count, nil
}

type consentRow interface {
	Scan(dest ...any) error
}

func scanConsent(row consentRow) (*Consent, error) {
	var c Consent
	var psuData []byte
	var lastUsed sql.NullTime
	err := row.Scan(
		&c.ID, &c.ExternalID, &c.Status, &c.RecurringIndicator, &c.ValidUntil,
		&c.ExpireDate, &c.FrequencyPerDay, &c.MultilevelScaRequired, &psuData,
		&c.ConsentData, &lastUsed, &c.SigningBasketBlocked,
		&c.TppAuthorisationNumber, &c.InstanceID, &c.Version, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(psuData) > 0 {
		if err := json.Unmarshal(psuData, &c.PsuData); err != nil {
			return nil, fmt.Errorf("unmarshal psu data: %w", err)
		}
	}
	if lastUsed.Valid {
		c.LastUsedAt = &lastUsed.Time
	}
	return &c, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
