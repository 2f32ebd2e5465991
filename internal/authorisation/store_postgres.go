package authorisation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	dErrors "xs2acms/pkg/domain-errors"
)

// PostgresStore persists authorisations in PostgreSQL. Pure I/O — transition
// rules stay in the state machine and the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const authorisationColumns = `
	id, external_id, parent_external_id, auth_type, sca_approach, sca_status,
	psu_id, authentication_method_id, available_methods,
	redirect_url_expires_at, expires_at, instance_id, version
`

func (s *PostgresStore) Save(ctx context.Context, auth *Authorisation) error {
	methods, err := json.Marshal(auth.AvailableMethods)
	if err != nil {
		return fmt.Errorf("marshal sca methods: %w", err)
	}
	query := `
		INSERT INTO authorisations (` + authorisationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0)
	`
	_, err = s.db.ExecContext(ctx, query,
		auth.ID, auth.ExternalID, auth.ParentExternalID, auth.Type,
		auth.ScaApproach, auth.ScaStatus, auth.PsuID,
		auth.AuthenticationMethodID, methods,
		auth.RedirectURLExpiresAt, auth.ExpiresAt, auth.InstanceID,
	)
	if err != nil {
		return fmt.Errorf("save authorisation: %w", err)
	}
	auth.Version = 0
	return nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*Authorisation, error) {
	query := `SELECT ` + authorisationColumns + ` FROM authorisations WHERE external_id = $1`
	auth, err := scanAuthorisation(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dErrors.New(dErrors.CodeResourceUnknown, "authorisation not found")
		}
		return nil, fmt.Errorf("find authorisation: %w", err)
	}
	return auth, nil
}

func (s *PostgresStore) FindByParent(ctx context.Context, parentExternalID string, typ Type) ([]*Authorisation, error) {
	query := `
		SELECT ` + authorisationColumns + `
		FROM authorisations
		WHERE parent_external_id = $1 AND auth_type = $2
		ORDER BY external_id
	`
	rows, err := s.db.QueryContext(ctx, query, parentExternalID, typ)
	if err != nil {
		return nil, fmt.Errorf("find authorisations by parent: %w", err)
	}
	defer rows.Close()
	return collectAuthorisations(rows)
}

// UpdateIfVersion writes the record only when the stored version still
// matches and the stored status is not terminal. Zero rows affected means a
// concurrent writer or a finalised record won the race.
func (s *PostgresStore) UpdateIfVersion(ctx context.Context, auth *Authorisation) error {
	methods, err := json.Marshal(auth.AvailableMethods)
	if err != nil {
		return fmt.Errorf("marshal sca methods: %w", err)
	}
	query := `
		UPDATE authorisations
		SET sca_status = $3,
		    psu_id = $4,
		    authentication_method_id = $5,
		    available_methods = $6,
		    redirect_url_expires_at = $7,
		    expires_at = $8,
		    version = version + 1
		WHERE external_id = $1
		  AND version = $2
		  AND sca_status NOT IN ('FINALISED', 'FAILED', 'EXEMPTED')
	`
	result, err := s.db.ExecContext(ctx, query,
		auth.ExternalID, auth.Version, auth.ScaStatus, auth.PsuID,
		auth.AuthenticationMethodID, methods,
		auth.RedirectURLExpiresAt, auth.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update authorisation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update authorisation rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeStatusConflict, "authorisation is finalised or was modified concurrently")
	}
	auth.Version++
	return nil
}

func (s *PostgresStore) CountByStatusIn(ctx context.Context, statuses []ScaStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM authorisations WHERE sca_status = ANY($1)`
	if err := s.db.QueryRowContext(ctx, query, pq.Array(statusStrings(statuses))).Scan(&count); err != nil {
		return 0, fmt.Errorf("count authorisations by status: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) FindByStatusIn(ctx context.Context, statuses []ScaStatus, offset, limit int) ([]*Authorisation, error) {
	query := `
		SELECT ` + authorisationColumns + `
		FROM authorisations
		WHERE sca_status = ANY($1)
		ORDER BY external_id
		OFFSET $2 LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(statusStrings(statuses)), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("find authorisations by status: %w", err)
	}
	defer rows.Close()
	return collectAuthorisations(rows)
}

// SaveAll batch-updates sweep results. Rows that reached a terminal status
// after the page was fetched are left alone.
func (s *PostgresStore) SaveAll(ctx context.Context, batch []*Authorisation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save authorisations: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE authorisations
		SET sca_status = $2, version = version + 1
		WHERE external_id = $1
		  AND sca_status NOT IN ('FINALISED', 'FAILED', 'EXEMPTED')
	`
	for _, auth := range batch {
		if _, err := tx.ExecContext(ctx, query, auth.ExternalID, auth.ScaStatus); err != nil {
			return fmt.Errorf("save authorisation %s: %w", auth.ExternalID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save authorisations: %w", err)
	}
	return nil
}

type authorisationRow interface {
	Scan(dest ...any) error
}

func scanAuthorisation(row authorisationRow) (*Authorisation, error) {
	var auth Authorisation
	var methods []byte
	var methodID sql.NullString
	var redirectExpires, expires sql.NullTime
	err := row.Scan(
		&auth.ID, &auth.ExternalID, &auth.ParentExternalID, &auth.Type,
		&auth.ScaApproach, &auth.ScaStatus, &auth.PsuID,
		&methodID, &methods, &redirectExpires, &expires,
		&auth.InstanceID, &auth.Version,
	)
	if err != nil {
		return nil, err
	}
	if methodID.Valid {
		auth.AuthenticationMethodID = methodID.String
	}
	if len(methods) > 0 {
		if err := json.Unmarshal(methods, &auth.AvailableMethods); err != nil {
			return nil, fmt.Errorf("unmarshal sca methods: %w", err)
		}
	}
	if redirectExpires.Valid {
		auth.RedirectURLExpiresAt = &redirectExpires.Time
	}
	if expires.Valid {
		auth.ExpiresAt = &expires.Time
	}
	return &auth, nil
}

func collectAuthorisations(rows *sql.Rows) ([]*Authorisation, error) {
	var out []*Authorisation
	for rows.Next() {
		auth, err := scanAuthorisation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan authorisation: %w", err)
		}
		out = append(out, auth)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorisations: %w", err)
	}
	return out, nil
}

func statusStrings(statuses []ScaStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
