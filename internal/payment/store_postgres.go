package payment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	dErrors "xs2acms/pkg/domain-errors"
)

// PostgresStore persists payments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `
	id, external_id, status, multilevel_sca_required, psu_ids, payment_data,
	tpp_authorisation_number, instance_id, version, created_at
`

func (s *PostgresStore) Save(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)
		ON CONFLICT (external_id) DO UPDATE SET
			status = EXCLUDED.status,
			payment_data = EXCLUDED.payment_data,
			version = payments.version + 1
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.ExternalID, p.Status, p.MultilevelScaRequired,
		pq.Array(p.PsuIDs), p.PaymentData, p.TppAuthorisationNumber,
		p.InstanceID, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_id = $1`
	p, err := scanPayment(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dErrors.New(dErrors.CodeResourceUnknown, "payment not found")
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateStatusIfVersion(ctx context.Context, externalID string, expectedVersion int64, status TransactionStatus) error {
	query := `
		UPDATE payments
		SET status = $3, version = version + 1
		WHERE external_id = $1
		  AND version = $2
		  AND status NOT IN ('ACCP', 'RJCT', 'CANC', 'EXPD')
	`
	result, err := s.db.ExecContext(ctx, query, externalID, expectedVersion, status)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment status rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeStatusConflict, "payment is finalised or was modified concurrently")
	}
	return nil
}

func (s *PostgresStore) CountByStatusIn(ctx context.Context, statuses []TransactionStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM payments WHERE status = ANY($1)`
	if err := s.db.QueryRowContext(ctx, query, pq.Array(statusStrings(statuses))).Scan(&count); err != nil {
		return 0, fmt.Errorf("count payments by status: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) FindByStatusIn(ctx context.Context, statuses []TransactionStatus, offset, limit int) ([]*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ANY($1)
		ORDER BY external_id
		OFFSET $2 LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(statusStrings(statuses)), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("find payments by status: %w", err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveAll(ctx context.Context, batch []*Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save payments: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE payments
		SET status = $2, version = version + 1
		WHERE external_id = $1
		  AND status NOT IN ('ACCP', 'RJCT', 'CANC', 'EXPD')
	`
	for _, p := range batch {
		if _, err := tx.ExecContext(ctx, query, p.ExternalID, p.Status); err != nil {
			return fmt.Errorf("save payment %s: %w", p.ExternalID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save payments: %w", err)
	}
	return nil
}

type paymentRow interface {
	Scan(dest ...any) error
}

func scanPayment(row paymentRow) (*Payment, error) {
	var p Payment
	var psuIDs pq.StringArray
	err := row.Scan(
		&p.ID, &p.ExternalID, &p.Status, &p.MultilevelScaRequired, &psuIDs,
		&p.PaymentData, &p.TppAuthorisationNumber, &p.InstanceID, &p.Version,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PsuIDs = psuIDs
	return &p, nil
}

func statusStrings(statuses []TransactionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
