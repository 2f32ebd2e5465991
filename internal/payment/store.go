package payment

import (
	"context"
)

// Store is the persistence collaborator for payments.
type Store interface {
	Save(ctx context.Context, p *Payment) error
	FindByExternalID(ctx context.Context, externalID string) (*Payment, error)
	UpdateStatusIfVersion(ctx context.Context, externalID string, expectedVersion int64, status TransactionStatus) error

	CountByStatusIn(ctx context.Context, statuses []TransactionStatus) (int, error)
	FindByStatusIn(ctx context.Context, statuses []TransactionStatus, offset, limit int) ([]*Payment, error)
	SaveAll(ctx context.Context, batch []*Payment) error
}
