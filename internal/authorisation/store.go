package authorisation

import (
	"context"
)

// Store is the persistence collaborator for authorisations. Implementations
// must enforce the optimistic version check on update: a stale version fails
// with a status-conflict error instead of overwriting.
type Store interface {
	Save(ctx context.Context, auth *Authorisation) error
	FindByExternalID(ctx context.Context, externalID string) (*Authorisation, error)
	FindByParent(ctx context.Context, parentExternalID string, typ Type) ([]*Authorisation, error)
	UpdateIfVersion(ctx context.Context, auth *Authorisation) error

	CountByStatusIn(ctx context.Context, statuses []ScaStatus) (int, error)
	FindByStatusIn(ctx context.Context, statuses []ScaStatus, offset, limit int) ([]*Authorisation, error)
	SaveAll(ctx context.Context, batch []*Authorisation) error
}
