package policy

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for cost-sharing policies.
// Unique violations are returned as *apperr.ConflictError.
type Repository interface {
	Create(ctx context.Context, p *Policy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Policy, error)
	// GetByIDForUpdate loads a live policy and holds its row lock until the
	// surrounding transaction ends. Writers of a policy take this lock.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Policy, error)
	// GetByIDForShare loads a live policy under a share lock, so it cannot be
	// updated or deleted while a wallet is being pointed at it.
	GetByIDForShare(ctx context.Context, id uuid.UUID) (*Policy, error)
	Update(ctx context.Context, p *Policy) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Policy, int, error)
	// CountNameConflicts counts live policies of orgID whose name or name key
	// matches, ignoring excludeID.
	CountNameConflicts(ctx context.Context, orgID uuid.UUID, name, nameKey string, excludeID uuid.UUID) (int, error)
}
