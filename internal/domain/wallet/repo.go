package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows List. Nil fields do not filter.
type Filter struct {
	OwnerID                *uuid.UUID
	ManagingOrganizationID *uuid.UUID
}

// Repository defines the persistence interface for wallets. Balance is
// written only by Create; Update never touches it.
type Repository interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)
	Update(ctx context.Context, w *Wallet) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Wallet, int, error)
	ListByPolicyForUpdate(ctx context.Context, policyID uuid.UUID) ([]*Wallet, error)
	CountByPolicy(ctx context.Context, policyID uuid.UUID) (int, error)
}
