package organization

import (
	"context"

	"github.com/google/uuid"
)

// Conflicts counts existing organizations that clash with a new one.
type Conflicts struct {
	NameMatches  int
	OwnerMatches int
}

// Repository defines the persistence interface for organizations. Unique
// violations are returned as *apperr.ConflictError.
type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	List(ctx context.Context, ownerID *uuid.UUID, limit, offset int) ([]*Organization, int, error)
	// CountConflicts counts organizations whose name or name key matches and
	// organizations already owned by ownerID, in one round trip.
	CountConflicts(ctx context.Context, name, nameKey string, ownerID uuid.UUID) (Conflicts, error)
	CountNameConflicts(ctx context.Context, name, nameKey string, excludeID uuid.UUID) (int, error)
}

// UserDirectory resolves display names for owner and creator snapshots.
type UserDirectory interface {
	FullName(ctx context.Context, userID uuid.UUID) (string, error)
}
