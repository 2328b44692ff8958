package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/db"
	"github.com/hypersenta/serenity/internal/platform/money"
)

// MsgNameExists is the conflict reported for a duplicate organization name.
const MsgNameExists = "organization name already exists"

// OwnerConflict is the conflict reported when the owner already owns n
// organizations.
func OwnerConflict(n int) string {
	return fmt.Sprintf("owner already owns %d organization(s)", n)
}

var constraintMessages = map[string]string{
	"organization_name_uc":     MsgNameExists,
	"organization_name_key_uc": MsgNameExists,
	"organization_owner_uc":    OwnerConflict(1),
}

var integrityRules = map[string]db.FieldRule{
	"organization_owner_fk":   {Field: "owner_id", Message: "user does not exist"},
	"organization_creator_fk": {Field: "owner_id", Message: "user does not exist"},
}

// TranslateError maps organization unique violations onto a ConflictError and
// owner foreign key violations onto a ValidationError. Other errors are
// returned unchanged.
func TranslateError(err error) error {
	if name, ok := db.UniqueViolationConstraint(err); ok {
		if msg, known := constraintMessages[name]; known {
			return apperr.Conflict(msg)
		}
	}
	return db.TranslateIntegrity(err, integrityRules)
}

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const orgColumns = `id, name, name_key, email, line_address, region, country, organization_type,
	default_wallet_currency, owner_id, owner_name, creator_id, creator_name, is_verified,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, o *Organization) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO organizations (
			id, name, name_key, email, line_address, region, country, organization_type,
			default_wallet_currency, owner_id, owner_name, creator_id, creator_name, is_verified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		o.ID, o.Name, o.NameKey, o.Email, o.LineAddress, o.Region, string(o.Country), o.OrganizationType,
		string(o.DefaultWalletCurrency), o.OwnerID, o.OwnerName, o.CreatorID, o.CreatorName, o.IsVerified,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert organization: %w", TranslateError(err))
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, o *Organization) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE organizations SET
			name = $2, name_key = $3, email = $4, line_address = $5, region = $6,
			organization_type = $7, is_verified = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Name, o.NameKey, o.Email, o.LineAddress, o.Region,
		o.OrganizationType, o.IsVerified,
	).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("organization %s: %w", o.ID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update organization: %w", TranslateError(err))
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, ownerID *uuid.UUID, limit, offset int) ([]*Organization, int, error) {
	where := ""
	var args []interface{}
	if ownerID != nil {
		where = " WHERE owner_id = $1"
		args = append(args, *ownerID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM organizations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM organizations%s ORDER BY name LIMIT $%d OFFSET $%d`,
		orgColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var items []*Organization
	for rows.Next() {
		o, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CountConflicts(ctx context.Context, name, nameKey string, ownerID uuid.UUID) (Conflicts, error) {
	var c Conflicts
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE name = $1 OR name_key = $2),
			COUNT(*) FILTER (WHERE owner_id = $3)
		FROM organizations
		WHERE name = $1 OR name_key = $2 OR owner_id = $3`,
		name, nameKey, ownerID).Scan(&c.NameMatches, &c.OwnerMatches)
	if err != nil {
		return Conflicts{}, fmt.Errorf("count organization conflicts: %w", err)
	}
	return c, nil
}

func (r *repoPG) CountNameConflicts(ctx context.Context, name, nameKey string, excludeID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM organizations
		WHERE (name = $1 OR name_key = $2) AND id <> $3`,
		name, nameKey, excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count organization name conflicts: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *repoPG) scan(row rowScanner) (*Organization, error) {
	var (
		o                 Organization
		country, currency string
	)
	err := row.Scan(&o.ID, &o.Name, &o.NameKey, &o.Email, &o.LineAddress, &o.Region, &country, &o.OrganizationType,
		&currency, &o.OwnerID, &o.OwnerName, &o.CreatorID, &o.CreatorName, &o.IsVerified,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("organization: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	o.Country = money.Country(country)
	o.DefaultWalletCurrency = money.Currency(currency)
	return &o, nil
}
