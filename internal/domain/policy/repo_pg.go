package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/db"
	"github.com/hypersenta/serenity/internal/platform/money"
)

// MsgNameExists is the conflict reported for a duplicate policy name.
const MsgNameExists = "policy name already exists in this organization"

var constraintMessages = map[string]string{
	"policy_name_org_uc":     MsgNameExists,
	"policy_name_key_org_uc": MsgNameExists,
}

var integrityRules = map[string]db.FieldRule{
	"policy_organization_fk":      {Field: "managing_organization_id", Message: "organization does not exist"},
	"policy_contribution_ck":      {Field: "contribution_type", Message: "exactly the amount matching contribution_type must be set"},
	"policy_coinsurance_range_ck": {Field: "coinsurance", Message: "must be between 0 and 1"},
	"policy_amounts_ck":           {Field: "copay_amount", Message: "amounts must not be negative"},
}

// TranslateError maps policy unique violations onto a ConflictError and
// foreign key or check violations onto a ValidationError. Other errors are
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

const policyColumns = `id, name, name_key, managing_organization_id, managing_organization_name,
	contribution_type, coinsurance, copay_amount, deductible, out_of_pocket_limit,
	currency, description, is_core, is_deleted, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Policy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	mech, coins, copay, err := p.CostSharing.Columns()
	if err != nil {
		return err
	}

	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO cost_sharing_policies (
			id, name, name_key, managing_organization_id, managing_organization_name,
			contribution_type, coinsurance, copay_amount, deductible, out_of_pocket_limit,
			currency, description, is_core
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.NameKey, p.ManagingOrganizationID, p.ManagingOrganizationName,
		string(mech), money.QuantizeNull(coins), money.QuantizeNull(copay),
		money.QuantizeNull(p.CostSharing.Deductible), money.QuantizeNull(p.CostSharing.OutOfPocketLimit),
		string(p.Currency), p.Description, p.IsCore,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert policy: %w", TranslateError(err))
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Policy, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+policyColumns+` FROM cost_sharing_policies WHERE id = $1 AND NOT is_deleted`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Policy, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+policyColumns+` FROM cost_sharing_policies WHERE id = $1 AND NOT is_deleted FOR UPDATE`, id))
}

func (r *repoPG) GetByIDForShare(ctx context.Context, id uuid.UUID) (*Policy, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+policyColumns+` FROM cost_sharing_policies WHERE id = $1 AND NOT is_deleted FOR SHARE`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Policy) error {
	mech, coins, copay, err := p.CostSharing.Columns()
	if err != nil {
		return err
	}

	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE cost_sharing_policies SET
			name = $2, name_key = $3, contribution_type = $4, coinsurance = $5,
			copay_amount = $6, deductible = $7, out_of_pocket_limit = $8,
			currency = $9, description = $10, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
		RETURNING updated_at`,
		p.ID, p.Name, p.NameKey, string(mech), money.QuantizeNull(coins),
		money.QuantizeNull(copay), money.QuantizeNull(p.CostSharing.Deductible), money.QuantizeNull(p.CostSharing.OutOfPocketLimit),
		string(p.Currency), p.Description,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("policy %s: %w", p.ID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update policy: %w", TranslateError(err))
	}
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE cost_sharing_policies SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted AND NOT is_core`, id)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *repoPG) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Policy, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM cost_sharing_policies WHERE managing_organization_id = $1 AND NOT is_deleted`,
		orgID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count policies: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+policyColumns+` FROM cost_sharing_policies
		WHERE managing_organization_id = $1 AND NOT is_deleted
		ORDER BY is_core DESC, name LIMIT $2 OFFSET $3`, orgID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var items []*Policy
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CountNameConflicts(ctx context.Context, orgID uuid.UUID, name, nameKey string, excludeID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM cost_sharing_policies
		WHERE managing_organization_id = $1 AND (name = $2 OR name_key = $3) AND id <> $4`,
		orgID, name, nameKey, excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count policy name conflicts: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *repoPG) scan(row rowScanner) (*Policy, error) {
	var (
		p           Policy
		mech        string
		currency    string
		coins, copay decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.Name, &p.NameKey, &p.ManagingOrganizationID, &p.ManagingOrganizationName,
		&mech, &coins, &copay, &p.CostSharing.Deductible, &p.CostSharing.OutOfPocketLimit,
		&currency, &p.Description, &p.IsCore, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("policy: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	p.Currency = money.Currency(currency)
	p.CostSharing.Contribution, err = ContributionFromColumns(mech, coins, copay)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", p.ID, err)
	}
	return &p, nil
}
