package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hypersenta/serenity/internal/domain/policy"
	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/db"
	"github.com/hypersenta/serenity/internal/platform/money"
)

// MsgOwnerHasWallet is the conflict reported when an owner already holds a
// wallet in the organization.
const MsgOwnerHasWallet = "owner already has a wallet in this organization"

var integrityRules = map[string]db.FieldRule{
	"wallet_owner_fk":        {Field: "owner_id", Message: "user does not exist"},
	"wallet_organization_fk": {Field: "managing_organization_id", Message: "organization does not exist"},
	"wallet_policy_fk":       {Field: "policy_id", Message: "policy does not exist"},
	"wallet_contribution_ck": {Field: "contribution_type", Message: "exactly the amount matching contribution_type must be set"},
	"wallet_balance_ck":      {Field: "balance", Message: "must not be negative"},
	"wallet_status_ck":       {Field: "status", Message: "must be one of: created active suspended"},
}

// TranslateError maps the wallet unique violation onto a ConflictError and
// foreign key or check violations onto a ValidationError. Other errors are
// returned unchanged.
func TranslateError(err error) error {
	if name, ok := db.UniqueViolationConstraint(err); ok && name == "wallet_owner_org_uc" {
		return apperr.Conflict(MsgOwnerHasWallet)
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

const walletColumns = `id, owner_id, owner_name, managing_organization_id, managing_organization_name,
	currency, balance, status, policy_id, policy_name,
	contribution_type, coinsurance, copay_amount, deductible, out_of_pocket_limit,
	created_at, updated_at`

type costSharingColumns struct {
	mech                    *string
	coins, copay            decimal.NullDecimal
	deductible, outOfPocket decimal.NullDecimal
}

func columnsOf(cs *policy.CostSharing) (costSharingColumns, error) {
	var out costSharingColumns
	if cs == nil {
		return out, nil
	}
	mech, coins, copay, err := cs.Columns()
	if err != nil {
		return out, err
	}
	m := string(mech)
	out.mech = &m
	out.coins, out.copay = money.QuantizeNull(coins), money.QuantizeNull(copay)
	out.deductible, out.outOfPocket = money.QuantizeNull(cs.Deductible), money.QuantizeNull(cs.OutOfPocketLimit)
	return out, nil
}

func (r *repoPG) Create(ctx context.Context, w *Wallet) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	cols, err := columnsOf(w.CostSharing)
	if err != nil {
		return err
	}

	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO wallets (
			id, owner_id, owner_name, managing_organization_id, managing_organization_name,
			currency, balance, status, policy_id, policy_name,
			contribution_type, coinsurance, copay_amount, deductible, out_of_pocket_limit
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		w.ID, w.OwnerID, w.OwnerName, w.ManagingOrganizationID, w.ManagingOrganizationName,
		string(w.Currency), money.Quantize(w.Balance), string(w.Status), w.PolicyID, w.PolicyName,
		cols.mech, cols.coins, cols.copay, cols.deductible, cols.outOfPocket,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", TranslateError(err))
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return scanWallet(r.conn(ctx).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return scanWallet(r.conn(ctx).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, w *Wallet) error {
	cols, err := columnsOf(w.CostSharing)
	if err != nil {
		return err
	}

	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE wallets SET
			status = $2, policy_id = $3, policy_name = $4,
			contribution_type = $5, coinsurance = $6, copay_amount = $7,
			deductible = $8, out_of_pocket_limit = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		w.ID, string(w.Status), w.PolicyID, w.PolicyName,
		cols.mech, cols.coins, cols.copay,
		cols.deductible, cols.outOfPocket,
	).Scan(&w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("wallet %s: %w", w.ID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update wallet: %w", TranslateError(err))
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Wallet, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.OwnerID != nil {
		where += fmt.Sprintf(` AND owner_id = $%d`, idx)
		args = append(args, *f.OwnerID)
		idx++
	}
	if f.ManagingOrganizationID != nil {
		where += fmt.Sprintf(` AND managing_organization_id = $%d`, idx)
		args = append(args, *f.ManagingOrganizationID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM wallets`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count wallets: %w", err)
	}

	query := `SELECT ` + walletColumns + ` FROM wallets` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var items []*Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, w)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByPolicyForUpdate(ctx context.Context, policyID uuid.UUID) ([]*Wallet, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE policy_id = $1 ORDER BY id FOR UPDATE`, policyID)
	if err != nil {
		return nil, fmt.Errorf("list wallets by policy: %w", err)
	}
	defer rows.Close()

	var items []*Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *repoPG) CountByPolicy(ctx context.Context, policyID uuid.UUID) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM wallets WHERE policy_id = $1`, policyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count wallets by policy: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(row rowScanner) (*Wallet, error) {
	var (
		w        Wallet
		currency string
		status   string
		cols     costSharingColumns
	)
	err := row.Scan(&w.ID, &w.OwnerID, &w.OwnerName, &w.ManagingOrganizationID, &w.ManagingOrganizationName,
		&currency, &w.Balance, &status, &w.PolicyID, &w.PolicyName,
		&cols.mech, &cols.coins, &cols.copay, &cols.deductible, &cols.outOfPocket,
		&w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("wallet: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	w.Currency = money.Currency(currency)
	w.Status = Status(status)

	if cols.mech != nil {
		contribution, err := policy.ContributionFromColumns(*cols.mech, cols.coins, cols.copay)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", w.ID, err)
		}
		w.CostSharing = &policy.CostSharing{
			Contribution:     contribution,
			Deductible:       cols.deductible,
			OutOfPocketLimit: cols.outOfPocket,
		}
	}
	return &w, nil
}
