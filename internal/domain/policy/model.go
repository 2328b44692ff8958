package policy

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/money"
	"github.com/hypersenta/serenity/internal/platform/namekey"
)

// CoreName is the name of the policy created with every organization.
const CoreName = "Default"

// Mechanism names the contribution mechanism as stored in the
// contribution_type column.
type Mechanism string

const (
	MechanismCoinsurance Mechanism = "coinsurance"
	MechanismCopay       Mechanism = "copay"
)

// Contribution is the patient's share of a bill. It is either Coinsurance or
// Copay; the unexported method closes the set to this package.
type Contribution interface {
	Mechanism() Mechanism
	contribution()
}

// Coinsurance is the fraction of every bill the patient pays, in [0, 1].
type Coinsurance struct {
	Rate decimal.Decimal
}

func (Coinsurance) Mechanism() Mechanism { return MechanismCoinsurance }
func (Coinsurance) contribution()        {}

// Copay is a fixed amount the patient pays on every bill.
type Copay struct {
	Amount decimal.Decimal
}

func (Copay) Mechanism() Mechanism { return MechanismCopay }
func (Copay) contribution()        {}

// CostSharing is the set of parameters a policy defines and a wallet mirrors.
type CostSharing struct {
	Contribution     Contribution
	Deductible       decimal.NullDecimal
	OutOfPocketLimit decimal.NullDecimal
}

// Columns flattens the contribution into the contribution_type, coinsurance
// and copay_amount columns. Exactly one of the two amounts is valid.
func (cs CostSharing) Columns() (Mechanism, decimal.NullDecimal, decimal.NullDecimal, error) {
	switch c := cs.Contribution.(type) {
	case Coinsurance:
		return MechanismCoinsurance, decimal.NewNullDecimal(c.Rate), decimal.NullDecimal{}, nil
	case Copay:
		return MechanismCopay, decimal.NullDecimal{}, decimal.NewNullDecimal(c.Amount), nil
	default:
		return "", decimal.NullDecimal{}, decimal.NullDecimal{}, apperr.Configuration("unknown contribution %T", cs.Contribution)
	}
}

// ContributionFromColumns rebuilds a Contribution from stored columns. Rows
// that do not carry exactly the active amount are reported as configuration
// errors rather than guessed at.
func ContributionFromColumns(mech string, coinsurance, copay decimal.NullDecimal) (Contribution, error) {
	switch Mechanism(mech) {
	case MechanismCoinsurance:
		if !coinsurance.Valid || copay.Valid {
			return nil, apperr.Configuration("coinsurance row must carry only a coinsurance rate")
		}
		return Coinsurance{Rate: coinsurance.Decimal}, nil
	case MechanismCopay:
		if !copay.Valid || coinsurance.Valid {
			return nil, apperr.Configuration("copay row must carry only a copay amount")
		}
		return Copay{Amount: copay.Decimal}, nil
	default:
		return nil, apperr.Configuration("unknown contribution type %q", mech)
	}
}

// ManagingOrganization is the slice of an organization the policy domain
// needs: identity, owner and default currency.
type ManagingOrganization struct {
	ID       uuid.UUID
	Name     string
	OwnerID  uuid.UUID
	Currency money.Currency
}

// Policy maps to the cost_sharing_policies table.
type Policy struct {
	ID                       uuid.UUID
	Name                     string
	NameKey                  string
	ManagingOrganizationID   uuid.UUID
	ManagingOrganizationName string
	CostSharing              CostSharing
	Currency                 money.Currency
	Description              string
	IsCore                   bool
	IsDeleted                bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// NewCore builds the default policy provisioned with org: zero coinsurance in
// the organization's currency.
func NewCore(org ManagingOrganization) *Policy {
	p := &Policy{
		Name:                     CoreName,
		ManagingOrganizationID:   org.ID,
		ManagingOrganizationName: org.Name,
		CostSharing: CostSharing{
			Contribution: Coinsurance{Rate: money.Quantize(decimal.Zero)},
		},
		Currency: org.Currency,
		IsCore:   true,
	}
	p.Refresh()
	return p
}

// Refresh recomputes the derived name key and description.
func (p *Policy) Refresh() {
	p.NameKey = namekey.Normalize(p.Name)
	p.Description = Describe(p.CostSharing, p.Currency)
}

// MarshalJSON flattens the contribution into contribution_type plus the
// active amount; the inactive one is emitted as null.
func (p *Policy) MarshalJSON() ([]byte, error) {
	mech, coins, copay, err := p.CostSharing.Columns()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID                       uuid.UUID `json:"id"`
		Name                     string    `json:"name"`
		ManagingOrganizationID   uuid.UUID `json:"managing_organization_id"`
		ManagingOrganizationName string    `json:"managing_organization_name"`
		ContributionType         Mechanism `json:"contribution_type"`
		Coinsurance              *string   `json:"coinsurance"`
		CopayAmount              *string   `json:"copay_amount"`
		Deductible               *string   `json:"deductible"`
		OutOfPocketLimit         *string   `json:"out_of_pocket_limit"`
		Currency                 string    `json:"currency"`
		Description              string    `json:"description"`
		IsCore                   bool      `json:"is_core"`
		CreatedAt                time.Time `json:"created_at"`
		UpdatedAt                time.Time `json:"updated_at"`
	}{
		ID:                       p.ID,
		Name:                     p.Name,
		ManagingOrganizationID:   p.ManagingOrganizationID,
		ManagingOrganizationName: p.ManagingOrganizationName,
		ContributionType:         mech,
		Coinsurance:              money.NullString(coins),
		CopayAmount:              money.NullString(copay),
		Deductible:               money.NullString(p.CostSharing.Deductible),
		OutOfPocketLimit:         money.NullString(p.CostSharing.OutOfPocketLimit),
		Currency:                 string(p.Currency),
		Description:              p.Description,
		IsCore:                   p.IsCore,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	})
}

const describeSeparator = " | "

// Describe summarizes cs in a fixed order: deductible, out-of-pocket limit,
// then the contribution clause. The result is stored, not recomputed on read.
func Describe(cs CostSharing, currency money.Currency) string {
	var parts []string
	if cs.Deductible.Valid {
		parts = append(parts, "Deductible: "+money.Format(currency, cs.Deductible.Decimal))
	}
	if cs.OutOfPocketLimit.Valid {
		parts = append(parts, "Out-of-pocket limit: "+money.Format(currency, cs.OutOfPocketLimit.Decimal))
	}
	switch c := cs.Contribution.(type) {
	case Coinsurance:
		covered := decimal.NewFromInt(1).Sub(c.Rate).Mul(decimal.NewFromInt(100)).RoundBank(0)
		parts = append(parts, "covers "+covered.String()+"% of every bill")
	case Copay:
		parts = append(parts, "patient pays a fixed copay of "+money.Format(currency, c.Amount)+" on every bill")
	}
	return strings.Join(parts, describeSeparator)
}
