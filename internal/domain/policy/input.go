package policy

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/money"
)

var one = decimal.NewFromInt(1)

// CostSharingInput is the request shape of a policy's cost-sharing fields.
// Only the amount matching ContributionType is kept; the other is dropped.
type CostSharingInput struct {
	ContributionType string           `json:"contribution_type" validate:"required,oneof=coinsurance copay"`
	Coinsurance      *decimal.Decimal `json:"coinsurance"`
	CopayAmount      *decimal.Decimal `json:"copay_amount" validate:"omitempty,nonnegative_decimal"`
	Deductible       *decimal.Decimal `json:"deductible" validate:"omitempty,nonnegative_decimal"`
	OutOfPocketLimit *decimal.Decimal `json:"out_of_pocket_limit" validate:"omitempty,nonnegative_decimal"`
}

// ValidateCoinsurance rejects rates outside [0, 1]. It runs on the raw value,
// before quantization, so 1.004 is rejected rather than rounded to 1.00.
func ValidateCoinsurance(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return apperr.Validation("coinsurance", "must be between 0 and 1, got %s", rate.String())
	}
	return nil
}

func validateAmount(field string, d *decimal.Decimal) error {
	if d != nil && d.IsNegative() {
		return apperr.Validation(field, "must not be negative, got %s", d.String())
	}
	return nil
}

// Build validates every supplied field, then selects the active contribution
// and quantizes all amounts.
func (in CostSharingInput) Build() (CostSharing, error) {
	if in.Coinsurance != nil {
		if err := ValidateCoinsurance(*in.Coinsurance); err != nil {
			return CostSharing{}, err
		}
	}
	if err := validateAmount("copay_amount", in.CopayAmount); err != nil {
		return CostSharing{}, err
	}
	if err := validateAmount("deductible", in.Deductible); err != nil {
		return CostSharing{}, err
	}
	if err := validateAmount("out_of_pocket_limit", in.OutOfPocketLimit); err != nil {
		return CostSharing{}, err
	}

	var cs CostSharing
	switch Mechanism(in.ContributionType) {
	case MechanismCoinsurance:
		if in.Coinsurance == nil {
			return CostSharing{}, apperr.Validation("coinsurance", "is required when contribution_type is coinsurance")
		}
		cs.Contribution = Coinsurance{Rate: money.Quantize(*in.Coinsurance)}
	case MechanismCopay:
		if in.CopayAmount == nil {
			return CostSharing{}, apperr.Validation("copay_amount", "is required when contribution_type is copay")
		}
		cs.Contribution = Copay{Amount: money.Quantize(*in.CopayAmount)}
	default:
		return CostSharing{}, apperr.Validation("contribution_type", "must be one of: coinsurance copay")
	}
	cs.Deductible = nullAmount(in.Deductible)
	cs.OutOfPocketLimit = nullAmount(in.OutOfPocketLimit)
	return cs, nil
}

func nullAmount(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(money.Quantize(*d))
}

// CreateInput is the body of POST /policies.
type CreateInput struct {
	Name                   string    `json:"name" validate:"required,max=255"`
	ManagingOrganizationID uuid.UUID `json:"managing_organization_id" validate:"required"`
	Currency               string    `json:"currency" validate:"omitempty,len=3"`
	CostSharingInput
}

// UpdateInput is the body of PUT /policies/:id. Name is optional; an empty
// value keeps the current name.
type UpdateInput struct {
	Name     string `json:"name" validate:"omitempty,max=255"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
	CostSharingInput
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name", "is required")
	}
	return name, nil
}

func resolveCurrency(requested string, fallback money.Currency) (money.Currency, error) {
	if requested == "" {
		return fallback, nil
	}
	c := money.Currency(strings.ToUpper(requested))
	if !c.Supported() {
		return "", apperr.Validation("currency", "unsupported currency %q", requested)
	}
	return c, nil
}
