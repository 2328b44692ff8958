package wallet

import (
	"github.com/hypersenta/serenity/internal/domain/policy"
	"github.com/hypersenta/serenity/internal/platform/apperr"
)

// ApplyPolicy copies p's cost-sharing parameters onto w and points w at p.
//
// The wallet and policy must share a managing organization and a currency.
// On any error w is left untouched. Applying the same policy twice yields the
// same fields. ApplyPolicy does not persist; callers either save w right away
// or batch it with other writes in the same unit of work.
func ApplyPolicy(w *Wallet, p *policy.Policy) (*Wallet, error) {
	if w.ManagingOrganizationID != p.ManagingOrganizationID {
		return nil, &apperr.CrossOrganizationError{
			WalletOrganizationID: w.ManagingOrganizationID,
			PolicyOrganizationID: p.ManagingOrganizationID,
		}
	}
	if w.Currency != p.Currency {
		return nil, &apperr.CurrencyMismatchError{
			WalletCurrency: string(w.Currency),
			PolicyCurrency: string(p.Currency),
		}
	}

	var contribution policy.Contribution
	switch c := p.CostSharing.Contribution.(type) {
	case policy.Coinsurance:
		contribution = policy.Coinsurance{Rate: c.Rate}
	case policy.Copay:
		contribution = policy.Copay{Amount: c.Amount}
	default:
		return nil, apperr.Configuration("policy %s has unsupported contribution %T", p.ID, c)
	}

	policyID := p.ID
	policyName := p.Name
	w.CostSharing = &policy.CostSharing{
		Contribution:     contribution,
		Deductible:       p.CostSharing.Deductible,
		OutOfPocketLimit: p.CostSharing.OutOfPocketLimit,
	}
	w.PolicyID = &policyID
	w.PolicyName = &policyName
	return w, nil
}
