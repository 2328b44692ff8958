package wallet

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hypersenta/serenity/internal/domain/policy"
	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/money"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

var transitions = map[Status][]Status{
	StatusCreated:   {StatusActive},
	StatusActive:    {StatusSuspended},
	StatusSuspended: {StatusActive},
}

// Wallet maps to the wallets table. CostSharing is nil until a policy has
// been applied.
type Wallet struct {
	ID                       uuid.UUID
	OwnerID                  uuid.UUID
	OwnerName                string
	ManagingOrganizationID   uuid.UUID
	ManagingOrganizationName string
	Currency                 money.Currency
	Balance                  decimal.Decimal
	Status                   Status
	PolicyID                 *uuid.UUID
	PolicyName               *string
	CostSharing              *policy.CostSharing
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// New builds an empty wallet for owner in org: zero balance, status created,
// the organization's currency and no policy.
func New(ownerID uuid.UUID, ownerName string, org policy.ManagingOrganization) *Wallet {
	return &Wallet{
		OwnerID:                  ownerID,
		OwnerName:                ownerName,
		ManagingOrganizationID:   org.ID,
		ManagingOrganizationName: org.Name,
		Currency:                 org.Currency,
		Balance:                  money.Quantize(decimal.Zero),
		Status:                   StatusCreated,
	}
}

// Transition moves w to status to. Wallets are never activated implicitly.
func (w *Wallet) Transition(to Status) error {
	for _, allowed := range transitions[w.Status] {
		if allowed == to {
			w.Status = to
			return nil
		}
	}
	return apperr.Validation("status", "cannot move wallet from %s to %s", w.Status, to)
}

func (w *Wallet) MarshalJSON() ([]byte, error) {
	out := struct {
		ID                       uuid.UUID        `json:"id"`
		OwnerID                  uuid.UUID        `json:"owner_id"`
		OwnerName                string           `json:"owner_name"`
		ManagingOrganizationID   uuid.UUID        `json:"managing_organization_id"`
		ManagingOrganizationName string           `json:"managing_organization_name"`
		Currency                 string           `json:"currency"`
		Balance                  string           `json:"balance"`
		Status                   Status           `json:"status"`
		PolicyID                 *uuid.UUID       `json:"policy_id"`
		PolicyName               *string          `json:"policy_name"`
		ContributionType         policy.Mechanism `json:"contribution_type,omitempty"`
		Coinsurance              *string          `json:"coinsurance"`
		CopayAmount              *string          `json:"copay_amount"`
		Deductible               *string          `json:"deductible"`
		OutOfPocketLimit         *string          `json:"out_of_pocket_limit"`
		CreatedAt                time.Time        `json:"created_at"`
		UpdatedAt                time.Time        `json:"updated_at"`
	}{
		ID:                       w.ID,
		OwnerID:                  w.OwnerID,
		OwnerName:                w.OwnerName,
		ManagingOrganizationID:   w.ManagingOrganizationID,
		ManagingOrganizationName: w.ManagingOrganizationName,
		Currency:                 string(w.Currency),
		Balance:                  money.String(w.Balance),
		Status:                   w.Status,
		PolicyID:                 w.PolicyID,
		PolicyName:               w.PolicyName,
		CreatedAt:                w.CreatedAt,
		UpdatedAt:                w.UpdatedAt,
	}
	if w.CostSharing != nil {
		mech, coins, copay, err := w.CostSharing.Columns()
		if err != nil {
			return nil, err
		}
		out.ContributionType = mech
		out.Coinsurance = money.NullString(coins)
		out.CopayAmount = money.NullString(copay)
		out.Deductible = money.NullString(w.CostSharing.Deductible)
		out.OutOfPocketLimit = money.NullString(w.CostSharing.OutOfPocketLimit)
	}
	return json.Marshal(out)
}
