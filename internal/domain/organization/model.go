package organization

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hypersenta/serenity/internal/domain/policy"
	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/money"
)

// Organization is a healthcare organization that manages policies and wallets.
type Organization struct {
	ID                    uuid.UUID      `json:"id"`
	Name                  string         `json:"name"`
	NameKey               string         `json:"-"`
	Email                 string         `json:"email"`
	LineAddress           string         `json:"line_address"`
	Region                string         `json:"region"`
	Country               money.Country  `json:"country"`
	OrganizationType      string         `json:"organization_type"`
	DefaultWalletCurrency money.Currency `json:"default_wallet_currency"`
	OwnerID               uuid.UUID      `json:"owner_id"`
	OwnerName             string         `json:"owner_name"`
	CreatorID             uuid.UUID      `json:"creator_id"`
	CreatorName           string         `json:"creator_name"`
	IsVerified            bool           `json:"is_verified"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Managing returns the view of o the policy and wallet domains work with.
func (o *Organization) Managing() policy.ManagingOrganization {
	return policy.ManagingOrganization{
		ID:       o.ID,
		Name:     o.Name,
		OwnerID:  o.OwnerID,
		Currency: o.DefaultWalletCurrency,
	}
}

// MaxNameLength bounds an organization name once surrounding spaces are
// trimmed.
const MaxNameLength = 70

// CreateInput is the body of POST /organizations. OwnerID defaults to the
// requester and may not name anyone else.
type CreateInput struct {
	Name             string     `json:"name" validate:"required,max=70"`
	Country          string     `json:"country" validate:"required"`
	LineAddress      string     `json:"line_address" validate:"required,max=255"`
	Region           string     `json:"region" validate:"required,max=255"`
	OrganizationType string     `json:"organization_type" validate:"required,oneof=hospital clinic pharmacy laboratory insurer other"`
	OwnerID          *uuid.UUID `json:"owner_id"`
	Email            string     `json:"email" validate:"required,email"`
}

// UpdateInput is the body of PUT /organizations/:id. Empty fields are kept.
type UpdateInput struct {
	Name             string `json:"name" validate:"omitempty,max=70"`
	LineAddress      string `json:"line_address" validate:"omitempty,max=255"`
	Region           string `json:"region" validate:"omitempty,max=255"`
	OrganizationType string `json:"organization_type" validate:"omitempty,oneof=hospital clinic pharmacy laboratory insurer other"`
	Email            string `json:"email" validate:"omitempty,email"`
}

// Trim strips surrounding spaces from the free-text fields, so length and
// format rules see the values that will be stored.
func (in *CreateInput) Trim() {
	in.Name = strings.TrimSpace(in.Name)
	in.Country = strings.TrimSpace(in.Country)
	in.LineAddress = strings.TrimSpace(in.LineAddress)
	in.Region = strings.TrimSpace(in.Region)
	in.Email = strings.TrimSpace(in.Email)
}

// Trim strips surrounding spaces from the free-text fields.
func (in *UpdateInput) Trim() {
	in.Name = strings.TrimSpace(in.Name)
	in.LineAddress = strings.TrimSpace(in.LineAddress)
	in.Region = strings.TrimSpace(in.Region)
	in.Email = strings.TrimSpace(in.Email)
}

// validName trims name and checks it is present and short enough.
func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name", "is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperr.Validation("name", "must be at most %d characters", MaxNameLength)
	}
	return name, nil
}
