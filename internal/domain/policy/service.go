package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/auth"
	"github.com/hypersenta/serenity/internal/platform/db"
)

// OrganizationReader resolves the organization a policy is managed by.
type OrganizationReader interface {
	ManagingOrganization(ctx context.Context, id uuid.UUID) (*ManagingOrganization, error)
}

// WalletSync keeps wallets that mirror a policy in step with it.
type WalletSync interface {
	// ReapplyPolicy copies p onto every wallet pointing at it and returns
	// how many were updated.
	ReapplyPolicy(ctx context.Context, p *Policy) (int, error)
	CountByPolicy(ctx context.Context, policyID uuid.UUID) (int, error)
}

type Service struct {
	policies Repository
	orgs     OrganizationReader
	wallets  WalletSync
	tx       db.Transactor
	logger   zerolog.Logger
}

func NewService(policies Repository, orgs OrganizationReader, wallets WalletSync, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		policies: policies,
		orgs:     orgs,
		wallets:  wallets,
		tx:       tx,
		logger:   logger.With().Str("component", "policy").Logger(),
	}
}

// Create adds a non-core policy to an organization the requester administers.
func (s *Service) Create(ctx context.Context, requester auth.Principal, in CreateInput) (*Policy, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	cs, err := in.CostSharingInput.Build()
	if err != nil {
		return nil, err
	}

	org, err := s.managingOrganization(ctx, in.ManagingOrganizationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(requester, org); err != nil {
		return nil, err
	}
	currency, err := resolveCurrency(in.Currency, org.Currency)
	if err != nil {
		return nil, err
	}

	p := &Policy{
		Name:                     name,
		ManagingOrganizationID:   org.ID,
		ManagingOrganizationName: org.Name,
		CostSharing:              cs,
		Currency:                 currency,
	}
	p.Refresh()

	if err := s.checkName(ctx, p); err != nil {
		return nil, err
	}
	if err := s.policies.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("policy_id", p.ID.String()).
		Str("organization_id", org.ID.String()).
		Str("contribution_type", string(cs.Contribution.Mechanism())).
		Msg("policy created")
	return p, nil
}

// Get returns a policy to the owner of its managing organization or an admin.
func (s *Service) Get(ctx context.Context, requester auth.Principal, id uuid.UUID) (*Policy, error) {
	p, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	org, err := s.managingOrganization(ctx, p.ManagingOrganizationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(requester, org); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListByOrganization(ctx context.Context, requester auth.Principal, orgID uuid.UUID, limit, offset int) ([]*Policy, int, error) {
	org, err := s.managingOrganization(ctx, orgID)
	if err != nil {
		return nil, 0, err
	}
	if err := authorize(requester, org); err != nil {
		return nil, 0, err
	}
	return s.policies.ListByOrganization(ctx, orgID, limit, offset)
}

// Update replaces a policy's cost-sharing parameters and re-applies it to
// every wallet that currently mirrors it. Both happen in one unit of work, so
// a wallet that can no longer accept the policy aborts the whole update. The
// policy row stays locked until commit; concurrent applies of the same policy
// wait and then see the new parameters.
func (s *Service) Update(ctx context.Context, requester auth.Principal, id uuid.UUID, in UpdateInput) (*Policy, error) {
	cs, err := in.CostSharingInput.Build()
	if err != nil {
		return nil, err
	}

	var (
		updated   *Policy
		reapplied int
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.policies.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		org, err := s.managingOrganization(ctx, p.ManagingOrganizationID)
		if err != nil {
			return err
		}
		if err := authorize(requester, org); err != nil {
			return err
		}

		if in.Name != "" {
			if p.Name, err = normalizeName(in.Name); err != nil {
				return err
			}
		}
		if p.Currency, err = resolveCurrency(in.Currency, p.Currency); err != nil {
			return err
		}
		p.CostSharing = cs
		p.Refresh()

		if err := s.checkName(ctx, p); err != nil {
			return err
		}
		if err := s.policies.Update(ctx, p); err != nil {
			return err
		}
		if reapplied, err = s.wallets.ReapplyPolicy(ctx, p); err != nil {
			return fmt.Errorf("re-apply policy %s: %w", p.ID, err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("policy_id", updated.ID.String()).
		Int("wallets", reapplied).
		Msg("policy updated")
	return updated, nil
}

// Delete soft-deletes a policy. Core policies and policies still applied to
// a wallet are kept. The row lock keeps a concurrent apply from attaching a
// wallet between the count and the delete.
func (s *Service) Delete(ctx context.Context, requester auth.Principal, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.policies.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		org, err := s.managingOrganization(ctx, p.ManagingOrganizationID)
		if err != nil {
			return err
		}
		if err := authorize(requester, org); err != nil {
			return err
		}
		if p.IsCore {
			return apperr.Validation("is_core", "core policies cannot be deleted")
		}

		n, err := s.wallets.CountByPolicy(ctx, p.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict(fmt.Sprintf("policy is applied to %d wallet(s)", n))
		}
		if err := s.policies.SoftDelete(ctx, p.ID); err != nil {
			return err
		}
		s.logger.Info().Str("policy_id", p.ID.String()).Msg("policy deleted")
		return nil
	})
}

func (s *Service) checkName(ctx context.Context, p *Policy) error {
	n, err := s.policies.CountNameConflicts(ctx, p.ManagingOrganizationID, p.Name, p.NameKey, p.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict(MsgNameExists)
	}
	return nil
}

func (s *Service) managingOrganization(ctx context.Context, id uuid.UUID) (*ManagingOrganization, error) {
	org, err := s.orgs.ManagingOrganization(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("managing_organization_id", "organization %s does not exist", id)
	}
	return org, err
}

func authorize(requester auth.Principal, org *ManagingOrganization) error {
	if requester.IsAdmin() || requester.UserID == org.OwnerID {
		return nil
	}
	return apperr.Permission("only the owner of %s may manage its policies", org.Name)
}
