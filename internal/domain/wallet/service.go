package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hypersenta/serenity/internal/domain/policy"
	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/auth"
	"github.com/hypersenta/serenity/internal/platform/db"
)

// PolicyReader loads live (not soft-deleted) policies under a share lock.
type PolicyReader interface {
	GetByIDForShare(ctx context.Context, id uuid.UUID) (*policy.Policy, error)
}

type Service struct {
	wallets  Repository
	policies PolicyReader
	orgs     policy.OrganizationReader
	tx       db.Transactor
	logger   zerolog.Logger
}

func NewService(wallets Repository, policies PolicyReader, orgs policy.OrganizationReader, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		wallets:  wallets,
		policies: policies,
		orgs:     orgs,
		tx:       tx,
		logger:   logger.With().Str("component", "wallet").Logger(),
	}
}

// List returns the requester's own wallets. Admins see every wallet unless
// they filter by owner themselves.
func (s *Service) List(ctx context.Context, requester auth.Principal, f Filter, limit, offset int) ([]*Wallet, int, error) {
	if !requester.IsAdmin() {
		f.OwnerID = &requester.UserID
	}
	return s.wallets.List(ctx, f, limit, offset)
}

// Get returns a wallet visible to its owner, the managing organization's
// owner and admins.
func (s *Service) Get(ctx context.Context, requester auth.Principal, id uuid.UUID) (*Wallet, error) {
	w, err := s.wallets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.OwnerID == requester.UserID || requester.IsAdmin() {
		return w, nil
	}
	if err := s.authorizeManager(ctx, requester, w); err != nil {
		return nil, err
	}
	return w, nil
}

// ApplyPolicy applies policyID to walletID and persists the result in one
// transaction. The policy is share-locked before the wallet is locked, the
// same order policy updates and deletes take, so an apply never interleaves
// with a change to the policy it copies.
func (s *Service) ApplyPolicy(ctx context.Context, requester auth.Principal, walletID, policyID uuid.UUID) (*Wallet, error) {
	var applied *Wallet
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.wallets.GetByID(ctx, walletID)
		if err != nil {
			return err
		}
		if err := s.authorizeManager(ctx, requester, w); err != nil {
			return err
		}
		p, err := s.policies.GetByIDForShare(ctx, policyID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("policy_id", "policy %s does not exist", policyID)
		}
		if err != nil {
			return err
		}
		if w, err = s.wallets.GetByIDForUpdate(ctx, walletID); err != nil {
			return err
		}

		if _, err := ApplyPolicy(w, p); err != nil {
			return err
		}
		if err := s.wallets.Update(ctx, w); err != nil {
			return err
		}
		applied = w
		return nil
	})
	if err != nil {
		s.logApplyFailure(err, walletID, policyID)
		return nil, err
	}

	s.logger.Info().
		Str("wallet_id", walletID.String()).
		Str("policy_id", policyID.String()).
		Msg("policy applied")
	return applied, nil
}

// ReapplyPolicy copies p onto every wallet currently pointing at it. It is
// meant to run inside the caller's unit of work.
func (s *Service) ReapplyPolicy(ctx context.Context, p *policy.Policy) (int, error) {
	ws, err := s.wallets.ListByPolicyForUpdate(ctx, p.ID)
	if err != nil {
		return 0, err
	}
	for _, w := range ws {
		if _, err := ApplyPolicy(w, p); err != nil {
			return 0, fmt.Errorf("wallet %s: %w", w.ID, err)
		}
		if err := s.wallets.Update(ctx, w); err != nil {
			return 0, err
		}
	}
	return len(ws), nil
}

func (s *Service) CountByPolicy(ctx context.Context, policyID uuid.UUID) (int, error) {
	return s.wallets.CountByPolicy(ctx, policyID)
}

func (s *Service) Activate(ctx context.Context, requester auth.Principal, id uuid.UUID) (*Wallet, error) {
	return s.transition(ctx, requester, id, StatusActive)
}

func (s *Service) Suspend(ctx context.Context, requester auth.Principal, id uuid.UUID) (*Wallet, error) {
	return s.transition(ctx, requester, id, StatusSuspended)
}

func (s *Service) transition(ctx context.Context, requester auth.Principal, id uuid.UUID, to Status) (*Wallet, error) {
	var out *Wallet
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.wallets.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizeManager(ctx, requester, w); err != nil {
			return err
		}
		if err := w.Transition(to); err != nil {
			return err
		}
		if err := s.wallets.Update(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("wallet_id", id.String()).Str("status", string(to)).Msg("wallet status changed")
	return out, nil
}

// authorizeManager allows admins and the owner of w's managing organization.
func (s *Service) authorizeManager(ctx context.Context, requester auth.Principal, w *Wallet) error {
	if requester.IsAdmin() {
		return nil
	}
	org, err := s.orgs.ManagingOrganization(ctx, w.ManagingOrganizationID)
	if err != nil {
		return err
	}
	if org.OwnerID != requester.UserID {
		return apperr.Permission("only the owner of %s may manage its wallets", org.Name)
	}
	return nil
}

func (s *Service) logApplyFailure(err error, walletID, policyID uuid.UUID) {
	var cfgErr *apperr.ConfigurationError
	ev := s.logger.Warn()
	if errors.As(err, &cfgErr) {
		ev = s.logger.Error()
	}
	ev.Err(err).
		Str("wallet_id", walletID.String()).
		Str("policy_id", policyID.String()).
		Msg("policy application failed")
}
