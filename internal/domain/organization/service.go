package organization

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hypersenta/serenity/internal/domain/policy"
	"github.com/hypersenta/serenity/internal/domain/wallet"
	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/auth"
	"github.com/hypersenta/serenity/internal/platform/db"
	"github.com/hypersenta/serenity/internal/platform/money"
	"github.com/hypersenta/serenity/internal/platform/namekey"
)

type Service struct {
	orgs     Repository
	users    UserDirectory
	policies policy.Repository
	wallets  wallet.Repository
	tx       db.Transactor
	logger   zerolog.Logger
}

func NewService(orgs Repository, users UserDirectory, policies policy.Repository, wallets wallet.Repository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		orgs:     orgs,
		users:    users,
		policies: policies,
		wallets:  wallets,
		tx:       tx,
		logger:   logger.With().Str("component", "organization").Logger(),
	}
}

// Provision creates an organization together with its core policy and the
// owner's wallet, with the policy already applied to the wallet. Either all
// three rows are written or none are.
func (s *Service) Provision(ctx context.Context, requester auth.Principal, in CreateInput) (*Organization, error) {
	in.Trim()
	ownerID := requester.UserID
	if in.OwnerID != nil && *in.OwnerID != requester.UserID {
		return nil, apperr.Permission("organizations can only be created for yourself")
	}
	name, err := validName(in.Name)
	if err != nil {
		return nil, err
	}
	key := namekey.Normalize(name)

	ownerName, err := s.users.FullName(ctx, ownerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("owner_id", "user %s does not exist", ownerID)
	}
	if err != nil {
		return nil, err
	}

	if err := s.checkConflicts(ctx, name, key, ownerID); err != nil {
		return nil, err
	}
	currency, err := money.CurrencyForCountry(money.Country(in.Country))
	if err != nil {
		s.logger.Error().Err(err).Str("country", in.Country).Msg("no wallet currency for country")
		return nil, err
	}

	org := &Organization{
		Name:                  name,
		NameKey:               key,
		Email:                 in.Email,
		LineAddress:           in.LineAddress,
		Region:                in.Region,
		Country:               money.Country(in.Country),
		OrganizationType:      in.OrganizationType,
		DefaultWalletCurrency: currency,
		OwnerID:               ownerID,
		OwnerName:             ownerName,
		CreatorID:             requester.UserID,
		CreatorName:           ownerName,
	}
	var (
		core  *policy.Policy
		owned *wallet.Wallet
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.orgs.Create(ctx, org); err != nil {
			return err
		}
		core = policy.NewCore(org.Managing())
		if err := s.policies.Create(ctx, core); err != nil {
			return err
		}
		owned = wallet.New(ownerID, ownerName, org.Managing())
		if err := s.wallets.Create(ctx, owned); err != nil {
			return err
		}
		if _, err := wallet.ApplyPolicy(owned, core); err != nil {
			return err
		}
		return s.wallets.Update(ctx, owned)
	})
	if err != nil {
		return nil, s.provisionFailed(ctx, err, name, key, ownerID)
	}

	s.logger.Info().
		Str("organization_id", org.ID.String()).
		Str("policy_id", core.ID.String()).
		Str("wallet_id", owned.ID.String()).
		Str("currency", string(currency)).
		Msg("organization provisioned")
	return org, nil
}

// provisionFailed turns a unique violation that slipped past the pre-check
// into the conflict the pre-check would have reported. The racing
// transaction has committed by now, so the counts see its rows.
func (s *Service) provisionFailed(ctx context.Context, err error, name, key string, ownerID uuid.UUID) error {
	var conflict *apperr.ConflictError
	_, unique := db.UniqueViolationConstraint(err)
	if !unique && !errors.As(err, &conflict) {
		var cfg *apperr.ConfigurationError
		if errors.As(err, &cfg) {
			s.logger.Error().Err(err).Msg("provisioning aborted")
		}
		return err
	}
	s.logger.Warn().Err(err).Str("name", name).Msg("provisioning lost a uniqueness race")

	var recheck *apperr.ConflictError
	if errors.As(s.checkConflicts(ctx, name, key, ownerID), &recheck) {
		return recheck
	}
	if conflict != nil {
		return conflict
	}
	return TranslateError(err)
}

// rename moves o to name, rejecting names another organization already uses.
func (s *Service) rename(ctx context.Context, o *Organization, name string) error {
	if name == o.Name {
		return nil
	}
	o.Name = name
	o.NameKey = namekey.Normalize(name)
	n, err := s.orgs.CountNameConflicts(ctx, o.Name, o.NameKey, o.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict(MsgNameExists)
	}
	return nil
}

func (s *Service) checkConflicts(ctx context.Context, name, key string, ownerID uuid.UUID) error {
	c, err := s.orgs.CountConflicts(ctx, name, key, ownerID)
	if err != nil {
		return err
	}
	var violations []string
	if c.NameMatches > 0 {
		violations = append(violations, MsgNameExists)
	}
	if c.OwnerMatches > 0 {
		violations = append(violations, OwnerConflict(c.OwnerMatches))
	}
	if len(violations) > 0 {
		return apperr.Conflict(violations...)
	}
	return nil
}

// ManagingOrganization implements policy.OrganizationReader.
func (s *Service) ManagingOrganization(ctx context.Context, id uuid.UUID) (*policy.ManagingOrganization, error) {
	o, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m := o.Managing()
	return &m, nil
}

func (s *Service) Get(ctx context.Context, requester auth.Principal, id uuid.UUID) (*Organization, error) {
	o, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(requester, o); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns every organization to admins and only their own to others.
func (s *Service) List(ctx context.Context, requester auth.Principal, limit, offset int) ([]*Organization, int, error) {
	if requester.IsAdmin() {
		return s.orgs.List(ctx, nil, limit, offset)
	}
	owner := requester.UserID
	return s.orgs.List(ctx, &owner, limit, offset)
}

func (s *Service) Update(ctx context.Context, requester auth.Principal, id uuid.UUID, in UpdateInput) (*Organization, error) {
	in.Trim()
	var updated *Organization
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orgs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(requester, o); err != nil {
			return err
		}

		if in.Name != "" {
			name, err := validName(in.Name)
			if err != nil {
				return err
			}
			if err := s.rename(ctx, o, name); err != nil {
				return err
			}
		}
		if in.Email != "" {
			o.Email = in.Email
		}
		if in.LineAddress != "" {
			o.LineAddress = in.LineAddress
		}
		if in.Region != "" {
			o.Region = in.Region
		}
		if in.OrganizationType != "" {
			o.OrganizationType = in.OrganizationType
		}
		if err := s.orgs.Update(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("organization_id", updated.ID.String()).Msg("organization updated")
	return updated, nil
}

func authorize(requester auth.Principal, o *Organization) error {
	if requester.IsAdmin() || requester.UserID == o.OwnerID {
		return nil
	}
	return apperr.Permission("only the owner of %s may access it", o.Name)
}
