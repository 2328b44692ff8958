package organization

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/hypersenta/serenity/internal/domain/policy"
	"github.com/hypersenta/serenity/internal/domain/wallet"
	"github.com/hypersenta/serenity/internal/platform/apperr"
	"github.com/hypersenta/serenity/internal/platform/auth"
	"github.com/hypersenta/serenity/internal/platform/money"
)

// -- Mocks --

// store holds every table the provisioner writes so a failed unit of work
// can be rolled back as a whole.
type store struct {
	orgs     map[uuid.UUID]*Organization
	policies map[uuid.UUID]*policy.Policy
	wallets  map[uuid.UUID]*wallet.Wallet
}

func newStore() *store {
	return &store{
		orgs:     make(map[uuid.UUID]*Organization),
		policies: make(map[uuid.UUID]*policy.Policy),
		wallets:  make(map[uuid.UUID]*wallet.Wallet),
	}
}

func (s *store) snapshot() *store {
	cp := newStore()
	for id, o := range s.orgs {
		v := *o
		cp.orgs[id] = &v
	}
	for id, p := range s.policies {
		v := *p
		cp.policies[id] = &v
	}
	for id, w := range s.wallets {
		cp.wallets[id] = cloneWallet(w)
	}
	return cp
}

func (s *store) restore(from *store) {
	s.orgs, s.policies, s.wallets = from.orgs, from.policies, from.wallets
}

func cloneWallet(w *wallet.Wallet) *wallet.Wallet {
	cp := *w
	if w.CostSharing != nil {
		cs := *w.CostSharing
		cp.CostSharing = &cs
	}
	return &cp
}

type mockOrgs struct {
	st *store

	// beforeCreate runs ahead of the constraint checks in Create, standing in
	// for a concurrent request that commits after the pre-check.
	beforeCreate func()
	createErr    error
}

func (m *mockOrgs) Create(_ context.Context, o *Organization) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	if m.createErr != nil {
		return fmt.Errorf("insert organization: %w", TranslateError(m.createErr))
	}
	for _, existing := range m.st.orgs {
		if existing.Name == o.Name || existing.NameKey == o.NameKey {
			return apperr.Conflict(MsgNameExists)
		}
		if existing.OwnerID == o.OwnerID {
			return apperr.Conflict(OwnerConflict(1))
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.st.orgs[o.ID] = &cp
	return nil
}

func (m *mockOrgs) GetByID(_ context.Context, id uuid.UUID) (*Organization, error) {
	o, ok := m.st.orgs[id]
	if !ok {
		return nil, fmt.Errorf("organization: %w", apperr.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrgs) Update(_ context.Context, o *Organization) error {
	if _, ok := m.st.orgs[o.ID]; !ok {
		return fmt.Errorf("organization: %w", apperr.ErrNotFound)
	}
	cp := *o
	m.st.orgs[o.ID] = &cp
	return nil
}

func (m *mockOrgs) List(_ context.Context, ownerID *uuid.UUID, limit, offset int) ([]*Organization, int, error) {
	var out []*Organization
	for _, o := range m.st.orgs {
		if ownerID == nil || o.OwnerID == *ownerID {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *mockOrgs) CountConflicts(_ context.Context, name, nameKey string, ownerID uuid.UUID) (Conflicts, error) {
	var c Conflicts
	for _, o := range m.st.orgs {
		if o.Name == name || o.NameKey == nameKey {
			c.NameMatches++
		}
		if o.OwnerID == ownerID {
			c.OwnerMatches++
		}
	}
	return c, nil
}

func (m *mockOrgs) CountNameConflicts(_ context.Context, name, nameKey string, excludeID uuid.UUID) (int, error) {
	n := 0
	for _, o := range m.st.orgs {
		if o.ID != excludeID && (o.Name == name || o.NameKey == nameKey) {
			n++
		}
	}
	return n, nil
}

type mockUsers map[uuid.UUID]string

func (m mockUsers) FullName(_ context.Context, id uuid.UUID) (string, error) {
	name, ok := m[id]
	if !ok {
		return "", fmt.Errorf("user: %w", apperr.ErrNotFound)
	}
	return name, nil
}

type mockPolicies struct {
	st *store
}

func (m *mockPolicies) Create(_ context.Context, p *policy.Policy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	m.st.policies[p.ID] = &cp
	return nil
}

func (m *mockPolicies) GetByID(_ context.Context, id uuid.UUID) (*policy.Policy, error) {
	p, ok := m.st.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy: %w", apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPolicies) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*policy.Policy, error) {
	return m.GetByID(ctx, id)
}

func (m *mockPolicies) GetByIDForShare(ctx context.Context, id uuid.UUID) (*policy.Policy, error) {
	return m.GetByID(ctx, id)
}

func (m *mockPolicies) Update(_ context.Context, p *policy.Policy) error {
	cp := *p
	m.st.policies[p.ID] = &cp
	return nil
}

func (m *mockPolicies) SoftDelete(_ context.Context, id uuid.UUID) error {
	delete(m.st.policies, id)
	return nil
}

func (m *mockPolicies) ListByOrganization(_ context.Context, orgID uuid.UUID, limit, offset int) ([]*policy.Policy, int, error) {
	var out []*policy.Policy
	for _, p := range m.st.policies {
		if p.ManagingOrganizationID == orgID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockPolicies) CountNameConflicts(_ context.Context, orgID uuid.UUID, name, nameKey string, excludeID uuid.UUID) (int, error) {
	return 0, nil
}

type mockWallets struct {
	st        *store
	updateErr error
}

func (m *mockWallets) Create(_ context.Context, w *wallet.Wallet) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	m.st.wallets[w.ID] = cloneWallet(w)
	return nil
}

func (m *mockWallets) GetByID(_ context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	w, ok := m.st.wallets[id]
	if !ok {
		return nil, fmt.Errorf("wallet: %w", apperr.ErrNotFound)
	}
	return cloneWallet(w), nil
}

func (m *mockWallets) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return m.GetByID(ctx, id)
}

func (m *mockWallets) Update(_ context.Context, w *wallet.Wallet) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.st.wallets[w.ID] = cloneWallet(w)
	return nil
}

func (m *mockWallets) List(_ context.Context, f wallet.Filter, limit, offset int) ([]*wallet.Wallet, int, error) {
	var out []*wallet.Wallet
	for _, w := range m.st.wallets {
		if f.ManagingOrganizationID == nil || w.ManagingOrganizationID == *f.ManagingOrganizationID {
			out = append(out, w)
		}
	}
	return out, len(out), nil
}

func (m *mockWallets) ListByPolicyForUpdate(_ context.Context, policyID uuid.UUID) ([]*wallet.Wallet, error) {
	return nil, nil
}

func (m *mockWallets) CountByPolicy(_ context.Context, policyID uuid.UUID) (int, error) {
	return 0, nil
}

// snapshotTx rolls the store back when fn fails. commitErr simulates a
// constraint that only fires at commit.
type snapshotTx struct {
	st        *store
	commitErr error
}

func (s *snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := s.st.snapshot()
	if err := fn(ctx); err != nil {
		s.st.restore(saved)
		return err
	}
	if s.commitErr != nil {
		s.st.restore(saved)
		return fmt.Errorf("commit transaction: %w", s.commitErr)
	}
	return nil
}

type fixture struct {
	svc     *Service
	st      *store
	orgs    *mockOrgs
	wallets *mockWallets
	tx      *snapshotTx
	users   mockUsers
	owner   auth.Principal
}

func newFixture() *fixture {
	st := newStore()
	owner := auth.Principal{UserID: uuid.New(), Name: "Ama Mensah"}
	users := mockUsers{owner.UserID: "Ama Mensah"}
	orgs := &mockOrgs{st: st}
	wallets := &mockWallets{st: st}
	tx := &snapshotTx{st: st}
	svc := NewService(orgs, users, &mockPolicies{st: st}, wallets, tx, zerolog.Nop())
	return &fixture{svc: svc, st: st, orgs: orgs, wallets: wallets, tx: tx, users: users, owner: owner}
}

// newOwner registers another user who can own an organization.
func (f *fixture) newOwner(name string) auth.Principal {
	p := auth.Principal{UserID: uuid.New(), Name: name}
	f.users[p.UserID] = name
	return p
}

func input(name string) CreateInput {
	return CreateInput{
		Name:             name,
		Country:          string(money.Ghana),
		LineAddress:      "12 Independence Ave",
		Region:           "Greater Accra",
		OrganizationType: "hospital",
		Email:            "admin@example.com",
	}
}

func assertConflict(t *testing.T, err error, want ...string) {
	t.Helper()
	var conflict *apperr.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Violations) != len(want) {
		t.Fatalf("expected violations %v, got %v", want, conflict.Violations)
	}
	for i, v := range want {
		if conflict.Violations[i] != v {
			t.Errorf("violation %d = %q, want %q", i, conflict.Violations[i], v)
		}
	}
}

func (f *fixture) assertEmpty(t *testing.T) {
	t.Helper()
	if len(f.st.orgs) != 0 || len(f.st.policies) != 0 || len(f.st.wallets) != 0 {
		t.Errorf("expected no rows, got %d orgs %d policies %d wallets",
			len(f.st.orgs), len(f.st.policies), len(f.st.wallets))
	}
}

// -- Tests --

func TestProvision_CreatesCorePolicyAndWallet(t *testing.T) {
	f := newFixture()
	org, err := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.DefaultWalletCurrency != money.GHS {
		t.Errorf("expected GHS, got %s", org.DefaultWalletCurrency)
	}
	if org.OwnerName != "Ama Mensah" || org.CreatorID != f.owner.UserID {
		t.Errorf("unexpected owner snapshot %q creator %s", org.OwnerName, org.CreatorID)
	}
	if org.NameKey != "acmehealth" {
		t.Errorf("unexpected name key %q", org.NameKey)
	}

	var cores []*policy.Policy
	for _, p := range f.st.policies {
		if p.ManagingOrganizationID == org.ID && p.IsCore {
			cores = append(cores, p)
		}
	}
	if len(cores) != 1 {
		t.Fatalf("expected exactly one core policy, got %d", len(cores))
	}
	core := cores[0]
	if core.Name != policy.CoreName || core.Currency != money.GHS {
		t.Errorf("unexpected core policy %q %s", core.Name, core.Currency)
	}

	var owned []*wallet.Wallet
	for _, w := range f.st.wallets {
		if w.ManagingOrganizationID == org.ID {
			owned = append(owned, w)
		}
	}
	if len(owned) != 1 {
		t.Fatalf("expected exactly one wallet, got %d", len(owned))
	}
	w := owned[0]
	if w.PolicyID == nil || *w.PolicyID != core.ID {
		t.Errorf("expected wallet policy %s, got %v", core.ID, w.PolicyID)
	}
	if w.OwnerID != f.owner.UserID || w.Currency != money.GHS {
		t.Errorf("unexpected wallet owner %s currency %s", w.OwnerID, w.Currency)
	}
	if !w.Balance.IsZero() || w.Status != wallet.StatusCreated {
		t.Errorf("unexpected balance %s status %s", w.Balance, w.Status)
	}
	rate, ok := w.CostSharing.Contribution.(policy.Coinsurance)
	if !ok || !rate.Rate.IsZero() {
		t.Errorf("expected zero coinsurance, got %#v", w.CostSharing.Contribution)
	}
}

func TestProvision_CurrencyFollowsCountry(t *testing.T) {
	f := newFixture()
	in := input("Lagos Care")
	in.Country = string(money.Nigeria)
	org, err := f.svc.Provision(context.Background(), f.owner, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.DefaultWalletCurrency != money.NGN {
		t.Errorf("expected NGN, got %s", org.DefaultWalletCurrency)
	}
}

func TestProvision_NameConflictIgnoresCaseAndSpaces(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Provision(context.Background(), f.owner, input("Acme Health")); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	other := f.newOwner("Kwame Boateng")
	_, err := f.svc.Provision(context.Background(), other, input("acme health"))
	assertConflict(t, err, MsgNameExists)
	if len(f.st.orgs) != 1 {
		t.Errorf("expected 1 organization, got %d", len(f.st.orgs))
	}
}

func TestProvision_OwnerConflictReportsCount(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Provision(context.Background(), f.owner, input("Acme Health")); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	_, err := f.svc.Provision(context.Background(), f.owner, input("Second Clinic"))
	assertConflict(t, err, "owner already owns 1 organization(s)")
}

func TestProvision_AggregatesViolations(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Provision(context.Background(), f.owner, input("Acme Health")); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	_, err := f.svc.Provision(context.Background(), f.owner, input("ACME  HEALTH"))
	assertConflict(t, err, MsgNameExists, OwnerConflict(1))
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("expected joined message, got %q", err.Error())
	}
}

func TestProvision_OwnerMustBeRequester(t *testing.T) {
	f := newFixture()
	other := f.newOwner("Kwame Boateng")
	in := input("Acme Health")
	in.OwnerID = &other.UserID
	_, err := f.svc.Provision(context.Background(), f.owner, in)
	var perm *apperr.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	f.assertEmpty(t)
}

func TestProvision_ExplicitSelfOwner(t *testing.T) {
	f := newFixture()
	in := input("Acme Health")
	in.OwnerID = &f.owner.UserID
	if _, err := f.svc.Provision(context.Background(), f.owner, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProvision_UnknownOwner(t *testing.T) {
	f := newFixture()
	stranger := auth.Principal{UserID: uuid.New()}
	_, err := f.svc.Provision(context.Background(), stranger, input("Acme Health"))
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) || verr.Field != "owner_id" {
		t.Fatalf("expected owner_id ValidationError, got %v", err)
	}
}

func TestProvision_BlankName(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Provision(context.Background(), f.owner, input("   "))
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("expected name ValidationError, got %v", err)
	}
}

func TestProvision_NameLengthCountsTrimmedRunes(t *testing.T) {
	f := newFixture()
	name := strings.Repeat("é", MaxNameLength)

	org, err := f.svc.Provision(context.Background(), f.owner, input("  "+name+"  "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.Name != name {
		t.Errorf("expected trimmed name, got %q", org.Name)
	}

	_, err = f.svc.Provision(context.Background(), f.newOwner("Kwame Boateng"), input(name+"x"))
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("expected name ValidationError, got %v", err)
	}
}

func TestProvision_UnsupportedCountry(t *testing.T) {
	f := newFixture()
	in := input("Acme Health")
	in.Country = "Atlantis"
	_, err := f.svc.Provision(context.Background(), f.owner, in)
	var cfg *apperr.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	f.assertEmpty(t)
}

func TestProvision_RollsBackWhenWalletWriteFails(t *testing.T) {
	f := newFixture()
	f.wallets.updateErr = errors.New("connection reset")
	_, err := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected wallet error, got %v", err)
	}
	f.assertEmpty(t)
}

func TestProvision_RaceReportsPreCheckConflict(t *testing.T) {
	f := newFixture()
	rival := f.newOwner("Kwame Boateng")
	f.orgs.beforeCreate = func() {
		f.orgs.beforeCreate = nil
		id := uuid.New()
		f.st.orgs[id] = &Organization{ID: id, Name: "Acme Health", NameKey: "acmehealth", OwnerID: rival.UserID}
	}

	_, err := f.svc.Provision(context.Background(), f.owner, input("acme health"))
	assertConflict(t, err, MsgNameExists)
	if len(f.st.policies) != 0 || len(f.st.wallets) != 0 {
		t.Error("expected no policy or wallet after a lost race")
	}
}

func TestProvision_RaceOnUniqueIndex(t *testing.T) {
	f := newFixture()
	f.orgs.createErr = &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "organization_owner_uc"}
	_, err := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))
	assertConflict(t, err, OwnerConflict(1))
	f.assertEmpty(t)
}

func TestProvision_CommitTimeViolation(t *testing.T) {
	f := newFixture()
	f.tx.commitErr = &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "organization_name_key_uc"}
	_, err := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))
	assertConflict(t, err, MsgNameExists)
	f.assertEmpty(t)
}

func TestManagingOrganization(t *testing.T) {
	f := newFixture()
	org, err := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	m, err := f.svc.ManagingOrganization(context.Background(), org.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != org.ID || m.OwnerID != f.owner.UserID || m.Currency != money.GHS || m.Name != "Acme Health" {
		t.Errorf("unexpected managing organization %+v", m)
	}

	_, err = f.svc.ManagingOrganization(context.Background(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_Authorization(t *testing.T) {
	f := newFixture()
	org, _ := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))

	if _, err := f.svc.Get(context.Background(), f.owner, org.ID); err != nil {
		t.Errorf("owner: unexpected error: %v", err)
	}
	admin := auth.Principal{UserID: uuid.New(), Roles: []string{auth.RoleAdmin}}
	if _, err := f.svc.Get(context.Background(), admin, org.ID); err != nil {
		t.Errorf("admin: unexpected error: %v", err)
	}
	_, err := f.svc.Get(context.Background(), auth.Principal{UserID: uuid.New()}, org.ID)
	var perm *apperr.PermissionError
	if !errors.As(err, &perm) {
		t.Errorf("expected PermissionError, got %v", err)
	}
}

func TestList_ScopedToOwner(t *testing.T) {
	f := newFixture()
	other := f.newOwner("Kwame Boateng")
	f.svc.Provision(context.Background(), f.owner, input("Acme Health"))
	f.svc.Provision(context.Background(), other, input("Kumasi Clinic"))

	items, total, err := f.svc.List(context.Background(), f.owner, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].OwnerID != f.owner.UserID {
		t.Errorf("expected only own organization, got %d", total)
	}

	admin := auth.Principal{UserID: uuid.New(), Roles: []string{auth.RoleAdmin}}
	_, total, _ = f.svc.List(context.Background(), admin, 20, 0)
	if total != 2 {
		t.Errorf("expected admin to see 2, got %d", total)
	}
}

func TestUpdate_Rename(t *testing.T) {
	f := newFixture()
	org, _ := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))

	updated, err := f.svc.Update(context.Background(), f.owner, org.ID, UpdateInput{Name: "Acme Hospital", Region: "Ashanti"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.NameKey != "acmehospital" || updated.Region != "Ashanti" {
		t.Errorf("unexpected update %q %q", updated.NameKey, updated.Region)
	}
	if updated.LineAddress != "12 Independence Ave" {
		t.Errorf("expected line address kept, got %q", updated.LineAddress)
	}
}

func TestUpdate_RenameConflict(t *testing.T) {
	f := newFixture()
	other := f.newOwner("Kwame Boateng")
	f.svc.Provision(context.Background(), f.owner, input("Acme Health"))
	second, err := f.svc.Provision(context.Background(), other, input("Kumasi Clinic"))
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	_, err = f.svc.Update(context.Background(), other, second.ID, UpdateInput{Name: "ACME HEALTH"})
	assertConflict(t, err, MsgNameExists)
	if f.st.orgs[second.ID].Name != "Kumasi Clinic" {
		t.Error("expected rename to be rolled back")
	}
}

func TestUpdate_RenameTooLong(t *testing.T) {
	f := newFixture()
	org, _ := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))

	_, err := f.svc.Update(context.Background(), f.owner, org.ID, UpdateInput{Name: strings.Repeat("a", MaxNameLength+1)})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("expected name ValidationError, got %v", err)
	}
	if f.st.orgs[org.ID].Name != "Acme Health" {
		t.Error("expected name unchanged")
	}
}

func TestUpdate_Forbidden(t *testing.T) {
	f := newFixture()
	org, _ := f.svc.Provision(context.Background(), f.owner, input("Acme Health"))
	_, err := f.svc.Update(context.Background(), auth.Principal{UserID: uuid.New()}, org.ID, UpdateInput{Region: "Volta"})
	var perm *apperr.PermissionError
	if !errors.As(err, &perm) {
		t.Errorf("expected PermissionError, got %v", err)
	}
}
