package registry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/config"
	"github.com/Zorrojurro/project-aarna/internal/faults"
	"github.com/Zorrojurro/project-aarna/internal/ledger"
	"github.com/Zorrojurro/project-aarna/internal/ledger/simulated"
	"github.com/Zorrojurro/project-aarna/internal/notifications"
	"github.com/Zorrojurro/project-aarna/internal/persistence"
	"github.com/Zorrojurro/project-aarna/internal/session"
	"github.com/Zorrojurro/project-aarna/pkg/workflows"
)

type fixture struct {
	ledger  ledger.Client
	session *session.Session
	notes   *notifications.Service
	store   *persistence.MemoryStore
	svc     *Service

	admin     *session.KeySigner
	validator *session.KeySigner
	developer *session.KeySigner
	buyer     *session.KeySigner
}

func newFixture(t *testing.T, client ledger.Client, tune ...func(*Options)) *fixture {
	t.Helper()
	logger := zap.NewNop()

	opts := OptionsFromConfig(config.Default())
	for _, fn := range tune {
		fn(&opts)
	}

	f := &fixture{
		ledger:    client,
		session:   session.New(logger),
		notes:     notifications.NewService(nil, logger, 100),
		store:     persistence.NewMemoryStore(),
		admin:     session.DemoSigner("admin"),
		validator: session.DemoSigner("validator"),
		developer: session.DemoSigner("developer"),
		buyer:     session.DemoSigner("buyer"),
	}
	f.svc = NewService(client, f.store, f.session, f.notes, NewMetrics(prometheus.NewRegistry()), opts, logger)
	return f
}

func (f *fixture) as(signer ledger.Signer) {
	f.session.Connect(signer)
}

func (f *fixture) lastNotification(t *testing.T) notifications.Notification {
	t.Helper()
	recent := f.notes.Recent(1)
	require.Len(t, recent, 1)
	return recent[0]
}

// bootstrap deploys a registry, assigns the validator and mints the token.
func bootstrap(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	f.as(f.admin)
	_, err := f.svc.Deploy(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfigureValidator(ctx, f.validator.Address()))
	_, err = f.svc.MintToken(ctx)
	require.NoError(t, err)
}

func TestProjectLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	snap := f.svc.Snapshot()
	assert.Equal(t, uint64(1001), snap.AppID)
	assert.Equal(t, uint64(2001), snap.AssetID)
	assert.Equal(t, f.validator.Address(), snap.Validator)
	assert.Equal(t, f.admin.Address(), snap.Admin)

	f.as(f.developer)
	id, err := f.svc.SubmitProject(ctx, ProjectInput{
		Name:              "Sundarbans Mangrove Restoration",
		Location:          "West Bengal, India",
		EcosystemType:     "Mangrove",
		EvidenceReference: "bafy123",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	p, ok := f.svc.mirror.Project(0)
	require.True(t, ok)
	assert.Equal(t, workflows.StatusPending, p.Status)
	assert.Equal(t, uint64(0), p.Credits)
	assert.Equal(t, f.developer.Address(), p.Submitter)
	assert.True(t, p.Confirmed)
	assert.Equal(t, uint64(1), f.svc.Snapshot().ProjectCount)

	require.NoError(t, f.svc.OptInToAsset(ctx))
	assert.True(t, f.svc.Snapshot().OptedIn)

	f.as(f.validator)
	require.NoError(t, f.svc.ApproveProject(ctx, 0, 2500))
	p, _ = f.svc.mirror.Project(0)
	assert.Equal(t, workflows.StatusVerified, p.Status)
	assert.Equal(t, uint64(2500), p.Credits)

	issued, err := f.svc.IssueCredits(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), issued)

	snap = f.svc.Snapshot()
	p, _ = snap.Project(0)
	assert.Equal(t, workflows.StatusCreditsIssued, p.Status)
	assert.Equal(t, uint64(2500), snap.TotalCreditsIssued)

	f.as(f.developer)
	assert.Equal(t, int64(2500), f.svc.Snapshot().TokenBalance)
}

func TestApproveByNonValidatorIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	f.as(f.developer)
	_, err := f.svc.SubmitProject(ctx, ProjectInput{Name: "Mangroves", EvidenceReference: "bafy123"})
	require.NoError(t, err)

	err = f.svc.ApproveProject(ctx, 0, 2500)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryUnauthorizedValidator, ce.Category)

	p, _ := f.svc.mirror.Project(0)
	assert.Equal(t, workflows.StatusPending, p.Status)
	assert.Equal(t, uint64(0), p.Credits)
	assert.Equal(t, notifications.LevelError, f.lastNotification(t).Level)
}

func TestApproveRejectedByLedgerWhenValidatorUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())

	f.as(f.admin)
	_, err := f.svc.Deploy(ctx)
	require.NoError(t, err)
	_, err = f.svc.SubmitProject(ctx, ProjectInput{Name: "Seagrass", EvidenceReference: "bafy123"})
	require.NoError(t, err)

	err = f.svc.ApproveProject(ctx, 0, 10)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryUnauthorizedValidator, ce.Category)
	assert.Equal(t, "Only the assigned validator can do this", ce.Message)
}

func TestRejectProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	f.as(f.developer)
	_, err := f.svc.SubmitProject(ctx, ProjectInput{Name: "Peatland", EvidenceReference: "bafy123"})
	require.NoError(t, err)

	f.as(f.validator)
	require.NoError(t, f.svc.RejectProject(ctx, 0))
	p, _ := f.svc.mirror.Project(0)
	assert.Equal(t, workflows.StatusRejected, p.Status)
	assert.Equal(t, notifications.LevelInfo, f.lastNotification(t).Level)

	err = f.svc.ApproveProject(ctx, 0, 100)
	assert.ErrorContains(t, err, "no longer pending")

	_, err = f.svc.IssueCredits(ctx, 0)
	assert.ErrorContains(t, err, "not verified")
}

func TestMarketplaceScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	f.as(f.developer)
	id, err := f.svc.ListForSale(ctx, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	l, ok := f.svc.mirror.Listing(0)
	require.True(t, ok)
	assert.True(t, l.Active)
	assert.Equal(t, f.developer.Address(), l.Seller)

	f.as(f.buyer)
	require.NoError(t, f.svc.BuyListing(ctx, 0))

	l, _ = f.svc.mirror.Listing(0)
	assert.False(t, l.Active)
	assert.Equal(t, int64(100), f.svc.Adjustments().For(f.buyer.Address()))
	assert.Equal(t, int64(-100), f.svc.Adjustments().For(f.developer.Address()))
	var sum int64
	for _, d := range f.svc.Adjustments().All() {
		sum += d
	}
	assert.Zero(t, sum)
	assert.Equal(t, int64(100), f.svc.Snapshot().TokenBalance)

	err = f.svc.BuyListing(ctx, 0)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryInvalidState, ce.Category)
	assert.Equal(t, int64(100), f.svc.Adjustments().For(f.buyer.Address()))

	// reconciliation keeps adjustments
	require.NoError(t, f.svc.Refresh(ctx))
	assert.Equal(t, int64(100), f.svc.Snapshot().TokenBalance)

	f.as(f.developer)
	assert.Equal(t, int64(-100), f.svc.Snapshot().TokenBalance)
}

func TestCancelListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	f.as(f.developer)
	_, err := f.svc.ListForSale(ctx, 10, 3)
	require.NoError(t, err)

	f.as(f.buyer)
	err = f.svc.CancelListing(ctx, 0)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryNotSeller, ce.Category)

	f.as(f.developer)
	require.NoError(t, f.svc.CancelListing(ctx, 0))
	l, _ := f.svc.mirror.Listing(0)
	assert.False(t, l.Active)
	assert.Empty(t, f.svc.Adjustments().All())

	err = f.svc.CancelListing(ctx, 0)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryInvalidState, ce.Category)

	f.as(f.buyer)
	err = f.svc.BuyListing(ctx, 0)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryInvalidState, ce.Category)
}

func TestListForSaleValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	_, err := f.svc.ListForSale(ctx, 0, 5)
	assert.ErrorIs(t, err, &faults.ClassifiedError{Category: faults.CategoryInvalidInput})
	_, err = f.svc.ListForSale(ctx, 5, 0)
	assert.ErrorIs(t, err, &faults.ClassifiedError{Category: faults.CategoryInvalidInput})
	assert.Equal(t, uint64(0), f.svc.Snapshot().ListingCount)
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())

	_, err := f.svc.Deploy(ctx)
	assert.ErrorIs(t, err, faults.ErrNoIdentity)
	assert.Equal(t, notifications.LevelWarning, f.lastNotification(t).Level)
	assert.Equal(t, "Connect a wallet first", f.lastNotification(t).Message)

	f.as(f.developer)
	_, err = f.svc.SubmitProject(ctx, ProjectInput{Name: "x", EvidenceReference: "bafy"})
	assert.ErrorIs(t, err, faults.ErrNoRegistry)

	assert.ErrorIs(t, f.svc.Refresh(ctx), faults.ErrNoRegistry)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New(), func(o *Options) { o.StrictEvidence = true })
	bootstrap(t, f)

	_, err := f.svc.SubmitProject(ctx, ProjectInput{Name: " ", EvidenceReference: "bafy123"})
	assert.ErrorContains(t, err, "name is required")

	_, err = f.svc.SubmitProject(ctx, ProjectInput{Name: "Mangroves", EvidenceReference: "bafy123"})
	assert.ErrorContains(t, err, "Invalid evidence reference")
	assert.Equal(t, uint64(0), f.svc.Snapshot().ProjectCount)
}

func TestSubmitAtCapacityWithSimulatedLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New(simulated.WithCapacity(4, 4)), func(o *Options) { o.MaxProjects = 2 })
	bootstrap(t, f)

	for i := 0; i < 2; i++ {
		_, err := f.svc.SubmitProject(ctx, ProjectInput{Name: "p", EvidenceReference: "bafy123"})
		require.NoError(t, err)
	}
	_, err := f.svc.SubmitProject(ctx, ProjectInput{Name: "p", EvidenceReference: "bafy123"})
	assert.ErrorIs(t, err, &faults.ClassifiedError{Category: faults.CategoryCapacityExceeded})

	state, err := f.ledger.ReadState(ctx, f.svc.mirror.AppID())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.ProjectCount)
}

func TestMintTokenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	assetID, err := f.svc.MintToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2001), assetID)

	stored, ok, err := persistence.GetUint(ctx, f.store, persistence.KeyAssetID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(2001), stored)
}

func TestDeployPersistsAndClearsAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	appID, err := f.svc.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1002), appID)

	stored, _, err := persistence.GetUint(ctx, f.store, persistence.KeyAppID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1002), stored)

	_, ok, err := persistence.GetUint(ctx, f.store, persistence.KeyAssetID)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := f.svc.Snapshot()
	assert.Equal(t, uint64(0), snap.AssetID)
	assert.Empty(t, snap.Projects)
}

func TestLoadResolvesIdentifiers(t *testing.T) {
	ctx := context.Background()
	client := simulated.New()
	first := newFixture(t, client)
	bootstrap(t, first)
	first.as(first.developer)
	_, err := first.svc.SubmitProject(ctx, ProjectInput{Name: "Kelp", EvidenceReference: "bafy123"})
	require.NoError(t, err)

	// a second portal sharing the store picks the registry up without an identity
	second := newFixture(t, client)
	second.store = first.store
	second.svc = NewService(client, first.store, second.session, second.notes, nil, OptionsFromConfig(config.Default()), zap.NewNop())
	require.NoError(t, second.svc.Load(ctx))

	snap := second.svc.Snapshot()
	assert.Equal(t, uint64(1001), snap.AppID)
	assert.Equal(t, uint64(2001), snap.AssetID)
	require.Len(t, snap.Projects, 1)
	assert.Equal(t, "Kelp", snap.Projects[0].Name)
	assert.Equal(t, "none", snap.Role)
}

func TestLoadOverrideWinsOverPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New(), func(o *Options) {
		o.AppIDOverride = 4242
		o.AssetIDOverride = 77
	})
	require.NoError(t, persistence.SetUint(ctx, f.store, persistence.KeyAppID, 1001))
	require.NoError(t, persistence.SetUint(ctx, f.store, persistence.KeyAssetID, 2001))

	require.NoError(t, f.svc.Load(ctx))
	snap := f.svc.Snapshot()
	assert.Equal(t, uint64(4242), snap.AppID)
	assert.Equal(t, uint64(77), snap.AssetID)
	assert.Equal(t, ledger.ApplicationAddress(4242), snap.AppAddress)
}

func TestRoleFollowsValidator(t *testing.T) {
	f := newFixture(t, simulated.New())
	bootstrap(t, f)

	assert.Equal(t, string(session.RoleDeveloper), f.svc.Snapshot().Role)
	f.as(f.validator)
	assert.Equal(t, string(session.RoleValidator), f.svc.Snapshot().Role)
	f.session.Disconnect()
	assert.Equal(t, string(session.RoleNone), f.svc.Snapshot().Role)
}

func TestOptInWithoutToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	f.as(f.admin)
	_, err := f.svc.Deploy(ctx)
	require.NoError(t, err)

	err = f.svc.OptInToAsset(ctx)
	assert.ErrorIs(t, err, &faults.ClassifiedError{Category: faults.CategoryMissingAsset})
	assert.Equal(t, notifications.LevelWarning, f.lastNotification(t).Level)
}

func TestOneNotificationPerAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated.New())
	bootstrap(t, f)
	assert.Len(t, f.notes.Recent(0), 3)

	_, _ = f.svc.ListForSale(ctx, 0, 1)
	assert.Len(t, f.notes.Recent(0), 4)
}
