package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Zorrojurro/project-aarna/internal/faults"
	"github.com/Zorrojurro/project-aarna/internal/ledger"
	"github.com/Zorrojurro/project-aarna/internal/notifications"
	"github.com/Zorrojurro/project-aarna/internal/session"
	"github.com/Zorrojurro/project-aarna/pkg/workflows"
)

const mockAppID uint64 = 7

var validatorAddress = session.DemoSigner("validator").Address()

func pendingState(validator string, projects int) *ledger.State {
	state := &ledger.State{
		AppID:        mockAppID,
		AppAddress:   ledger.ApplicationAddress(mockAppID),
		Validator:    validator,
		AssetID:      9,
		ProjectCount: uint64(projects),
	}
	for i := 0; i < projects; i++ {
		state.Projects = append(state.Projects, ledger.ProjectRecord{
			ID:        uint64(i),
			Submitter: "SUBMITTER",
			Name:      "p",
			Status:    ledger.StatusPending,
		})
	}
	return state
}

// newMockFixture loads the registry mockAppID backed by m.
func newMockFixture(t *testing.T, m *MockLedger, state *ledger.State, tune ...func(*Options)) *fixture {
	t.Helper()
	m.On("ReadState", mock.Anything, mockAppID).Return(state, nil)
	m.On("Account", mock.Anything, mock.Anything).Return(&ledger.AccountInfo{Amount: 1_000_000}, nil)

	tune = append(tune, func(o *Options) { o.AppIDOverride = mockAppID })
	f := newFixture(t, m, tune...)
	require.NoError(t, f.svc.Load(context.Background()))
	return f
}

func TestApproveWithoutConfirmedReadKeepsCredits(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	f := newMockFixture(t, m, pendingState(validatorAddress, 1))

	f.as(f.validator)
	m.On("Call", mock.Anything, mockAppID, ledger.MethodApproveProject, []interface{}{uint64(0), uint64(2500)}, f.validator).
		Return(&ledger.CallResult{TxID: "TX1"}, nil)
	m.On("ReadProject", mock.Anything, mockAppID, uint64(0)).
		Return(&ledger.ProjectRecord{ID: 0, Status: ledger.StatusPending}, nil)

	err := f.svc.ApproveProject(ctx, 0, 2500)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryUnconfirmed, ce.Category)

	p, _ := f.svc.mirror.Project(0)
	assert.Equal(t, workflows.StatusPending, p.Status)
	assert.Equal(t, uint64(0), p.Credits)

	n := f.lastNotification(t)
	assert.Equal(t, notifications.LevelWarning, n.Level)
	assert.Equal(t, string(faults.CategoryUnconfirmed), n.Category)
	m.AssertExpectations(t)
}

func TestIssueRequiresFreshVerifiedRead(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	state := pendingState(validatorAddress, 1)
	state.Projects[0].Status = ledger.StatusVerified
	state.Projects[0].Credits = 2500
	f := newMockFixture(t, m, state)

	f.as(f.validator)
	m.On("ReadProject", mock.Anything, mockAppID, uint64(0)).
		Return(&ledger.ProjectRecord{ID: 0, Status: ledger.StatusPending, Submitter: "SUBMITTER"}, nil)

	_, err := f.svc.IssueCredits(ctx, 0)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryInvalidState, ce.Category)

	m.AssertNotCalled(t, "Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	p, _ := f.svc.mirror.Project(0)
	assert.Equal(t, workflows.StatusVerified, p.Status)
}

func TestOutOfOrderReadIsMatchedByID(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	state := pendingState(validatorAddress, 2)
	state.Projects = []ledger.ProjectRecord{
		{ID: 1, Submitter: "SUBMITTER", Name: "second", Status: ledger.StatusPending},
		{ID: 0, Submitter: "SUBMITTER", Name: "first", Status: ledger.StatusVerified, Credits: 2500},
	}
	state.ListingCount = 2
	state.Listings = []ledger.ListingRecord{
		{ID: 1, Seller: "SELLER", Amount: 10, Price: 5, Active: true},
		{ID: 0, Seller: "SELLER", Amount: 100, Price: 50, Active: false},
	}
	f := newMockFixture(t, m, state)

	p, ok := f.svc.mirror.Project(0)
	require.True(t, ok)
	assert.Equal(t, uint64(0), p.ID)
	assert.Equal(t, workflows.StatusVerified, p.Status)
	l, ok := f.svc.mirror.Listing(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), l.ID)
	assert.True(t, l.Active)

	snap := f.svc.Snapshot()
	require.Len(t, snap.Projects, 2)
	assert.Equal(t, uint64(0), snap.Projects[0].ID)
	assert.Equal(t, uint64(1), snap.Projects[1].ID)

	f.as(f.validator)
	err := f.svc.ApproveProject(ctx, 0, 10)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryInvalidState, ce.Category)
	m.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitAtCapacityMakesNoRemoteCall(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	f := newMockFixture(t, m, pendingState("", 4))
	f.as(f.developer)

	_, err := f.svc.SubmitProject(ctx, ProjectInput{Name: "fifth", EvidenceReference: "bafy123"})
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryCapacityExceeded, ce.Category)

	m.AssertNotCalled(t, "Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, f.svc.Snapshot().Projects, 4)
}

func TestFundingFailureAbortsBeforeWrite(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	f := newMockFixture(t, m, pendingState("", 0))
	f.as(f.developer)

	m.On("Fund", mock.Anything, ledger.ApplicationAddress(mockAppID), uint64(200_000), f.developer).
		Return("", &ledger.Fault{Method: "pay", Message: "overspend: balance 10 below 201000"})

	_, err := f.svc.SubmitProject(ctx, ProjectInput{Name: "Mangroves", EvidenceReference: "bafy123"})
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryFunding, ce.Category)
	assert.Contains(t, ce.Message, "Funding transfer failed")

	m.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.svc.Snapshot().Projects)
}

func TestReconcileDropsUncarriedProvisionalEntries(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	f := newMockFixture(t, m, pendingState("", 0))
	f.as(f.developer)

	m.On("Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("TXF", nil)
	m.On("Call", mock.Anything, mockAppID, ledger.MethodSubmitProject, mock.Anything, f.developer).
		Return(&ledger.CallResult{TxID: "TX", Return: 0, HasReturn: true}, nil)

	// the read after the write does not carry the new project yet
	id, err := f.svc.SubmitProject(ctx, ProjectInput{Name: "Mangroves", EvidenceReference: "bafy123"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Empty(t, f.svc.Snapshot().Projects)

	f.svc.mirror.AppendProject(Project{ID: 0, Name: "Mangroves", Status: workflows.StatusPending, Confirmed: true})
	p, ok := f.svc.mirror.Project(0)
	require.True(t, ok)
	assert.False(t, p.Confirmed)
}

func TestBuyChecksBalanceBeforeFunding(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	f := newMockFixture(t, m, pendingState("", 0))
	f.as(f.buyer)

	m.On("ReadListing", mock.Anything, mockAppID, uint64(0)).
		Return(&ledger.ListingRecord{ID: 0, Seller: "SELLER", Amount: 1000, Price: 1000, Active: true}, nil)

	err := f.svc.BuyListing(ctx, 0)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryInsufficientPayment, ce.Category)
	m.AssertNotCalled(t, "Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.svc.Adjustments().All())
}

func TestBuyFundsThenPays(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	f := newMockFixture(t, m, pendingState("", 0))
	f.as(f.buyer)

	m.On("ReadListing", mock.Anything, mockAppID, uint64(0)).
		Return(&ledger.ListingRecord{ID: 0, Seller: "SELLER", Amount: 100, Price: 50, Active: true}, nil)
	fund := m.On("Fund", mock.Anything, ledger.ApplicationAddress(mockAppID), uint64(5000), f.buyer).Return("TXF", nil)
	m.On("Call", mock.Anything, mockAppID, ledger.MethodBuyListing, []interface{}{uint64(0), uint64(5000)}, f.buyer).
		Return(&ledger.CallResult{TxID: "TXB"}, nil).NotBefore(fund)

	require.NoError(t, f.svc.BuyListing(ctx, 0))
	assert.Equal(t, int64(100), f.svc.Adjustments().For(f.buyer.Address()))
	assert.Equal(t, int64(-100), f.svc.Adjustments().For("SELLER"))
	m.AssertExpectations(t)
}

func TestConcurrentMutationIsRejectedAsBusy(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	f := newMockFixture(t, m, pendingState("", 0))
	f.as(f.developer)

	entered := make(chan struct{})
	release := make(chan struct{})
	m.On("Fund", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("TXF", nil)
	m.On("Call", mock.Anything, mockAppID, ledger.MethodListForSale, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&ledger.CallResult{Return: 0, HasReturn: true}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.ListForSale(ctx, 10, 2)
		done <- err
	}()
	<-entered

	assert.True(t, f.svc.Snapshot().Busy)
	_, err := f.svc.ListForSale(ctx, 5, 1)
	assert.ErrorIs(t, err, faults.ErrBusy)
	assert.ErrorIs(t, f.svc.CancelListing(ctx, 0), faults.ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.svc.Snapshot().Busy)
	m.AssertNumberOfCalls(t, "Call", 1)
}

func TestUnknownFaultIsTruncated(t *testing.T) {
	ctx := context.Background()
	m := new(MockLedger)
	f := newMockFixture(t, m, pendingState("", 0))
	f.as(f.admin)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	m.On("Call", mock.Anything, mockAppID, ledger.MethodEnsureToken, mock.Anything, mock.Anything).
		Return(nil, errors.New(string(long)))

	_, err := f.svc.MintToken(ctx)
	var ce *faults.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, faults.CategoryUnknown, ce.Category)
	assert.Equal(t, faults.MaxMessageLength, len([]rune(ce.Message)))
}
