package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
)

// MockLedger is a mock implementation of ledger.Client
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Deploy(ctx context.Context, signer ledger.Signer) (*ledger.Deployment, error) {
	args := m.Called(ctx, signer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Deployment), args.Error(1)
}

func (m *MockLedger) ReadState(ctx context.Context, appID uint64) (*ledger.State, error) {
	args := m.Called(ctx, appID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.State), args.Error(1)
}

func (m *MockLedger) ReadProject(ctx context.Context, appID, projectID uint64) (*ledger.ProjectRecord, error) {
	args := m.Called(ctx, appID, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.ProjectRecord), args.Error(1)
}

func (m *MockLedger) ReadListing(ctx context.Context, appID, listingID uint64) (*ledger.ListingRecord, error) {
	args := m.Called(ctx, appID, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.ListingRecord), args.Error(1)
}

func (m *MockLedger) Call(ctx context.Context, appID uint64, method string, callArgs []interface{}, signer ledger.Signer) (*ledger.CallResult, error) {
	args := m.Called(ctx, appID, method, callArgs, signer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.CallResult), args.Error(1)
}

func (m *MockLedger) Simulate(ctx context.Context, appID uint64, method string, callArgs []interface{}) (*ledger.CallResult, error) {
	args := m.Called(ctx, appID, method, callArgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.CallResult), args.Error(1)
}

func (m *MockLedger) Fund(ctx context.Context, destination string, amount uint64, signer ledger.Signer) (string, error) {
	args := m.Called(ctx, destination, amount, signer)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) Account(ctx context.Context, address string) (*ledger.AccountInfo, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.AccountInfo), args.Error(1)
}

func (m *MockLedger) OptIn(ctx context.Context, assetID uint64, signer ledger.Signer) (string, error) {
	args := m.Called(ctx, assetID, signer)
	return args.String(0), args.Error(1)
}
