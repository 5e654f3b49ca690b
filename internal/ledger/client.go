// Package ledger defines the boundary to the remote registry contract and the
// account layer it runs on.
package ledger

import (
	"context"
	"fmt"
)

// Contract method names.
const (
	MethodInit             = "init"
	MethodSetValidator     = "setValidator"
	MethodTransferAdmin    = "transferAdmin"
	MethodEnsureToken      = "ensureToken"
	MethodSubmitProject    = "submitProject"
	MethodApproveProject   = "approveProject"
	MethodRejectProject    = "rejectProject"
	MethodIssueCredits     = "issueCredits"
	MethodGetAssetID       = "getAssetId"
	MethodGetProjectStatus = "getProjectStatus"
	MethodListForSale      = "listForSale"
	MethodBuyListing       = "buyListing"
	MethodCancelListing    = "cancelListing"
)

// On-chain project status codes.
const (
	StatusNone     uint64 = 0
	StatusPending  uint64 = 1
	StatusVerified uint64 = 2
	StatusRejected uint64 = 3
	StatusIssued   uint64 = 4
)

// Structured fault codes. Gateways that report them let callers skip
// message matching.
const (
	FaultUnauthorizedAdmin     = "UNAUTHORIZED_ADMIN"
	FaultUnauthorizedValidator = "UNAUTHORIZED_VALIDATOR"
	FaultCapacityExceeded      = "CAPACITY_EXCEEDED"
	FaultNotPending            = "NOT_PENDING"
	FaultNotVerified           = "NOT_VERIFIED"
	FaultListingInactive       = "LISTING_INACTIVE"
	FaultInsufficientPayment   = "INSUFFICIENT_PAYMENT"
	FaultNotSeller             = "NOT_SELLER"
	FaultMissingAsset          = "MISSING_ASSET"
	FaultNotFound              = "NOT_FOUND"
	FaultInvalidArgument       = "INVALID_ARGUMENT"
	FaultInsufficientFunds     = "INSUFFICIENT_FUNDS"
	FaultNotOptedIn            = "NOT_OPTED_IN"
)

// Signer is an identity able to authorize transactions.
type Signer interface {
	Address() string
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// Client is the remote ledger as seen by the portal.
type Client interface {
	// Deploy creates a new registry instance owned by signer.
	Deploy(ctx context.Context, signer Signer) (*Deployment, error)
	// ReadState reads counters, roles and every record of a registry.
	ReadState(ctx context.Context, appID uint64) (*State, error)
	ReadProject(ctx context.Context, appID, projectID uint64) (*ProjectRecord, error)
	ReadListing(ctx context.Context, appID, listingID uint64) (*ListingRecord, error)
	// Call submits a signed contract method call.
	Call(ctx context.Context, appID uint64, method string, args []interface{}, signer Signer) (*CallResult, error)
	// Simulate evaluates a read-only method without submitting anything.
	Simulate(ctx context.Context, appID uint64, method string, args []interface{}) (*CallResult, error)
	// Fund transfers native units from signer to destination.
	Fund(ctx context.Context, destination string, amount uint64, signer Signer) (string, error)
	Account(ctx context.Context, address string) (*AccountInfo, error)
	OptIn(ctx context.Context, assetID uint64, signer Signer) (string, error)
}

// Deployment describes a newly created registry.
type Deployment struct {
	AppID      uint64 `json:"app_id"`
	AppAddress string `json:"app_address"`
	TxID       string `json:"tx_id"`
}

// ProjectRecord is a project as stored by the contract.
type ProjectRecord struct {
	ID        uint64 `json:"id"`
	Submitter string `json:"submitter"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	Ecosystem string `json:"ecosystem"`
	CID       string `json:"cid"`
	Status    uint64 `json:"status"`
	Credits   uint64 `json:"credits"`
}

// ListingRecord is a marketplace listing as stored by the contract.
type ListingRecord struct {
	ID     uint64 `json:"id"`
	Seller string `json:"seller"`
	Amount uint64 `json:"amount"`
	Price  uint64 `json:"price"`
	Active bool   `json:"active"`
}

// State is an authoritative read of a registry.
type State struct {
	AppID              uint64          `json:"app_id"`
	AppAddress         string          `json:"app_address"`
	Admin              string          `json:"admin"`
	Validator          string          `json:"validator"`
	AssetID            uint64          `json:"asset_id"`
	ProjectCount       uint64          `json:"project_count"`
	ListingCount       uint64          `json:"listing_count"`
	TotalCreditsIssued uint64          `json:"total_credits_issued"`
	Projects           []ProjectRecord `json:"projects"`
	Listings           []ListingRecord `json:"listings"`
}

// CallResult is the outcome of a method call. Return is only meaningful
// when HasReturn is set.
type CallResult struct {
	TxID      string `json:"tx_id"`
	Return    uint64 `json:"return"`
	HasReturn bool   `json:"has_return"`
}

// AssetHolding is an account's position in one asset.
type AssetHolding struct {
	AssetID uint64 `json:"asset_id"`
	Amount  uint64 `json:"amount"`
}

// AccountInfo is an account's native balance and asset positions.
type AccountInfo struct {
	Address string         `json:"address"`
	Amount  uint64         `json:"amount"`
	Assets  []AssetHolding `json:"assets"`
}

// Holding returns the amount held of assetID and whether the account is opted in.
func (a *AccountInfo) Holding(assetID uint64) (uint64, bool) {
	for _, h := range a.Assets {
		if h.AssetID == assetID {
			return h.Amount, true
		}
	}
	return 0, false
}

// Fault is a rejection reported by the ledger or the contract.
type Fault struct {
	Code    string `json:"code,omitempty"`
	Method  string `json:"method,omitempty"`
	Message string `json:"message"`
}

func (f *Fault) Error() string {
	if f.Method != "" {
		return fmt.Sprintf("%s: %s", f.Method, f.Message)
	}
	return f.Message
}
