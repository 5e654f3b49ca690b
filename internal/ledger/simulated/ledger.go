// Package simulated runs the registry contract in process. It backs demo mode
// and the orchestration tests, and reproduces the contract's rejection texts.
package simulated

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
)

// Account-layer costs in base units.
const (
	TxnFee            uint64 = 1_000
	MinAccountBalance uint64 = 100_000
	AssetMinBalance   uint64 = 100_000
	RecordMinBalance  uint64 = 50_000
	TokenSupply       uint64 = 10_000_000
	DefaultFaucet     uint64 = 100_000_000
	firstAppID        uint64 = 1001
	firstAssetID      uint64 = 2001
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithFaucet sets the native amount credited to accounts on first use.
func WithFaucet(amount uint64) Option {
	return func(l *Ledger) { l.faucet = amount }
}

// WithCapacity caps the number of project and listing records per registry.
// Zero means unlimited.
func WithCapacity(projects, listings int) Option {
	return func(l *Ledger) {
		l.maxProjects = projects
		l.maxListings = listings
	}
}

// WithFaultCodes attaches structured codes to faults in addition to the message.
func WithFaultCodes() Option {
	return func(l *Ledger) { l.faultCodes = true }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Account is a simulated account. A key in Assets means the account is opted in.
type Account struct {
	Amount uint64            `json:"amount"`
	Assets map[uint64]uint64 `json:"assets"`
}

// App is a simulated registry instance.
type App struct {
	ID        uint64                 `json:"id"`
	Address   string                 `json:"address"`
	Admin     string                 `json:"admin"`
	Validator string                 `json:"validator"`
	AssetID   uint64                 `json:"asset_id"`
	Total     uint64                 `json:"total_credits_issued"`
	Projects  []ledger.ProjectRecord `json:"projects"`
	Listings  []ledger.ListingRecord `json:"listings"`
}

type snapshot struct {
	NextAppID   uint64              `json:"next_app_id"`
	NextAssetID uint64              `json:"next_asset_id"`
	TxCounter   uint64              `json:"tx_counter"`
	Accounts    map[string]*Account `json:"accounts"`
	Apps        map[uint64]*App     `json:"apps"`
}

// Ledger is an in-memory ledger with the registry contract installed.
type Ledger struct {
	mu          sync.Mutex
	state       snapshot
	faucet      uint64
	maxProjects int
	maxListings int
	faultCodes  bool
	logger      *zap.Logger
}

var _ ledger.Client = (*Ledger)(nil)

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		state: snapshot{
			NextAppID:   firstAppID,
			NextAssetID: firstAssetID,
			Accounts:    make(map[string]*Account),
			Apps:        make(map[uint64]*App),
		},
		faucet: DefaultFaucet,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load restores a ledger saved with Save. A missing file yields an empty ledger.
func Load(path string, opts ...Option) (*Ledger, error) {
	l := New(opts...)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read ledger state: %w", err)
	}
	if err := json.Unmarshal(data, &l.state); err != nil {
		return nil, fmt.Errorf("failed to parse ledger state: %w", err)
	}
	if l.state.Accounts == nil {
		l.state.Accounts = make(map[string]*Account)
	}
	if l.state.Apps == nil {
		l.state.Apps = make(map[uint64]*App)
	}
	return l, nil
}

// Save writes the ledger state to path.
func (l *Ledger) Save(path string) error {
	l.mu.Lock()
	data, err := json.MarshalIndent(&l.state, "", "  ")
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode ledger state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Deploy creates a registry whose admin is the signer.
func (l *Ledger) Deploy(ctx context.Context, signer ledger.Signer) (*ledger.Deployment, error) {
	if err := l.authorize(ctx, signer, "deploy", nil); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sender := signer.Address()
	if err := l.chargeFee(sender); err != nil {
		return nil, err
	}

	id := l.state.NextAppID
	l.state.NextAppID++
	app := &App{ID: id, Address: ledger.ApplicationAddress(id), Admin: sender}
	l.state.Apps[id] = app
	l.account(app.Address, 0)

	txID := l.nextTxID()
	l.logger.Debug("Registry deployed", zap.Uint64("app_id", id), zap.String("admin", sender))
	return &ledger.Deployment{AppID: id, AppAddress: app.Address, TxID: txID}, nil
}

// ReadState returns a copy of the registry state.
func (l *Ledger) ReadState(_ context.Context, appID uint64) (*ledger.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	app, err := l.app(appID)
	if err != nil {
		return nil, err
	}
	state := &ledger.State{
		AppID:              app.ID,
		AppAddress:         app.Address,
		Admin:              app.Admin,
		Validator:          app.Validator,
		AssetID:            app.AssetID,
		ProjectCount:       uint64(len(app.Projects)),
		ListingCount:       uint64(len(app.Listings)),
		TotalCreditsIssued: app.Total,
		Projects:           append([]ledger.ProjectRecord(nil), app.Projects...),
		Listings:           append([]ledger.ListingRecord(nil), app.Listings...),
	}
	return state, nil
}

// ReadProject returns one project record.
func (l *Ledger) ReadProject(_ context.Context, appID, projectID uint64) (*ledger.ProjectRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	app, err := l.app(appID)
	if err != nil {
		return nil, err
	}
	if projectID >= uint64(len(app.Projects)) {
		return nil, l.fault(ledger.FaultNotFound, "", "invalid project id")
	}
	record := app.Projects[projectID]
	return &record, nil
}

// ReadListing returns one listing record.
func (l *Ledger) ReadListing(_ context.Context, appID, listingID uint64) (*ledger.ListingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	app, err := l.app(appID)
	if err != nil {
		return nil, err
	}
	if listingID >= uint64(len(app.Listings)) {
		return nil, l.fault(ledger.FaultNotFound, "", "invalid listing id")
	}
	record := app.Listings[listingID]
	return &record, nil
}

// Call executes a contract method as the signer.
func (l *Ledger) Call(ctx context.Context, appID uint64, method string, args []interface{}, signer ledger.Signer) (*ledger.CallResult, error) {
	if err := l.authorize(ctx, signer, method, args); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	app, err := l.app(appID)
	if err != nil {
		return nil, err
	}
	sender := signer.Address()
	if err := l.chargeFee(sender); err != nil {
		return nil, err
	}

	ret, hasReturn, err := l.execute(app, sender, method, args)
	if err != nil {
		// fees are kept on rejection, as on a real network
		l.logger.Debug("Contract call rejected", zap.String("method", method), zap.Error(err))
		return nil, err
	}
	return &ledger.CallResult{TxID: l.nextTxID(), Return: ret, HasReturn: hasReturn}, nil
}

// Simulate evaluates the read-only contract methods.
func (l *Ledger) Simulate(_ context.Context, appID uint64, method string, args []interface{}) (*ledger.CallResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	app, err := l.app(appID)
	if err != nil {
		return nil, err
	}
	switch method {
	case ledger.MethodGetAssetID:
		return &ledger.CallResult{Return: app.AssetID, HasReturn: true}, nil
	case ledger.MethodGetProjectStatus:
		id, err := argUint(args, 0)
		if err != nil {
			return nil, l.fault(ledger.FaultInvalidArgument, method, err.Error())
		}
		if id >= uint64(len(app.Projects)) {
			return nil, l.fault(ledger.FaultNotFound, method, "invalid project id")
		}
		return &ledger.CallResult{Return: app.Projects[id].Status, HasReturn: true}, nil
	default:
		return nil, l.fault(ledger.FaultInvalidArgument, method, "method is not read-only")
	}
}

// Fund moves native units from the signer to destination.
func (l *Ledger) Fund(ctx context.Context, destination string, amount uint64, signer ledger.Signer) (string, error) {
	if err := l.authorize(ctx, signer, "pay", []interface{}{destination, amount}); err != nil {
		return "", err
	}
	if !ledger.ValidAddress(destination) {
		return "", l.fault(ledger.FaultInvalidArgument, "pay", "invalid receiver address")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.account(signer.Address(), l.faucet)
	if from.Amount < amount+TxnFee {
		return "", l.fault(ledger.FaultInsufficientFunds, "pay", fmt.Sprintf("overspend: balance %d below %d", from.Amount, amount+TxnFee))
	}
	from.Amount -= amount + TxnFee
	l.account(destination, 0).Amount += amount
	return l.nextTxID(), nil
}

// Account returns the native balance and asset holdings of address.
func (l *Ledger) Account(_ context.Context, address string) (*ledger.AccountInfo, error) {
	if !ledger.ValidAddress(address) {
		return nil, l.fault(ledger.FaultInvalidArgument, "", "invalid address")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct := l.account(address, l.faucet)
	info := &ledger.AccountInfo{Address: address, Amount: acct.Amount}
	for id, amount := range acct.Assets {
		info.Assets = append(info.Assets, ledger.AssetHolding{AssetID: id, Amount: amount})
	}
	return info, nil
}

// OptIn lets the signer hold assetID. Opting in twice is a no-op apart from the fee.
func (l *Ledger) OptIn(ctx context.Context, assetID uint64, signer ledger.Signer) (string, error) {
	if err := l.authorize(ctx, signer, "optin", []interface{}{assetID}); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.assetExists(assetID) {
		return "", l.fault(ledger.FaultMissingAsset, "optin", fmt.Sprintf("asset %d does not exist", assetID))
	}
	sender := signer.Address()
	if err := l.chargeFee(sender); err != nil {
		return "", err
	}
	acct := l.account(sender, l.faucet)
	if _, ok := acct.Assets[assetID]; !ok {
		acct.Assets[assetID] = 0
	}
	return l.nextTxID(), nil
}

// authorize asks the signer to sign the call and verifies the signature
// against the sender address.
func (l *Ledger) authorize(ctx context.Context, signer ledger.Signer, op string, args []interface{}) error {
	if signer == nil {
		return l.fault(ledger.FaultInvalidArgument, op, "missing signer")
	}
	payload, err := json.Marshal(map[string]interface{}{"op": op, "sender": signer.Address(), "args": args})
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	sig, err := signer.Sign(ctx, payload)
	if err != nil {
		return fmt.Errorf("signing failed: %w", err)
	}
	key, err := ledger.DecodeAddress(signer.Address())
	if err != nil {
		return l.fault(ledger.FaultInvalidArgument, op, err.Error())
	}
	if !ed25519.Verify(ed25519.PublicKey(key), payload, sig) {
		return l.fault(ledger.FaultInvalidArgument, op, "invalid signature")
	}
	return nil
}

func (l *Ledger) app(appID uint64) (*App, error) {
	app, ok := l.state.Apps[appID]
	if !ok {
		return nil, l.fault(ledger.FaultNotFound, "", fmt.Sprintf("application %d does not exist", appID))
	}
	return app, nil
}

func (l *Ledger) account(address string, initial uint64) *Account {
	acct, ok := l.state.Accounts[address]
	if !ok {
		acct = &Account{Amount: initial, Assets: make(map[uint64]uint64)}
		l.state.Accounts[address] = acct
	}
	if acct.Assets == nil {
		acct.Assets = make(map[uint64]uint64)
	}
	return acct
}

func (l *Ledger) assetExists(assetID uint64) bool {
	for _, app := range l.state.Apps {
		if app.AssetID == assetID && assetID != 0 {
			return true
		}
	}
	return false
}

func (l *Ledger) chargeFee(address string) error {
	acct := l.account(address, l.faucet)
	if acct.Amount < TxnFee {
		return l.fault(ledger.FaultInsufficientFunds, "", fmt.Sprintf("overspend: balance %d below fee %d", acct.Amount, TxnFee))
	}
	acct.Amount -= TxnFee
	return nil
}

func (l *Ledger) nextTxID() string {
	l.state.TxCounter++
	return fmt.Sprintf("SIMTX%08d", l.state.TxCounter)
}

func (l *Ledger) fault(code, method, message string) *ledger.Fault {
	f := &ledger.Fault{Method: method, Message: message}
	if l.faultCodes {
		f.Code = code
	}
	return f
}
