package simulated

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
)

// execute runs one contract method. It is called with l.mu held and must not
// mutate state before every assertion of the method has passed.
func (l *Ledger) execute(app *App, sender, method string, args []interface{}) (uint64, bool, error) {
	switch method {
	case ledger.MethodSetValidator:
		if err := l.onlyAdmin(app, sender, method); err != nil {
			return 0, false, err
		}
		addr, err := argString(args, 0)
		if err != nil || !ledger.ValidAddress(addr) {
			return 0, false, l.fault(ledger.FaultInvalidArgument, method, "invalid: validator address")
		}
		app.Validator = addr
		return 0, false, nil

	case ledger.MethodTransferAdmin:
		if err := l.onlyAdmin(app, sender, method); err != nil {
			return 0, false, err
		}
		addr, err := argString(args, 0)
		if err != nil || !ledger.ValidAddress(addr) {
			return 0, false, l.fault(ledger.FaultInvalidArgument, method, "invalid: zero address")
		}
		app.Admin = addr
		return 0, false, nil

	case ledger.MethodEnsureToken:
		return l.ensureToken(app, sender)

	case ledger.MethodSubmitProject:
		return l.submitProject(app, sender, args)

	case ledger.MethodApproveProject:
		if err := l.onlyValidator(app, sender, method); err != nil {
			return 0, false, err
		}
		record, err := l.projectArg(app, method, args)
		if err != nil {
			return 0, false, err
		}
		credits, err := argUint(args, 1)
		if err != nil || credits == 0 {
			return 0, false, l.fault(ledger.FaultInvalidArgument, method, "credits must be > 0")
		}
		if record.Status != ledger.StatusPending {
			return 0, false, l.fault(ledger.FaultNotPending, method, "project not pending")
		}
		record.Status = ledger.StatusVerified
		record.Credits = credits
		return 0, false, nil

	case ledger.MethodRejectProject:
		if err := l.onlyValidator(app, sender, method); err != nil {
			return 0, false, err
		}
		record, err := l.projectArg(app, method, args)
		if err != nil {
			return 0, false, err
		}
		if record.Status != ledger.StatusPending {
			return 0, false, l.fault(ledger.FaultNotPending, method, "project not pending")
		}
		record.Status = ledger.StatusRejected
		return 0, false, nil

	case ledger.MethodIssueCredits:
		return l.issueCredits(app, sender, args)

	case ledger.MethodListForSale:
		return l.listForSale(app, sender, args)

	case ledger.MethodBuyListing:
		return l.buyListing(app, sender, args)

	case ledger.MethodCancelListing:
		record, err := l.listingArg(app, method, args)
		if err != nil {
			return 0, false, err
		}
		if !record.Active {
			return 0, false, l.fault(ledger.FaultListingInactive, method, "listing not active")
		}
		if record.Seller != sender {
			return 0, false, l.fault(ledger.FaultNotSeller, method, "only seller can cancel")
		}
		record.Active = false
		return 0, false, nil

	case ledger.MethodGetAssetID:
		return app.AssetID, true, nil

	case ledger.MethodGetProjectStatus:
		record, err := l.projectArg(app, method, args)
		if err != nil {
			return 0, false, err
		}
		return record.Status, true, nil

	default:
		return 0, false, l.fault(ledger.FaultInvalidArgument, method, "unknown method")
	}
}

func (l *Ledger) ensureToken(app *App, sender string) (uint64, bool, error) {
	if err := l.onlyAdmin(app, sender, ledger.MethodEnsureToken); err != nil {
		return 0, false, err
	}
	if app.AssetID != 0 {
		return app.AssetID, true, nil
	}

	acct := l.account(app.Address, 0)
	required := l.minBalance(app) + AssetMinBalance + TxnFee
	if acct.Amount < required {
		return 0, false, l.belowMin(ledger.MethodEnsureToken, acct.Amount, required)
	}
	acct.Amount -= TxnFee

	app.AssetID = l.state.NextAssetID
	l.state.NextAssetID++
	acct.Assets[app.AssetID] = TokenSupply
	return app.AssetID, true, nil
}

func (l *Ledger) submitProject(app *App, sender string, args []interface{}) (uint64, bool, error) {
	method := ledger.MethodSubmitProject
	fields := make([]string, 4)
	for i := range fields {
		v, err := argString(args, i)
		if err != nil {
			return 0, false, l.fault(ledger.FaultInvalidArgument, method, err.Error())
		}
		fields[i] = v
	}
	if l.maxProjects > 0 && len(app.Projects) >= l.maxProjects {
		return 0, false, l.fault(ledger.FaultCapacityExceeded, method, "project capacity reached")
	}
	acct := l.account(app.Address, 0)
	required := l.minBalance(app) + RecordMinBalance
	if acct.Amount < required {
		return 0, false, l.belowMin(method, acct.Amount, required)
	}

	id := uint64(len(app.Projects))
	app.Projects = append(app.Projects, ledger.ProjectRecord{
		ID:        id,
		Submitter: sender,
		Name:      fields[0],
		Location:  fields[1],
		Ecosystem: fields[2],
		CID:       fields[3],
		Status:    ledger.StatusPending,
	})
	return id, true, nil
}

func (l *Ledger) issueCredits(app *App, sender string, args []interface{}) (uint64, bool, error) {
	method := ledger.MethodIssueCredits
	if err := l.onlyValidator(app, sender, method); err != nil {
		return 0, false, err
	}
	if app.AssetID == 0 {
		return 0, false, l.fault(ledger.FaultMissingAsset, method, "no AARNA token created")
	}
	record, err := l.projectArg(app, method, args)
	if err != nil {
		return 0, false, err
	}
	if record.Status != ledger.StatusVerified {
		return 0, false, l.fault(ledger.FaultNotVerified, method, "project not verified")
	}

	receiver := l.account(record.Submitter, l.faucet)
	if _, ok := receiver.Assets[app.AssetID]; !ok {
		return 0, false, l.fault(ledger.FaultNotOptedIn, method, "receiver not opted in to asset")
	}
	escrow := l.account(app.Address, 0)
	required := l.minBalance(app) + TxnFee
	if escrow.Amount < required {
		return 0, false, l.belowMin(method, escrow.Amount, required)
	}
	if escrow.Assets[app.AssetID] < record.Credits {
		return 0, false, l.fault(ledger.FaultInsufficientFunds, method, "asset reserve exhausted")
	}

	escrow.Amount -= TxnFee
	escrow.Assets[app.AssetID] -= record.Credits
	receiver.Assets[app.AssetID] += record.Credits
	record.Status = ledger.StatusIssued
	app.Total += record.Credits
	return record.Credits, true, nil
}

func (l *Ledger) listForSale(app *App, sender string, args []interface{}) (uint64, bool, error) {
	method := ledger.MethodListForSale
	if app.AssetID == 0 {
		return 0, false, l.fault(ledger.FaultMissingAsset, method, "no AARNA token")
	}
	amount, err := argUint(args, 0)
	if err != nil || amount == 0 {
		return 0, false, l.fault(ledger.FaultInvalidArgument, method, "amount must be > 0")
	}
	price, err := argUint(args, 1)
	if err != nil || price == 0 {
		return 0, false, l.fault(ledger.FaultInvalidArgument, method, "price must be > 0")
	}
	if l.maxListings > 0 && len(app.Listings) >= l.maxListings {
		return 0, false, l.fault(ledger.FaultCapacityExceeded, method, "listing capacity reached")
	}
	acct := l.account(app.Address, 0)
	required := l.minBalance(app) + RecordMinBalance
	if acct.Amount < required {
		return 0, false, l.belowMin(method, acct.Amount, required)
	}

	id := uint64(len(app.Listings))
	app.Listings = append(app.Listings, ledger.ListingRecord{
		ID:     id,
		Seller: sender,
		Amount: amount,
		Price:  price,
		Active: true,
	})
	return id, true, nil
}

func (l *Ledger) buyListing(app *App, sender string, args []interface{}) (uint64, bool, error) {
	method := ledger.MethodBuyListing
	if app.AssetID == 0 {
		return 0, false, l.fault(ledger.FaultMissingAsset, method, "no AARNA token")
	}
	record, err := l.listingArg(app, method, args)
	if err != nil {
		return 0, false, err
	}
	if !record.Active {
		return 0, false, l.fault(ledger.FaultListingInactive, method, "listing not active")
	}
	payment, err := argUint(args, 1)
	if err != nil {
		return 0, false, l.fault(ledger.FaultInvalidArgument, method, err.Error())
	}
	if record.Price != 0 && record.Amount > math.MaxUint64/record.Price {
		return 0, false, l.fault(ledger.FaultInvalidArgument, method, "total cost overflows")
	}
	total := record.Amount * record.Price
	if payment < total {
		return 0, false, l.fault(ledger.FaultInsufficientPayment, method, "insufficient payment")
	}

	escrow := l.account(app.Address, 0)
	required := l.minBalance(app) + total + TxnFee
	if escrow.Amount < required {
		return 0, false, l.belowMin(method, escrow.Amount, required)
	}
	escrow.Amount -= total + TxnFee
	l.account(record.Seller, l.faucet).Amount += total
	record.Active = false
	return 0, false, nil
}

func (l *Ledger) onlyAdmin(app *App, sender, method string) error {
	if sender != app.Admin {
		return l.fault(ledger.FaultUnauthorizedAdmin, method, "unauthorized: admin only")
	}
	return nil
}

func (l *Ledger) onlyValidator(app *App, sender, method string) error {
	if app.Validator == "" || sender != app.Validator {
		return l.fault(ledger.FaultUnauthorizedValidator, method, "unauthorized: validator only")
	}
	return nil
}

func (l *Ledger) projectArg(app *App, method string, args []interface{}) (*ledger.ProjectRecord, error) {
	id, err := argUint(args, 0)
	if err != nil || id >= uint64(len(app.Projects)) {
		return nil, l.fault(ledger.FaultNotFound, method, "invalid project id")
	}
	return &app.Projects[id], nil
}

func (l *Ledger) listingArg(app *App, method string, args []interface{}) (*ledger.ListingRecord, error) {
	id, err := argUint(args, 0)
	if err != nil || id >= uint64(len(app.Listings)) {
		return nil, l.fault(ledger.FaultNotFound, method, "invalid listing id")
	}
	return &app.Listings[id], nil
}

// minBalance is the amount the registry account must keep for its current
// asset and records.
func (l *Ledger) minBalance(app *App) uint64 {
	need := MinAccountBalance
	if app.AssetID != 0 {
		need += AssetMinBalance
	}
	return need + RecordMinBalance*uint64(len(app.Projects)+len(app.Listings))
}

func (l *Ledger) belowMin(method string, have, need uint64) error {
	return l.fault(ledger.FaultInsufficientFunds, method,
		fmt.Sprintf("balance below min: account has %d, needs %d", have, need))
}

func argUint(args []interface{}, i int) (uint64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case uint64:
		return v, nil
	case uint:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("argument %d is negative", i)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("argument %d is negative", i)
		}
		return uint64(v), nil
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, fmt.Errorf("argument %d is not an unsigned integer", i)
		}
		return uint64(v), nil
	case json.Number:
		return strconv.ParseUint(v.String(), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	default:
		return 0, fmt.Errorf("argument %d has unsupported type %T", i, v)
	}
}

func argString(args []interface{}, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be a string", i)
	}
	return s, nil
}
