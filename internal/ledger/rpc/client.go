// Package rpc talks to a registry ledger gateway over JSON-RPC 2.0.
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
)

// Gateway methods.
const (
	methodDeploy     = "registry_deploy"
	methodGetState   = "registry_getState"
	methodGetProject = "registry_getProject"
	methodGetListing = "registry_getListing"
	methodCall       = "registry_call"
	methodSimulate   = "registry_simulate"
	methodPay        = "account_pay"
	methodAccount    = "account_info"
	methodOptIn      = "asset_optIn"
)

// Config holds client configuration.
type Config struct {
	URL               string
	Network           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client provides ledger access through the gateway.
type Client struct {
	url        string
	network    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	nextID     atomic.Uint64
}

var _ ledger.Client = (*Client)(nil)

// NewClient creates a gateway client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		url:        cfg.URL,
		network:    cfg.Network,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}, nil
}

// Request is a JSON-RPC request.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

// Response is a JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// fault converts a gateway error into a ledger fault. Contract rejections
// carry the assertion text in data.reason and, on newer gateways, a code in
// data.fault.
func (e *Error) fault(method string) *ledger.Fault {
	f := &ledger.Fault{Method: method, Message: e.Message}
	if len(e.Data) > 0 {
		data := gjson.ParseBytes(e.Data)
		f.Code = data.Get("fault").String()
		if reason := data.Get("reason").String(); reason != "" {
			f.Message = reason
		}
	}
	return f
}

// Transaction is the unsigned body of a state-changing request.
type Transaction struct {
	Type     string        `json:"type"`
	Network  string        `json:"network,omitempty"`
	Sender   string        `json:"sender"`
	AppID    uint64        `json:"app_id,omitempty"`
	Method   string        `json:"method,omitempty"`
	Args     []interface{} `json:"args,omitempty"`
	Receiver string        `json:"receiver,omitempty"`
	Amount   uint64        `json:"amount,omitempty"`
	AssetID  uint64        `json:"asset_id,omitempty"`
	Nonce    string        `json:"nonce"`
}

// SignedTransaction carries a transaction and the sender's signature over its JSON encoding.
type SignedTransaction struct {
	Transaction json.RawMessage `json:"txn"`
	Signature   string          `json:"sig"`
}

// call makes an RPC call to the gateway.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("Ledger RPC",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// submit signs txn with signer and sends it.
func (c *Client) submit(ctx context.Context, method string, txn Transaction, signer ledger.Signer) (json.RawMessage, error) {
	if signer == nil {
		return nil, fmt.Errorf("missing signer")
	}
	txn.Sender = signer.Address()
	txn.Network = c.network
	txn.Nonce = uuid.NewString()

	raw, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	sig, err := signer.Sign(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	result, err := c.call(ctx, method, SignedTransaction{
		Transaction: raw,
		Signature:   base64.StdEncoding.EncodeToString(sig),
	})
	if err != nil {
		return nil, asFault(err, txn.Method)
	}
	return result, nil
}

func asFault(err error, method string) error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.fault(method)
	}
	return err
}

// Deploy creates a registry owned by signer.
func (c *Client) Deploy(ctx context.Context, signer ledger.Signer) (*ledger.Deployment, error) {
	result, err := c.submit(ctx, methodDeploy, Transaction{Type: "appl", Method: ledger.MethodInit}, signer)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(result)
	dep := &ledger.Deployment{
		AppID:      res.Get("app_id").Uint(),
		AppAddress: res.Get("app_address").String(),
		TxID:       res.Get("tx_id").String(),
	}
	if dep.AppID == 0 {
		return nil, fmt.Errorf("gateway returned no application id")
	}
	if dep.AppAddress == "" {
		dep.AppAddress = ledger.ApplicationAddress(dep.AppID)
	}
	return dep, nil
}

// ReadState reads the full registry state.
func (c *Client) ReadState(ctx context.Context, appID uint64) (*ledger.State, error) {
	result, err := c.call(ctx, methodGetState, appID)
	if err != nil {
		return nil, asFault(err, "")
	}
	// listings are decoded separately because active is stored as 0/1
	var decoded struct {
		ledger.State
		Listings json.RawMessage `json:"listings"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	state := decoded.State
	state.Listings = nil
	gjson.GetBytes(result, "listings").ForEach(func(_, item gjson.Result) bool {
		state.Listings = append(state.Listings, listingFromResult(item, item.Get("id").Uint()))
		return true
	})
	if state.AppAddress == "" {
		state.AppAddress = ledger.ApplicationAddress(appID)
	}
	return &state, nil
}

// ReadProject reads one project record.
func (c *Client) ReadProject(ctx context.Context, appID, projectID uint64) (*ledger.ProjectRecord, error) {
	result, err := c.call(ctx, methodGetProject, appID, projectID)
	if err != nil {
		return nil, asFault(err, "")
	}
	var record ledger.ProjectRecord
	if err := json.Unmarshal(result, &record); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	record.ID = projectID
	return &record, nil
}

// ReadListing reads one listing record.
func (c *Client) ReadListing(ctx context.Context, appID, listingID uint64) (*ledger.ListingRecord, error) {
	result, err := c.call(ctx, methodGetListing, appID, listingID)
	if err != nil {
		return nil, asFault(err, "")
	}
	record := listingFromResult(gjson.ParseBytes(result), listingID)
	return &record, nil
}

func listingFromResult(res gjson.Result, id uint64) ledger.ListingRecord {
	return ledger.ListingRecord{
		ID:     id,
		Seller: res.Get("seller").String(),
		Amount: res.Get("amount").Uint(),
		Price:  res.Get("price").Uint(),
		// the contract stores active as 0/1
		Active: res.Get("active").Bool(),
	}
}

// Call submits a contract method call.
func (c *Client) Call(ctx context.Context, appID uint64, method string, args []interface{}, signer ledger.Signer) (*ledger.CallResult, error) {
	result, err := c.submit(ctx, methodCall, Transaction{Type: "appl", AppID: appID, Method: method, Args: args}, signer)
	if err != nil {
		return nil, err
	}
	return decodeCallResult(result), nil
}

// Simulate evaluates a read-only method.
func (c *Client) Simulate(ctx context.Context, appID uint64, method string, args []interface{}) (*ledger.CallResult, error) {
	if args == nil {
		args = []interface{}{}
	}
	result, err := c.call(ctx, methodSimulate, appID, method, args)
	if err != nil {
		return nil, asFault(err, method)
	}
	return decodeCallResult(result), nil
}

func decodeCallResult(result json.RawMessage) *ledger.CallResult {
	res := gjson.ParseBytes(result)
	ret := res.Get("return")
	return &ledger.CallResult{
		TxID:      res.Get("tx_id").String(),
		Return:    ret.Uint(),
		HasReturn: ret.Exists() && ret.Type != gjson.Null,
	}
}

// Fund sends a payment from signer to destination.
func (c *Client) Fund(ctx context.Context, destination string, amount uint64, signer ledger.Signer) (string, error) {
	result, err := c.submit(ctx, methodPay, Transaction{Type: "pay", Receiver: destination, Amount: amount}, signer)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(result, "tx_id").String(), nil
}

// Account reads the balance and holdings of address.
func (c *Client) Account(ctx context.Context, address string) (*ledger.AccountInfo, error) {
	result, err := c.call(ctx, methodAccount, address)
	if err != nil {
		return nil, asFault(err, "")
	}
	res := gjson.ParseBytes(result)
	info := &ledger.AccountInfo{
		Address: address,
		Amount:  res.Get("amount").Uint(),
	}
	res.Get("assets").ForEach(func(_, holding gjson.Result) bool {
		info.Assets = append(info.Assets, ledger.AssetHolding{
			AssetID: holding.Get("asset_id").Uint(),
			Amount:  holding.Get("amount").Uint(),
		})
		return true
	})
	return info, nil
}

// OptIn lets signer hold assetID.
func (c *Client) OptIn(ctx context.Context, assetID uint64, signer ledger.Signer) (string, error) {
	if signer == nil {
		return "", fmt.Errorf("missing signer")
	}
	result, err := c.submit(ctx, methodOptIn, Transaction{Type: "axfer", AssetID: assetID, Receiver: signer.Address()}, signer)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(result, "tx_id").String(), nil
}
