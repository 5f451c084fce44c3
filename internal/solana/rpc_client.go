package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"solana-rent-reclaimer/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements LedgerGateway using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	commitment  string
	pageSize    int
	observe     func(method string, d time.Duration, err error)
}

// Compile-time interface check.
var _ LedgerGateway = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts. Zero disables retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithCommitment sets the commitment used for reads and preflight.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) {
		c.commitment = commitment
	}
}

// WithPageSize switches token account listing to the paginated
// getTokenAccountsByOwnerV2 method with the given page limit.
func WithPageSize(n int) ClientOption {
	return func(c *HTTPClient) {
		c.pageSize = n
	}
}

// WithCallObserver registers a hook invoked after every RPC call.
func WithCallObserver(fn func(method string, d time.Duration, err error)) ClientOption {
	return func(c *HTTPClient) {
		c.observe = fn
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		commitment:  CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Transport failures are reported as domain.ErrNetwork; RPC errors are returned as-is.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	return c.callWithRetries(ctx, c.maxRetries, method, params, result)
}

func (c *HTTPClient) callWithRetries(ctx context.Context, maxRetries int, method string, params []interface{}, result interface{}) (err error) {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(method, time.Since(start), err) }()
	}

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	if maxRetries == 0 {
		return fmt.Errorf("%w: %s: %w", domain.ErrNetwork, method, lastErr)
	}
	return fmt.Errorf("%w: %s: max retries exceeded: %w", domain.ErrNetwork, method, lastErr)
}

// GetTokenAccountsByOwner retrieves token accounts owned by owner with jsonParsed encoding.
// With a page size configured the paginated V2 method is used and cursor is
// forwarded as paginationKey; otherwise the classic single-page method is called.
func (c *HTTPClient) GetTokenAccountsByOwner(ctx context.Context, owner, programID, cursor string) (*TokenAccountsPage, error) {
	config := map[string]interface{}{
		"encoding":   "jsonParsed",
		"commitment": c.commitment,
	}

	if c.pageSize <= 0 {
		params := []interface{}{
			owner,
			map[string]interface{}{"programId": programID},
			config,
		}
		var result getTokenAccountsResult
		if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
			return nil, err
		}
		return buildTokenAccountsPage(result.Value, ""), nil
	}

	config["limit"] = c.pageSize
	if cursor != "" {
		config["paginationKey"] = cursor
	}
	params := []interface{}{
		owner,
		map[string]interface{}{"programId": programID},
		config,
	}

	var result getTokenAccountsV2Result
	if err := c.call(ctx, "getTokenAccountsByOwnerV2", params, &result); err != nil {
		return nil, err
	}

	next := ""
	if result.Value.PaginationKey != nil {
		next = *result.Value.PaginationKey
	}
	return buildTokenAccountsPage(result.Value.Accounts, next), nil
}

// getTokenAccountsResult is the raw RPC response for getTokenAccountsByOwner.
type getTokenAccountsResult struct {
	Value []keyedTokenAccount `json:"value"`
}

// getTokenAccountsV2Result is the raw RPC response for getTokenAccountsByOwnerV2.
type getTokenAccountsV2Result struct {
	Value struct {
		Accounts      []keyedTokenAccount `json:"accounts"`
		PaginationKey *string             `json:"paginationKey"`
	} `json:"value"`
}

type keyedTokenAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Lamports uint64          `json:"lamports"`
		Owner    string          `json:"owner"`
		Data     json.RawMessage `json:"data"`
	} `json:"account"`
}

type parsedTokenAccountData struct {
	Program string `json:"program"`
	Parsed  struct {
		Type string `json:"type"`
		Info struct {
			IsNative    bool   `json:"isNative"`
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			State       string `json:"state"`
			TokenAmount struct {
				Amount         string   `json:"amount"`
				Decimals       uint8    `json:"decimals"`
				UIAmount       *float64 `json:"uiAmount"`
				UIAmountString string   `json:"uiAmountString"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

func buildTokenAccountsPage(raw []keyedTokenAccount, next string) *TokenAccountsPage {
	page := &TokenAccountsPage{
		Accounts:   make([]domain.TokenAccountDescriptor, 0, len(raw)),
		NextCursor: next,
	}
	for _, ka := range raw {
		desc, err := decodeTokenAccount(ka)
		if err != nil {
			page.Malformed = append(page.Malformed, MalformedAccount{Address: ka.Pubkey, Reason: err.Error()})
			continue
		}
		page.Accounts = append(page.Accounts, desc)
	}
	return page
}

// decodeTokenAccount converts a jsonParsed token account into a descriptor.
func decodeTokenAccount(ka keyedTokenAccount) (domain.TokenAccountDescriptor, error) {
	var data parsedTokenAccountData
	if err := json.Unmarshal(ka.Account.Data, &data); err != nil {
		// Non-parsed encodings come back as [base64, encoding]
		return domain.TokenAccountDescriptor{}, fmt.Errorf("account data is not jsonParsed: %w", err)
	}
	if data.Parsed.Type != "account" {
		return domain.TokenAccountDescriptor{}, fmt.Errorf("unexpected parsed type %q", data.Parsed.Type)
	}

	info := data.Parsed.Info
	if info.Mint == "" {
		return domain.TokenAccountDescriptor{}, fmt.Errorf("missing mint")
	}

	amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
	if err != nil {
		return domain.TokenAccountDescriptor{}, fmt.Errorf("parse token amount %q: %w", info.TokenAmount.Amount, err)
	}

	var ui decimal.Decimal
	switch {
	case info.TokenAmount.UIAmountString != "":
		ui, err = decimal.NewFromString(info.TokenAmount.UIAmountString)
		if err != nil {
			return domain.TokenAccountDescriptor{}, fmt.Errorf("parse uiAmountString %q: %w", info.TokenAmount.UIAmountString, err)
		}
	default:
		ui = decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(info.TokenAmount.Decimals))
	}

	return domain.TokenAccountDescriptor{
		Address:   ka.Pubkey,
		Mint:      info.Mint,
		Owner:     info.Owner,
		UIAmount:  ui,
		Amount:    amount,
		Decimals:  info.TokenAmount.Decimals,
		Lamports:  ka.Account.Lamports,
		State:     info.State,
		ProgramID: ka.Account.Owner,
		IsNative:  info.IsNative,
	}, nil
}

// GetLatestBlockhash retrieves a recent blockhash.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (*Blockhash, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": c.commitment},
	}

	var result getLatestBlockhashResult
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return nil, err
	}
	if result.Value.Blockhash == "" {
		return nil, fmt.Errorf("empty blockhash in response")
	}

	return &Blockhash{
		Hash:                 result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
	}, nil
}

type getLatestBlockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// SendTransaction submits a signed transaction. It is attempted exactly once:
// submissions are never retried by the transport.
func (c *HTTPClient) SendTransaction(ctx context.Context, rawTx []byte) (string, error) {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(rawTx),
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": c.commitment,
		},
	}

	var signature string
	if err := c.callWithRetries(ctx, 0, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	if signature == "" {
		return "", fmt.Errorf("empty signature in response")
	}
	return signature, nil
}

// GetSignatureStatuses retrieves statuses for signatures, searching transaction history.
func (c *HTTPClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	params := []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": true},
	}

	var result getSignatureStatusesResult
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(signatures))
	for i := range signatures {
		if i >= len(result.Value) || result.Value[i] == nil {
			continue
		}
		r := result.Value[i]
		statuses[i] = &SignatureStatus{
			Slot:               r.Slot,
			Confirmations:      r.Confirmations,
			Err:                r.Err,
			ConfirmationStatus: r.ConfirmationStatus,
		}
	}
	return statuses, nil
}

type getSignatureStatusesResult struct {
	Value []*struct {
		Slot               int64       `json:"slot"`
		Confirmations      *uint64     `json:"confirmations"`
		Err                interface{} `json:"err"`
		ConfirmationStatus string      `json:"confirmationStatus"`
	} `json:"value"`
}

// GetMinimumBalanceForRentExemption retrieves the rent-exempt minimum for size bytes.
func (c *HTTPClient) GetMinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error) {
	var result uint64
	if err := c.call(ctx, "getMinimumBalanceForRentExemption", []interface{}{size}, &result); err != nil {
		return 0, err
	}
	return result, nil
}
