package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/screa/d3caf/pkg/auction"
	"github.com/screa/d3caf/pkg/types"
)

// Client talks to a Server. Errors returned by the server wrap the matching
// auction sentinel, so errors.Is works across the wire.
type Client struct {
	base string
	from common.Address
	http *http.Client
}

// NewClient creates a client for the server at base acting as from
func NewClient(base string, from common.Address) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		from: from,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// From returns the caller identity sent with every request
func (c *Client) From() common.Address {
	return c.from
}

// RemoteError is a failure reported by the server
type RemoteError struct {
	Status int
	Code   string
	Msg    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Msg)
}

// Unwrap returns the auction sentinel for the error code, if any
func (e *RemoteError) Unwrap() error {
	return errorForCode(e.Code)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(FromHeader, c.from.Hex())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			return &RemoteError{Status: resp.StatusCode, Code: codeInternal, Msg: resp.Status}
		}
		return &RemoteError{Status: resp.StatusCode, Code: e.Code, Msg: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func requestPath(id common.Hash, suffix string) string {
	return "/v1/requests/" + id.Hex() + suffix
}

// Chain returns the current height and escrow address
func (c *Client) Chain(ctx context.Context) (*ChainView, error) {
	var out ChainView
	if err := c.do(ctx, http.MethodGet, "/v1/chain", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deposit credits amount of asset to account through the faucet
func (c *Client) Deposit(ctx context.Context, asset, account common.Address, amount *uint256.Int) (*BalanceView, error) {
	var out BalanceView
	body := DepositRequest{Asset: asset, Account: account, Amount: amount}
	if err := c.do(ctx, http.MethodPost, "/v1/faucet", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the ledger balance of account in asset
func (c *Client) Balance(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	var out BalanceView
	path := "/v1/balances/" + asset.Hex() + "/" + account.Hex()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Balance, nil
}

// Register escrows the reward and registers req. value is the native value attached.
func (c *Client) Register(ctx context.Context, req types.Request, value *uint256.Int) (common.Hash, error) {
	var out RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/v1/requests", RegisterRequest{Request: req, Value: value}, &out); err != nil {
		return common.Hash{}, err
	}
	return out.RequestID, nil
}

// Requests lists unresolved requests, or only those past their deadline
func (c *Client) Requests(ctx context.Context, finalizable bool) ([]RequestView, error) {
	path := "/v1/requests"
	if finalizable {
		path += "?finalizable=true"
	}
	var out []RequestView
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Request returns a stored request
func (c *Client) Request(ctx context.Context, id common.Hash) (*RequestView, error) {
	var out RequestView
	if err := c.do(ctx, http.MethodGet, requestPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BestSalt returns the current best salt of a request and the address it yields
func (c *Client) BestSalt(ctx context.Context, id common.Hash) (*SaltView, error) {
	var out SaltView
	if err := c.do(ctx, http.MethodGet, requestPath(id, "/best"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ComputeAddress returns the address salt yields for a request
func (c *Client) ComputeAddress(ctx context.Context, id, salt common.Hash) (common.Address, error) {
	var out SaltView
	path := requestPath(id, "/address") + "?salt=" + url.QueryEscape(salt.Hex())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return common.Address{}, err
	}
	return out.Address, nil
}

// ComputeSalt asks the server for the salt bound to solver
func (c *Client) ComputeSalt(ctx context.Context, solver common.Address, sourceSalt common.Hash) (common.Hash, error) {
	var out map[string]common.Hash
	q := url.Values{"solver": {solver.Hex()}, "sourceSalt": {sourceSalt.Hex()}}
	if err := c.do(ctx, http.MethodGet, "/v1/salt?"+q.Encode(), nil, &out); err != nil {
		return common.Hash{}, err
	}
	return out["salt"], nil
}

// Submit offers salt as the new best. It reports false when the salt does not improve enough.
func (c *Client) Submit(ctx context.Context, id, salt common.Hash) (bool, error) {
	var out SubmitResponse
	if err := c.do(ctx, http.MethodPost, requestPath(id, "/responses"), SubmitRequest{Salt: salt}, &out); err != nil {
		return false, err
	}
	return out.Accepted, nil
}

// Claim reveals sourceSalt and pays the reward to solver
func (c *Client) Claim(ctx context.Context, id common.Hash, solver common.Address, sourceSalt common.Hash) (*PayoutView, error) {
	var out PayoutView
	body := ClaimRequest{Solver: solver, SourceSalt: sourceSalt}
	if err := c.do(ctx, http.MethodPost, requestPath(id, "/claim"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Withdraw refunds an expired, unimproved request
func (c *Client) Withdraw(ctx context.Context, id common.Hash) error {
	return c.do(ctx, http.MethodPost, requestPath(id, "/withdraw"), nil, nil)
}

// Config returns the auction configuration
func (c *Client) Config(ctx context.Context) (*auction.Config, error) {
	var out auction.Config
	if err := c.do(ctx, http.MethodGet, "/v1/admin/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetCommissionReceiver changes where commissions are paid
func (c *Client) SetCommissionReceiver(ctx context.Context, receiver common.Address) error {
	return c.do(ctx, http.MethodPut, "/v1/admin/commission-receiver", AddressValue{Value: receiver}, nil)
}

// SetCommissionRateBasisPoints changes the commission rate
func (c *Client) SetCommissionRateBasisPoints(ctx context.Context, rate uint64) error {
	return c.do(ctx, http.MethodPut, "/v1/admin/commission-rate", UintValue{Value: rate}, nil)
}

// SetMaxDeadlineBlockDuration changes the longest allowed deadline
func (c *Client) SetMaxDeadlineBlockDuration(ctx context.Context, blocks uint64) error {
	return c.do(ctx, http.MethodPut, "/v1/admin/max-deadline", UintValue{Value: blocks}, nil)
}

// TransferOwnership hands administration to owner
func (c *Client) TransferOwnership(ctx context.Context, owner common.Address) error {
	return c.do(ctx, http.MethodPut, "/v1/admin/owner", AddressValue{Value: owner}, nil)
}
