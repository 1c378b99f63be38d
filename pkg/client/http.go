package client

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
)

// APIError is a non-2xx response from the pool API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Asset is one side of a pool.
type Asset struct {
	Address          string `json:"address"`
	Symbol           string `json:"symbol"`
	Decimals         uint8  `json:"decimals"`
	Reserve          string `json:"reserve"`
	ReserveFormatted string `json:"reserveFormatted"`
}

// PoolState is the current state of a pool.
type PoolState struct {
	Address  string `json:"address"`
	AssetA   Asset  `json:"assetA"`
	AssetB   Asset  `json:"assetB"`
	Fee      string `json:"fee"`
	FeeRate  string `json:"feeRate"`
	PriceA   string `json:"priceA"`
	PriceB   string `json:"priceB"`
	Sequence uint64 `json:"sequence"`
}

type Quote struct {
	Side               string `json:"side"`
	AmountIn           string `json:"amountIn"`
	AmountOut          string `json:"amountOut"`
	AmountOutFormatted string `json:"amountOutFormatted"`
	SpotPrice          string `json:"spotPrice"`
	PriceImpact        string `json:"priceImpact"`
}

// SwapRequest sells AmountIn of one asset. Either Side ("A"/"B") or AssetIn
// (address or symbol) selects the input.
type SwapRequest struct {
	Trader       string `json:"trader"`
	Side         string `json:"side,omitempty"`
	AssetIn      string `json:"assetIn,omitempty"`
	AmountIn     string `json:"amountIn"`
	MinAmountOut string `json:"minAmountOut,omitempty"`
}

type SwapResult struct {
	Side      string `json:"side"`
	AssetIn   string `json:"assetIn"`
	AssetOut  string `json:"assetOut"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	ReserveA  string `json:"reserveA"`
	ReserveB  string `json:"reserveB"`
	Sequence  uint64 `json:"sequence"`
}

type DepositRequest struct {
	Depositor string `json:"depositor"`
	AmountA   string `json:"amountA"`
	AmountB   string `json:"amountB"`
}

type DepositResult struct {
	AmountA  string `json:"amountA"`
	AmountB  string `json:"amountB"`
	ReserveA string `json:"reserveA"`
	ReserveB string `json:"reserveB"`
	Sequence uint64 `json:"sequence"`
}

// ApproveRequest sets the pool's allowance over Owner's balance of Asset.
// Amount "max" approves without limit.
type ApproveRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type Balance struct {
	Account   string `json:"account"`
	Asset     string `json:"asset"`
	Symbol    string `json:"symbol"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// Update is a reserve change pushed over the stream.
type Update struct {
	Pool      string    `json:"pool"`
	Kind      string    `json:"kind"`
	Sequence  uint64    `json:"sequence"`
	ReserveA  string    `json:"reserveA"`
	ReserveB  string    `json:"reserveB"`
	Timestamp time.Time `json:"timestamp"`
}

// HTTPClient talks to the pool API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the API at baseURL, e.g. "http://localhost:8080".
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Pool returns the pool state.
func (c *HTTPClient) Pool(ctx context.Context) (*PoolState, error) {
	var state PoolState
	if err := c.Get(ctx, "/pool", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Quote prices selling amount base units on side without executing.
func (c *HTTPClient) Quote(ctx context.Context, side, amount string) (*Quote, error) {
	var q Quote
	params := url.Values{"side": {side}, "amount": {amount}}
	if err := c.Get(ctx, "/quote", params, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Balance returns account's balance of asset and the allowance it granted the pool.
func (c *HTTPClient) Balance(ctx context.Context, account, asset string) (*Balance, error) {
	var b Balance
	params := url.Values{"account": {account}, "asset": {asset}}
	if err := c.Get(ctx, "/balance", params, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *HTTPClient) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	var res SwapResult
	if err := c.Post(ctx, "/swap", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	var res DepositResult
	if err := c.Post(ctx, "/deposit", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Approve(ctx context.Context, req ApproveRequest) (*Balance, error) {
	var b Balance
	if err := c.Post(ctx, "/approve", req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Get fetches path with query params and decodes the JSON response.
func (c *HTTPClient) Get(ctx context.Context, path string, params url.Values, response interface{}) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, response)
}

// Post sends body as JSON to path and decodes the JSON response.
func (c *HTTPClient) Post(ctx context.Context, path string, body, response interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, response)
}

func (c *HTTPClient) do(req *http.Request, response interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			apiErr.Code = e.Code
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(body, response); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}

	return nil
}
