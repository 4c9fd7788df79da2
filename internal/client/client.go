// Package client talks to a rewardsd HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/contract"
	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/report"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/server"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// APIError is a non-2xx response from the server
type APIError struct {
	Status    int
	Message   string
	Class     string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Class, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// IsClass reports whether err is an APIError of the given class
func IsClass(err error, class contract.Class) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Class == class.String()
}

// Client is a rewardsd API client
type Client struct {
	baseURL string
	token   string
	signer  types.Address
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithToken sets the bearer token sent with transactions
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithSigner requires receipts to be signed by signer
func WithSigner(signer types.Address) Option {
	return func(c *Client) { c.signer = signer }
}

// WithRetries overrides the retry policy
func WithRetries(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		rc := newRetryClient()
		rc.RetryMax = max
		rc.RetryWaitMin = waitMin
		rc.RetryWaitMax = waitMax
		c.http = rc.StandardClient()
	}
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	c.CheckRetry = checkRetry
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logrus.WithFields(logrus.Fields{"url": req.URL.String(), "attempt": attempt}).Debug("Retrying request")
		}
	}
	return c
}

// checkRetry retries transport errors and responses that may succeed later.
// Internal errors are not retried since a transaction may have committed.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// New creates a client for the server at baseURL
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newRetryClient().StandardClient(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e server.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Class: e.Class, RequestID: e.RequestID}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func withMoment(q url.Values, at *types.Moment) url.Values {
	if at != nil {
		q.Set("at", strconv.FormatUint(uint64(*at), 10))
	}
	return q
}

// Login exchanges a viewing key for a bearer token and keeps it for
// later transactions
func (c *Client) Login(ctx context.Context, address types.Address, key string) (*server.LoginResponse, error) {
	var resp server.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", nil, server.LoginRequest{Address: address, Key: key}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// Token returns the bearer token in use
func (c *Client) Token() string { return c.token }

// Execute submits a transaction as the token's subject. With a signer set
// the receipt's signature is checked.
func (c *Client) Execute(ctx context.Context, tx contract.Tx) (*contract.Receipt, error) {
	var r contract.Receipt
	if err := c.do(ctx, http.MethodPost, "/tx", nil, tx, &r); err != nil {
		return nil, err
	}
	if !c.signer.IsZero() {
		if err := contract.VerifyReceiptSignature(r, c.signer); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func (c *Client) verify(r contract.Receipt) error {
	if c.signer.IsZero() {
		return contract.VerifyReceipt(r)
	}
	return contract.VerifyReceiptSignature(r, c.signer)
}

// Status fetches pool state, with the account's when address is set
func (c *Client) Status(ctx context.Context, pool string, at *types.Moment, address types.Address, key string) (*rewards.Status, error) {
	q := withMoment(url.Values{"pool": {pool}}, at)
	if !address.IsZero() {
		q.Set("address", string(address))
		q.Set("key", key)
	}
	var s rewards.Status
	if err := c.do(ctx, http.MethodGet, "/status", q, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SimulateClaims evaluates claims in pools, or in every pool when empty
func (c *Client) SimulateClaims(ctx context.Context, pools []string, address types.Address, key string, at *types.Moment) (*rewards.ClaimSimulation, error) {
	q := withMoment(url.Values{"address": {string(address)}, "key": {key}}, at)
	for _, p := range pools {
		q.Add("pool", p)
	}
	var sim rewards.ClaimSimulation
	if err := c.do(ctx, http.MethodGet, "/simulate", q, nil, &sim); err != nil {
		return nil, err
	}
	return &sim, nil
}

// Pools lists registered pools and their escrows
func (c *Client) Pools(ctx context.Context) ([]server.PoolInfo, error) {
	var resp struct {
		Pools []server.PoolInfo `json:"pools"`
	}
	if err := c.do(ctx, http.MethodGet, "/pools", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pools, nil
}

// Summary fetches the aggregate report over all pools
func (c *Client) Summary(ctx context.Context, at *types.Moment) (*report.Summary, error) {
	var s report.Summary
	if err := c.do(ctx, http.MethodGet, "/summary", withMoment(url.Values{}, at), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Receipt fetches a committed transaction and verifies its content id, and
// its signature when a signer is set
func (c *Client) Receipt(ctx context.Context, id string) (*contract.Receipt, error) {
	var r contract.Receipt
	if err := c.do(ctx, http.MethodGet, "/receipt", url.Values{"id": {id}}, nil, &r); err != nil {
		return nil, err
	}
	if r.ID != id {
		return nil, fmt.Errorf("%w: asked for %s, got %s", contract.ErrReceiptMismatch, id, r.ID)
	}
	if err := c.verify(r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Balance queries a token balance with the address's token viewing key
func (c *Client) Balance(ctx context.Context, tok types.ContractLink, address types.Address, key string) (fixed.Amount, error) {
	q := url.Values{
		"token":     {string(tok.Address)},
		"code_hash": {tok.CodeHash},
		"address":   {string(address)},
		"key":       {key},
	}
	var resp struct {
		Amount fixed.Amount `json:"amount"`
	}
	if err := c.do(ctx, http.MethodGet, "/balance", q, nil, &resp); err != nil {
		return fixed.Amount{}, err
	}
	return resp.Amount, nil
}

// Health fetches the server's health report
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var h map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h); err != nil {
		return nil, err
	}
	return h, nil
}
