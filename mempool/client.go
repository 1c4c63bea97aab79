// Package mempool is a client for the mempool.space (esplora style) REST API.
package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// Default API roots per network.
const (
	MainnetURL  = "https://mempool.space/api"
	Testnet4URL = "https://mempool.space/testnet4/api"
	SignetURL   = "https://mempool.space/signet/api"
)

const (
	DefaultTimeout = 30 * time.Second

	// maxBodySize caps response bodies. Raw transactions are the largest
	// responses and stay far below it.
	maxBodySize = 8 << 20
)

// DefaultURL returns the API root for a canonical network name, or "" when
// there is no public instance.
func DefaultURL(network string) string {
	switch network {
	case "mainnet":
		return MainnetURL
	case "testnet4":
		return Testnet4URL
	case "signet":
		return SignetURL
	default:
		return ""
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mempool: HTTP %d: %s", e.Code, e.Body)
}

// StatusCode returns the HTTP status of the response.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Options configures a Client.
type Options struct {
	// MaxAttempts counts the first try. Defaults to 3.
	MaxAttempts int

	// Delay between attempts. Defaults to one second.
	Delay time.Duration

	Timeout time.Duration
	Logger  hclog.Logger

	// HTTPClient replaces the underlying client, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to one API root.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// UTXO is an unspent output as listed by /address/:address/utxo.
type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status Status `json:"status"`
}

// Status is the confirmation status of a transaction.
type Status struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height,omitempty"`
}

// Fees are recommended fee rates in sat/vB.
type Fees struct {
	FastestFee  int64 `json:"fastestFee"`
	HalfHourFee int64 `json:"halfHourFee"`
	HourFee     int64 `json:"hourFee"`
	EconomyFee  int64 `json:"economyFee"`
	MinimumFee  int64 `json:"minimumFee"`
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.MaxAttempts - 1
	rc.RetryWaitMin = opts.Delay
	rc.RetryWaitMax = opts.Delay
	rc.Backoff = constantBackoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	} else {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	// hclog satisfies retryablehttp.LeveledLogger; nil disables request logging.
	rc.Logger = opts.Logger

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
}

func constantBackoff(wait, _ time.Duration, _ int, _ *http.Response) time.Duration {
	return wait
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("mempool: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mempool: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("mempool: read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("mempool: decode %s: %w", path, err)
	}
	return nil
}

// ListUnspent returns the unspent outputs of address.
func (c *Client) ListUnspent(ctx context.Context, address string) ([]UTXO, error) {
	var utxos []UTXO
	if err := c.getJSON(ctx, "/address/"+address+"/utxo", &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

// GetTransactionHex returns the serialized transaction txid.
func (c *Client) GetTransactionHex(ctx context.Context, txid string) (string, error) {
	body, err := c.get(ctx, "/tx/"+txid+"/hex")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// RecommendedFees returns the current fee recommendations.
func (c *Client) RecommendedFees(ctx context.Context) (*Fees, error) {
	var fees Fees
	if err := c.getJSON(ctx, "/v1/fees/recommended", &fees); err != nil {
		return nil, err
	}
	return &fees, nil
}

// TipHeight returns the height of the chain tip.
func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("mempool: parse tip height: %w", err)
	}
	return height, nil
}
