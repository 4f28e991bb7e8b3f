// Package flow provides a read-only client for Flow account balances.
package flow

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// baseUnitExp is the exponent that turns base units into FLOW.
const baseUnitExp = -8

// Client is the Flow Access REST API client.
type Client struct {
	baseURL    string
	network    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new Flow client with a per-request timeout.
func NewClient(baseURL, network string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		network: network,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Network returns the network tag reported with every balance.
func (c *Client) Network() string {
	return c.network
}

// accountResponse is the subset of the REST account object the bridge reads.
type accountResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// apiError is the REST error body.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NormalizeAddress lowercases an address, strips an optional 0x prefix and
// left-pads it to 16 hex digits.
func NormalizeAddress(address string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(address))
	addr = strings.TrimPrefix(addr, "0x")
	if addr == "" || len(addr) > 16 {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	if len(addr) < 16 {
		addr = strings.Repeat("0", 16-len(addr)) + addr
	}
	if _, err := hex.DecodeString(addr); err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	return addr, nil
}

// GetBalance fetches the sealed balance of address.
func (c *Client) GetBalance(ctx context.Context, address string) (*domain.Balance, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/accounts/%s?block_height=sealed", c.baseURL, addr)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody, addr)
	}

	var account accountResponse
	if err := json.Unmarshal(respBody, &account); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal account: %v", domain.ErrUpstreamUnavailable, err)
	}
	units, err := strconv.ParseUint(account.Balance, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad balance %q", domain.ErrUpstreamUnavailable, account.Balance)
	}

	return c.record(addr, units), nil
}

func (c *Client) record(addr string, units uint64) *domain.Balance {
	flow := decimal.NewFromUint64(units).Shift(baseUnitExp)
	return &domain.Balance{
		Address:          "0x" + addr,
		BaseUnits:        units,
		Balance:          flow.InexactFloat64(),
		BalanceFormatted: flow.StringFixed(8) + " FLOW",
		Network:          c.network,
		Timestamp:        c.now().UTC(),
	}
}

func classifyStatus(status int, body []byte, addr string) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	msg := strings.ToLower(apiErr.Message)

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: 0x%s", domain.ErrAccountNotFound, addr)
	case status == http.StatusBadRequest && (strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")):
		return fmt.Errorf("%w: 0x%s", domain.ErrAccountNotFound, addr)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidAddress, apiErr.Message)
	}
	return fmt.Errorf("%w: flow api status %d", domain.ErrUpstreamUnavailable, status)
}

// IsNotFound reports whether err means the account does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrAccountNotFound)
}
