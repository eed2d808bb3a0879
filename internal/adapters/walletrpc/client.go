// Package walletrpc talks JSON-RPC 2.0 to a monero wallet-rpc daemon.
package walletrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/domains/escrow/ports"
)

const (
	DefaultURL          = "http://127.0.0.1:18088/json_rpc"
	DefaultTimeout      = 30 * time.Second
	DefaultSweepTimeout = 2 * time.Minute
	maxResponseBytes    = 4 << 20
)

// CallObserver is notified after every wallet call.
type CallObserver interface {
	ObserveWalletCall(method string, elapsed time.Duration, err error)
}

type Config struct {
	URL          string
	Timeout      time.Duration
	SweepTimeout time.Duration
	AccountIndex uint32
	Priority     uint32
	HTTPClient   *http.Client
	Observer     CallObserver
	Logger       *slog.Logger
}

type Client struct {
	url          string
	timeout      time.Duration
	sweepTimeout time.Duration
	account      uint32
	priority     uint32
	http         *http.Client
	observer     CallObserver
	logger       *slog.Logger
	seq          atomic.Uint64
}

var (
	_ ports.SubaddressProvisioner = (*Client)(nil)
	_ ports.BalanceSource         = (*Client)(nil)
	_ ports.Sweeper               = (*Client)(nil)
)

func New(cfg Config) *Client {
	c := &Client{
		url:          strings.TrimSpace(cfg.URL),
		timeout:      cfg.Timeout,
		sweepTimeout: cfg.SweepTimeout,
		account:      cfg.AccountIndex,
		priority:     cfg.Priority,
		http:         cfg.HTTPClient,
		observer:     cfg.Observer,
		logger:       cfg.Logger,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.sweepTimeout <= 0 {
		c.sweepTimeout = DefaultSweepTimeout
	}
	if c.priority == 0 {
		c.priority = 1
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage  `json:"result"`
	Error  *rpcErrorPayload `json:"error"`
}

// RejectedError carries the wallet's own error payload.
type RejectedError struct {
	Method  string
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("wallet rpc %s rejected: code=%d message=%s", e.Method, e.Code, e.Message)
}

func (e *RejectedError) Unwrap() error { return domain.ErrWalletRejected }

func transportErr(method string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrWalletTransport, method, err)
}

func (c *Client) call(ctx context.Context, timeout time.Duration, method string, params, out any) (err error) {
	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveWalletCall(method, time.Since(started), err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      fmt.Sprintf("%d", c.seq.Add(1)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return transportErr(method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return transportErr(method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr(method, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return transportErr(method, fmt.Errorf("http status %d", resp.StatusCode))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportErr(method, err)
	}
	var envelope rpcResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return transportErr(method, fmt.Errorf("decode response: %w", err))
	}
	if envelope.Error != nil {
		return &RejectedError{Method: method, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return transportErr(method, errors.New("response has neither result nor error"))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return transportErr(method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

// Provision asks the wallet for a fresh subaddress in the configured account.
func (c *Client) Provision(ctx context.Context) (domain.Subaddress, error) {
	var res struct {
		Address      string `json:"address"`
		AddressIndex uint32 `json:"address_index"`
	}
	err := c.call(ctx, c.timeout, "create_address", map[string]any{
		"account_index": c.account,
		"count":         1,
	}, &res)
	if err != nil {
		return domain.Subaddress{}, err
	}
	if strings.TrimSpace(res.Address) == "" {
		return domain.Subaddress{}, transportErr("create_address", errors.New("empty address in result"))
	}
	return domain.Subaddress{Address: res.Address, Index: res.AddressIndex}, nil
}

// SubaddressBalance refreshes the wallet and reads one subaddress balance.
// Refresh failures are ignored; a subaddress absent from per_subaddress has
// no funds yet.
func (c *Client) SubaddressBalance(ctx context.Context, index uint32) (domain.Balance, error) {
	if err := c.call(ctx, c.timeout, "refresh", map[string]any{"start_height": 0}, nil); err != nil {
		c.logger.Debug("wallet refresh failed", "component", "walletrpc", "error", err.Error())
	}
	var res struct {
		PerSubaddress []struct {
			AddressIndex    uint32 `json:"address_index"`
			Balance         uint64 `json:"balance"`
			UnlockedBalance uint64 `json:"unlocked_balance"`
		} `json:"per_subaddress"`
	}
	err := c.call(ctx, c.timeout, "get_balance", map[string]any{
		"account_index":   c.account,
		"address_indices": []uint32{index},
		"strict":          true,
	}, &res)
	if err != nil {
		return domain.Balance{}, err
	}
	for _, sub := range res.PerSubaddress {
		if sub.AddressIndex == index {
			return domain.Balance{Confirmed: sub.Balance, Unlocked: sub.UnlockedBalance}, nil
		}
	}
	return domain.Balance{}, nil
}

// SweepAll sends the whole unlocked balance of one subaddress to destination.
func (c *Client) SweepAll(ctx context.Context, index uint32, destination string) (ports.SweepResult, error) {
	var res struct {
		TxHashList []string `json:"tx_hash_list"`
		AmountList []uint64 `json:"amount_list"`
		FeeList    []uint64 `json:"fee_list"`
	}
	err := c.call(ctx, c.sweepTimeout, "sweep_all", map[string]any{
		"address":         destination,
		"account_index":   c.account,
		"subaddr_indices": []uint32{index},
		"priority":        c.priority,
		"do_not_relay":    false,
		"get_tx_keys":     true,
	}, &res)
	if err != nil {
		return ports.SweepResult{}, err
	}
	return ports.SweepResult{TxHashes: res.TxHashList, Amounts: res.AmountList, Fees: res.FeeList}, nil
}
