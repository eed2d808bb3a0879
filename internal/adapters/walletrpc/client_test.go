package walletrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
)

type recordedCall struct {
	Method string
	Params map[string]any
}

type fakeWallet struct {
	mu      sync.Mutex
	calls   []recordedCall
	handler func(method string, params map[string]any) (any, *rpcErrorPayload)
}

func (f *fakeWallet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JSONRPC string         `json:"jsonrpc"`
		ID      string         `json:"id"`
		Method  string         `json:"method"`
		Params  map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: req.Method, Params: req.Params})
	f.mu.Unlock()
	result, rpcErr := f.handler(req.Method, req.Params)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeWallet) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeWallet) last() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type observedCall struct {
	method string
	err    error
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []observedCall
}

func (o *recordingObserver) ObserveWalletCall(method string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observedCall{method: method, err: err})
}

func newTestClient(t *testing.T, wallet *fakeWallet, obs CallObserver) *Client {
	t.Helper()
	srv := httptest.NewServer(wallet)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Timeout: 2 * time.Second, SweepTimeout: 2 * time.Second, Observer: obs})
}

func TestProvisionReturnsAddressAndIndex(t *testing.T) {
	wallet := &fakeWallet{handler: func(method string, _ map[string]any) (any, *rpcErrorPayload) {
		return map[string]any{"address": "S1", "address_index": 7}, nil
	}}
	obs := &recordingObserver{}
	c := newTestClient(t, wallet, obs)

	sub, err := c.Provision(context.Background())
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if sub.Address != "S1" || sub.Index != 7 {
		t.Fatalf("unexpected subaddress: %+v", sub)
	}
	call := wallet.last()
	if call.Method != "create_address" {
		t.Fatalf("unexpected method %q", call.Method)
	}
	if call.Params["account_index"] != float64(0) || call.Params["count"] != float64(1) {
		t.Fatalf("unexpected params: %+v", call.Params)
	}
	if len(obs.calls) != 1 || obs.calls[0].method != "create_address" || obs.calls[0].err != nil {
		t.Fatalf("unexpected observations: %+v", obs.calls)
	}
}

func TestProvisionEmptyAddressIsTransportError(t *testing.T) {
	wallet := &fakeWallet{handler: func(string, map[string]any) (any, *rpcErrorPayload) {
		return map[string]any{"address": "", "address_index": 3}, nil
	}}
	c := newTestClient(t, wallet, nil)
	if _, err := c.Provision(context.Background()); !errors.Is(err, domain.ErrWalletTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestSubaddressBalanceRefreshesFirst(t *testing.T) {
	wallet := &fakeWallet{handler: func(method string, _ map[string]any) (any, *rpcErrorPayload) {
		switch method {
		case "refresh":
			return nil, &rpcErrorPayload{Code: -1, Message: "refresh busy"}
		case "get_balance":
			return map[string]any{"per_subaddress": []map[string]any{
				{"address_index": 7, "balance": 150000, "unlocked_balance": 100000},
			}}, nil
		}
		return nil, &rpcErrorPayload{Code: -32601, Message: "unknown"}
	}}
	c := newTestClient(t, wallet, nil)

	bal, err := c.SubaddressBalance(context.Background(), 7)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if bal.Confirmed != 150000 || bal.Unlocked != 100000 {
		t.Fatalf("unexpected balance: %+v", bal)
	}
	methods := wallet.methods()
	if len(methods) != 2 || methods[0] != "refresh" || methods[1] != "get_balance" {
		t.Fatalf("unexpected call sequence: %v", methods)
	}
	params := wallet.last().Params
	indices, _ := params["address_indices"].([]any)
	if len(indices) != 1 || indices[0] != float64(7) || params["strict"] != true {
		t.Fatalf("unexpected get_balance params: %+v", params)
	}
}

func TestSubaddressBalanceMissingEntryIsZero(t *testing.T) {
	wallet := &fakeWallet{handler: func(method string, _ map[string]any) (any, *rpcErrorPayload) {
		if method == "get_balance" {
			return map[string]any{"per_subaddress": []any{}}, nil
		}
		return map[string]any{}, nil
	}}
	c := newTestClient(t, wallet, nil)
	bal, err := c.SubaddressBalance(context.Background(), 9)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if bal != (domain.Balance{}) {
		t.Fatalf("expected zero balance, got %+v", bal)
	}
}

func TestSweepAllSendsSpendParameters(t *testing.T) {
	wallet := &fakeWallet{handler: func(string, map[string]any) (any, *rpcErrorPayload) {
		return map[string]any{
			"tx_hash_list": []string{"abc"},
			"amount_list":  []uint64{90000},
			"fee_list":     []uint64{10000},
		}, nil
	}}
	c := newTestClient(t, wallet, nil)

	res, err := c.SweepAll(context.Background(), 7, "R1")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(res.TxHashes) != 1 || res.TxHashes[0] != "abc" || res.Amounts[0] != 90000 || res.Fees[0] != 10000 {
		t.Fatalf("unexpected sweep result: %+v", res)
	}
	p := wallet.last().Params
	if p["address"] != "R1" || p["priority"] != float64(1) || p["do_not_relay"] != false || p["get_tx_keys"] != true {
		t.Fatalf("unexpected sweep params: %+v", p)
	}
	subs, _ := p["subaddr_indices"].([]any)
	if len(subs) != 1 || subs[0] != float64(7) {
		t.Fatalf("unexpected subaddr_indices: %+v", p["subaddr_indices"])
	}
}

func TestSweepAllErrorPayloadIsRejected(t *testing.T) {
	wallet := &fakeWallet{handler: func(string, map[string]any) (any, *rpcErrorPayload) {
		return nil, &rpcErrorPayload{Code: -16, Message: "not enough unlocked money"}
	}}
	obs := &recordingObserver{}
	c := newTestClient(t, wallet, obs)

	_, err := c.SweepAll(context.Background(), 7, "R1")
	if !errors.Is(err, domain.ErrWalletRejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if errors.Is(err, domain.ErrWalletTransport) {
		t.Fatalf("rejection must not be reported as transport failure")
	}
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Code != -16 {
		t.Fatalf("expected RejectedError with code -16, got %v", err)
	}
	if len(obs.calls) != 1 || obs.calls[0].err == nil {
		t.Fatalf("expected failed observation, got %+v", obs.calls)
	}
}

func TestUnreachableWalletIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := New(Config{URL: url, Timeout: time.Second})
	if _, err := c.SweepAll(context.Background(), 1, "R1"); !errors.Is(err, domain.ErrWalletTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestNonOKStatusIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	c := New(Config{URL: srv.URL, Timeout: time.Second})
	if _, err := c.Provision(context.Background()); !errors.Is(err, domain.ErrWalletTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestMalformedResponseIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	t.Cleanup(srv.Close)
	c := New(Config{URL: srv.URL, Timeout: time.Second})
	if _, err := c.SubaddressBalance(context.Background(), 1); !errors.Is(err, domain.ErrWalletTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCallTimeoutIsTransportError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})
	c := New(Config{URL: srv.URL, Timeout: 50 * time.Millisecond, SweepTimeout: 50 * time.Millisecond})
	_, err := c.SweepAll(context.Background(), 1, "R1")
	if !errors.Is(err, domain.ErrWalletTransport) {
		t.Fatalf("expected transport error on timeout, got %v", err)
	}
}
