package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/domains/escrow/ports"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]domain.ContractRecord
	getErr  error
	setErr  error
	inserts int

	insertErr      error
	insertAttempts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]domain.ContractRecord)}
}

func (s *fakeStore) Insert(_ context.Context, rec domain.ContractRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertAttempts++
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.records[rec.ContractID]; ok {
		return domain.ErrDuplicateID
	}
	s.records[rec.ContractID] = rec
	s.inserts++
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (domain.ContractRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return domain.ContractRecord{}, s.getErr
	}
	rec, ok := s.records[id]
	if !ok {
		return domain.ContractRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) SetReleased(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Released {
		return domain.ErrAlreadyReleased
	}
	rec.Released = true
	s.records[id] = rec
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) released(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Released
}

type fakeProvisioner struct {
	next  uint32
	addr  string
	err   error
	calls int
}

func (p *fakeProvisioner) Provision(context.Context) (domain.Subaddress, error) {
	p.calls++
	if p.err != nil {
		return domain.Subaddress{}, p.err
	}
	addr := p.addr
	if addr == "" {
		addr = fmt.Sprintf("S%d", p.next)
	}
	sub := domain.Subaddress{Address: addr, Index: p.next}
	p.next++
	return sub, nil
}

type fakeWallet struct {
	mu         sync.Mutex
	balance    domain.Balance
	balanceErr error
	sweepErr   error
	sweepDelay time.Duration
	sweeps     atomic.Int32
	queries    atomic.Int32
}

func (w *fakeWallet) setBalance(unlocked uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = domain.Balance{Confirmed: unlocked, Unlocked: unlocked}
}

func (w *fakeWallet) SubaddressBalance(context.Context, uint32) (domain.Balance, error) {
	w.queries.Add(1)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balanceErr != nil {
		return domain.Balance{}, w.balanceErr
	}
	return w.balance, nil
}

func (w *fakeWallet) SweepAll(context.Context, uint32, string) (ports.SweepResult, error) {
	w.sweeps.Add(1)
	if w.sweepDelay > 0 {
		time.Sleep(w.sweepDelay)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sweepErr != nil {
		return ports.SweepResult{}, w.sweepErr
	}
	w.balance = domain.Balance{}
	return ports.SweepResult{TxHashes: []string{"tx1"}}, nil
}

type fixedSecret string

func (f fixedSecret) Name() string               { return "fixed" }
func (f fixedSecret) NewSecret() (string, error) { return string(f), nil }

type countingMetrics struct {
	mu         sync.Mutex
	created    int
	outcomes   map[domain.Outcome]int
	hazards    int
	unrecorded int
	errors     map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: make(map[domain.Outcome]int), errors: make(map[string]int)}
}

func (m *countingMetrics) ContractCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *countingMetrics) ReleaseOutcome(o domain.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[o]++
}

func (m *countingMetrics) DoubleSweepHazard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hazards++
}

func (m *countingMetrics) SweepUnrecorded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrecorded++
}

func (m *countingMetrics) RecordError(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[category]++
}

var errDialRefused = errors.New("dial tcp 127.0.0.1:18088: connection refused")

func newTestService(store *fakeStore, prov *fakeProvisioner, wallet *fakeWallet, metrics *countingMetrics) *Service {
	var m ports.Metrics
	if metrics != nil {
		m = metrics
	}
	return NewService(store, prov, wallet, wallet, fixedSecret("correct horse"), m, nil)
}
