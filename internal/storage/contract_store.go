package storage

import (
	"context"
	"encoding/json"
	"sync"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/securestore"
)

// ContractStore keeps contracts in memory and, when a path is configured,
// persists a full snapshot after every mutation. All operations share one
// mutex, which also makes SetReleased a compare-and-set.
type ContractStore struct {
	mu        sync.RWMutex
	contracts map[string]domain.ContractRecord
	path      string
	secret    string
}

type contractSnapshot struct {
	Contracts map[string]domain.ContractRecord `json:"contracts"`
}

func NewContractStore() *ContractStore {
	return &ContractStore{contracts: make(map[string]domain.ContractRecord)}
}

func NewPersistentContractStore(path string) (*ContractStore, error) {
	return NewEncryptedPersistentContractStore(path, "")
}

// NewEncryptedPersistentContractStore seals the snapshot with passphrase.
// The snapshot holds release secrets, so production setups should set one.
func NewEncryptedPersistentContractStore(path, passphrase string) (*ContractStore, error) {
	s := &ContractStore{
		contracts: make(map[string]domain.ContractRecord),
		path:      path,
		secret:    passphrase,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ContractStore) Insert(_ context.Context, rec domain.ContractRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[rec.ContractID]; ok {
		return domain.ErrDuplicateID
	}
	next := cloneContractsMap(s.contracts)
	next[rec.ContractID] = rec
	if err := s.persistSnapshotLocked(next); err != nil {
		return err
	}
	s.contracts = next
	return nil
}

func (s *ContractStore) Get(_ context.Context, contractID string) (domain.ContractRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.contracts[contractID]
	if !ok {
		return domain.ContractRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *ContractStore) SetReleased(_ context.Context, contractID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.contracts[contractID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Released {
		return domain.ErrAlreadyReleased
	}
	rec.Released = true
	next := cloneContractsMap(s.contracts)
	next[contractID] = rec
	if err := s.persistSnapshotLocked(next); err != nil {
		return err
	}
	s.contracts = next
	return nil
}

// Count returns the number of stored contracts.
func (s *ContractStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}

func (s *ContractStore) Close() error { return nil }

func (s *ContractStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	data, err := securestore.ReadFile(s.path, s.secret)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var snapshot contractSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	if snapshot.Contracts != nil {
		s.contracts = snapshot.Contracts
	}
	return nil
}

func (s *ContractStore) persistSnapshotLocked(contracts map[string]domain.ContractRecord) error {
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(contractSnapshot{Contracts: contracts})
	if err != nil {
		return err
	}
	return securestore.WriteFileAtomic(s.path, s.secret, data)
}

func cloneContractsMap(in map[string]domain.ContractRecord) map[string]domain.ContractRecord {
	out := make(map[string]domain.ContractRecord, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
