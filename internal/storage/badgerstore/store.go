// Package badgerstore persists escrow contracts in an embedded BadgerDB.
//
// Records are stored as JSON under "contract/<id>". Mutations run in
// serializable Badger transactions; a transaction that loses a write
// conflict is retried, so SetReleased observes the winner's commit and
// reports domain.ErrAlreadyReleased.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"

	"github.com/dgraph-io/badger/v4"
)

const (
	keyPrefix       = "contract/"
	maxTxnConflicts = 8
)

// Config holds configuration for the Badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// GCInterval triggers value log GC; zero disables it.
	GCInterval time.Duration
	Logger     *slog.Logger
}

func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true, GCInterval: 10 * time.Minute}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s := &Store{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
		s.stopGC = nil
	}
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, rec domain.ContractRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(contractKey(rec.ContractID))
		switch {
		case err == nil:
			return domain.ErrDuplicateID
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(contractKey(rec.ContractID), payload)
	})
}

func (s *Store) Get(ctx context.Context, contractID string) (domain.ContractRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContractRecord{}, err
	}
	var rec domain.ContractRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, contractID)
		return err
	})
	return rec, err
}

func (s *Store) SetReleased(ctx context.Context, contractID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		rec, err := readRecord(txn, contractID)
		if err != nil {
			return err
		}
		if rec.Released {
			return domain.ErrAlreadyReleased
		}
		rec.Released = true
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(contractKey(contractID), payload)
	})
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt+1 >= maxTxnConflicts {
			return err
		}
	}
}

func readRecord(txn *badger.Txn, contractID string) (domain.ContractRecord, error) {
	item, err := txn.Get(contractKey(contractID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ContractRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ContractRecord{}, err
	}
	var rec domain.ContractRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func contractKey(contractID string) []byte {
	return []byte(keyPrefix + contractID)
}

func (s *Store) runGC(interval time.Duration) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("badger value log GC error", "component", "badgerstore", "error", err.Error())
			}
		}
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badgerstore")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badgerstore")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "badgerstore")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badgerstore")
}
