// Package pgstore persists escrow contracts in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/domains/escrow/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS escrow_contracts (
	contract_id      TEXT PRIMARY KEY,
	passphrase       TEXT NOT NULL CHECK (passphrase <> ''),
	recipient_wallet TEXT NOT NULL,
	contract_wallet  TEXT NOT NULL UNIQUE,
	address_index    BIGINT NOT NULL UNIQUE,
	contract_text    TEXT NOT NULL,
	released         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	released_at      TIMESTAMPTZ
)`

// PoolConfig mirrors the pool sizing used by the other services.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type Store struct{ DB *pgxpool.Pool }

var _ ports.ContractLocker = (*Store)(nil)

const unlockTimeout = 5 * time.Second

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Connect opens a pool and makes sure the contracts table exists.
func Connect(ctx context.Context, pc PoolConfig) (*Store, error) {
	if pc.DSN == "" {
		return nil, errors.New("pgstore: dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(pc.DSN)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	cfg.MinConns = 1
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure escrow_contracts table: %w", err)
	}
	return New(pool), nil
}

func (s *Store) Close() error {
	s.DB.Close()
	return nil
}

func (s *Store) Insert(ctx context.Context, rec domain.ContractRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
INSERT INTO escrow_contracts(contract_id,passphrase,recipient_wallet,contract_wallet,address_index,contract_text,released)
VALUES($1,$2,$3,$4,$5,$6,false)
ON CONFLICT (contract_id) DO NOTHING
`, rec.ContractID, rec.Secret, rec.RecipientWallet, rec.ContractWallet, int64(rec.AddressIndex), rec.ContractText)
	if err != nil {
		return classifyInsertError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateID
	}
	return nil
}

// classifyInsertError maps unique violations left after ON CONFLICT
// (contract_id) to subaddress reuse. A fresh contract id cannot fix those, so
// they surface as provisioning failures rather than ErrDuplicateID.
func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: subaddress already bound to another contract (%s)", domain.ErrProvision, pgErr.ConstraintName)
	}
	return err
}

func (s *Store) Get(ctx context.Context, contractID string) (domain.ContractRecord, error) {
	var rec domain.ContractRecord
	var index int64
	err := s.DB.QueryRow(ctx, `
SELECT contract_id,passphrase,recipient_wallet,contract_wallet,address_index,contract_text,released
FROM escrow_contracts WHERE contract_id=$1
`, contractID).Scan(&rec.ContractID, &rec.Secret, &rec.RecipientWallet, &rec.ContractWallet, &index, &rec.ContractText, &rec.Released)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ContractRecord{}, domain.ErrNotFound
		}
		return domain.ContractRecord{}, err
	}
	rec.AddressIndex = uint32(index)
	return rec, nil
}

// SetReleased is a single conditional UPDATE; the row lock taken by the
// statement makes it a compare-and-set.
func (s *Store) SetReleased(ctx context.Context, contractID string) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE escrow_contracts SET released=true, released_at=now()
WHERE contract_id=$1 AND released=false
`, contractID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM escrow_contracts WHERE contract_id=$1)`, contractID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadyReleased
}

// Lock takes a session advisory lock keyed by the contract id on a dedicated
// pool connection. Every daemon sharing the database contends for the same
// key, so a release sequence runs in one process at a time.
func (s *Store) Lock(ctx context.Context, contractID string) (func(), error) {
	conn, err := s.DB.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, contractID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, contractID); err != nil {
				// The lock belongs to the session; closing it lets the server drop the lock.
				_ = conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}, nil
}
