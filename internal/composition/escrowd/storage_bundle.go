package escrowd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"xmr-escrow/go-backend/internal/bootstrap/escrowconfig"
	"xmr-escrow/go-backend/internal/domains/escrow/ports"
	"xmr-escrow/go-backend/internal/storage"
	"xmr-escrow/go-backend/internal/storage/badgerstore"
	"xmr-escrow/go-backend/internal/storage/pgstore"
)

type StorageBundle struct {
	Store   ports.ContractStore
	Backend string
	Close   func() error
}

func noopClose() error { return nil }

// BuildStorageBundle opens the configured contract store backend.
func BuildStorageBundle(ctx context.Context, cfg escrowconfig.StoreConfig, logger *slog.Logger) (StorageBundle, error) {
	switch cfg.Backend {
	case escrowconfig.StoreMemory:
		return StorageBundle{Store: storage.NewContractStore(), Backend: cfg.Backend, Close: noopClose}, nil

	case escrowconfig.StoreFile:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return StorageBundle{}, err
		}
		var (
			st  *storage.ContractStore
			err error
		)
		if cfg.Passphrase != "" {
			st, err = storage.NewEncryptedPersistentContractStore(cfg.Path, cfg.Passphrase)
		} else {
			logger.Warn("contract snapshot is stored unencrypted; set store.passphrase", "component", "storage")
			st, err = storage.NewPersistentContractStore(cfg.Path)
		}
		if err != nil {
			return StorageBundle{}, err
		}
		return StorageBundle{Store: st, Backend: cfg.Backend, Close: st.Close}, nil

	case escrowconfig.StoreBadger:
		bcfg := badgerstore.DefaultConfig(cfg.Path)
		bcfg.Logger = logger
		st, err := badgerstore.Open(bcfg)
		if err != nil {
			return StorageBundle{}, err
		}
		return StorageBundle{Store: st, Backend: cfg.Backend, Close: st.Close}, nil

	case escrowconfig.StorePostgres:
		st, err := pgstore.Connect(ctx, pgstore.PoolConfig{DSN: cfg.DSN})
		if err != nil {
			return StorageBundle{}, err
		}
		return StorageBundle{Store: st, Backend: cfg.Backend, Close: st.Close}, nil

	default:
		return StorageBundle{}, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
