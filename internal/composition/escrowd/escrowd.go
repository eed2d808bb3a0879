// Package escrowd wires configuration, storage, the wallet client and the
// JSON-RPC server into a runnable daemon.
package escrowd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"xmr-escrow/go-backend/internal/adapters/rpc"
	"xmr-escrow/go-backend/internal/adapters/walletrpc"
	"xmr-escrow/go-backend/internal/bootstrap/escrowconfig"
	"xmr-escrow/go-backend/internal/domains/escrow/policy"
	"xmr-escrow/go-backend/internal/domains/escrow/usecase"
	"xmr-escrow/go-backend/internal/platform/escrowmetrics"
)

type Daemon struct {
	Server  *rpc.Server
	Service *usecase.Service
	Metrics *escrowmetrics.Metrics
	storage StorageBundle
	logger  *slog.Logger
	// drainTimeout bounds the wait for in-flight releases at shutdown. It
	// covers a balance query plus a full sweep.
	drainTimeout time.Duration
}

// Build assembles the daemon. The caller owns the result and must Close it.
func Build(ctx context.Context, cfg escrowconfig.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewLogger(cfg.Log, nil)
	}

	secrets, err := policy.NewSecretPolicy(cfg.Secrets.Policy)
	if err != nil {
		return nil, err
	}
	metrics := escrowmetrics.New()

	bundle, err := BuildStorageBundle(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	wallet := walletrpc.New(walletrpc.Config{
		URL:          cfg.Wallet.URL,
		Timeout:      cfg.Wallet.Timeout,
		SweepTimeout: cfg.Wallet.SweepTimeout,
		AccountIndex: cfg.Wallet.AccountIndex,
		Priority:     cfg.Wallet.Priority,
		Observer:     metrics,
		Logger:       logger,
	})
	svc := usecase.NewService(bundle.Store, wallet, wallet, wallet, secrets, metrics, logger)

	var metricsHandler http.Handler
	if cfg.RPC.MetricsEnabled {
		metricsHandler = metrics.Handler()
	}
	srv := rpc.NewServerWithService(rpc.Options{
		Addr:                cfg.RPC.Addr,
		Token:               cfg.RPC.Token,
		AllowedOrigins:      cfg.RPC.AllowedOrigins,
		RequestsPerSecond:   cfg.RPC.RequestsPerSecond,
		RequestBurst:        cfg.RPC.RequestBurst,
		ReleasesPerMinute:   cfg.RPC.ReleasesPerMinute,
		ReleaseBurst:        cfg.RPC.ReleaseBurst,
		IdempotencyTTL:      cfg.RPC.IdempotencyTTL,
		ShutdownGracePeriod: cfg.RPC.ShutdownGracePeriod,
		MetricsHandler:      metricsHandler,
		Observer:            metrics,
	}, svc, logger)

	logger.Info("escrow daemon assembled",
		"component", "escrowd",
		"store_backend", bundle.Backend,
		"secret_policy", secrets.Name(),
		"wallet_account_index", cfg.Wallet.AccountIndex,
		"metrics_enabled", cfg.RPC.MetricsEnabled,
	)
	return &Daemon{
		Server:       srv,
		Service:      svc,
		Metrics:      metrics,
		storage:      bundle,
		logger:       logger,
		drainTimeout: drainTimeout(cfg.Wallet),
	}, nil
}

// Run serves until ctx is done, waits for in-flight releases to commit and
// then closes the store. The HTTP grace period may expire before a sweep
// returns; the drain does not.
func (d *Daemon) Run(ctx context.Context) error {
	runErr := d.Server.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()
	drainErr := d.Service.Drain(drainCtx)
	if drainErr != nil {
		d.logger.Error("releases still in flight at shutdown", "component", "escrowd", "error", drainErr.Error())
	}
	return errors.Join(runErr, drainErr, d.Close())
}

func drainTimeout(w escrowconfig.WalletConfig) time.Duration {
	sweep := w.SweepTimeout
	if sweep <= 0 {
		sweep = walletrpc.DefaultSweepTimeout
	}
	call := w.Timeout
	if call <= 0 {
		call = walletrpc.DefaultTimeout
	}
	return sweep + 2*call
}

func (d *Daemon) Close() error {
	if d.storage.Close == nil {
		return nil
	}
	closeFn := d.storage.Close
	d.storage.Close = nil
	return closeFn()
}
