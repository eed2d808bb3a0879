package escrowconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "escrowd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadFromPathMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
rpc:
  addr: 0.0.0.0:9000
  releasesPerMinute: 2
  metricsEnabled: false
wallet:
  url: http://wallet:18088/json_rpc
  accountIndex: 0
  sweepTimeout: 90s
store:
  backend: badger
  path: /var/lib/escrow
secrets:
  policy: token
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RPC.Addr != "0.0.0.0:9000" || cfg.RPC.ReleasesPerMinute != 2 || cfg.RPC.MetricsEnabled {
		t.Fatalf("unexpected rpc config: %+v", cfg.RPC)
	}
	if cfg.RPC.RequestBurst != Default().RPC.RequestBurst {
		t.Fatalf("unset fields should keep defaults, got burst=%d", cfg.RPC.RequestBurst)
	}
	if cfg.Wallet.URL != "http://wallet:18088/json_rpc" || cfg.Wallet.SweepTimeout != 90*time.Second {
		t.Fatalf("unexpected wallet config: %+v", cfg.Wallet)
	}
	if cfg.Wallet.Timeout != 30*time.Second || cfg.Wallet.Priority != 1 {
		t.Fatalf("wallet defaults lost: %+v", cfg.Wallet)
	}
	if cfg.Store.Backend != StoreBadger || cfg.Store.Path != "/var/lib/escrow" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Secrets.Policy != "token" {
		t.Fatalf("unexpected secret policy %q", cfg.Secrets.Policy)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: file\n  path: a.json\n")
	t.Setenv("ESCROW_STORE_BACKEND", "postgres")
	t.Setenv("ESCROW_DATABASE_URL", "postgres://escrow@db/escrow")
	t.Setenv("ESCROW_WALLET_ACCOUNT_INDEX", "3")
	t.Setenv("ESCROW_METRICS_ENABLED", "false")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Store.Backend != StorePostgres || cfg.Store.DSN != "postgres://escrow@db/escrow" {
		t.Fatalf("env overrides not applied: %+v", cfg.Store)
	}
	if cfg.Wallet.AccountIndex != 3 {
		t.Fatalf("expected account index 3, got %d", cfg.Wallet.AccountIndex)
	}
	if cfg.RPC.MetricsEnabled {
		t.Fatal("expected metrics disabled by env")
	}
}

func TestInvalidEnvNumbersAreIgnored(t *testing.T) {
	cfg := Default()
	t.Setenv("ESCROW_WALLET_ACCOUNT_INDEX", "-1")
	ApplyEnvOverrides(&cfg)
	if cfg.Wallet.AccountIndex != 0 {
		t.Fatalf("expected default account index, got %d", cfg.Wallet.AccountIndex)
	}
}

func TestExplicitMissingPathFails(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestMalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "rpc: [unterminated")
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "sqlite"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Fatalf("expected backend error, got %v", err)
	}

	cfg = Default()
	cfg.Store.Backend = StorePostgres
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected dsn requirement for postgres")
	}

	cfg = Default()
	cfg.Store.Backend = StoreMemory
	cfg.Store.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory backend needs no path: %v", err)
	}
}
