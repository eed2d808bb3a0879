// Package escrowconfig loads escrowd settings from yaml and ESCROW_* env vars.
package escrowconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

type Config struct {
	RPC     RPCConfig
	Wallet  WalletConfig
	Store   StoreConfig
	Secrets SecretsConfig
	Log     LogConfig
}

type RPCConfig struct {
	Addr                string
	Token               string
	AllowedOrigins      []string
	RequestsPerSecond   float64
	RequestBurst        int
	ReleasesPerMinute   float64
	ReleaseBurst        int
	IdempotencyTTL      time.Duration
	MetricsEnabled      bool
	ShutdownGracePeriod time.Duration
}

type WalletConfig struct {
	URL          string
	AccountIndex uint32
	Priority     uint32
	Timeout      time.Duration
	SweepTimeout time.Duration
}

type StoreConfig struct {
	Backend    string
	Path       string
	DSN        string
	Passphrase string
}

type SecretsConfig struct {
	Policy string
}

type LogConfig struct {
	Level  string
	Format string
}

func Default() Config {
	return Config{
		RPC: RPCConfig{
			Addr:                "127.0.0.1:8080",
			RequestsPerSecond:   20,
			RequestBurst:        40,
			ReleasesPerMinute:   6,
			ReleaseBurst:        3,
			IdempotencyTTL:      10 * time.Minute,
			MetricsEnabled:      true,
			ShutdownGracePeriod: 10 * time.Second,
		},
		Wallet: WalletConfig{
			URL:          "http://127.0.0.1:18088/json_rpc",
			Priority:     1,
			Timeout:      30 * time.Second,
			SweepTimeout: 2 * time.Minute,
		},
		Store: StoreConfig{
			Backend: StoreFile,
			Path:    "data/contracts.json",
		},
		Secrets: SecretsConfig{Policy: "mnemonic"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// FileConfig is the on-disk shape. Pointer fields distinguish "unset" from
// an explicit zero.
type FileConfig struct {
	RPC struct {
		Addr              string        `yaml:"addr"`
		Token             string        `yaml:"token"`
		AllowedOrigins    []string      `yaml:"allowedOrigins"`
		RequestsPerSecond float64       `yaml:"requestsPerSecond"`
		RequestBurst      int           `yaml:"requestBurst"`
		ReleasesPerMinute float64       `yaml:"releasesPerMinute"`
		ReleaseBurst      int           `yaml:"releaseBurst"`
		IdempotencyTTL    time.Duration `yaml:"idempotencyTTL"`
		MetricsEnabled    *bool         `yaml:"metricsEnabled"`
		ShutdownGrace     time.Duration `yaml:"shutdownGracePeriod"`
	} `yaml:"rpc"`
	Wallet struct {
		URL          string        `yaml:"url"`
		AccountIndex *uint32       `yaml:"accountIndex"`
		Priority     uint32        `yaml:"priority"`
		Timeout      time.Duration `yaml:"timeout"`
		SweepTimeout time.Duration `yaml:"sweepTimeout"`
	} `yaml:"wallet"`
	Store struct {
		Backend    string `yaml:"backend"`
		Path       string `yaml:"path"`
		DSN        string `yaml:"dsn"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"store"`
	Secrets struct {
		Policy string `yaml:"policy"`
	} `yaml:"secrets"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadFromPath reads configPath, or the first default location that exists
// when configPath is empty, then applies env overrides. A missing default
// file is not an error; an explicit path that cannot be read or parsed is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{"configs/escrowd.yaml", "go-backend/configs/escrowd.yaml"}
	explicit := strings.TrimSpace(configPath) != ""
	if explicit {
		candidates = []string{configPath}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

func Merge(dst *Config, src FileConfig) {
	if src.RPC.Addr != "" {
		dst.RPC.Addr = src.RPC.Addr
	}
	if src.RPC.Token != "" {
		dst.RPC.Token = src.RPC.Token
	}
	if src.RPC.AllowedOrigins != nil {
		dst.RPC.AllowedOrigins = src.RPC.AllowedOrigins
	}
	if src.RPC.RequestsPerSecond != 0 {
		dst.RPC.RequestsPerSecond = src.RPC.RequestsPerSecond
	}
	if src.RPC.RequestBurst != 0 {
		dst.RPC.RequestBurst = src.RPC.RequestBurst
	}
	if src.RPC.ReleasesPerMinute != 0 {
		dst.RPC.ReleasesPerMinute = src.RPC.ReleasesPerMinute
	}
	if src.RPC.ReleaseBurst != 0 {
		dst.RPC.ReleaseBurst = src.RPC.ReleaseBurst
	}
	if src.RPC.IdempotencyTTL != 0 {
		dst.RPC.IdempotencyTTL = src.RPC.IdempotencyTTL
	}
	if src.RPC.MetricsEnabled != nil {
		dst.RPC.MetricsEnabled = *src.RPC.MetricsEnabled
	}
	if src.RPC.ShutdownGrace != 0 {
		dst.RPC.ShutdownGracePeriod = src.RPC.ShutdownGrace
	}

	if src.Wallet.URL != "" {
		dst.Wallet.URL = src.Wallet.URL
	}
	if src.Wallet.AccountIndex != nil {
		dst.Wallet.AccountIndex = *src.Wallet.AccountIndex
	}
	if src.Wallet.Priority != 0 {
		dst.Wallet.Priority = src.Wallet.Priority
	}
	if src.Wallet.Timeout != 0 {
		dst.Wallet.Timeout = src.Wallet.Timeout
	}
	if src.Wallet.SweepTimeout != 0 {
		dst.Wallet.SweepTimeout = src.Wallet.SweepTimeout
	}

	if src.Store.Backend != "" {
		dst.Store.Backend = src.Store.Backend
	}
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}
	if src.Store.DSN != "" {
		dst.Store.DSN = src.Store.DSN
	}
	if src.Store.Passphrase != "" {
		dst.Store.Passphrase = src.Store.Passphrase
	}

	if src.Secrets.Policy != "" {
		dst.Secrets.Policy = src.Secrets.Policy
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
}

func ApplyEnvOverrides(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	setString("ESCROW_RPC_ADDR", &cfg.RPC.Addr)
	setString("ESCROW_RPC_TOKEN", &cfg.RPC.Token)
	setString("ESCROW_WALLET_URL", &cfg.Wallet.URL)
	setString("ESCROW_STORE_BACKEND", &cfg.Store.Backend)
	setString("ESCROW_STORE_PATH", &cfg.Store.Path)
	setString("ESCROW_DATABASE_URL", &cfg.Store.DSN)
	setString("ESCROW_STORE_PASSPHRASE", &cfg.Store.Passphrase)
	setString("ESCROW_SECRET_POLICY", &cfg.Secrets.Policy)
	setString("ESCROW_LOG_LEVEL", &cfg.Log.Level)
	setString("ESCROW_LOG_FORMAT", &cfg.Log.Format)

	if raw := strings.TrimSpace(os.Getenv("ESCROW_WALLET_ACCOUNT_INDEX")); raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 32); err == nil {
			cfg.Wallet.AccountIndex = uint32(v)
		}
	}
	if raw := strings.TrimSpace(os.Getenv("ESCROW_METRICS_ENABLED")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.RPC.MetricsEnabled = v
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RPC.Addr) == "" {
		errs = append(errs, errors.New("rpc.addr is required"))
	}
	if strings.TrimSpace(c.Wallet.URL) == "" {
		errs = append(errs, errors.New("wallet.url is required"))
	}
	if c.Wallet.Timeout <= 0 || c.Wallet.SweepTimeout <= 0 {
		errs = append(errs, errors.New("wallet timeouts must be positive"))
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreFile, StoreBadger:
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, fmt.Errorf("store.path is required for %s backend", c.Store.Backend))
		}
	case StorePostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, errors.New("store.dsn is required for postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
