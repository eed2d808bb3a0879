package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"xmr-escrow/go-backend/internal/bootstrap/escrowconfig"
	"xmr-escrow/go-backend/internal/composition/escrowd"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to escrowd.yaml (optional)")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address override")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-Escrow-RPC-Token (optional)")
	walletURL := flag.String("wallet-url", "", "monero wallet-rpc json_rpc endpoint override")
	storeBackend := flag.String("store", "", "Contract store override: memory | file | badger | postgres")
	flag.Parse()
	if *showVersion {
		fmt.Printf("escrowd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	cfg, err := escrowconfig.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("escrowd config: %v", err)
	}
	if *rpcAddr != "" {
		cfg.RPC.Addr = *rpcAddr
	}
	if *rpcToken != "" {
		cfg.RPC.Token = *rpcToken
	}
	if *walletURL != "" {
		cfg.Wallet.URL = *walletURL
	}
	if *storeBackend != "" {
		cfg.Store.Backend = *storeBackend
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := escrowd.NewLogger(cfg.Log, os.Stdout)
	d, err := escrowd.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("escrowd failed to initialize: %v", err)
	}

	logger.Info("escrowd starting", "version", version, "addr", d.Server.Addr())
	if err := d.Run(ctx); err != nil {
		logger.Error("escrowd failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("escrowd stopped")
}
