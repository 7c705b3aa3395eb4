package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"verisay/go-client/internal/config"
	"verisay/go-client/internal/devapi"
	"verisay/go-client/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to verisay.yaml (optional)")
	addr := flag.String("addr", "", "HTTP listen address (overrides devapi.listenAddr)")
	dbPath := flag.String("db", "", "SQLite database path (overrides devapi.dbPath)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("verisay-devapi version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("verisay-devapi config: %v", err)
	}
	if *addr != "" {
		cfg.DevAPI.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.DevAPI.DBPath = *dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := privacylog.NewLogger(os.Stderr, privacylog.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	store, err := devapi.OpenStore(cfg.DevAPI.DBPath)
	if err != nil {
		log.Fatalf("verisay-devapi failed to open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	srv := devapi.NewServer(store, devapi.Options{
		Addr:     cfg.DevAPI.ListenAddr,
		APIKey:   cfg.DevAPI.APIKey,
		TokenTTL: cfg.DevAPI.TokenTTL,
		Logger:   logger,
	})
	log.Println("verisay-devapi starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("verisay-devapi failed: %v", err)
	}
	log.Println("verisay-devapi stopped")
}
