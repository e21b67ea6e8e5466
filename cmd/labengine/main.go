package main

import (
	"log"
	"os"

	"labengine/internal/api"
	"labengine/internal/catalog"
	"labengine/internal/config"
	"labengine/internal/engine"
	"labengine/internal/provisioner"
	"labengine/internal/store"
	"labengine/internal/verify"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("labengine: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"catalog_path", cfg.CatalogPath,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}

	eng := engine.New(db, cat, provisioner.NewFake(), verify.NewDispatcher(nil), logger, engine.Options{
		ProvisionTimeout: cfg.ProvisionTimeout,
		TeardownTimeout:  cfg.TeardownTimeout,
	})

	srv := api.NewServer(cfg.ListenAddr, db, cat, eng, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
