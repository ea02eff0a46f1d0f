package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/homeledger/internal/config"
	"github.com/rumor-ml/homeledger/internal/handlers"
	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/plaid"
	"github.com/rumor-ml/homeledger/internal/server"
	"github.com/rumor-ml/homeledger/internal/service"
	"github.com/rumor-ml/homeledger/internal/store"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")
	configFile  = flag.String("config", "", "Path to YAML config file")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("homeledger version %s\n", version)
		os.Exit(0)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()
	st := store.New(db)

	accounts := service.NewAccounts(st, log)
	categories := service.NewCategories(st, log)
	months := service.NewMonths(st)
	plans := service.NewPlans(st, months)
	transactions := service.NewTransactions(st, accounts)
	summary := service.NewSummary(st)
	imp := importer.New(st, log)

	// Older databases can hold transactions created before accounts existed.
	if err := accounts.BackfillUnassigned(ctx); err != nil {
		return fmt.Errorf("failed to backfill unassigned transactions: %w", err)
	}

	plaidClient := plaid.NewClient(cfg.Plaid)
	usage := plaid.NewUsageTracker(cfg.Plaid.Usage)
	plaidService := plaid.NewService(st, plaidClient, usage, imp, cfg.Plaid, log)

	h := handlers.New(accounts, categories, months, plans, transactions, summary, imp, plaidService, log)
	srv := server.New(h, log)

	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
