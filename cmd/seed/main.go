// Command seed writes a generated dataset into the Postgres feed so the
// engine can serve it with database.enabled set.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/config"
	"github.com/rawblock/wallet-anomaly-engine/internal/db"
	"github.com/rawblock/wallet-anomaly-engine/internal/generator"
	"github.com/rawblock/wallet-anomaly-engine/internal/heuristics"
	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dsn := flag.String("database-url", cfg.Database.URL, "PostgreSQL connection string")
	id := flag.String("id", "", "Dataset id (default: random uuid)")
	wallets := flag.Int("wallets", cfg.Generator.WalletCount, "Number of wallets")
	txs := flag.Int("transactions", 0, "Number of transactions (default: wallets * tx-per-wallet)")
	txPerWallet := flag.Int("tx-per-wallet", cfg.Generator.TxPerWallet, "Transactions per wallet when -transactions is 0")
	windowDays := flag.Int("window-days", cfg.Generator.WindowDays, "Spread timestamps over this many days before now")
	dayAligned := flag.Bool("day-aligned", cfg.Generator.DayAligned, "Place timestamps on whole days")
	seed := flag.Int64("seed", cfg.Generator.Seed, "Random seed (0: clock)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	log, err := logger.NewLogger(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *dsn == "" {
		log.Fatal("No database URL. Set DATABASE_URL or pass -database-url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ds := generate(generator.Options{
		WalletCount:      *wallets,
		TransactionCount: *txs,
		TxPerWallet:      *txPerWallet,
		Window:           time.Duration(*windowDays) * 24 * time.Hour,
		DayAligned:       *dayAligned,
		MinAmount:        generator.DefaultOptions().MinAmount,
		AmountSpan:       generator.DefaultOptions().AmountSpan,
	}, *seed)
	ds.ID = *id
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	ds.Source = models.SourcePostgres

	if err := heuristics.ValidateDataset(ds.Wallets, ds.Transactions); err != nil {
		log.Fatal("Generated dataset is inconsistent", zap.Error(err))
	}

	store, err := db.Connect(ctx, *dsn, cfg.Database.MaxConns, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialise schema", zap.Error(err))
	}
	if err := store.SaveDataset(ctx, &ds); err != nil {
		log.Fatal("Failed to save dataset", zap.Error(err))
	}

	log.Info("Seeded dataset",
		zap.String("dataset", ds.ID),
		zap.Int("wallets", len(ds.Wallets)),
		zap.Int("transactions", len(ds.Transactions)))
	fmt.Println(ds.ID)
}

func generate(opts generator.Options, seed int64) models.Dataset {
	now := time.Now().UTC()
	if seed == 0 {
		seed = now.UnixNano()
	}
	return generator.Generate(rand.New(rand.NewSource(seed)), opts, now)
}
