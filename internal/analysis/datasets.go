package analysis

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/generator"
	"github.com/rawblock/wallet-anomaly-engine/internal/heuristics"
	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// Request ceilings for generated datasets.
const (
	MaxGeneratedWallets      = 10000
	MaxGeneratedTransactions = 200000
)

// GenerateRequest asks for a synthetic dataset. Zero fields fall back to
// the configured generator defaults; Seed 0 draws from the clock.
type GenerateRequest struct {
	WalletCount      int   `json:"walletCount"`
	TransactionCount int   `json:"transactionCount"`
	Seed             int64 `json:"seed"`
	WindowDays       int   `json:"windowDays"`
	DayAligned       *bool `json:"dayAligned"`
}

// ValidationError carries every problem found in an uploaded dataset.
type ValidationError struct {
	Warnings []string
}

func (e *ValidationError) Error() string {
	return "dataset failed validation"
}

// GenerateDataset builds, stores and returns a synthetic dataset.
func (s *Service) GenerateDataset(ctx context.Context, req GenerateRequest) (*models.Dataset, error) {
	opts := generator.DefaultOptions()
	opts.WalletCount = s.gen.WalletCount
	opts.TxPerWallet = s.gen.TxPerWallet
	opts.DayAligned = s.gen.DayAligned
	if s.gen.WindowDays > 0 {
		opts.Window = time.Duration(s.gen.WindowDays) * 24 * time.Hour
	}

	if req.WalletCount != 0 {
		opts.WalletCount = req.WalletCount
	}
	if req.TransactionCount != 0 {
		opts.TransactionCount = req.TransactionCount
	}
	if req.WindowDays != 0 {
		opts.Window = time.Duration(req.WindowDays) * 24 * time.Hour
	}
	if req.DayAligned != nil {
		opts.DayAligned = *req.DayAligned
	}

	if opts.WalletCount < 0 || opts.WalletCount > MaxGeneratedWallets {
		return nil, errors.Wrapf(ErrInvalidInput, "walletCount must be within [0,%d], got %d", MaxGeneratedWallets, opts.WalletCount)
	}
	if opts.TransactionCount < 0 || opts.TransactionCount > MaxGeneratedTransactions {
		return nil, errors.Wrapf(ErrInvalidInput, "transactionCount must be within [0,%d], got %d", MaxGeneratedTransactions, opts.TransactionCount)
	}
	if opts.TransactionCount == 0 && opts.WalletCount*opts.TxPerWallet > MaxGeneratedTransactions {
		return nil, errors.Wrapf(ErrInvalidInput, "walletCount %d would generate too many transactions", opts.WalletCount)
	}
	if opts.Window < 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "windowDays must not be negative, got %d", req.WindowDays)
	}

	seed := req.Seed
	if seed == 0 {
		seed = s.gen.Seed
	}
	now := s.now()
	if seed == 0 {
		seed = now.UnixNano()
	}

	ds := generator.Generate(rand.New(rand.NewSource(seed)), opts, now)
	ds.ID = uuid.NewString()
	if err := s.store.Put(ctx, &ds); err != nil {
		return nil, errors.Wrap(err, "store generated dataset")
	}

	s.logger.Info("generated dataset",
		zap.String("dataset", ds.ID),
		zap.Int64("seed", seed),
		zap.Int("wallets", len(ds.Wallets)),
		zap.Int("transactions", len(ds.Transactions)))
	return &ds, nil
}

// UploadDataset validates and stores caller-supplied data. In strict mode any
// problem rejects the upload with a *ValidationError; otherwise the dataset is
// stored and the problems come back as warnings.
func (s *Service) UploadDataset(ctx context.Context, wallets []models.Wallet, txs []models.Transaction, strict bool) (*models.Dataset, []string, error) {
	for i := range txs {
		txs[i].Timestamp = txs[i].Timestamp.UTC()
	}

	warnings := heuristics.ValidationWarnings(heuristics.ValidateDataset(wallets, txs))
	if strict && len(warnings) > 0 {
		return nil, warnings, &ValidationError{Warnings: warnings}
	}

	ds := &models.Dataset{
		ID:           uuid.NewString(),
		Source:       models.SourceUpload,
		CreatedAt:    s.now(),
		Wallets:      wallets,
		Transactions: txs,
	}
	if err := s.store.Put(ctx, ds); err != nil {
		return nil, nil, errors.Wrap(err, "store uploaded dataset")
	}

	s.logger.Info("uploaded dataset",
		zap.String("dataset", ds.ID),
		zap.Int("wallets", len(wallets)),
		zap.Int("transactions", len(txs)),
		zap.Int("warnings", len(warnings)))
	return ds, warnings, nil
}

// Dataset returns a stored dataset.
func (s *Service) Dataset(ctx context.Context, id string) (*models.Dataset, error) {
	return s.store.Get(ctx, id)
}

// Datasets lists stored dataset summaries, newest first.
func (s *Service) Datasets(ctx context.Context) ([]models.DatasetSummary, error) {
	return s.store.List(ctx)
}

// Preload generates the startup dataset when the configuration asks for one.
func (s *Service) Preload(ctx context.Context) (*models.Dataset, error) {
	if !s.gen.Preload {
		return nil, nil
	}
	return s.GenerateDataset(ctx, GenerateRequest{})
}
