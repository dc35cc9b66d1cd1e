package db

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/dataset"
	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
	"github.com/rawblock/wallet-anomaly-engine/internal/observability"
	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// schemaSQL is compiled into the binary so schema init works from the
// runtime image, which does not ship the source tree.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the dataset feed backed by PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(ctx context.Context, connStr string, maxConns int32, log *logger.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping failed")
	}

	log = log.WithComponent("db")
	log.Info("connected to PostgreSQL dataset feed", zap.Int32("maxConns", cfg.MaxConns))
	return &PostgresStore{pool: pool, logger: log}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "failed to execute schema migrations")
	}
	s.logger.Info("dataset schema initialized")
	return nil
}

// SaveDataset replaces the stored copy of ds in one transaction.
func (s *PostgresStore) SaveDataset(ctx context.Context, ds *models.Dataset) error {
	ctx, span := observability.StartSpan(ctx, "db.SaveDataset", observability.DatasetID(ds.ID))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO datasets (id, source, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET source = EXCLUDED.source, created_at = EXCLUDED.created_at`,
		ds.ID, string(ds.Source), ds.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "upsert dataset %s", ds.ID)
	}

	for _, table := range []string{"dataset_wallets", "dataset_transactions"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE dataset_id = $1", ds.ID); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}

	walletRows := make([][]any, len(ds.Wallets))
	for i, w := range ds.Wallets {
		walletRows[i] = []any{ds.ID, w.ID, i, w.TotalReceived, w.TotalSent, w.TransactionCount}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"dataset_wallets"},
		[]string{"dataset_id", "wallet_id", "position", "total_received", "total_sent", "transaction_count"},
		pgx.CopyFromRows(walletRows),
	); err != nil {
		return errors.Wrap(err, "copy wallets")
	}

	txRows := make([][]any, len(ds.Transactions))
	for i, t := range ds.Transactions {
		txRows[i] = []any{ds.ID, t.ID, i, t.FromAddr, t.ToAddr, t.Amount, t.Timestamp}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"dataset_transactions"},
		[]string{"dataset_id", "tx_id", "position", "from_addr", "to_addr", "amount", "ts"},
		pgx.CopyFromRows(txRows),
	); err != nil {
		return errors.Wrap(err, "copy transactions")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	s.logger.Info("dataset saved",
		zap.String("dataset", ds.ID),
		zap.Int("wallets", len(ds.Wallets)),
		zap.Int("transactions", len(ds.Transactions)))
	return nil
}

// LoadDataset reads a dataset back in its original order. Missing ids map
// to dataset.ErrNotFound.
func (s *PostgresStore) LoadDataset(ctx context.Context, id string) (*models.Dataset, error) {
	ctx, span := observability.StartSpan(ctx, "db.LoadDataset", observability.DatasetID(id))
	defer span.End()

	ds := &models.Dataset{ID: id}
	var source string
	err := s.pool.QueryRow(ctx, `SELECT source, created_at FROM datasets WHERE id = $1`, id).
		Scan(&source, &ds.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dataset.ErrNotFound
		}
		return nil, errors.Wrapf(err, "load dataset %s", id)
	}
	ds.Source = models.DatasetSource(source)
	ds.CreatedAt = ds.CreatedAt.UTC()

	rows, err := s.pool.Query(ctx, `
		SELECT wallet_id, total_received, total_sent, transaction_count
		FROM dataset_wallets WHERE dataset_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrap(err, "query wallets")
	}
	for rows.Next() {
		var (
			walletID       string
			received, sent float64
			count          int
		)
		if err := rows.Scan(&walletID, &received, &sent, &count); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan wallet")
		}
		ds.Wallets = append(ds.Wallets, models.NewWallet(walletID, received, sent, count))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate wallets")
	}

	rows, err = s.pool.Query(ctx, `
		SELECT tx_id, from_addr, to_addr, amount, ts
		FROM dataset_transactions WHERE dataset_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrap(err, "query transactions")
	}
	defer rows.Close()
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.FromAddr, &t.ToAddr, &t.Amount, &t.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		t.Timestamp = t.Timestamp.UTC()
		ds.Transactions = append(ds.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate transactions")
	}
	return ds, nil
}

// ListDatasets returns summaries, newest first.
func (s *PostgresStore) ListDatasets(ctx context.Context) ([]models.DatasetSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.source, d.created_at,
		       (SELECT COUNT(*) FROM dataset_wallets w WHERE w.dataset_id = d.id),
		       (SELECT COUNT(*) FROM dataset_transactions t WHERE t.dataset_id = d.id)
		FROM datasets d
		ORDER BY d.created_at DESC, d.id`)
	if err != nil {
		return nil, errors.Wrap(err, "list datasets")
	}
	defer rows.Close()

	out := make([]models.DatasetSummary, 0)
	for rows.Next() {
		var (
			sum    models.DatasetSummary
			source string
		)
		if err := rows.Scan(&sum.ID, &source, &sum.CreatedAt, &sum.WalletCount, &sum.TransactionCount); err != nil {
			return nil, errors.Wrap(err, "scan dataset summary")
		}
		sum.Source = models.DatasetSource(source)
		sum.CreatedAt = sum.CreatedAt.UTC()
		out = append(out, sum)
	}
	return out, errors.Wrap(rows.Err(), "iterate datasets")
}

// Get implements dataset.Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Dataset, error) {
	return s.LoadDataset(ctx, id)
}

// Put implements dataset.Store.
func (s *PostgresStore) Put(ctx context.Context, ds *models.Dataset) error {
	return s.SaveDataset(ctx, ds)
}

// List implements dataset.Store.
func (s *PostgresStore) List(ctx context.Context) ([]models.DatasetSummary, error) {
	return s.ListDatasets(ctx)
}
