// Package generator builds synthetic wallet datasets for demos and tests.
// All randomness comes from the caller's *rand.Rand, so a fixed seed always
// yields the same dataset.
package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

const day = 24 * time.Hour

// Options shapes a synthetic dataset.
type Options struct {
	WalletCount      int
	TransactionCount int // 0 means WalletCount * TxPerWallet
	TxPerWallet      int
	Window           time.Duration
	DayAligned       bool // timestamps fall on whole days before now
	MinAmount        float64
	AmountSpan       float64
}

// DefaultOptions is the full-size dashboard dataset.
func DefaultOptions() Options {
	return Options{
		WalletCount: 200,
		TxPerWallet: 3,
		Window:      60 * day,
		DayAligned:  true,
		MinAmount:   0.1,
		AmountSpan:  10,
	}
}

// SampleOptions is the small dataset used for quick previews.
func SampleOptions() Options {
	return Options{
		WalletCount:      30,
		TransactionCount: 80,
		Window:           30 * day,
		MinAmount:        0.1,
		AmountSpan:       10,
	}
}

func (o Options) transactionCount() int {
	if o.TransactionCount > 0 {
		return o.TransactionCount
	}
	return o.WalletCount * o.TxPerWallet
}

// WalletID formats the i-th (1-based) wallet id.
func WalletID(i int) string { return fmt.Sprintf("wallet_%04d", i) }

// TransactionID formats the i-th (1-based) transaction id.
func TransactionID(i int) string { return fmt.Sprintf("tx_%06d", i) }

// Generate builds a dataset whose wallet aggregates are exactly the sums of
// its transactions. Fewer than two wallets produce no transactions.
func Generate(rng *rand.Rand, opts Options, now time.Time) models.Dataset {
	ds := models.Dataset{
		Source:    models.SourceGenerated,
		CreatedAt: now,
	}
	if opts.WalletCount <= 0 {
		return ds
	}

	ids := make([]string, opts.WalletCount)
	for i := range ids {
		ids[i] = WalletID(i + 1)
	}

	received := make([]decimal.Decimal, opts.WalletCount)
	sent := make([]decimal.Decimal, opts.WalletCount)
	counts := make([]int, opts.WalletCount)

	if opts.WalletCount >= 2 {
		n := opts.transactionCount()
		ds.Transactions = make([]models.Transaction, 0, n)
		for i := 0; i < n; i++ {
			from := rng.Intn(opts.WalletCount)
			to := rng.Intn(opts.WalletCount)
			for to == from {
				to = rng.Intn(opts.WalletCount)
			}

			amount := decimal.NewFromFloat(rng.Float64()*opts.AmountSpan + opts.MinAmount).Round(6)
			received[to] = received[to].Add(amount)
			sent[from] = sent[from].Add(amount)
			counts[from]++
			counts[to]++

			ds.Transactions = append(ds.Transactions, models.Transaction{
				ID:        TransactionID(i + 1),
				FromAddr:  ids[from],
				ToAddr:    ids[to],
				Amount:    amount.InexactFloat64(),
				Timestamp: timestamp(rng, opts, now),
			})
		}
	}

	ds.Wallets = make([]models.Wallet, opts.WalletCount)
	for i, id := range ids {
		ds.Wallets[i] = models.NewWallet(id, received[i].InexactFloat64(), sent[i].InexactFloat64(), counts[i])
	}
	return ds
}

func timestamp(rng *rand.Rand, opts Options, now time.Time) time.Time {
	if opts.Window <= 0 {
		return now
	}
	if opts.DayAligned {
		days := int(opts.Window / day)
		if days < 1 {
			days = 1
		}
		return now.Add(-time.Duration(rng.Intn(days)) * day)
	}
	return now.Add(-time.Duration(rng.Int63n(int64(opts.Window))))
}
