package generator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/wallet-anomaly-engine/internal/heuristics"
)

var now = time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)

func TestGenerate_DeterministicForSeed(t *testing.T) {
	a := Generate(rand.New(rand.NewSource(42)), DefaultOptions(), now)
	b := Generate(rand.New(rand.NewSource(42)), DefaultOptions(), now)
	assert.Equal(t, a, b)

	c := Generate(rand.New(rand.NewSource(43)), DefaultOptions(), now)
	assert.NotEqual(t, a.Transactions, c.Transactions)
}

func TestGenerate_DefaultShape(t *testing.T) {
	ds := Generate(rand.New(rand.NewSource(1)), DefaultOptions(), now)

	require.Len(t, ds.Wallets, 200)
	require.Len(t, ds.Transactions, 600)
	assert.Equal(t, "wallet_0001", ds.Wallets[0].ID)
	assert.Equal(t, "wallet_0200", ds.Wallets[199].ID)
	assert.Equal(t, "tx_000001", ds.Transactions[0].ID)
	assert.Equal(t, "tx_000600", ds.Transactions[599].ID)

	for _, tx := range ds.Transactions {
		assert.NotEqual(t, tx.FromAddr, tx.ToAddr)
		assert.GreaterOrEqual(t, tx.Amount, 0.1)
		assert.LessOrEqual(t, tx.Amount, 10.1)
		scaled := tx.Amount * 1e6
		assert.InDelta(t, math.Round(scaled), scaled, 1e-6, "amount %v not rounded to 6dp", tx.Amount)

		age := now.Sub(tx.Timestamp)
		assert.True(t, age >= 0 && age < 60*24*time.Hour, "timestamp %s outside window", tx.Timestamp)
		assert.Equal(t, now.Hour(), tx.Timestamp.Hour(), "day-aligned timestamps keep the clock time")
		assert.Equal(t, now.Minute(), tx.Timestamp.Minute())
	}
}

func TestGenerate_PassesValidation(t *testing.T) {
	for _, opts := range []Options{DefaultOptions(), SampleOptions()} {
		ds := Generate(rand.New(rand.NewSource(7)), opts, now)
		require.NoError(t, heuristics.ValidateDataset(ds.Wallets, ds.Transactions))
		for _, w := range ds.Wallets {
			assert.Equal(t, w.TotalReceived-w.TotalSent, w.NetBalance)
		}
	}
}

func TestGenerate_SampleOptions(t *testing.T) {
	ds := Generate(rand.New(rand.NewSource(3)), SampleOptions(), now)
	require.Len(t, ds.Wallets, 30)
	require.Len(t, ds.Transactions, 80)
	for _, tx := range ds.Transactions {
		age := now.Sub(tx.Timestamp)
		assert.True(t, age >= 0 && age < 30*24*time.Hour)
	}
}

func TestGenerate_TooFewWallets(t *testing.T) {
	opts := DefaultOptions()
	opts.WalletCount = 1
	ds := Generate(rand.New(rand.NewSource(1)), opts, now)
	assert.Len(t, ds.Wallets, 1)
	assert.Empty(t, ds.Transactions)

	opts.WalletCount = 0
	ds = Generate(rand.New(rand.NewSource(1)), opts, now)
	assert.Empty(t, ds.Wallets)
}
