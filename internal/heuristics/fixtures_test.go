package heuristics

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

var epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// buildWallets derives consistent wallet aggregates from a transaction set.
func buildWallets(ids []string, txs []models.Transaction) []models.Wallet {
	received := make(map[string]float64)
	sent := make(map[string]float64)
	counts := make(map[string]int)
	for _, tx := range txs {
		sent[tx.FromAddr] += tx.Amount
		received[tx.ToAddr] += tx.Amount
		counts[tx.FromAddr]++
		counts[tx.ToAddr]++
	}
	wallets := make([]models.Wallet, len(ids))
	for i, id := range ids {
		wallets[i] = models.NewWallet(id, received[id], sent[id], counts[id])
	}
	return wallets
}

func tx(id, from, to string, amount float64, at time.Time) models.Transaction {
	return models.Transaction{ID: id, FromAddr: from, ToAddr: to, Amount: amount, Timestamp: at}
}

// randomDataset produces a consistent dataset with a fixed seed.
func randomDataset(seed int64, walletCount, txCount int) ([]models.Wallet, []models.Transaction) {
	rng := rand.New(rand.NewSource(seed))
	ids := make([]string, walletCount)
	for i := range ids {
		ids[i] = fmt.Sprintf("w%03d", i)
	}
	txs := make([]models.Transaction, 0, txCount)
	for i := 0; i < txCount; i++ {
		from := rng.Intn(walletCount)
		to := rng.Intn(walletCount)
		for to == from {
			to = rng.Intn(walletCount)
		}
		// skew a few wallets so every signal has a chance to fire
		amount := rng.Float64()*2 + 0.01
		if rng.Intn(10) == 0 {
			amount *= 20
		}
		at := epoch.Add(time.Duration(rng.Int63n(int64(30 * 24 * time.Hour))))
		if from < 3 && rng.Intn(2) == 0 {
			at = epoch.Add(time.Duration(i) * time.Second)
		}
		txs = append(txs, tx(fmt.Sprintf("t%05d", i), ids[from], ids[to], amount, at))
	}
	return buildWallets(ids, txs), txs
}

// hubFixture returns a population in which "hub" trips every signal.
func hubFixture() ([]models.Wallet, []models.Transaction) {
	peers := []string{"p1", "p2", "p3", "p4", "p5"}
	var txs []models.Transaction
	for i := 0; i < 20; i++ {
		txs = append(txs, tx(fmt.Sprintf("s%02d", i), peers[i%5], "hub", 0.1, epoch.Add(time.Duration(i)*time.Second)))
	}
	for j := 0; j < 4; j++ {
		at := epoch.Add(time.Duration(20+j) * time.Second)
		if j == 3 {
			at = epoch.Add(10 * 24 * time.Hour)
		}
		txs = append(txs, tx(fmt.Sprintf("b%02d", j), peers[j], "hub", 10, at))
	}
	ids := append([]string{"hub"}, peers...)
	ids = append(ids, "q1", "q2", "q3", "q4")
	return buildWallets(ids, txs), txs
}
