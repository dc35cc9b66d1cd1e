package heuristics

import (
	"math"
	"sort"
	"time"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// Suspicious Wallet Scorer
//
// Five independent signals per wallet, evaluated in a fixed order. Each
// triggered signal adds its weight and appends a tagged reason:
//
//   temporal burst        > 70% of gaps under 0.2x the mean gap   +0.30
//   large spikes          > 3 transfers above 5x the mean amount  +0.25
//   unusual balance       |net| above 3x the population mean      +0.20
//   counterparty overlap  > 30% of the population as peers        +0.25
//   transaction count     > 2.5x the population mean              +0.15
//
// The sum is clamped to 1.0. Degenerate denominators are floored to 1.

const (
	DefaultThreshold = 0.5

	burstGapFactor      = 0.2
	burstTrigger        = 0.7
	spikeAmountFactor   = 5.0
	spikeTrigger        = 3
	balanceRatioTrigger = 3.0
	counterpartyTrigger = 0.3
	txCountRatioTrigger = 2.5

	weightBurst        = 0.3
	weightSpikes       = 0.25
	weightBalance      = 0.2
	weightCounterparty = 0.25
	weightTxCount      = 0.15
)

// populationStats are computed once per run and handed to every wallet.
type populationStats struct {
	walletCount int
	avgTxCount  float64
	avgBalance  float64
}

func computePopulationStats(wallets []models.Wallet) populationStats {
	stats := populationStats{walletCount: len(wallets)}
	if len(wallets) == 0 {
		return stats
	}
	var txSum, balanceSum float64
	for _, w := range wallets {
		txSum += float64(w.TransactionCount)
		balanceSum += math.Abs(w.NetBalance)
	}
	stats.avgTxCount = txSum / float64(len(wallets))
	stats.avgBalance = balanceSum / float64(len(wallets))
	return stats
}

// Scorer applies the heuristic with a fixed inclusion threshold.
type Scorer struct {
	Threshold float64
}

// NewScorer clamps the threshold into [0,1].
func NewScorer(threshold float64) *Scorer {
	return &Scorer{Threshold: math.Max(0, math.Min(1, threshold))}
}

// Score returns every wallet whose score reaches the threshold, highest
// score first. Ties keep the input order.
func (s *Scorer) Score(wallets []models.Wallet, txs []models.Transaction) []models.SuspiciousWallet {
	return ScoreWallets(wallets, txs, s.Threshold)
}

// ScoreWallets is the stateless form of Scorer.Score.
func ScoreWallets(wallets []models.Wallet, txs []models.Transaction, threshold float64) []models.SuspiciousWallet {
	if len(wallets) == 0 {
		return []models.SuspiciousWallet{}
	}
	stats := computePopulationStats(wallets)
	byWallet := indexByWallet(txs)

	result := make([]models.SuspiciousWallet, 0)
	for _, w := range wallets {
		sw := scoreWallet(w, byWallet[w.ID], stats)
		if sw.SuspicionScore >= threshold {
			result = append(result, sw)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SuspicionScore > result[j].SuspicionScore
	})
	return result
}

// ScoreWallet evaluates a single wallet against the population it belongs to.
func ScoreWallet(wallet models.Wallet, wallets []models.Wallet, txs []models.Transaction) models.SuspiciousWallet {
	var own []models.Transaction
	for _, tx := range txs {
		if tx.Involves(wallet.ID) {
			own = append(own, tx)
		}
	}
	return scoreWallet(wallet, own, computePopulationStats(wallets))
}

func indexByWallet(txs []models.Transaction) map[string][]models.Transaction {
	idx := make(map[string][]models.Transaction)
	for _, tx := range txs {
		idx[tx.FromAddr] = append(idx[tx.FromAddr], tx)
		if tx.ToAddr != tx.FromAddr {
			idx[tx.ToAddr] = append(idx[tx.ToAddr], tx)
		}
	}
	return idx
}

// scoreWallet expects only the wallet's own transactions.
func scoreWallet(w models.Wallet, own []models.Transaction, stats populationStats) models.SuspiciousWallet {
	score := 0.0
	var reasons []models.Reason

	// 1. Temporal burst
	burst := temporalBurst(own)
	if burst > burstTrigger {
		score += weightBurst
		reasons = append(reasons, models.Reason{Kind: models.SignalTemporalBurst, Value: burst})
	}

	// 2. Large transaction spikes
	spikes := largeSpikes(own)
	if spikes > spikeTrigger {
		score += weightSpikes
		reasons = append(reasons, models.Reason{Kind: models.SignalLargeSpikes, Value: float64(spikes)})
	}

	// 3. Unusual balance
	balanceRatio := math.Abs(w.NetBalance) / floorToOne(stats.avgBalance)
	unusual := balanceRatio > balanceRatioTrigger
	if unusual {
		score += weightBalance
		reasons = append(reasons, models.Reason{Kind: models.SignalUnusualBalance, Value: balanceRatio})
	}

	// 4. Counterparty overlap
	peers := counterparties(w.ID, own)
	if float64(peers)/floorToOne(float64(stats.walletCount)) > counterpartyTrigger {
		score += weightCounterparty
		reasons = append(reasons, models.Reason{Kind: models.SignalCounterpartyOverlap, Value: float64(peers)})
	}

	// 5. Transaction count anomaly
	if float64(w.TransactionCount)/floorToOne(stats.avgTxCount) > txCountRatioTrigger {
		score += weightTxCount
		reasons = append(reasons, models.Reason{Kind: models.SignalTransactionCount, Value: float64(w.TransactionCount)})
	}

	if score > 1.0 {
		score = 1.0
	}
	if reasons == nil {
		reasons = []models.Reason{}
	}

	return models.SuspiciousWallet{
		Wallet:                  w,
		SuspicionScore:          score,
		Reasons:                 reasons,
		TemporalBurst:           burst,
		LargeTransactionSpikes:  spikes,
		UnusualBalance:          unusual,
		HighCounterpartyOverlap: peers,
	}
}

// temporalBurst is the fraction of inter-transaction gaps shorter than
// burstGapFactor times the mean gap.
func temporalBurst(own []models.Transaction) float64 {
	if len(own) < 2 {
		return 0
	}
	times := make([]time.Time, len(own))
	for i, tx := range own {
		times[i] = tx.Timestamp
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	gaps := make([]float64, len(times)-1)
	var total float64
	for i := 1; i < len(times); i++ {
		gaps[i-1] = float64(times[i].Sub(times[i-1]))
		total += gaps[i-1]
	}
	avgGap := total / float64(len(gaps))

	small := 0
	for _, g := range gaps {
		if g < burstGapFactor*avgGap {
			small++
		}
	}
	return float64(small) / float64(len(gaps))
}

func largeSpikes(own []models.Transaction) int {
	var sum float64
	for _, tx := range own {
		sum += tx.Amount
	}
	avg := sum / floorToOne(float64(len(own)))

	spikes := 0
	for _, tx := range own {
		if tx.Amount > spikeAmountFactor*avg {
			spikes++
		}
	}
	return spikes
}

func counterparties(walletID string, own []models.Transaction) int {
	peers := make(map[string]struct{})
	for _, tx := range own {
		peer := tx.Counterparty(walletID)
		if peer == walletID {
			continue
		}
		peers[peer] = struct{}{}
	}
	return len(peers)
}

func floorToOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
