package heuristics

import (
	"sort"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// TopSuspiciousCount is how many wallets AnalyticsMetrics.TopSuspicious holds.
const TopSuspiciousCount = 5

// Summarize reduces a scoring run to dashboard metrics. The input does not
// need to be sorted already; ties keep their input order.
func Summarize(totalWallets int, suspicious []models.SuspiciousWallet) models.AnalyticsMetrics {
	var sum float64
	for _, sw := range suspicious {
		sum += sw.SuspicionScore
	}

	ranked := make([]models.SuspiciousWallet, len(suspicious))
	copy(ranked, suspicious)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SuspicionScore > ranked[j].SuspicionScore
	})
	if len(ranked) > TopSuspiciousCount {
		ranked = ranked[:TopSuspiciousCount]
	}

	return models.AnalyticsMetrics{
		TotalWallets:          totalWallets,
		SuspiciousWallets:     len(suspicious),
		AverageSuspicionScore: sum / floorToOne(float64(len(suspicious))),
		TopSuspicious:         ranked,
	}
}
