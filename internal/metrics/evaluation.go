package metrics

import "github.com/rawblock/wallet-anomaly-engine/pkg/models"

// Rating labels for an F1 score, as shown on the evaluation card.
const (
	RatingExcellent        = "Excellent"
	RatingGood             = "Good"
	RatingNeedsImprovement = "Needs Improvement"
)

// Evaluate compares the flagged wallets against a reference set of wallet ids.
//
// precision = TP / (TP + FP)
// recall    = TP / (TP + FN)
// f1        = 2PR / (P + R)
//
// Every denominator is floored to 1 when it is zero, so an empty prediction
// yields 0 across the board instead of NaN.
func Evaluate(suspicious []models.SuspiciousWallet, knownSuspiciousIDs []string) models.EvaluationResult {
	predicted := make([]string, len(suspicious))
	for i, sw := range suspicious {
		predicted[i] = sw.Wallet.ID
	}
	return EvaluateIDs(predicted, knownSuspiciousIDs)
}

// EvaluateIDs is Evaluate over plain id lists. Duplicates count once.
func EvaluateIDs(predictedIDs, knownIDs []string) models.EvaluationResult {
	predicted := toSet(predictedIDs)
	known := toSet(knownIDs)

	var tp, fp, fn int
	for id := range predicted {
		if known[id] {
			tp++
		} else {
			fp++
		}
	}
	for id := range known {
		if !predicted[id] {
			fn++
		}
	}

	precision := float64(tp) / floorToOne(float64(tp+fp))
	recall := float64(tp) / floorToOne(float64(tp+fn))
	f1 := 2 * precision * recall / floorToOne(precision+recall)

	return models.EvaluationResult{
		TruePositives:  tp,
		FalsePositives: fp,
		FalseNegatives: fn,
		Precision:      precision,
		Recall:         recall,
		F1Score:        f1,
	}
}

// Rating buckets a score the way the dashboard badges it.
func Rating(score float64) string {
	switch {
	case score >= 0.8:
		return RatingExcellent
	case score >= 0.6:
		return RatingGood
	default:
		return RatingNeedsImprovement
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func floorToOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
