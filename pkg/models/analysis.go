package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind identifies one of the suspicion signals, in evaluation order.
type SignalKind string

const (
	SignalTemporalBurst       SignalKind = "temporal_burst"
	SignalLargeSpikes         SignalKind = "large_spikes"
	SignalUnusualBalance      SignalKind = "unusual_balance"
	SignalCounterpartyOverlap SignalKind = "counterparty_overlap"
	SignalTransactionCount    SignalKind = "transaction_count"
)

// Reason is a triggered signal together with the value that triggered it.
type Reason struct {
	Kind  SignalKind `json:"kind"`
	Value float64    `json:"value"`
}

// String renders the reason for display.
func (r Reason) String() string {
	switch r.Kind {
	case SignalTemporalBurst:
		return fmt.Sprintf("High temporal burst (%s%%)", fixed(r.Value*100, 0))
	case SignalLargeSpikes:
		return fmt.Sprintf("%d large transaction spikes detected", int(r.Value))
	case SignalUnusualBalance:
		return fmt.Sprintf("Unusual balance ratio (%sx average)", fixed(r.Value, 1))
	case SignalCounterpartyOverlap:
		return fmt.Sprintf("High counterparty overlap (%d unique wallets)", int(r.Value))
	case SignalTransactionCount:
		return fmt.Sprintf("Very high transaction count (%d)", int(r.Value))
	default:
		return fmt.Sprintf("%s (%g)", r.Kind, r.Value)
	}
}

// fixed formats v with the given decimals, rounding halves up.
func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// SuspiciousWallet is a wallet whose combined score reached the threshold.
// The raw signal fields are kept even when the signal did not trigger.
type SuspiciousWallet struct {
	Wallet                  Wallet   `json:"wallet"`
	SuspicionScore          float64  `json:"suspicionScore"` // 0..1
	Reasons                 []Reason `json:"reasons"`
	TemporalBurst           float64  `json:"temporalBurst"`
	LargeTransactionSpikes  int      `json:"largeTransactionSpikes"`
	UnusualBalance          bool     `json:"unusualBalance"`
	HighCounterpartyOverlap int      `json:"highCounterpartyOverlap"`
}

// ReasonTexts renders every reason in order.
func (sw SuspiciousWallet) ReasonTexts() []string {
	out := make([]string, len(sw.Reasons))
	for i, r := range sw.Reasons {
		out[i] = r.String()
	}
	return out
}

// AnalyticsMetrics summarizes one scoring run.
type AnalyticsMetrics struct {
	TotalWallets          int                `json:"totalWallets"`
	SuspiciousWallets     int                `json:"suspiciousWallets"`
	AverageSuspicionScore float64            `json:"averageSuspicionScore"`
	TopSuspicious         []SuspiciousWallet `json:"topSuspicious"`
}

// EvaluationResult is a confusion matrix with derived rates.
type EvaluationResult struct {
	TruePositives  int     `json:"truePositives"`
	FalsePositives int     `json:"falsePositives"`
	FalseNegatives int     `json:"falseNegatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1Score        float64 `json:"f1Score"`
}

// ActivityBucket is one fixed-width, epoch-aligned slice of wallet activity.
type ActivityBucket struct {
	BucketStart time.Time `json:"bucketStart"`
	Count       int       `json:"count"`
	Volume      float64   `json:"volume"`
}
