package heuristics

import (
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

func TestTemporalBurst_SixOfTenShortGapsDoesNotTrigger(t *testing.T) {
	// 11 transactions -> 10 gaps: six of one minute, four of 1000 minutes.
	gaps := []time.Duration{1, 1, 1000, 1, 1, 1000, 1, 1000, 1, 1000}
	at := epoch
	txs := []models.Transaction{tx("t00", "W1", "X", 1, at)}
	for i, g := range gaps {
		at = at.Add(g * time.Minute)
		txs = append(txs, tx(fmt.Sprintf("t%02d", i+1), "W1", "X", 1, at))
	}

	burst := temporalBurst(txs)
	if math.Abs(burst-0.6) > 1e-9 {
		t.Fatalf("expected burst fraction 0.6, got %f", burst)
	}

	wallets := buildWallets([]string{"W1", "X", "Y", "Z", "V", "U", "S"}, txs)
	sw := ScoreWallet(wallets[0], wallets, txs)
	for _, r := range sw.Reasons {
		if r.Kind == models.SignalTemporalBurst {
			t.Fatalf("burst of 0.6 must not trigger, reasons: %v", sw.ReasonTexts())
		}
	}
	if math.Abs(sw.TemporalBurst-0.6) > 1e-9 {
		t.Errorf("raw burst value should be retained, got %f", sw.TemporalBurst)
	}
}

func TestTemporalBurst_FewerThanTwoTransactions(t *testing.T) {
	if got := temporalBurst(nil); got != 0 {
		t.Errorf("expected 0 for no transactions, got %f", got)
	}
	if got := temporalBurst([]models.Transaction{tx("a", "x", "y", 1, epoch)}); got != 0 {
		t.Errorf("expected 0 for a single transaction, got %f", got)
	}
}

func TestTemporalBurst_IdenticalTimestamps(t *testing.T) {
	txs := []models.Transaction{
		tx("a", "x", "y", 1, epoch),
		tx("b", "x", "y", 1, epoch),
		tx("c", "x", "y", 1, epoch),
	}
	// every gap is zero and nothing is strictly below 0.2 * 0
	if got := temporalBurst(txs); got != 0 {
		t.Errorf("expected 0 when all gaps are zero, got %f", got)
	}
}

func TestLargeSpikes_FourSpikesTrigger(t *testing.T) {
	var txs []models.Transaction
	for i := 0; i < 40; i++ {
		txs = append(txs, tx(fmt.Sprintf("s%02d", i), "W2", "P", 0.5, epoch.Add(time.Duration(i)*time.Hour)))
	}
	for j := 0; j < 4; j++ {
		txs = append(txs, tx(fmt.Sprintf("b%02d", j), "P", "W2", 6.0, epoch.Add(time.Duration(40+j)*time.Hour)))
	}
	wallets := buildWallets([]string{"W2", "P", "X", "Y"}, txs)

	sw := ScoreWallet(wallets[0], wallets, txs)

	if sw.LargeTransactionSpikes != 4 {
		t.Fatalf("expected 4 spikes, got %d", sw.LargeTransactionSpikes)
	}
	if len(sw.Reasons) != 1 || sw.Reasons[0].Kind != models.SignalLargeSpikes {
		t.Fatalf("expected only the spike reason, got %v", sw.ReasonTexts())
	}
	if math.Abs(sw.SuspicionScore-0.25) > 1e-9 {
		t.Errorf("expected score 0.25, got %f", sw.SuspicionScore)
	}
	if got := sw.Reasons[0].String(); got != "4 large transaction spikes detected" {
		t.Errorf("unexpected reason text %q", got)
	}
}

func TestUnusualBalance_RatioAboveThree(t *testing.T) {
	wallets := []models.Wallet{models.NewWallet("W3", 7.0, 0, 0)}
	for i := 0; i < 11; i++ {
		wallets = append(wallets, models.NewWallet(fmt.Sprintf("a%02d", i), 3.0, 0, 0))
	}
	for i := 0; i < 8; i++ {
		wallets = append(wallets, models.NewWallet(fmt.Sprintf("z%02d", i), 0, 0, 0))
	}
	if len(wallets) != 20 {
		t.Fatalf("fixture should have 20 wallets, has %d", len(wallets))
	}

	result := ScoreWallets(wallets, nil, 0.2)

	if len(result) != 1 || result[0].Wallet.ID != "W3" {
		t.Fatalf("expected only W3 flagged, got %d wallets", len(result))
	}
	sw := result[0]
	if !sw.UnusualBalance {
		t.Fatal("expected unusualBalance=true")
	}
	if math.Abs(sw.SuspicionScore-0.2) > 1e-9 {
		t.Errorf("expected score 0.2, got %f", sw.SuspicionScore)
	}
	if math.Abs(sw.Reasons[0].Value-3.5) > 1e-9 {
		t.Errorf("expected balance ratio 3.5, got %f", sw.Reasons[0].Value)
	}
	if got := sw.Reasons[0].String(); got != "Unusual balance ratio (3.5x average)" {
		t.Errorf("unexpected reason text %q", got)
	}
}

func TestScoreWallets_AllSignalsClampToOne(t *testing.T) {
	wallets, txs := hubFixture()

	sw := ScoreWallet(wallets[0], wallets, txs)

	wantOrder := []models.SignalKind{
		models.SignalTemporalBurst,
		models.SignalLargeSpikes,
		models.SignalUnusualBalance,
		models.SignalCounterpartyOverlap,
		models.SignalTransactionCount,
	}
	if len(sw.Reasons) != len(wantOrder) {
		t.Fatalf("expected all five signals, got %v", sw.ReasonTexts())
	}
	for i, kind := range wantOrder {
		if sw.Reasons[i].Kind != kind {
			t.Errorf("reason %d: expected %s, got %s", i, kind, sw.Reasons[i].Kind)
		}
	}
	if sw.SuspicionScore != 1.0 {
		t.Errorf("expected clamped score 1.0, got %f", sw.SuspicionScore)
	}
	if sw.HighCounterpartyOverlap != 5 {
		t.Errorf("expected 5 counterparties, got %d", sw.HighCounterpartyOverlap)
	}
	if sw.Reasons[0].String() != "High temporal burst (96%)" {
		t.Errorf("unexpected burst text %q", sw.Reasons[0].String())
	}
	if sw.Reasons[4].String() != "Very high transaction count (24)" {
		t.Errorf("unexpected count text %q", sw.Reasons[4].String())
	}
}

func TestScoreWallets_Boundedness(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		wallets, txs := randomDataset(seed, 40, 400)
		for _, sw := range ScoreWallets(wallets, txs, 0) {
			if sw.SuspicionScore < 0 || sw.SuspicionScore > 1 {
				t.Fatalf("seed %d: score %f out of range for %s", seed, sw.SuspicionScore, sw.Wallet.ID)
			}
			if sw.TemporalBurst < 0 || sw.TemporalBurst > 1 {
				t.Fatalf("seed %d: burst %f out of range", seed, sw.TemporalBurst)
			}
		}
	}
}

func TestScoreWallets_ZeroThresholdReturnsEveryWallet(t *testing.T) {
	wallets, txs := randomDataset(3, 25, 100)
	if got := len(ScoreWallets(wallets, txs, 0)); got != len(wallets) {
		t.Errorf("expected %d wallets at threshold 0, got %d", len(wallets), got)
	}
}

func TestScoreWallets_ThresholdMonotonicity(t *testing.T) {
	wallets, txs := randomDataset(11, 40, 500)

	prev := map[string]bool{}
	for _, sw := range ScoreWallets(wallets, txs, 0) {
		prev[sw.Wallet.ID] = true
	}
	for step := 1; step <= 20; step++ {
		threshold := float64(step) / 20
		cur := map[string]bool{}
		for _, sw := range ScoreWallets(wallets, txs, threshold) {
			cur[sw.Wallet.ID] = true
			if !prev[sw.Wallet.ID] {
				t.Fatalf("threshold %.2f flagged %s which a lower threshold did not", threshold, sw.Wallet.ID)
			}
		}
		if len(cur) > len(prev) {
			t.Fatalf("threshold %.2f returned more wallets (%d) than before (%d)", threshold, len(cur), len(prev))
		}
		prev = cur
	}
}

func TestScoreWallets_SortedAndStable(t *testing.T) {
	var wallets []models.Wallet
	for i := 0; i < 20; i++ {
		net := 0.0
		if i == 2 || i == 5 || i == 9 {
			net = 10
		}
		wallets = append(wallets, models.NewWallet(fmt.Sprintf("w%02d", i), net, 0, 0))
	}

	result := ScoreWallets(wallets, nil, 0.1)
	ids := make([]string, len(result))
	for i, sw := range result {
		ids[i] = sw.Wallet.ID
	}
	if !reflect.DeepEqual(ids, []string{"w02", "w05", "w09"}) {
		t.Fatalf("ties must keep input order, got %v", ids)
	}

	reversed := make([]models.Wallet, len(wallets))
	for i, w := range wallets {
		reversed[len(wallets)-1-i] = w
	}
	result = ScoreWallets(reversed, nil, 0.1)
	ids = ids[:0]
	for _, sw := range result {
		ids = append(ids, sw.Wallet.ID)
	}
	if !reflect.DeepEqual(ids, []string{"w09", "w05", "w02"}) {
		t.Fatalf("ties must keep reversed input order, got %v", ids)
	}

	mixed, txs := randomDataset(5, 40, 400)
	scored := ScoreWallets(mixed, txs, 0)
	for i := 1; i < len(scored); i++ {
		if scored[i-1].SuspicionScore < scored[i].SuspicionScore {
			t.Fatalf("output not descending at %d: %f < %f", i, scored[i-1].SuspicionScore, scored[i].SuspicionScore)
		}
	}
}

func TestScoreWallets_Idempotent(t *testing.T) {
	wallets, txs := randomDataset(21, 30, 300)
	first := ScoreWallets(wallets, txs, 0.2)
	second := ScoreWallets(wallets, txs, 0.2)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated runs over the same input must be identical")
	}
}

func TestScoreWallets_EmptyInput(t *testing.T) {
	result := ScoreWallets(nil, nil, 0.5)
	if result == nil || len(result) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", result)
	}
}

func TestScoreWallets_SelfTransferNotACounterparty(t *testing.T) {
	txs := []models.Transaction{
		tx("a", "w", "w", 1, epoch),
		tx("b", "w", "x", 1, epoch.Add(time.Hour)),
	}
	wallets := []models.Wallet{models.NewWallet("w", 1, 2, 2), models.NewWallet("x", 1, 0, 1)}
	sw := ScoreWallet(wallets[0], wallets, txs)
	if sw.HighCounterpartyOverlap != 1 {
		t.Errorf("expected 1 counterparty, got %d", sw.HighCounterpartyOverlap)
	}
}

func TestNewScorer_ClampsThreshold(t *testing.T) {
	if s := NewScorer(1.7); s.Threshold != 1 {
		t.Errorf("expected 1, got %f", s.Threshold)
	}
	if s := NewScorer(-0.2); s.Threshold != 0 {
		t.Errorf("expected 0, got %f", s.Threshold)
	}
}
