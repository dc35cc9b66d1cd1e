package heuristics

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

func TestValidateDataset_ConsistentFixture(t *testing.T) {
	wallets, txs := randomDataset(2, 30, 200)
	if err := ValidateDataset(wallets, txs); err != nil {
		t.Fatalf("expected consistent dataset, got: %v", err)
	}
}

func TestValidateDataset_ReportsEveryProblem(t *testing.T) {
	wallets := []models.Wallet{
		models.NewWallet("a", 0, 1, 1),
		models.NewWallet("a", 0, 0, 0),
		{ID: "b", TotalReceived: 5, TotalSent: 0, NetBalance: 2, TransactionCount: 0},
		models.NewWallet("c", 3, 0, 0),
	}
	txs := []models.Transaction{
		tx("t1", "a", "ghost", 1, epoch),
		tx("t1", "b", "b", math.NaN(), time.Time{}),
	}

	err := ValidateDataset(wallets, txs)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("expected *multierror.Error, got %T", err)
	}

	text := err.Error()
	for _, fragment := range []string{
		`duplicate wallet id "a"`,
		"net balance",
		`duplicate transaction id "t1"`,
		`unknown receiver "ghost"`,
		"self-transfer",
		"invalid amount",
		"missing timestamp",
		"totalReceived",
	} {
		if !strings.Contains(text, fragment) {
			t.Errorf("expected error mentioning %q", fragment)
		}
	}
	if len(ValidationWarnings(err)) != len(merr.Errors) {
		t.Errorf("warnings should flatten every error")
	}
}

func TestValidateDataset_NonPositiveAmount(t *testing.T) {
	wallets := []models.Wallet{models.NewWallet("a", 0, -1, 1), models.NewWallet("b", -1, 0, 1)}
	txs := []models.Transaction{tx("t", "a", "b", -1, epoch)}
	err := ValidateDataset(wallets, txs)
	if err == nil || !strings.Contains(err.Error(), "amount must be positive") {
		t.Fatalf("expected a positive-amount error, got %v", err)
	}

	for _, amount := range []float64{1e-9, 1e12} {
		txs := []models.Transaction{tx("t1", "a", "b", amount, epoch)}
		if err := ValidateDataset(buildWallets([]string{"a", "b"}, txs), txs); err != nil {
			t.Errorf("amount %v should be valid, got %v", amount, err)
		}
	}

	txs = []models.Transaction{tx("t1", "a", "b", math.Inf(1), epoch)}
	err = ValidateDataset([]models.Wallet{models.NewWallet("a", 0, 0, 1), models.NewWallet("b", 0, 0, 1)}, txs)
	if err == nil || !strings.Contains(err.Error(), "invalid amount") {
		t.Fatalf("expected an invalid-amount error for +Inf, got %v", err)
	}
}

func TestValidationWarnings_Nil(t *testing.T) {
	if ValidationWarnings(nil) != nil {
		t.Error("expected nil warnings for nil error")
	}
}
