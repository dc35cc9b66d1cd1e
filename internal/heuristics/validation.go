package heuristics

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// balanceTolerance absorbs float summation error when totals are compared
// against transaction sums.
const balanceTolerance = 1e-6

// ValidateDataset checks the referential and accounting invariants the
// scorer assumes. Every problem found is reported; nil means the dataset is
// consistent.
func ValidateDataset(wallets []models.Wallet, txs []models.Transaction) error {
	var result *multierror.Error

	known := make(map[string]bool, len(wallets))
	for _, w := range wallets {
		if w.ID == "" {
			result = multierror.Append(result, fmt.Errorf("wallet with empty id"))
			continue
		}
		if known[w.ID] {
			result = multierror.Append(result, fmt.Errorf("duplicate wallet id %q", w.ID))
		}
		known[w.ID] = true
		if math.Abs(w.NetBalance-(w.TotalReceived-w.TotalSent)) > balanceTolerance {
			result = multierror.Append(result, fmt.Errorf("wallet %s: net balance %v != received %v - sent %v",
				w.ID, w.NetBalance, w.TotalReceived, w.TotalSent))
		}
	}

	received := make(map[string]float64)
	sent := make(map[string]float64)
	counts := make(map[string]int)
	seenTx := make(map[string]bool, len(txs))

	for _, tx := range txs {
		if seenTx[tx.ID] {
			result = multierror.Append(result, fmt.Errorf("duplicate transaction id %q", tx.ID))
		}
		seenTx[tx.ID] = true

		if !known[tx.FromAddr] {
			result = multierror.Append(result, fmt.Errorf("transaction %s: unknown sender %q", tx.ID, tx.FromAddr))
		}
		if !known[tx.ToAddr] {
			result = multierror.Append(result, fmt.Errorf("transaction %s: unknown receiver %q", tx.ID, tx.ToAddr))
		}
		if tx.FromAddr == tx.ToAddr {
			result = multierror.Append(result, fmt.Errorf("transaction %s: self-transfer on %s", tx.ID, tx.FromAddr))
		}
		switch {
		case math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0):
			result = multierror.Append(result, fmt.Errorf("transaction %s: invalid amount %v", tx.ID, tx.Amount))
		case tx.Amount <= 0:
			result = multierror.Append(result, fmt.Errorf("transaction %s: amount must be positive, got %v", tx.ID, tx.Amount))
		}
		if tx.Timestamp.IsZero() {
			result = multierror.Append(result, fmt.Errorf("transaction %s: missing timestamp", tx.ID))
		}

		sent[tx.FromAddr] += tx.Amount
		received[tx.ToAddr] += tx.Amount
		counts[tx.FromAddr]++
		if tx.ToAddr != tx.FromAddr {
			counts[tx.ToAddr]++
		}
	}

	for _, w := range wallets {
		if w.ID == "" {
			continue
		}
		if math.Abs(w.TotalReceived-received[w.ID]) > balanceTolerance {
			result = multierror.Append(result, fmt.Errorf("wallet %s: totalReceived %v, transactions sum to %v",
				w.ID, w.TotalReceived, received[w.ID]))
		}
		if math.Abs(w.TotalSent-sent[w.ID]) > balanceTolerance {
			result = multierror.Append(result, fmt.Errorf("wallet %s: totalSent %v, transactions sum to %v",
				w.ID, w.TotalSent, sent[w.ID]))
		}
		if w.TransactionCount != counts[w.ID] {
			result = multierror.Append(result, fmt.Errorf("wallet %s: transactionCount %d, found %d",
				w.ID, w.TransactionCount, counts[w.ID]))
		}
	}

	return result.ErrorOrNil()
}

// ValidationWarnings flattens a ValidateDataset error into messages.
func ValidationWarnings(err error) []string {
	if err == nil {
		return nil
	}
	merr, ok := err.(*multierror.Error)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, len(merr.Errors))
	for i, e := range merr.Errors {
		out[i] = e.Error()
	}
	return out
}
