package models

import "time"

// Wallet is an account-level aggregate over the transactions of a dataset.
// NetBalance is derived; use NewWallet or SetTotals so it never drifts from
// TotalReceived - TotalSent.
type Wallet struct {
	ID               string  `json:"id"`
	TotalReceived    float64 `json:"totalReceived"`
	TotalSent        float64 `json:"totalSent"`
	NetBalance       float64 `json:"netBalance"`
	TransactionCount int     `json:"transactionCount"`
}

// NewWallet builds a wallet with a consistent net balance.
func NewWallet(id string, received, sent float64, txCount int) Wallet {
	w := Wallet{ID: id, TransactionCount: txCount}
	w.SetTotals(received, sent)
	return w
}

// SetTotals replaces the accumulated totals and recomputes NetBalance.
func (w *Wallet) SetTotals(received, sent float64) {
	w.TotalReceived = received
	w.TotalSent = sent
	w.NetBalance = received - sent
}

// Transaction is a single transfer between two wallets of the same dataset.
type Transaction struct {
	ID        string    `json:"id"`
	FromAddr  string    `json:"fromAddr"`
	ToAddr    string    `json:"toAddr"`
	Amount    float64   `json:"amount"` // BTC
	Timestamp time.Time `json:"timestamp"`
}

// Involves reports whether the wallet is the sender or the receiver.
func (tx Transaction) Involves(walletID string) bool {
	return tx.FromAddr == walletID || tx.ToAddr == walletID
}

// Counterparty returns the other side of the transfer as seen from walletID.
func (tx Transaction) Counterparty(walletID string) string {
	if tx.FromAddr == walletID {
		return tx.ToAddr
	}
	return tx.FromAddr
}

// DatasetSource records where a dataset came from.
type DatasetSource string

const (
	SourceGenerated DatasetSource = "generated"
	SourcePostgres  DatasetSource = "postgres"
	SourceUpload    DatasetSource = "upload"
)

// Dataset is one immutable analysis input snapshot.
type Dataset struct {
	ID           string        `json:"id"`
	Source       DatasetSource `json:"source"`
	CreatedAt    time.Time     `json:"createdAt"`
	Wallets      []Wallet      `json:"wallets"`
	Transactions []Transaction `json:"transactions"`
}

// DatasetSummary is the listing view of a Dataset.
type DatasetSummary struct {
	ID               string        `json:"id"`
	Source           DatasetSource `json:"source"`
	CreatedAt        time.Time     `json:"createdAt"`
	WalletCount      int           `json:"walletCount"`
	TransactionCount int           `json:"transactionCount"`
}

// Summary returns the listing view of the dataset.
func (d *Dataset) Summary() DatasetSummary {
	return DatasetSummary{
		ID:               d.ID,
		Source:           d.Source,
		CreatedAt:        d.CreatedAt,
		WalletCount:      len(d.Wallets),
		TransactionCount: len(d.Transactions),
	}
}

// FindWallet looks a wallet up by id.
func (d *Dataset) FindWallet(id string) (Wallet, bool) {
	for _, w := range d.Wallets {
		if w.ID == id {
			return w, true
		}
	}
	return Wallet{}, false
}
