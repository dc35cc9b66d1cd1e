package flows

import (
	"math"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/rawblock/wallet-anomaly-engine/internal/heuristics"
	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// Details is the drill-down view of one wallet.
type Details struct {
	Wallet    models.Wallet        `json:"wallet"`
	Incoming  []models.Transaction `json:"incoming"`
	Outgoing  []models.Transaction `json:"outgoing"`
	Connected []string             `json:"connected"`
	Volume    string               `json:"volume"` // e.g. "12.5 BTC"
}

// WalletDetails collects a wallet's transfers, newest first. ok is false
// when the wallet is not part of the set.
func WalletDetails(walletID string, wallets []models.Wallet, txs []models.Transaction) (Details, bool) {
	var d Details
	found := false
	for _, w := range wallets {
		if w.ID == walletID {
			d.Wallet = w
			found = true
			break
		}
	}
	if !found {
		return Details{}, false
	}

	d.Incoming = make([]models.Transaction, 0)
	d.Outgoing = make([]models.Transaction, 0)
	peers := make(map[string]struct{})
	var volume float64
	for _, tx := range txs {
		switch {
		case tx.FromAddr == walletID:
			d.Outgoing = append(d.Outgoing, tx)
		case tx.ToAddr == walletID:
			d.Incoming = append(d.Incoming, tx)
		default:
			continue
		}
		volume += tx.Amount
		if peer := tx.Counterparty(walletID); peer != walletID {
			peers[peer] = struct{}{}
		}
	}
	newestFirst := func(list []models.Transaction) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.After(list[j].Timestamp) })
	}
	newestFirst(d.Incoming)
	newestFirst(d.Outgoing)

	d.Connected = make([]string, 0, len(peers))
	for p := range peers {
		d.Connected = append(d.Connected, p)
	}
	sort.Strings(d.Connected)

	if amt, err := btcutil.NewAmount(volume); err == nil {
		d.Volume = amt.String()
	}
	return d, true
}

// FlowPoint is one bucket of a wallet's received/sent/balance series. The
// Log fields are log10(v+1) for log-scale charts.
type FlowPoint struct {
	BucketStart time.Time `json:"bucketStart"`
	Received    float64   `json:"received"`
	Sent        float64   `json:"sent"`
	Balance     float64   `json:"balance"`
	LogReceived float64   `json:"logReceived"`
	LogSent     float64   `json:"logSent"`
	LogBalance  float64   `json:"logBalance"`
}

// FlowSeries buckets the wallet's inflow and outflow and carries a running
// balance from the first bucket. The log of a negative balance uses its
// magnitude and keeps the sign.
func FlowSeries(wallet models.Wallet, txs []models.Transaction, interval time.Duration) []FlowPoint {
	if interval <= 0 {
		interval = heuristics.DefaultActivityInterval
	}

	byKey := make(map[int64]*FlowPoint)
	for _, tx := range txs {
		if !tx.Involves(wallet.ID) || tx.FromAddr == tx.ToAddr {
			continue
		}
		key := heuristics.BucketKey(tx.Timestamp, interval)
		p, ok := byKey[key]
		if !ok {
			p = &FlowPoint{BucketStart: heuristics.BucketStart(key, interval)}
			byKey[key] = p
		}
		if tx.ToAddr == wallet.ID {
			p.Received += tx.Amount
		} else {
			p.Sent += tx.Amount
		}
	}

	out := make([]FlowPoint, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })

	var balance float64
	for i := range out {
		balance += out[i].Received - out[i].Sent
		out[i].Balance = balance
		out[i].LogReceived = math.Log10(out[i].Received + 1)
		out[i].LogSent = math.Log10(out[i].Sent + 1)
		out[i].LogBalance = math.Copysign(math.Log10(math.Abs(balance)+1), balance)
	}
	return out
}
