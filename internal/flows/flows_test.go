package flows

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

var t0 = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

func fixture() ([]models.Wallet, []models.Transaction) {
	txs := []models.Transaction{
		{ID: "t1", FromAddr: "a", ToAddr: "b", Amount: 1.5, Timestamp: t0},
		{ID: "t2", FromAddr: "b", ToAddr: "c", Amount: 0.5, Timestamp: t0.Add(time.Hour)},
		{ID: "t3", FromAddr: "a", ToAddr: "b", Amount: 2.0, Timestamp: t0.Add(26 * time.Hour)},
		{ID: "t4", FromAddr: "c", ToAddr: "ghost", Amount: 9.0, Timestamp: t0.Add(27 * time.Hour)},
		{ID: "t5", FromAddr: "c", ToAddr: "a", Amount: 0.25, Timestamp: t0.Add(50 * time.Hour)},
	}
	wallets := []models.Wallet{
		models.NewWallet("a", 0.25, 3.5, 3),
		models.NewWallet("b", 3.5, 0.5, 3),
		models.NewWallet("c", 0.5, 9.25, 3),
	}
	return wallets, txs
}

func TestBuildGraph(t *testing.T) {
	wallets, txs := fixture()
	g := BuildGraph(wallets, txs)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "a", g.Nodes[0].ID)
	require.Len(t, g.Links, 3, "a->b is merged and the unknown wallet is dropped")
	assert.Equal(t, Link{Source: "a", Target: "b", Amount: 3.5, Count: 2}, g.Links[0])
	assert.Equal(t, Link{Source: "b", Target: "c", Amount: 0.5, Count: 1}, g.Links[1])
	assert.Equal(t, Link{Source: "c", Target: "a", Amount: 0.25, Count: 1}, g.Links[2])
}

func TestBuildSankey_ValuesConserveVolume(t *testing.T) {
	_, txs := fixture()
	s := BuildSankey(txs)

	assert.Equal(t, []string{"a", "b", "c", "ghost"}, s.Labels)
	assert.Equal(t, []int{0, 1, 2, 2}, s.Sources)
	assert.Equal(t, []int{1, 2, 3, 0}, s.Targets)

	var total, want float64
	for _, v := range s.Values {
		total += v
	}
	for _, tx := range txs {
		want += tx.Amount
	}
	assert.InDelta(t, want, total, 1e-9)
}

func TestBuildSankey_Empty(t *testing.T) {
	s := BuildSankey(nil)
	assert.NotNil(t, s.Labels)
	assert.Empty(t, s.Values)
}

func TestWalletDetails(t *testing.T) {
	wallets, txs := fixture()

	d, ok := WalletDetails("b", wallets, txs)
	require.True(t, ok)
	require.Len(t, d.Incoming, 2)
	assert.Equal(t, "t3", d.Incoming[0].ID, "newest first")
	require.Len(t, d.Outgoing, 1)
	assert.Equal(t, []string{"a", "c"}, d.Connected)
	assert.Equal(t, "4 BTC", d.Volume)

	_, ok = WalletDetails("nobody", wallets, txs)
	assert.False(t, ok)
}

func TestFlowSeries(t *testing.T) {
	wallets, txs := fixture()

	series := FlowSeries(wallets[0], txs, 24*time.Hour)
	require.Len(t, series, 3)

	assert.Equal(t, 1.5, series[0].Sent)
	assert.Equal(t, -1.5, series[0].Balance)
	assert.Equal(t, -3.5, series[1].Balance)
	assert.Equal(t, 0.25, series[2].Received)
	assert.Equal(t, -3.25, series[2].Balance)

	assert.InDelta(t, math.Log10(2.5), series[0].LogSent, 1e-12)
	assert.InDelta(t, -math.Log10(2.5), series[0].LogBalance, 1e-12)
	assert.Equal(t, 0.0, series[0].LogReceived)
}
