package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
)

func coinGeckoStub(t *testing.T, chartStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/price", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd,inr", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000,"inr":4000000,"usd_24h_change":1.5,"inr_24h_change":-2}}`))
	})
	mux.HandleFunc("/coins/bitcoin/market_chart", func(w http.ResponseWriter, r *http.Request) {
		if chartStatus != http.StatusOK {
			w.WriteHeader(chartStatus)
			return
		}
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`{"prices":[[1704067200000,100],[1704153600000,110],[1704240000000,120]]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) BroadcastEvent(eventType string, _ interface{}) {
	h.mu.Lock()
	h.events = append(h.events, eventType)
	h.mu.Unlock()
}

func TestClient_SimplePrice(t *testing.T) {
	srv := coinGeckoStub(t, http.StatusOK)
	c := NewClient(srv.URL, 0)

	q, err := c.SimplePrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50000.0, q.USD)
	assert.Equal(t, 4000000.0, q.INR)
	assert.Equal(t, 1.5, q.USDChange24h)
	assert.False(t, q.FetchedAt.IsZero())
}

func TestClient_MarketChart(t *testing.T) {
	srv := coinGeckoStub(t, http.StatusOK)
	c := NewClient(srv.URL, 0)

	points, err := c.MarketChart(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 2024, points[0].Date.Year())
	assert.Equal(t, 120.0, points[2].Price)

	_, err = c.MarketChart(context.Background(), 0)
	assert.Error(t, err)
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).SimplePrice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestPoller_RefreshCachesAndBroadcasts(t *testing.T) {
	srv := coinGeckoStub(t, http.StatusOK)
	hub := &recordingHub{}
	p := NewPoller(NewClient(srv.URL, 0), hub, 0, 30, logger.NewNop())

	_, err := p.Latest()
	assert.True(t, errors.Is(err, ErrUnavailable))

	snap, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50000*(1+1.5/100*30), snap.ProjectedUSD)
	assert.Len(t, snap.Trend, 30)
	assert.Equal(t, 130.0, snap.Trend[0].Price)

	latest, err := p.Latest()
	require.NoError(t, err)
	assert.Same(t, snap, latest)
	assert.Equal(t, []string{EventPriceUpdate}, hub.events)
}

func TestPoller_ChartFailureKeepsQuote(t *testing.T) {
	srv := coinGeckoStub(t, http.StatusInternalServerError)
	p := NewPoller(NewClient(srv.URL, 0), nil, 0, 7, logger.NewNop())

	snap, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Trend)
	assert.Equal(t, 7, snap.ProjectionDays)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	srv := coinGeckoStub(t, http.StatusOK)
	p := NewPoller(NewClient(srv.URL, 0), nil, 0, 5, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
