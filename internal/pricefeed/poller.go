package pricefeed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/forecast"
	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
	"github.com/rawblock/wallet-anomaly-engine/internal/observability"
)

// EventPriceUpdate is the stream envelope type for a fresh quote.
const EventPriceUpdate = "price_update"

// Broadcaster pushes an event to connected dashboards.
type Broadcaster interface {
	BroadcastEvent(eventType string, data interface{})
}

// Snapshot is the latest quote plus its naive projections.
type Snapshot struct {
	Quote          Quote                 `json:"quote"`
	ProjectionDays int                   `json:"projectionDays"`
	ProjectedUSD   float64               `json:"projectedUsd"`
	ProjectedINR   float64               `json:"projectedInr"`
	Trend          []forecast.PricePoint `json:"trend,omitempty"`
}

// Source is what the poller needs from the API client.
type Source interface {
	SimplePrice(ctx context.Context) (Quote, error)
	MarketChart(ctx context.Context, days int) ([]forecast.PricePoint, error)
}

// Poller refreshes the cached snapshot on a fixed interval.
type Poller struct {
	source         Source
	hub            Broadcaster
	interval       time.Duration
	projectionDays int
	logger         *logger.Logger

	mu     sync.RWMutex
	latest *Snapshot
}

// NewPoller creates a poller. hub may be nil.
func NewPoller(source Source, hub Broadcaster, interval time.Duration, projectionDays int, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if projectionDays <= 0 {
		projectionDays = 30
	}
	return &Poller{
		source:         source,
		hub:            hub,
		interval:       interval,
		projectionDays: projectionDays,
		logger:         log.WithComponent("price-poller"),
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Starting price feed poller", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refreshAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping price feed poller")
			return
		case <-ticker.C:
			p.refreshAndLog(ctx)
		}
	}
}

func (p *Poller) refreshAndLog(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("price refresh failed", zap.Error(err))
	}
}

// Refresh fetches a quote, projects it, caches the result and broadcasts it.
// A failed chart fetch only drops the trend line.
func (p *Poller) Refresh(ctx context.Context) (*Snapshot, error) {
	ctx, span := observability.StartSpan(ctx, "pricefeed.refresh")
	defer span.End()

	quote, err := p.source.SimplePrice(ctx)
	if err != nil {
		observability.PriceFetchTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	}
	observability.PriceFetchTotal.WithLabelValues("ok").Inc()

	snap := &Snapshot{
		Quote:          quote,
		ProjectionDays: p.projectionDays,
		ProjectedUSD:   forecast.ProjectFromDailyChange(quote.USD, quote.USDChange24h, p.projectionDays),
		ProjectedINR:   forecast.ProjectFromDailyChange(quote.INR, quote.INRChange24h, p.projectionDays),
	}

	if history, err := p.source.MarketChart(ctx, p.projectionDays); err != nil {
		p.logger.Debug("market chart unavailable", zap.Error(err))
	} else if trend, err := forecast.Project(history, p.projectionDays); err == nil {
		snap.Trend = trend
	}

	p.mu.Lock()
	p.latest = snap
	p.mu.Unlock()

	if p.hub != nil {
		p.hub.BroadcastEvent(EventPriceUpdate, snap)
	}
	return snap, nil
}

// Latest returns the cached snapshot, or ErrUnavailable before the first
// successful refresh.
func (p *Poller) Latest() (*Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return nil, ErrUnavailable
	}
	return p.latest, nil
}
