// Package analysis runs suspicion scoring over stored datasets and fans the
// results out to alerting and the dashboard stream.
package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/config"
	"github.com/rawblock/wallet-anomaly-engine/internal/dataset"
	"github.com/rawblock/wallet-anomaly-engine/internal/flows"
	"github.com/rawblock/wallet-anomaly-engine/internal/heuristics"
	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
	"github.com/rawblock/wallet-anomaly-engine/internal/metrics"
	"github.com/rawblock/wallet-anomaly-engine/internal/observability"
	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// EventAnalysisRun is the stream envelope type for a finished run.
const EventAnalysisRun = "analysis_run"

var (
	// ErrInvalidInput marks caller mistakes (bad threshold, oversized request).
	ErrInvalidInput = errors.New("invalid input")
	// ErrWalletNotFound is returned when a wallet is not part of the dataset.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Broadcaster pushes an event to connected dashboards.
type Broadcaster interface {
	BroadcastEvent(eventType string, data interface{})
}

// AlertSink receives flagged wallets.
type AlertSink interface {
	EmitFromSuspicious(runID, datasetID string, sw models.SuspiciousWallet) bool
}

// RunOptions tunes one scoring run. A nil Threshold uses the configured default.
type RunOptions struct {
	Threshold          *float64
	KnownSuspiciousIDs []string
}

// Report is the outcome of one scoring run.
type Report struct {
	RunID         string                    `json:"runId"`
	DatasetID     string                    `json:"datasetId"`
	Digest        string                    `json:"digest"`
	Threshold     float64                   `json:"threshold"`
	Suspicious    []models.SuspiciousWallet `json:"suspicious"`
	Metrics       models.AnalyticsMetrics   `json:"metrics"`
	Evaluation    *models.EvaluationResult  `json:"evaluation,omitempty"`
	Rating        string                    `json:"rating,omitempty"`
	Warnings      []string                  `json:"warnings,omitempty"`
	AlertsEmitted int                       `json:"alertsEmitted"`
	StartedAt     time.Time                 `json:"startedAt"`
	Duration      time.Duration             `json:"-"`
	DurationMs    float64                   `json:"durationMs"`
}

// RunSummary is the compact view broadcast to the dashboard.
type RunSummary struct {
	RunID             string   `json:"runId"`
	DatasetID         string   `json:"datasetId"`
	Digest            string   `json:"digest"`
	Threshold         float64  `json:"threshold"`
	TotalWallets      int      `json:"totalWallets"`
	SuspiciousWallets int      `json:"suspiciousWallets"`
	AverageScore      float64  `json:"averageScore"`
	TopWalletIDs      []string `json:"topWalletIds"`
	Rating            string   `json:"rating,omitempty"`
}

// Activity is a wallet's bucketed activity and flow series.
type Activity struct {
	WalletID string                  `json:"walletId"`
	Interval time.Duration           `json:"-"`
	Hours    float64                 `json:"intervalHours"`
	Buckets  []models.ActivityBucket `json:"buckets"`
	Flows    []flows.FlowPoint       `json:"flows"`
}

// Service coordinates datasets, scoring and alert fan-out.
type Service struct {
	store  dataset.Store
	alerts AlertSink
	hub    Broadcaster
	cfg    config.AnalysisConfig
	gen    config.GeneratorConfig
	logger *logger.Logger
	now    func() time.Time
}

// NewService wires the service. alerts and hub may be nil.
func NewService(store dataset.Store, alerts AlertSink, hub Broadcaster, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		alerts: alerts,
		hub:    hub,
		cfg:    cfg.Analysis,
		gen:    cfg.Generator,
		logger: log.WithComponent("analysis"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run scores every wallet of the dataset and distributes the result.
func (s *Service) Run(ctx context.Context, datasetID string, opts RunOptions) (*Report, error) {
	start := s.now()
	runID := uuid.NewString()

	threshold := s.cfg.DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	if threshold < 0 || threshold > 1 {
		observability.AnalysisRunsTotal.WithLabelValues("rejected").Inc()
		return nil, errors.Wrapf(ErrInvalidInput, "threshold must be within [0,1], got %v", threshold)
	}

	ctx, span := observability.StartSpan(ctx, "analysis.run",
		observability.RunID(runID),
		observability.DatasetID(datasetID),
		observability.Threshold(threshold))
	defer span.End()

	ds, err := s.store.Get(ctx, datasetID)
	if err != nil {
		observability.AnalysisRunsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	}

	report := &Report{
		RunID:     runID,
		DatasetID: ds.ID,
		Digest:    Digest(ds),
		Threshold: threshold,
		StartedAt: start,
		Warnings:  heuristics.ValidationWarnings(heuristics.ValidateDataset(ds.Wallets, ds.Transactions)),
	}

	report.Suspicious = heuristics.NewScorer(threshold).Score(ds.Wallets, ds.Transactions)
	report.Metrics = heuristics.Summarize(len(ds.Wallets), report.Suspicious)

	if len(opts.KnownSuspiciousIDs) > 0 {
		eval := metrics.Evaluate(report.Suspicious, opts.KnownSuspiciousIDs)
		report.Evaluation = &eval
		report.Rating = metrics.Rating(eval.F1Score)
	}

	observability.WalletsScoredTotal.Add(float64(len(ds.Wallets)))
	observability.SuspiciousWalletsTotal.Add(float64(len(report.Suspicious)))
	for _, sw := range report.Suspicious {
		observability.SuspicionScore.Observe(sw.SuspicionScore)
	}

	report.AlertsEmitted = s.emitAlerts(runID, ds.ID, report.Suspicious)

	report.Duration = s.now().Sub(start)
	report.DurationMs = float64(report.Duration) / float64(time.Millisecond)
	observability.AnalysisDuration.Observe(report.Duration.Seconds())
	observability.AnalysisRunsTotal.WithLabelValues("ok").Inc()

	if s.hub != nil {
		s.hub.BroadcastEvent(EventAnalysisRun, summarize(report))
	}

	s.logger.Info("analysis run complete",
		zap.String("run", runID),
		zap.String("dataset", ds.ID),
		zap.Float64("threshold", threshold),
		zap.Int("wallets", len(ds.Wallets)),
		zap.Int("suspicious", len(report.Suspicious)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Duration("took", report.Duration))
	return report, nil
}

// emitAlerts raises alerts for the highest-scoring wallets. suspicious is
// already sorted by descending score.
func (s *Service) emitAlerts(runID, datasetID string, suspicious []models.SuspiciousWallet) int {
	if s.alerts == nil || s.cfg.AlertTopN <= 0 {
		return 0
	}
	emitted := 0
	for _, sw := range suspicious {
		if emitted >= s.cfg.AlertTopN || sw.SuspicionScore < s.cfg.AlertMinScore {
			break
		}
		if s.alerts.EmitFromSuspicious(runID, datasetID, sw) {
			emitted++
		}
	}
	return emitted
}

func summarize(r *Report) RunSummary {
	top := make([]string, len(r.Metrics.TopSuspicious))
	for i, sw := range r.Metrics.TopSuspicious {
		top[i] = sw.Wallet.ID
	}
	return RunSummary{
		RunID:             r.RunID,
		DatasetID:         r.DatasetID,
		Digest:            r.Digest,
		Threshold:         r.Threshold,
		TotalWallets:      r.Metrics.TotalWallets,
		SuspiciousWallets: r.Metrics.SuspiciousWallets,
		AverageScore:      r.Metrics.AverageSuspicionScore,
		TopWalletIDs:      top,
		Rating:            r.Rating,
	}
}

// Activity buckets a wallet's transfers. A non-positive interval uses the
// configured default.
func (s *Service) Activity(ctx context.Context, datasetID, walletID string, interval time.Duration) (*Activity, error) {
	if interval <= 0 {
		interval = s.cfg.ActivityInterval()
	}
	if interval <= 0 {
		interval = heuristics.DefaultActivityInterval
	}
	ds, err := s.store.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	w, ok := ds.FindWallet(walletID)
	if !ok {
		return nil, errors.Wrapf(ErrWalletNotFound, "wallet %q in dataset %q", walletID, datasetID)
	}
	return &Activity{
		WalletID: w.ID,
		Interval: interval,
		Hours:    interval.Hours(),
		Buckets:  heuristics.AggregateActivity(w, ds.Transactions, interval),
		Flows:    flows.FlowSeries(w, ds.Transactions, interval),
	}, nil
}

// WalletDetails returns a wallet's transfers and counterparties.
func (s *Service) WalletDetails(ctx context.Context, datasetID, walletID string) (*flows.Details, error) {
	ds, err := s.store.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	d, ok := flows.WalletDetails(walletID, ds.Wallets, ds.Transactions)
	if !ok {
		return nil, errors.Wrapf(ErrWalletNotFound, "wallet %q in dataset %q", walletID, datasetID)
	}
	return &d, nil
}

func (s *Service) Graph(ctx context.Context, datasetID string) (*flows.Graph, error) {
	ds, err := s.store.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	g := flows.BuildGraph(ds.Wallets, ds.Transactions)
	return &g, nil
}

func (s *Service) Sankey(ctx context.Context, datasetID string) (*flows.Sankey, error) {
	ds, err := s.store.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	sk := flows.BuildSankey(ds.Transactions)
	return &sk, nil
}

// Evaluate compares predicted ids against ground truth.
func (s *Service) Evaluate(predictedIDs, knownIDs []string) (models.EvaluationResult, string) {
	eval := metrics.EvaluateIDs(predictedIDs, knownIDs)
	return eval, metrics.Rating(eval.F1Score)
}
