package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
	"github.com/rawblock/wallet-anomaly-engine/internal/observability"
	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// Alert emission for suspicious wallets. Alerts are:
//   1. Broadcast to connected dashboards
//   2. Published to the message bus, when one is configured
//   3. Pushed to registered webhook endpoints at or above their severity
//   4. Kept in memory as recent history
//
// Severity follows the suspicion score:
//   critical  >= 0.8
//   high      >= 0.6
//   medium    >= 0.4
//   low       >  0
//   info      otherwise (never emitted)

const AlertTypeSuspiciousWallet = "suspicious_wallet"

// Alert represents a structured security alert
type Alert struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    string    `json:"severity"` // info/low/medium/high/critical
	AlertType   string    `json:"alertType"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RunID       string    `json:"runId,omitempty"`
	DatasetID   string    `json:"datasetId,omitempty"`
	WalletID    string    `json:"walletId,omitempty"`
	Score       float64   `json:"score"`
	Reasons     []string  `json:"reasons,omitempty"`
}

// Publisher forwards alerts to a message bus.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// WebhookEndpoint is a registered webhook receiver
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity string            `json:"minSeverity"`
}

// Manager handles alert emission and webhook delivery
type Manager struct {
	mu            sync.RWMutex
	webhooks      []WebhookEndpoint
	recentAlerts  []Alert
	maxHistory    int
	httpClient    *http.Client
	alertCallback func(Alert)
	publisher     Publisher
	logger        *logger.Logger
	inflight      sync.WaitGroup
}

// NewManager creates the alert system. broadcastFn and publisher may be nil.
func NewManager(broadcastFn func(Alert), publisher Publisher, maxHistory int, log *logger.Logger) *Manager {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Manager{
		webhooks:      make([]WebhookEndpoint, 0),
		recentAlerts:  make([]Alert, 0),
		maxHistory:    maxHistory,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		alertCallback: broadcastFn,
		publisher:     publisher,
		logger:        log.WithComponent("alerts"),
	}
}

// RegisterWebhook adds a webhook endpoint
func (am *Manager) RegisterWebhook(name, url, minSeverity string, headers map[string]string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.webhooks = append(am.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})
	am.logger.Info("registered webhook",
		zap.String("name", name), zap.String("url", url), zap.String("minSeverity", minSeverity))
}

// EmitAlert processes and distributes an alert
func (am *Manager) EmitAlert(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	am.mu.Lock()
	am.recentAlerts = append(am.recentAlerts, alert)
	if len(am.recentAlerts) > am.maxHistory {
		am.recentAlerts = am.recentAlerts[len(am.recentAlerts)-am.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(am.webhooks))
	copy(webhooks, am.webhooks)
	callback := am.alertCallback
	am.mu.Unlock()

	observability.AlertsEmittedTotal.WithLabelValues(alert.Severity).Inc()

	if callback != nil {
		callback(alert)
	}

	if am.publisher != nil {
		if payload, err := json.Marshal(alert); err == nil {
			if err := am.publisher.Publish("alerts."+alert.Severity, payload); err != nil {
				am.logger.Warn("failed to publish alert", zap.String("alert", alert.ID), zap.Error(err))
			}
		}
	}

	for _, wh := range webhooks {
		if !wh.Enabled || !severityMeetsThreshold(alert.Severity, wh.MinSeverity) {
			continue
		}
		am.inflight.Add(1)
		go func(wh WebhookEndpoint) {
			defer am.inflight.Done()
			am.sendWebhook(wh, alert)
		}(wh)
	}

	am.logger.Info("alert emitted",
		zap.String("severity", alert.Severity),
		zap.String("type", alert.AlertType),
		zap.String("wallet", alert.WalletID),
		zap.Float64("score", alert.Score))
}

// EmitFromSuspicious raises an alert for a flagged wallet. Scores in the
// info band are ignored; the return value reports whether an alert went out.
func (am *Manager) EmitFromSuspicious(runID, datasetID string, sw models.SuspiciousWallet) bool {
	severity := ClassifySeverity(sw.SuspicionScore)
	if severity == "info" {
		return false
	}
	am.EmitAlert(Alert{
		Severity:    severity,
		AlertType:   AlertTypeSuspiciousWallet,
		Title:       fmt.Sprintf("Suspicious wallet %s (score %.2f)", sw.Wallet.ID, sw.SuspicionScore),
		Description: buildDescription(sw),
		RunID:       runID,
		DatasetID:   datasetID,
		WalletID:    sw.Wallet.ID,
		Score:       sw.SuspicionScore,
		Reasons:     sw.ReasonTexts(),
	})
	return true
}

// GetRecentAlerts returns the most recent alerts, newest first
func (am *Manager) GetRecentAlerts(limit int) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if limit <= 0 || limit > len(am.recentAlerts) {
		limit = len(am.recentAlerts)
	}
	start := len(am.recentAlerts) - limit
	result := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = am.recentAlerts[start+limit-1-i]
	}
	return result
}

// Recent returns up to limit alerts at or above minSeverity, newest first.
// An empty minSeverity matches everything; limit <= 0 means no limit.
func (am *Manager) Recent(limit int, minSeverity string) []Alert {
	all := am.GetRecentAlerts(0)
	out := make([]Alert, 0, len(all))
	for _, a := range all {
		if minSeverity != "" && !severityMeetsThreshold(a.Severity, minSeverity) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ValidSeverity reports whether s names a severity level.
func ValidSeverity(s string) bool {
	_, ok := severityLevels[s]
	return ok
}

// Wait blocks until every in-flight webhook delivery has finished.
func (am *Manager) Wait() {
	am.inflight.Wait()
}

// sendWebhook delivers an alert to a webhook endpoint
func (am *Manager) sendWebhook(wh WebhookEndpoint, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		am.logger.Error("failed to marshal alert", zap.Error(err))
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		observability.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		am.logger.Warn("failed to create webhook request", zap.String("webhook", wh.Name), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := am.httpClient.Do(req)
	if err != nil {
		observability.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		am.logger.Warn("webhook delivery failed", zap.String("webhook", wh.Name), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		observability.WebhookDeliveriesTotal.WithLabelValues("rejected").Inc()
		am.logger.Warn("webhook rejected alert", zap.String("webhook", wh.Name), zap.Int("status", resp.StatusCode))
		return
	}
	observability.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
}

// ClassifySeverity maps a suspicion score onto an alert severity.
func ClassifySeverity(score float64) string {
	switch {
	case score >= 0.8:
		return "critical"
	case score >= 0.6:
		return "high"
	case score >= 0.4:
		return "medium"
	case score > 0:
		return "low"
	default:
		return "info"
	}
}

// severityMeetsThreshold checks if a severity level meets the minimum
func severityMeetsThreshold(severity, minimum string) bool {
	return severityLevels[severity] >= severityLevels[minimum]
}

var severityLevels = map[string]int{
	"info": 0, "low": 1, "medium": 2, "high": 3, "critical": 4,
}

func buildDescription(sw models.SuspiciousWallet) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Wallet %s: %d transfers", sw.Wallet.ID, sw.Wallet.TransactionCount))
	if net, err := btcutil.NewAmount(sw.Wallet.NetBalance); err == nil {
		b.WriteString(", net balance ")
		b.WriteString(net.String())
	}
	b.WriteString(". ")
	if len(sw.Reasons) > 0 {
		b.WriteString("Signals: ")
		b.WriteString(strings.Join(sw.ReasonTexts(), ", "))
	}
	return b.String()
}
