package api

import (
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rawblock/wallet-anomaly-engine/internal/alerts"
	"github.com/rawblock/wallet-anomaly-engine/internal/analysis"
	"github.com/rawblock/wallet-anomaly-engine/internal/config"
	"github.com/rawblock/wallet-anomaly-engine/internal/dataset"
	"github.com/rawblock/wallet-anomaly-engine/internal/forecast"
	"github.com/rawblock/wallet-anomaly-engine/internal/logger"
	"github.com/rawblock/wallet-anomaly-engine/internal/observability"
	"github.com/rawblock/wallet-anomaly-engine/internal/pricefeed"
	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

const (
	defaultAlertLimit  = 50
	maxForecastDays    = 365
	defaultForecastDay = 30
)

// PriceSource serves the latest cached price snapshot.
type PriceSource interface {
	Latest() (*pricefeed.Snapshot, error)
}

// Dependencies is everything the router serves from. Prices may be nil
// when the price feed is disabled.
type Dependencies struct {
	Service *analysis.Service
	Alerts  *alerts.Manager
	Prices  PriceSource
	Hub     *Hub
	Limiter *RateLimiter
	Config  *config.Config
	Logger  *logger.Logger
}

type APIHandler struct {
	svc    *analysis.Service
	alerts *alerts.Manager
	prices PriceSource
	cfg    *config.Config
	logger *logger.Logger
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.Middleware())
	r.Use(corsMiddleware(deps.Config.App.AllowedOrigins))

	handler := &APIHandler{
		svc:    deps.Service,
		alerts: deps.Alerts,
		prices: deps.Prices,
		cfg:    deps.Config,
		logger: deps.Logger.WithComponent("api"),
	}
	r.Use(handler.accessLog())

	r.GET("/metrics", observability.Handler())

	api := r.Group("/api/v1")
	if deps.Limiter != nil {
		api.Use(deps.Limiter.Middleware())
	}
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", deps.Hub.Subscribe)

		api.GET("/datasets", handler.handleListDatasets)
		api.POST("/datasets", handler.handleUpload)
		api.POST("/datasets/generate", handler.handleGenerate)
		api.GET("/datasets/:id", handler.handleGetDataset)
		api.POST("/datasets/:id/analyze", handler.handleAnalyze)
		api.GET("/datasets/:id/wallets/:walletId", handler.handleWalletDetails)
		api.GET("/datasets/:id/wallets/:walletId/activity", handler.handleActivity)
		api.GET("/datasets/:id/graph", handler.handleGraph)
		api.GET("/datasets/:id/sankey", handler.handleSankey)

		api.POST("/evaluate", handler.handleEvaluate)
		api.GET("/price", handler.handlePrice)
		api.POST("/forecast", handler.handleForecast)
		api.GET("/alerts", handler.handleAlerts)
	}

	return r
}

// corsMiddleware allows the configured comma-separated origins, or any
// origin when the list is empty or "*".
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *APIHandler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}

// respondError maps service errors onto HTTP statuses.
func (h *APIHandler) respondError(c *gin.Context, err error) {
	var verr *analysis.ValidationError
	status, msg := http.StatusInternalServerError, "Internal error"
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "Dataset failed validation",
			"warnings": verr.Warnings,
		})
		return
	case errors.Is(err, dataset.ErrNotFound):
		status, msg = http.StatusNotFound, "Dataset not found"
	case errors.Is(err, analysis.ErrWalletNotFound):
		status, msg = http.StatusNotFound, "Wallet not found"
	case errors.Is(err, analysis.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, forecast.ErrInsufficientData):
		status, msg = http.StatusBadRequest, "Not enough price points"
	case errors.Is(err, pricefeed.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, "Price feed unavailable"
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg, "details": err.Error()})
}

// bindOptionalJSON decodes the body when one is present.
func bindOptionalJSON(c *gin.Context, out interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// suspiciousWalletView adds rendered reason messages for display.
type suspiciousWalletView struct {
	models.SuspiciousWallet
	Messages []string `json:"messages"`
}

type reportView struct {
	*analysis.Report
	Suspicious []suspiciousWalletView `json:"suspicious"`
}

func renderSuspicious(list []models.SuspiciousWallet) []suspiciousWalletView {
	out := make([]suspiciousWalletView, len(list))
	for i, sw := range list {
		out[i] = suspiciousWalletView{SuspiciousWallet: sw, Messages: sw.ReasonTexts()}
	}
	return out
}

// handleHealth returns engine status and enabled features.
func (h *APIHandler) handleHealth(c *gin.Context) {
	summaries, err := h.svc.Datasets(c.Request.Context())
	status := "operational"
	if err != nil {
		status = "degraded"
		h.logger.Warn("health: listing datasets failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"engine":   "Wallet Anomaly Engine",
		"datasets": len(summaries),
		"features": gin.H{
			"database":  h.cfg.Database.Enabled,
			"nats":      h.cfg.NATS.Enabled,
			"priceFeed": h.prices != nil,
			"tracing":   h.cfg.Tracing.OTLPEndpoint != "",
		},
	})
}

func (h *APIHandler) handleListDatasets(c *gin.Context) {
	summaries, err := h.svc.Datasets(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summaries, "totalCount": len(summaries)})
}

func (h *APIHandler) handleGetDataset(c *gin.Context) {
	ds, err := h.svc.Dataset(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

// POST /api/v1/datasets/generate {walletCount, transactionCount, seed, windowDays, dayAligned}
func (h *APIHandler) handleGenerate(c *gin.Context) {
	var req analysis.GenerateRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	ds, err := h.svc.GenerateDataset(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ds.Summary())
}

// POST /api/v1/datasets {wallets, transactions}; ?strict=true rejects with 422.
func (h *APIHandler) handleUpload(c *gin.Context) {
	var req struct {
		Wallets      []models.Wallet      `json:"wallets"`
		Transactions []models.Transaction `json:"transactions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {wallets, transactions}", "details": err.Error()})
		return
	}
	strict, _ := strconv.ParseBool(c.DefaultQuery("strict", "false"))

	ds, warnings, err := h.svc.UploadDataset(c.Request.Context(), req.Wallets, req.Transactions, strict)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"dataset":  ds.Summary(),
		"warnings": warnings,
	})
}

// POST /api/v1/datasets/:id/analyze {threshold, knownSuspiciousIds}
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	var req struct {
		Threshold          *float64 `json:"threshold"`
		KnownSuspiciousIDs []string `json:"knownSuspiciousIds"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	report, err := h.svc.Run(c.Request.Context(), c.Param("id"), analysis.RunOptions{
		Threshold:          req.Threshold,
		KnownSuspiciousIDs: req.KnownSuspiciousIDs,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reportView{Report: report, Suspicious: renderSuspicious(report.Suspicious)})
}

// GET /api/v1/datasets/:id/wallets/:walletId/activity?intervalHours=24
func (h *APIHandler) handleActivity(c *gin.Context) {
	var interval time.Duration
	if raw := c.Query("intervalHours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(hours) || hours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "intervalHours must be a positive number"})
			return
		}
		// Duration is int64 nanoseconds; larger values would wrap negative.
		if hours*float64(time.Hour) >= math.MaxInt64 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "intervalHours is out of range"})
			return
		}
		interval = time.Duration(hours * float64(time.Hour))
		if interval <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "intervalHours is out of range"})
			return
		}
	}

	act, err := h.svc.Activity(c.Request.Context(), c.Param("id"), c.Param("walletId"), interval)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, act)
}

func (h *APIHandler) handleWalletDetails(c *gin.Context) {
	details, err := h.svc.WalletDetails(c.Request.Context(), c.Param("id"), c.Param("walletId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *APIHandler) handleGraph(c *gin.Context) {
	g, err := h.svc.Graph(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *APIHandler) handleSankey(c *gin.Context) {
	s, err := h.svc.Sankey(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// POST /api/v1/evaluate {predictedIds, knownSuspiciousIds}
func (h *APIHandler) handleEvaluate(c *gin.Context) {
	var req struct {
		PredictedIDs       []string `json:"predictedIds"`
		KnownSuspiciousIDs []string `json:"knownSuspiciousIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {predictedIds, knownSuspiciousIds}"})
		return
	}
	eval, rating := h.svc.Evaluate(req.PredictedIDs, req.KnownSuspiciousIDs)
	c.JSON(http.StatusOK, gin.H{
		"evaluation": eval,
		"rating":     rating,
	})
}

func (h *APIHandler) handlePrice(c *gin.Context) {
	if h.prices == nil {
		h.respondError(c, errors.Wrap(pricefeed.ErrUnavailable, "price feed disabled"))
		return
	}
	snap, err := h.prices.Latest()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /api/v1/forecast {prices: [{date, price}], days}
func (h *APIHandler) handleForecast(c *gin.Context) {
	var req struct {
		Prices []forecast.PricePoint `json:"prices"`
		Days   int                   `json:"days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {prices, days}"})
		return
	}
	if req.Days == 0 {
		req.Days = defaultForecastDay
	}
	if req.Days < 0 || req.Days > maxForecastDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be within [1,365]"})
		return
	}

	values := make([]float64, len(req.Prices))
	for i, p := range req.Prices {
		values[i] = p.Price
	}
	trend, err := forecast.LinearTrend(values)
	if err != nil {
		h.respondError(c, err)
		return
	}
	projection, err := forecast.Project(req.Prices, req.Days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trend":      trend,
		"projection": projection,
	})
}

// GET /api/v1/alerts?limit=50&minSeverity=high
func (h *APIHandler) handleAlerts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultAlertLimit)))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	minSeverity := c.Query("minSeverity")
	if minSeverity != "" && !alerts.ValidSeverity(minSeverity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minSeverity must be one of info, low, medium, high, critical"})
		return
	}

	list := h.alerts.Recent(limit, minSeverity)
	c.JSON(http.StatusOK, gin.H{"data": list, "totalCount": len(list)})
}
