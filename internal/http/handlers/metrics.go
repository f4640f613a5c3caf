package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wheattoast11/deepresearch-mcp/internal/embedding"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// MetricsHandler serves /metrics in either JSON (default) or a
// Prometheus exposition (Accept: text/plain), per §6: counters for jobs
// by status, token totals, and embedder/db readiness gauges. The
// Prometheus registry is populated on demand from a fresh snapshot rather
// than updated incrementally, since the underlying counters already live
// durably in the database (§4.5, §4.7) and this handler's job is only to
// project them.
type MetricsHandler struct {
	repos    *repository.Repositories
	db       *sql.DB
	embedder embedding.Provider

	jobsTotal      *prometheus.GaugeVec
	tokensTotal    *prometheus.GaugeVec
	costUSDTotal   prometheus.Gauge
	embedderReady  prometheus.Gauge
	databaseReady  prometheus.Gauge
	registry       *prometheus.Registry
	promHandler    http.Handler
}

func NewMetricsHandler(repos *repository.Repositories, db *sql.DB, embedder embedding.Provider) *MetricsHandler {
	h := &MetricsHandler{
		repos:    repos,
		db:       db,
		embedder: embedder,
		jobsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobs_total",
			Help: "Jobs by status.",
		}, []string{"status"}),
		tokensTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tokens_total",
			Help: "Total tokens consumed across all jobs.",
		}, []string{"kind"}),
		costUSDTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cost_usd_total",
			Help: "Estimated USD cost across all jobs.",
		}),
		embedderReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "embedder_ready",
			Help: "Whether the embedding provider is ready.",
		}),
		databaseReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "database_ready",
			Help: "Whether the database connection is healthy.",
		}),
	}
	h.registry = prometheus.NewRegistry()
	h.registry.MustRegister(h.jobsTotal, h.tokensTotal, h.costUSDTotal, h.embedderReady, h.databaseReady)
	h.promHandler = promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
	return h
}

type metricsSnapshot struct {
	JobsByStatus      map[string]int
	PromptTokensTotal int
	CompletionTokens  int
	TokensTotal       int
	CostUSDTotal      float64
	EmbedderReady     bool
	DatabaseReady     bool
}

func (h *MetricsHandler) snapshot(ctx context.Context) metricsSnapshot {
	snap := metricsSnapshot{JobsByStatus: map[string]int{}}

	rows, err := h.repos.SQL.ExecuteReadOnlySql(ctx, "SELECT status, COUNT(*) as count FROM jobs GROUP BY status", nil)
	if err == nil {
		for _, row := range rows {
			status, _ := row["status"].(string)
			snap.JobsByStatus[status] = toInt(row["count"])
		}
	}

	if prompt, completion, total, cost, err := h.repos.Usage.SumUsage(ctx); err == nil {
		snap.PromptTokensTotal = prompt
		snap.CompletionTokens = completion
		snap.TokensTotal = total
		snap.CostUSDTotal = cost
	}

	if h.embedder != nil {
		snap.EmbedderReady = h.embedder.Ready()
	}
	snap.DatabaseReady = h.db == nil || h.db.PingContext(ctx) == nil

	return snap
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// refresh loads a fresh snapshot into the registered Prometheus metrics
// immediately before each scrape, since the values are derived from the
// database rather than updated as events occur.
func (h *MetricsHandler) refresh(ctx context.Context) metricsSnapshot {
	snap := h.snapshot(ctx)

	h.jobsTotal.Reset()
	for status, count := range snap.JobsByStatus {
		h.jobsTotal.WithLabelValues(status).Set(float64(count))
	}
	h.tokensTotal.WithLabelValues("prompt").Set(float64(snap.PromptTokensTotal))
	h.tokensTotal.WithLabelValues("completion").Set(float64(snap.CompletionTokens))
	h.tokensTotal.WithLabelValues("all").Set(float64(snap.TokensTotal))
	h.costUSDTotal.Set(snap.CostUSDTotal)
	h.embedderReady.Set(boolToFloat(snap.EmbedderReady))
	h.databaseReady.Set(boolToFloat(snap.DatabaseReady))

	return snap
}

func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		h.refresh(r.Context())
		h.promHandler.ServeHTTP(w, r)
		return
	}

	snap := h.refresh(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jobs_by_status":          snap.JobsByStatus,
		"prompt_tokens_total":     snap.PromptTokensTotal,
		"completion_tokens_total": snap.CompletionTokens,
		"tokens_total":            snap.TokensTotal,
		"cost_usd_total":          snap.CostUSDTotal,
		"embedder_ready":          snap.EmbedderReady,
		"database_ready":          snap.DatabaseReady,
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
