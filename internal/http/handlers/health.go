// Package handlers contains the HTTP handlers for the server's
// operational surface: health, identity, metrics, and out-of-band job
// submission (§6). The MCP JSON-RPC surface itself lives in
// internal/transport and internal/mcpcore.
package handlers

import (
	"context"
	"database/sql"
)

// HealthOutput reports liveness and readiness per §6.
type HealthOutput struct {
	Body struct {
		Status string `json:"status" doc:"ok or degraded"`
		Ready  bool   `json:"ready" doc:"false if the database is unreachable"`
	}
}

// HealthHandler checks dependency readiness alongside process liveness.
type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(ctx context.Context, input *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "ok"
	out.Body.Ready = true
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			out.Body.Status = "degraded"
			out.Body.Ready = false
		}
	}
	return out, nil
}

// LivezOutput is the bare liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports process liveness with no dependency checks, for
// orchestrators that distinguish process-up from ready-for-traffic.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}
