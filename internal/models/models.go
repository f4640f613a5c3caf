// Package models defines the domain models shared across storage, the
// job engine, the orchestrator, and the MCP core.
package models

import "time"

// JobStatus represents the status of an asynchronous job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// JobType represents the type of job. Only "research" exists today but
// the column is kept open for future job types.
type JobType string

const (
	JobTypeResearch JobType = "research"
)

// Job is a unit of asynchronous work tracked by the Job Engine (C5).
type Job struct {
	ID                   string     `json:"id"`
	Type                 JobType    `json:"type"`
	Status               JobStatus  `json:"status"`
	ParamsJSON           string     `json:"params_json"`
	IdempotencyKey       string     `json:"idempotency_key,omitempty"`
	IdempotencyExpiresAt *time.Time `json:"idempotency_expires_at,omitempty"`
	RetryOf              string     `json:"retry_of,omitempty"`
	LeaseOwner           string     `json:"lease_owner,omitempty"`
	LeaseExpiresAt       *time.Time `json:"lease_expires_at,omitempty"`
	Attempt              int        `json:"attempt"`
	ResultJSON           string     `json:"result_json,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	WebhookURL           string     `json:"webhook_url,omitempty"`
	HeartbeatAt          *time.Time `json:"heartbeat_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// JobEventType enumerates the append-only event types emitted over a
// job's lifetime (§3 Job Event, §4.6 progress contract).
type JobEventType string

const (
	JobEventSubmitted       JobEventType = "submitted"
	JobEventStarted         JobEventType = "started"
	JobEventPlanComplete    JobEventType = "plan_complete"
	JobEventAgentStarted    JobEventType = "agent_started"
	JobEventAgentCompleted  JobEventType = "agent_completed"
	JobEventAgentUsage      JobEventType = "agent_usage"
	JobEventDegraded        JobEventType = "degraded"
	JobEventSynthesisStart  JobEventType = "synthesis_started"
	JobEventSynthesisToken  JobEventType = "synthesis_token"
	JobEventSynthesisError  JobEventType = "synthesis_error"
	JobEventReportSaved     JobEventType = "report_saved"
	JobEventProgress        JobEventType = "progress"
	JobEventCompleted       JobEventType = "completed"
	JobEventError           JobEventType = "error"
	JobEventCanceled        JobEventType = "canceled"
)

// JobEvent is a single append-only entry in a job's event log.
type JobEvent struct {
	ID          int64        `json:"id"` // per-job monotonic, starts at 1
	JobID       string       `json:"job_id"`
	Type        JobEventType `json:"type"`
	PayloadJSON string       `json:"payload_json,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// DocOrigin tags where an IndexDocument's content came from.
type DocOrigin string

const (
	DocOriginReport DocOrigin = "report"
	DocOriginURL    DocOrigin = "url"
	DocOriginText   DocOrigin = "text"
)

// IndexDocument is a unit of retrievable content in the Hybrid Index (C4).
type IndexDocument struct {
	ID         string    `json:"id"`
	Origin     DocOrigin `json:"origin"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportMetadata holds structured provenance for a Report.
type ReportMetadata struct {
	Plan            []string `json:"plan"`
	Iterations      int      `json:"iterations"`
	EnsembleModels  []string `json:"ensemble_models"`
	TokensInput     int      `json:"tokens_input"`
	TokensOutput    int      `json:"tokens_output"`
	Confidence      float64  `json:"confidence"`
	FailedSubQueries []string `json:"failed_sub_queries,omitempty"`
}

// Report is a persistent, immutable record of a completed research query.
type Report struct {
	ID         int64          `json:"id"` // monotonic
	Query      string         `json:"query"`
	OutputMD   string         `json:"output_markdown"`
	Sources    []string       `json:"sources"`
	Metadata   ReportMetadata `json:"metadata"`
	Embedding  []float32      `json:"embedding,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TransportKind enumerates the transports a session may be bound to.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportStreamableHTTP TransportKind = "streamable_http"
	TransportWebSocket      TransportKind = "websocket"
	TransportLegacySSE      TransportKind = "legacy_sse"
)

// Session is per-transport conversational state (§3 Session).
type Session struct {
	ID               string        `json:"id"`
	Transport        TransportKind `json:"transport"`
	ProtocolVersion  string        `json:"protocol_version"`
	ClientInfoJSON   string        `json:"client_info_json,omitempty"`
	CapabilitiesJSON string        `json:"capabilities_json,omitempty"`
	ResumeCursor     int64         `json:"resume_cursor"`
	CreatedAt        time.Time     `json:"created_at"`
	LastSeenAt       time.Time     `json:"last_seen_at"`
}

// UsageCounter is a cumulative token/cost counter partitioned by model
// and by job or report.
type UsageCounter struct {
	ID               string    `json:"id"`
	Model            string    `json:"model"`
	JobID            string    `json:"job_id,omitempty"`
	ReportID         int64     `json:"report_id,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
}

// Header represents a custom HTTP header for outbound webhook requests.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// WebhookDeliveryStatus represents the status of a webhook delivery.
type WebhookDeliveryStatus string

const (
	WebhookDeliveryStatusPending WebhookDeliveryStatus = "pending"
	WebhookDeliveryStatusSuccess WebhookDeliveryStatus = "success"
	WebhookDeliveryStatusFailed  WebhookDeliveryStatus = "failed"
)

// WebhookDelivery is a single delivery attempt of a job-terminal-state
// notification (§4.5 Notifications).
type WebhookDelivery struct {
	ID             string                `json:"id"`
	JobID          string                `json:"job_id"`
	URL            string                `json:"url"`
	EventType      string                `json:"event_type"`
	PayloadJSON    string                `json:"payload_json"`
	StatusCode     *int                  `json:"status_code,omitempty"`
	Status         WebhookDeliveryStatus `json:"status"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	AttemptNumber  int                   `json:"attempt_number"`
	CreatedAt      time.Time             `json:"created_at"`
	DeliveredAt    *time.Time            `json:"delivered_at,omitempty"`
}
