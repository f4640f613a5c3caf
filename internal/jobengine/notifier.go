package jobengine

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/crypto"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// Notifier delivers job-terminal-state webhook notifications, grounded on
// the teacher's WebhookService: HMAC-SHA256 payload signing, a tracked
// delivery record per attempt, and bounded retries with quadratic backoff.
type Notifier struct {
	client        *http.Client
	webhookRepo   repository.WebhookRepository
	signingSecret string
	maxAttempts   int
	logger        *slog.Logger
	encryptor     *crypto.Encryptor
}

// NewNotifier wires a Notifier. signingSecret is blank when no
// WEBHOOK_SIGNING_SECRET is configured, in which case deliveries go out
// unsigned.
func NewNotifier(webhookRepo repository.WebhookRepository, signingSecret string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:        &http.Client{Timeout: 30 * time.Second},
		webhookRepo:   webhookRepo,
		signingSecret: signingSecret,
		maxAttempts:   3,
		logger:        logger.With("component", "jobengine.notifier"),
	}
}

// WithEncryptor enables decryption of job.WebhookURL before delivery,
// matching the Engine's WithEncryptor. A nil encryptor treats WebhookURL
// as plaintext.
func (n *Notifier) WithEncryptor(enc *crypto.Encryptor) *Notifier {
	n.encryptor = enc
	return n
}

type webhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NotifyTerminal fires a webhook for a job's terminal state if job.WebhookURL
// is set (§4.5 Notifications). Fire-and-forget: failures are logged and
// tracked in the delivery record, never propagated to the caller.
func (n *Notifier) NotifyTerminal(ctx context.Context, job *models.Job, status models.JobStatus, resultJSON, errMsg string) {
	if job.WebhookURL == "" {
		return
	}
	go n.deliver(ctx, job, status, resultJSON, errMsg)
}

func (n *Notifier) deliver(ctx context.Context, job *models.Job, status models.JobStatus, resultJSON, errMsg string) {
	url := job.WebhookURL
	if n.encryptor != nil {
		plain, err := n.encryptor.Decrypt(url)
		if err != nil {
			n.logger.Error("failed to decrypt webhook url", "job_id", job.ID, "error", err)
			return
		}
		url = plain
	}

	eventType := "job." + string(status)
	payload := webhookPayload{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		JobID:     job.ID,
		Status:    string(status),
		Result:    resultJSON,
		Error:     errMsg,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to marshal webhook payload", "job_id", job.ID, "error", err)
		return
	}

	delivery := &models.WebhookDelivery{
		JobID:         job.ID,
		URL:           url,
		EventType:     eventType,
		PayloadJSON:   string(payloadBytes),
		Status:        models.WebhookDeliveryStatusPending,
		AttemptNumber: 0,
	}
	if n.webhookRepo != nil {
		if err := n.webhookRepo.CreateDelivery(ctx, delivery); err != nil {
			n.logger.Error("failed to create delivery record", "job_id", job.ID, "error", err)
		}
	}

	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}
		statusCode, deliverErr := n.attempt(ctx, url, payloadBytes)

		deliveryStatus := models.WebhookDeliveryStatusFailed
		attemptErrMsg := ""
		if deliverErr == nil && statusCode >= 200 && statusCode < 300 {
			deliveryStatus = models.WebhookDeliveryStatusSuccess
		} else if deliverErr != nil {
			attemptErrMsg = deliverErr.Error()
		} else {
			attemptErrMsg = fmt.Sprintf("unexpected status code %d", statusCode)
		}

		if n.webhookRepo != nil && delivery.ID != "" {
			if err := n.webhookRepo.UpdateDeliveryResult(ctx, delivery.ID, statusCode, deliveryStatus, attemptErrMsg); err != nil {
				n.logger.Error("failed to update delivery record", "job_id", job.ID, "error", err)
			}
		}

		if deliveryStatus == models.WebhookDeliveryStatusSuccess {
			n.logger.Info("webhook delivered", "job_id", job.ID, "url", url, "attempt", attempt)
			return
		}
		n.logger.Warn("webhook delivery attempt failed", "job_id", job.ID, "attempt", attempt, "error", attemptErrMsg)
	}
	n.logger.Error("webhook delivery failed after all retries", "job_id", job.ID, "url", url)
}

func (n *Notifier) attempt(ctx context.Context, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "deepresearch-mcp-webhook/1.0")
	if n.signingSecret != "" {
		req.Header.Set("X-Signature-256", "sha256="+n.sign(payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, nil
}

func (n *Notifier) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(n.signingSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
