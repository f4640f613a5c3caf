package jobengine

import (
	"log/slog"

	"github.com/wheattoast11/deepresearch-mcp/internal/config"
	"github.com/wheattoast11/deepresearch-mcp/internal/crypto"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// Wired bundles the Job Engine's submission-time and execution-time
// components for the bootstrap sequence to start and stop together.
type Wired struct {
	Engine   *Engine
	Pool     *Pool
	Reclaim  *ReclaimSweeper
}

// New wires the full Job Engine from configuration.
func New(repos *repository.Repositories, handlers map[models.JobType]Handler, cfg *config.Config, logger *slog.Logger) *Wired {
	engine := NewEngine(repos.Job, repos.JobEvent, cfg.IdempotencyTTL)
	notifier := NewNotifier(repos.Webhook, cfg.WebhookSigningSecret, logger)
	if enc, err := crypto.NewEncryptor(cfg.EncryptionKey); err == nil {
		engine.WithEncryptor(enc)
		notifier.WithEncryptor(enc)
	} else {
		logger.Warn("webhook URLs will be stored in plaintext: invalid encryption key", "error", err)
	}
	pool := NewPool(repos.Job, repos.JobEvent, handlers, notifier, PoolConfig{
		PollInterval:        cfg.WorkerPollInterval,
		MaxPollInterval:     cfg.WorkerMaxPollInterval,
		Concurrency:         cfg.WorkerConcurrency,
		ShutdownGracePeriod: cfg.WorkerShutdownGracePeriod,
		LeaseTimeout:        cfg.LeaseTimeout,
	}, logger)
	reclaim := NewReclaimSweeper(repos.Job, cfg.LeaseTimeout, logger)
	return &Wired{Engine: engine, Pool: pool, Reclaim: reclaim}
}
