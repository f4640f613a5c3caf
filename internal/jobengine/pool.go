package jobengine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// PoolConfig configures the worker pool, grounded on the teacher's
// worker.Config (adaptive poll interval with exponential backoff, bounded
// concurrency, graceful shutdown).
type PoolConfig struct {
	PollInterval        time.Duration
	MaxPollInterval     time.Duration
	Concurrency         int
	ShutdownGracePeriod time.Duration
	LeaseTimeout        time.Duration
	HeartbeatInterval   time.Duration
}

// Pool is the Job Engine's execution-time half: N concurrent slots poll
// for queued jobs with adaptive backoff, claim with a lease, heartbeat
// while running, watch for out-of-band cancellation, dispatch to a
// Handler, and notify a webhook on terminal state.
type Pool struct {
	jobs     repository.JobRepository
	events   repository.JobEventRepository
	handlers map[models.JobType]Handler
	notifier *Notifier
	cfg      PoolConfig
	logger   *slog.Logger

	stop       chan struct{}
	wg         sync.WaitGroup
	activeMu   sync.Mutex
	active     int
	ownerID    string
}

// NewPool wires a worker pool. handlers maps a job type to the Handler
// that executes it; a job type with no registered handler fails
// immediately with an "unsupported job type" error.
func NewPool(jobs repository.JobRepository, events repository.JobEventRepository, handlers map[models.JobType]Handler, notifier *Notifier, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.ShutdownGracePeriod <= 0 {
		cfg.ShutdownGracePeriod = 5 * time.Minute
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 2 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		// Strictly less than leaseTimeout/2 per §4.5.
		cfg.HeartbeatInterval = cfg.LeaseTimeout / 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:     jobs,
		events:   events,
		handlers: handlers,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "jobengine"),
		stop:     make(chan struct{}),
		ownerID:  "pool-" + time.Now().Format("150405.000000"),
	}
}

// Start launches Concurrency worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting job pool", "concurrency", p.cfg.Concurrency)
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals workers to stop claiming jobs, polls for up to
// ShutdownGracePeriod for in-flight jobs to finish, and then waits for every
// worker goroutine to return; that final wait has no time bound of its own.
func (p *Pool) Stop() {
	close(p.stop)
	deadline := time.Now().Add(p.cfg.ShutdownGracePeriod)
	for time.Now().Before(deadline) {
		p.activeMu.Lock()
		active := p.active
		p.activeMu.Unlock()
		if active == 0 {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	p.wg.Wait()
	p.logger.Info("job pool stopped")
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	interval := p.cfg.PollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			if p.claimAndRun(ctx, workerID) {
				interval = p.cfg.PollInterval
			} else {
				interval *= 2
				if interval > p.cfg.MaxPollInterval {
					interval = p.cfg.MaxPollInterval
				}
			}
			timer.Reset(interval)
		}
	}
}

func (p *Pool) claimAndRun(ctx context.Context, workerID int) bool {
	job, err := p.jobs.ClaimNextJob(ctx, p.ownerID, p.cfg.LeaseTimeout)
	if err != nil {
		p.logger.Error("claim failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	p.activeMu.Lock()
	p.active++
	p.activeMu.Unlock()
	defer func() {
		p.activeMu.Lock()
		p.active--
		p.activeMu.Unlock()
	}()

	p.process(ctx, job)
	return true
}

func (p *Pool) process(parent context.Context, job *models.Job) {
	jobCtx, cancel := context.WithCancel(parent)
	defer cancel()

	heartbeatStop := make(chan struct{})
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go p.heartbeatLoop(jobCtx, cancel, job.ID, heartbeatStop, &hbWG)
	defer func() {
		close(heartbeatStop)
		hbWG.Wait()
	}()

	progress := func(ctx context.Context, typ models.JobEventType, payload any) {
		payloadJSON, _ := json.Marshal(payload)
		if _, err := p.events.AppendJobEvent(ctx, job.ID, typ, string(payloadJSON)); err != nil {
			p.logger.Error("failed to append job event", "job_id", job.ID, "type", typ, "error", err)
		}
	}

	if _, err := p.events.AppendJobEvent(jobCtx, job.ID, models.JobEventStarted, ""); err != nil {
		p.logger.Error("failed to append started event", "job_id", job.ID, "error", err)
	}

	handler, ok := p.handlers[job.Type]
	if !ok {
		p.fail(jobCtx, job, "unsupported job type: "+string(job.Type))
		return
	}

	resultJSON, err := handler.Run(jobCtx, job, progress)
	if jobCtx.Err() != nil {
		// Either externally canceled or the lease was reclaimed out from
		// under us; the job's terminal state was already set elsewhere.
		return
	}
	if err != nil {
		p.fail(jobCtx, job, err.Error())
		return
	}
	p.succeed(jobCtx, job, resultJSON)
}

func (p *Pool) heartbeatLoop(ctx context.Context, cancel context.CancelFunc, jobID string, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.jobs.HeartbeatJob(ctx, jobID, p.ownerID); err != nil {
				p.logger.Warn("heartbeat failed, lease likely lost", "job_id", jobID, "error", err)
				cancel()
				return
			}
			current, err := p.jobs.GetJob(ctx, jobID)
			if err == nil && current.Status == models.JobStatusCanceled {
				cancel()
				return
			}
		}
	}
}

func (p *Pool) succeed(ctx context.Context, job *models.Job, resultJSON string) {
	if err := p.jobs.SetJobStatus(ctx, job.ID, models.JobStatusSucceeded, resultJSON, ""); err != nil {
		p.logger.Error("failed to set job succeeded", "job_id", job.ID, "error", err)
	}
	if _, err := p.events.AppendJobEvent(ctx, job.ID, models.JobEventCompleted, resultJSON); err != nil {
		p.logger.Error("failed to append completed event", "job_id", job.ID, "error", err)
	}
	if p.notifier != nil {
		p.notifier.NotifyTerminal(context.WithoutCancel(ctx), job, models.JobStatusSucceeded, resultJSON, "")
	}
}

func (p *Pool) fail(ctx context.Context, job *models.Job, errMsg string) {
	if err := p.jobs.SetJobStatus(ctx, job.ID, models.JobStatusFailed, "", errMsg); err != nil {
		p.logger.Error("failed to set job failed", "job_id", job.ID, "error", err)
	}
	if _, err := p.events.AppendJobEvent(ctx, job.ID, models.JobEventError, errMsg); err != nil {
		p.logger.Error("failed to append error event", "job_id", job.ID, "error", err)
	}
	if p.notifier != nil {
		p.notifier.NotifyTerminal(context.WithoutCancel(ctx), job, models.JobStatusFailed, "", errMsg)
	}
}
