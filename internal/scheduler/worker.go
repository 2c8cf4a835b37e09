package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// StageRunner executes one pipeline stage for a lead.
type StageRunner interface {
	Run(ctx context.Context, leadID, tenantID uuid.UUID) error
}

// CRMSyncRunner mirrors a lead into the CRM. Best-effort by contract.
type CRMSyncRunner interface {
	Sync(ctx context.Context, leadID, tenantID uuid.UUID) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux

	qualify  StageRunner
	dispatch StageRunner
	crmSync  CRMSyncRunner

	// activeRuns guards against two in-process runs touching the same lead.
	// The version check in the repository covers cross-process races.
	activeRuns sync.Map

	log *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, qualify, dispatch StageRunner, crmSync CRMSyncRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		RetryDelayFunc: retryDelay,
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		qualify:  qualify,
		dispatch: dispatch,
		crmSync:  crmSync,
		log:      log,
	}

	mux.HandleFunc(TaskLeadQualify, w.handleLeadQualify)
	mux.HandleFunc(TaskLeadRespond, w.handleLeadRespond)
	mux.HandleFunc(TaskLeadCRMSync, w.handleLeadCRMSync)

	return w, nil
}

// retryDelay is the backoff schedule between attempts. n is the number of
// retries already performed, so the first redelivery gets delays[0]. CRM sync
// gets the shorter schedule because it retries at most twice.
func retryDelay(n int, _ error, task *asynq.Task) time.Duration {
	var delays []time.Duration
	switch task.Type() {
	case TaskLeadCRMSync:
		delays = []time.Duration{60 * time.Second, 120 * time.Second}
	default:
		delays = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	}

	idx := n
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

func (w *Worker) handleLeadQualify(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadQualifyPayload(task)
	if err != nil {
		return err
	}
	return w.runStage(ctx, w.qualify, payload.LeadID, payload.TenantID)
}

func (w *Worker) handleLeadRespond(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadRespondPayload(task)
	if err != nil {
		return err
	}
	return w.runStage(ctx, w.dispatch, payload.LeadID, payload.TenantID)
}

func (w *Worker) handleLeadCRMSync(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadCRMSyncPayload(task)
	if err != nil {
		return err
	}

	leadID, tenantID, err := parseIDs(payload.LeadID, payload.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %s", asynq.SkipRetry, err)
	}

	return w.crmSync.Sync(ctx, leadID, tenantID)
}

func (w *Worker) runStage(ctx context.Context, stage StageRunner, leadIDStr, tenantIDStr string) error {
	leadID, tenantID, err := parseIDs(leadIDStr, tenantIDStr)
	if err != nil {
		// A malformed payload never parses; retrying would burn attempts.
		return fmt.Errorf("%w: %s", asynq.SkipRetry, err)
	}

	if _, busy := w.activeRuns.LoadOrStore(leadID, struct{}{}); busy {
		return fmt.Errorf("lead %s already processing", leadID)
	}
	defer w.activeRuns.Delete(leadID)

	return stage.Run(ctx, leadID, tenantID)
}

func parseIDs(leadIDStr, tenantIDStr string) (uuid.UUID, uuid.UUID, error) {
	leadID, err := uuid.Parse(leadIDStr)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid lead id %q: %w", leadIDStr, err)
	}
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid tenant id %q: %w", tenantIDStr, err)
	}
	return leadID, tenantID, nil
}

// Run starts the worker and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
