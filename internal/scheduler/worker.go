package scheduler

import (
	"context"
	"fmt"

	"callsync_agent/internal/reconcile"
	"callsync_agent/platform/config"
	"callsync_agent/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes the background queue: poll cycles, call posts, and lead
// refreshes all run here, off the HTTP request path.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	pipeline  *reconcile.Pipeline
	directory *reconcile.LeadDirectory
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pipeline *reconcile.Pipeline, directory *reconcile.LeadDirectory, log *logger.Logger) (*Worker, error) {
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

	// Call posting is sequential on purpose: one in-flight backend request
	// bounds load and keeps the rate limiter honest.
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		pipeline:  pipeline,
		directory: directory,
		log:       log,
	}

	mux.HandleFunc(TaskCallPoll, w.handleCallPoll)
	mux.HandleFunc(TaskCallPost, w.handleCallPost)
	mux.HandleFunc(TaskLeadsRefresh, w.handleLeadsRefresh)

	return w, nil
}

func (w *Worker) handleCallPoll(ctx context.Context, task *asynq.Task) error {
	return w.pipeline.Poll(ctx)
}

// handleCallPost submits one call record. Returning an error lets the queue
// redeliver with backoff; SubmitCall's ledger check makes redelivery safe.
func (w *Worker) handleCallPost(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCallPostPayload(task)
	if err != nil {
		return err
	}
	return w.pipeline.SubmitCall(ctx, payload.CallID, payload.Record, payload.Deduplicate)
}

func (w *Worker) handleLeadsRefresh(ctx context.Context, task *asynq.Task) error {
	return w.directory.Refresh(ctx, false)
}

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
