package scheduler

import (
	"context"
	"fmt"

	"callsync_agent/platform/config"
	"callsync_agent/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic registers the recurring tasks: the poll cycle and the lead
// refresh, each on its configured interval.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
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

	scheduler := asynq.NewScheduler(opt, nil)

	pollSpec := fmt.Sprintf("@every %s", cfg.GetPollInterval())
	if _, err := scheduler.Register(pollSpec, NewCallPollTask(), asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register poll task: %w", err)
	}

	refreshSpec := fmt.Sprintf("@every %s", cfg.GetLeadRefreshInterval())
	if _, err := scheduler.Register(refreshSpec, NewLeadsRefreshTask(), asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register lead refresh task: %w", err)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
