package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"callsync_agent/internal/crm"
	"callsync_agent/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues background tasks.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueCallPost queues one call record for posting. The task id is derived
// from the call id so a call already waiting in the queue is not enqueued
// twice; posting itself is additionally guarded by the ledger.
func (c *Client) EnqueueCallPost(ctx context.Context, callID string, record crm.CallRecord, deduplicate bool) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewCallPostTask(CallPostPayload{CallID: callID, Deduplicate: deduplicate, Record: record})
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(c.queue), asynq.MaxRetry(5)}
	if deduplicate {
		opts = append(opts, asynq.TaskID("call-post-"+callID))
	}

	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueCallPoll queues an immediate poll cycle, used by the manual
// reconcile endpoint.
func (c *Client) EnqueueCallPoll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.EnqueueContext(ctx, NewCallPollTask(), asynq.Queue(c.queue))
	return err
}

// EnqueueLeadsRefresh queues an immediate lead directory refresh.
func (c *Client) EnqueueLeadsRefresh(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.EnqueueContext(ctx, NewLeadsRefreshTask(), asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
