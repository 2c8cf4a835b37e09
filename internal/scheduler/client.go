package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadflow_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Retry budgets per task type: the number of re-deliveries after the first
// failed run, one per backoff delay (30s, 60s, 120s). CRM sync is best-effort
// and gets a shorter budget (60s, 120s).
const (
	maxQualifyRetries = 3
	maxRespondRetries = 3
	maxCRMSyncRetries = 2
)

type Client struct {
	client *asynq.Client
	queue  string
}

// Enqueuer is the slice of Client the pipeline stages need.
type Enqueuer interface {
	EnqueueQualify(ctx context.Context, payload LeadQualifyPayload) error
	EnqueueRespond(ctx context.Context, payload LeadRespondPayload) error
	EnqueueCRMSync(ctx context.Context, payload LeadCRMSyncPayload) error
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

func (c *Client) EnqueueQualify(ctx context.Context, payload LeadQualifyPayload) error {
	task, err := NewLeadQualifyTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, maxQualifyRetries)
}

func (c *Client) EnqueueRespond(ctx context.Context, payload LeadRespondPayload) error {
	task, err := NewLeadRespondTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, maxRespondRetries)
}

func (c *Client) EnqueueCRMSync(ctx context.Context, payload LeadCRMSyncPayload) error {
	task, err := NewLeadCRMSyncTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, maxCRMSyncRetries)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, maxRetries int) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("scheduler client not configured")
	}

	_, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(maxRetries),
		asynq.Timeout(2*time.Minute),
	)
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
