package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
)

// TypePasswordReset is the asynq task type carrying a reset link.
const TypePasswordReset = "email:password_reset"

const (
	defaultQueueName = "notifications"
	defaultMaxRetry  = 5
	defaultTimeout   = 30 * time.Second
)

// passwordResetPayload is the JSON body of a TypePasswordReset task.
type passwordResetPayload struct {
	AccountID string    `json:"account_id"`
	To        string    `json:"to"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// QueueConfig tunes enqueued tasks.
type QueueConfig struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue is a goGuard.Notifier that hands reset links to an asynq worker.
// Send returns once Redis accepted the task; delivery happens in [Worker].
type Queue struct {
	client enqueuer
	closer func() error
	config QueueConfig
	log    zerolog.Logger
}

// NewQueue connects an asynq client.
func NewQueue(redisOpt asynq.RedisConnOpt, cfg QueueConfig, log zerolog.Logger) *Queue {
	client := asynq.NewClient(redisOpt)
	q := newQueue(client, cfg, log)
	q.closer = client.Close
	return q
}

func newQueue(client enqueuer, cfg QueueConfig, log zerolog.Logger) *Queue {
	if cfg.Queue == "" {
		cfg.Queue = defaultQueueName
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = defaultMaxRetry
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Queue{client: client, config: cfg, log: log}
}

// Close releases the asynq client.
func (q *Queue) Close() error {
	if q == nil || q.closer == nil {
		return nil
	}
	return q.closer()
}

// Send enqueues msg. Retries stop at the token's expiry.
//
// The payload carries a live reset link, so tasks are never kept once they
// finish: Retention is zero, and the worker completes instead of failing a
// task that would otherwise land in the archive.
func (q *Queue) Send(ctx context.Context, msg goGuard.Message) error {
	task, err := NewPasswordResetTask(msg)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.Queue(q.config.Queue),
		asynq.MaxRetry(q.config.MaxRetry),
		asynq.Timeout(q.config.Timeout),
		asynq.Retention(0),
	}
	if !msg.ExpiresAt.IsZero() {
		opts = append(opts, asynq.Deadline(msg.ExpiresAt))
	}

	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		q.log.Warn().Err(err).Str("account_id", msg.AccountID).Msg("enqueue password reset email failed")
		return fmt.Errorf("enqueue password reset: %w", err)
	}
	q.log.Debug().Str("task_id", info.ID).Str("account_id", msg.AccountID).Msg("password reset email queued")
	return nil
}

// NewPasswordResetTask builds the task Send enqueues.
func NewPasswordResetTask(msg goGuard.Message) (*asynq.Task, error) {
	payload, err := json.Marshal(passwordResetPayload{
		AccountID: msg.AccountID,
		To:        msg.To,
		ResetURL:  msg.ResetURL,
		ExpiresAt: msg.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode password reset payload: %w", err)
	}
	return asynq.NewTask(TypePasswordReset, payload), nil
}
