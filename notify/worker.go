package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
)

// Mailer delivers one reset message.
type Mailer interface {
	SendPasswordReset(ctx context.Context, msg goGuard.Message) error
}

// WorkerConfig tunes the asynq server.
type WorkerConfig struct {
	Concurrency int
	Queue       string
}

// Worker consumes TypePasswordReset tasks and delivers them via a Mailer.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	mailer Mailer
	now    func() time.Time
	log    zerolog.Logger

	// lastAttempt reports whether a failure now would exhaust the retries.
	lastAttempt func(ctx context.Context) bool
}

// NewWorker creates an asynq server and registers handlers. Call Run to start.
func NewWorker(redisOpt asynq.RedisConnOpt, cfg WorkerConfig, mailer Mailer, log zerolog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Queue == "" {
		cfg.Queue = defaultQueueName
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		LogLevel:    asynq.WarnLevel,
	})
	w := newWorker(mailer, log)
	w.srv = srv
	return w
}

func newWorker(mailer Mailer, log zerolog.Logger) *Worker {
	w := &Worker{
		mux:    asynq.NewServeMux(),
		mailer:      mailer,
		now:         time.Now,
		log:         log,
		lastAttempt: asynqLastAttempt,
	}
	w.mux.HandleFunc(TypePasswordReset, w.handlePasswordReset)
	return w
}

// handlePasswordReset never returns a terminal error: asynq would archive the
// task, and with it the reset link. Tasks that cannot be delivered are logged
// and completed instead.
func (w *Worker) handlePasswordReset(ctx context.Context, t *asynq.Task) error {
	var p passwordResetPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.log.Error().Err(err).Msg("password reset task payload invalid, dropped")
		return nil
	}
	if !p.ExpiresAt.IsZero() && !w.now().Before(p.ExpiresAt) {
		w.log.Info().Str("account_id", p.AccountID).Msg("password reset link expired before delivery")
		return nil
	}

	err := w.mailer.SendPasswordReset(ctx, goGuard.Message{
		AccountID: p.AccountID,
		To:        p.To,
		ResetURL:  p.ResetURL,
		ExpiresAt: p.ExpiresAt,
	})
	if err != nil {
		if w.lastAttempt(ctx) {
			w.log.Error().Err(err).Str("account_id", p.AccountID).Msg("password reset email undeliverable, dropped")
			return nil
		}
		w.log.Warn().Err(err).Str("account_id", p.AccountID).Msg("password reset email delivery failed")
		return err
	}
	w.log.Info().Str("account_id", p.AccountID).Msg("password reset email delivered")
	return nil
}

func asynqLastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	max, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= max
}

// Run blocks until shutdown. Use Shutdown for graceful stop.
func (w *Worker) Run() error {
	return w.srv.Run(w.mux)
}

// Shutdown stops the worker after in-flight tasks finish.
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
