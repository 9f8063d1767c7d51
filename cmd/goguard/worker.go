package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goGuard/config"
	"github.com/MrEthical07/goGuard/notify"
)

func worker(s *config.Settings, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := notify.NewWorker(asynqOpt(s), notify.WorkerConfig{
		Concurrency: s.Notify.Concurrency,
		Queue:       s.Notify.Queue,
	}, smtpMailer(s, log), log)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("stopping worker")
		w.Shutdown()
		return nil
	}
}
