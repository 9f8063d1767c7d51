package main

import (
	"context"
	"fmt"
	"os"

	"github.com/IBM/sarama"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/config"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/store/pgstore"
	"github.com/MrEthical07/goGuard/store/redisstore"
)

// closers run in reverse order on shutdown.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func redisClient(s *config.Settings) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     s.Redis.Addr,
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
	})
}

func asynqOpt(s *config.Settings) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     s.Redis.Addr,
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
	}
}

// openStore picks Postgres when a URL is configured and Redis otherwise.
func openStore(ctx context.Context, s *config.Settings, rdb *redis.Client, cl *closers) (goGuard.Store, *pgxpool.Pool, error) {
	if s.Postgres.URL == "" {
		return redisstore.New(rdb, redisstore.Config{Prefix: s.Redis.Prefix}), nil, nil
	}
	pool, err := pgstore.Open(ctx, s.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	cl.add(pool.Close)
	if err := pool.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pgstore.New(pool), pool, nil
}

// auditSink always logs through zerolog and adds a line file and a Kafka
// topic when configured.
func auditSink(s *config.Settings, log zerolog.Logger, cl *closers) (goGuard.AuditSink, error) {
	sinks := goGuard.MultiSink{goGuard.NewZerologSink(log.With().Str("component", "audit").Logger())}

	if s.Audit.File != "" {
		f, err := os.OpenFile(s.Audit.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		cl.add(func() { _ = f.Close() })
		sinks = append(sinks, goGuard.NewLineSink(f))
	}

	if len(s.Kafka.Brokers) > 0 {
		kcfg := sarama.NewConfig()
		kcfg.ClientID = s.App.Name
		kcfg.Producer.RequiredAcks = sarama.WaitForLocal
		kcfg.Producer.Return.Errors = true
		producer, err := sarama.NewAsyncProducer(s.Kafka.Brokers, kcfg)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		sink := goGuard.NewKafkaSink(producer, s.Kafka.AuditTopic, log)
		cl.add(func() {
			if err := sink.Close(); err != nil {
				log.Warn().Err(err).Msg("close kafka audit sink")
			}
		})
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func smtpMailer(s *config.Settings, log zerolog.Logger) notify.Mailer {
	if s.SMTP.Host == "" {
		log.Warn().Msg("smtp host not set; reset links are logged instead of mailed")
		return notify.LogMailer{Log: log, IncludeLink: s.App.Env == "development"}
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     s.SMTP.Host,
		Port:     s.SMTP.Port,
		Username: s.SMTP.Username,
		Password: s.SMTP.Password,
		From:     s.SMTP.From,
	})
}
