package main

import (
	"fmt"
	"io"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/config"
	"github.com/MrEthical07/goGuard/store/redisstore"
)

// check validates settings and prints the lint findings and the resulting
// posture. The Redis client is never dialed.
func check(s *config.Settings, out io.Writer) error {
	cfg, err := s.EngineConfig()
	if err != nil {
		return err
	}

	rdb := redisClient(s)
	defer rdb.Close()

	engine, err := goGuard.New().
		WithConfig(cfg).
		WithStore(redisstore.New(rdb, redisstore.Config{Prefix: s.Redis.Prefix})).
		WithRedis(rdb).
		WithAuditSink(goGuard.NoOpSink{}).
		WithMetricsEnabled(s.Metrics.Enabled).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	lint := cfg.Lint()
	fmt.Fprintf(out, "config ok, %d lint finding(s)\n", len(lint))
	for _, w := range lint {
		fmt.Fprintf(out, "  [%s] %s: %s\n", w.Severity, w.Code, w.Message)
	}

	r := engine.SecurityReport()
	fmt.Fprintln(out, "security posture:")
	fmt.Fprintf(out, "  production mode:     %t\n", r.ProductionMode)
	fmt.Fprintf(out, "  keyed digests:       %t\n", r.DigestKeyed)
	fmt.Fprintf(out, "  reset token ttl:     %s\n", r.ResetTokenTTL)
	fmt.Fprintf(out, "  reset floor:         %s\n", r.ResetResponseFloor)
	fmt.Fprintf(out, "  reset throttles:     %s\n", strings.Join(r.ResetThrottles, ","))
	fmt.Fprintf(out, "  login throttle:      %t\n", r.LoginThrottle)
	fmt.Fprintf(out, "  login padded:        %t\n", r.LoginPadded)
	fmt.Fprintf(out, "  lockout:             %d failures, %s, extends=%t\n", r.LockoutThreshold, r.LockoutDuration, r.LockoutExtends)
	fmt.Fprintf(out, "  sessions:            %t %s %s\n", r.SessionsEnabled, r.SigningAlgorithm, r.SessionTTL)
	fmt.Fprintf(out, "  argon2id:            m=%d t=%d p=%d\n", r.Argon2.Memory, r.Argon2.Time, r.Argon2.Parallelism)
	fmt.Fprintf(out, "  audit:               %s\n", r.AuditMode)
	return nil
}
