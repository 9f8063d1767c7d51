package goGuard

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/password"
)

// Builder defines a public type used by goGuard APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     Store
	counter   AttemptCounter
	notifier  Notifier
	auditSink AuditSink
	logger    *zerolog.Logger
	now       func() time.Time
	rules     []password.Rule

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the attempt counters with the Redis sliding window. It is
// ignored when [Builder.WithAttemptCounter] is also used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAttemptCounter installs a custom counter.
func (b *Builder) WithAttemptCounter(counter AttemptCounter) *Builder {
	b.counter = counter
	return b
}

// WithStore describes the withstore operation and its observable behavior.
//
// The store is required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the reset link delivery channel.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to a disabled logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = &log
	return b
}

// WithClock overrides the time source used for windows, expiry and lockout.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithPasswordRules appends rules to the configured password policy.
func (b *Builder) WithPasswordRules(rules ...password.Rule) *Builder {
	b.rules = append(b.rules, rules...)
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the engine. A Builder can
// be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Audit.Required && (!cfg.Audit.Enabled || b.auditSink == nil) {
		return nil, ErrAuditUnavailable
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	log := zerolog.Nop()
	if b.logger != nil {
		log = b.logger.With().Str("component", "goguard").Logger()
	}

	// -------- ATTEMPT COUNTER --------
	counter := b.counter
	counterBackend := "custom"
	if counter == nil {
		if b.redis != nil {
			counter = rate.NewSliding(b.redis, rate.SlidingConfig{Prefix: cfg.Security.CounterPrefix}).WithClock(now)
			counterBackend = "redis"
		} else {
			log.Warn().Msg("no redis client configured; attempt counters are process-local")
			counter = rate.NewMemory(0).WithClock(now)
			counterBackend = "memory"
		}
	}

	engine := &Engine{
		config:         cloneConfig(cfg),
		store:          b.store,
		counter:        counter,
		counterBackend: counterBackend,
		log:            log,
		now:            now,
		sleep:          flows.SleepContext,
	}

	engine.recoveryLimiter = limiters.NewRecoveryLimiter(counter, limiters.RecoveryConfig{
		RequestIP: limiters.Scope{
			Enabled: cfg.Recovery.EnableIPThrottle,
			Window:  cfg.Recovery.IPWindow,
			Max:     cfg.Recovery.IPMax,
		},
		RequestIdentifier: limiters.Scope{
			Enabled: cfg.Recovery.EnableIdentifierThrottle,
			Window:  cfg.Recovery.IdentifierWindow,
			Max:     cfg.Recovery.IdentifierMax,
		},
		ConfirmIP: limiters.Scope{
			Enabled: cfg.Recovery.EnableConfirmThrottle,
			Window:  cfg.Recovery.ConfirmIPWindow,
			Max:     cfg.Recovery.ConfirmIPMax,
		},
	})
	engine.loginLimiter = limiters.NewLoginLimiter(counter, limiters.Scope{
		Enabled: cfg.Login.EnableIPThrottle,
		Window:  cfg.Login.IPWindow,
		Max:     cfg.Login.IPMax,
	})

	engine.notifier = b.notifier
	if engine.notifier == nil {
		log.Warn().Msg("no notifier configured; reset links are discarded")
	}

	// -------- AUDIT --------
	engine.metrics = NewMetrics(cfg.Metrics)
	if cfg.Audit.Enabled && b.auditSink != nil {
		if cfg.Audit.Async {
			engine.dispatcher = internalaudit.NewDispatcher(internalaudit.Config{
				Enabled:    true,
				BufferSize: cfg.Audit.BufferSize,
				DropIfFull: cfg.Audit.DropIfFull,
				OnDrop: func() {
					engine.metricInc(MetricAuditDropped)
				},
			}, b.auditSink)
			engine.audit = engine.dispatcher
		} else {
			engine.audit = b.auditSink
		}
	}

	// -------- PASSWORDS --------
	ph, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph
	engine.policy = password.NewPolicy(cfg.Password.policy(), b.rules...)

	// -------- SESSIONS --------
	if cfg.Session.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Session.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
			PublicKey:     cloneBytes(cfg.Session.PublicKey),
			Issuer:        cfg.Session.Issuer,
			Audience:      cfg.Session.Audience,
			KeyID:         cfg.Session.KeyID,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	engine.tokens = newRecoveryTokens(b.store.Tokens(), cfg.Recovery.TokenTTL, now)
	engine.initFlowDeps()

	for _, w := range cfg.Lint().BySeverity(LintWarn) {
		log.Warn().Str("code", w.Code).Msg(w.Message)
	}

	b.built = true

	return engine, nil
}
