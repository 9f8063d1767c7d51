// Package config loads goguard process settings from GOGUARD_* environment
// variables and an optional config file, and maps them onto goGuard.Config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	goGuard "github.com/MrEthical07/goGuard"
)

const envPrefix = "GOGUARD"

type Settings struct {
	App      AppSettings      `mapstructure:"app"`
	HTTP     HTTPSettings     `mapstructure:"http"`
	Postgres PostgresSettings `mapstructure:"postgres"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Kafka    KafkaSettings    `mapstructure:"kafka"`
	SMTP     SMTPSettings     `mapstructure:"smtp"`
	Notify   NotifySettings   `mapstructure:"notify"`
	Recovery RecoverySettings `mapstructure:"recovery"`
	Login    LoginSettings    `mapstructure:"login"`
	Lockout  LockoutSettings  `mapstructure:"lockout"`
	Password PasswordSettings `mapstructure:"password"`
	Session  SessionSettings  `mapstructure:"session"`
	Security SecuritySettings `mapstructure:"security"`
	Audit    AuditSettings    `mapstructure:"audit"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
}

type AppSettings struct {
	Name      string `mapstructure:"name"`
	Env       string `mapstructure:"env"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type HTTPSettings struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is a ulule limiter rate such as "100-M"; empty disables the
	// coarse per-IP guard.
	RateLimit string `mapstructure:"rate_limit"`
	// TrustProxy reads the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy  bool `mapstructure:"trust_proxy"`
	Development bool `mapstructure:"development"`
}

// PostgresSettings selects the Postgres store. With Counters set the attempt
// counters live in attempt_records too, and serve prunes that table every
// PruneInterval.
type PostgresSettings struct {
	URL            string        `mapstructure:"url"`
	Counters       bool          `mapstructure:"counters"`
	PruneInterval  time.Duration `mapstructure:"prune_interval"`
	PruneRetention time.Duration `mapstructure:"prune_retention"`
}

// RedisSettings addresses the Redis used for counters, the Redis store and
// the notification queue.
type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaSettings struct {
	Brokers    []string `mapstructure:"brokers"`
	AuditTopic string   `mapstructure:"audit_topic"`
}

type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type NotifySettings struct {
	Queue       string        `mapstructure:"queue"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetry    int           `mapstructure:"max_retry"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RecoverySettings struct {
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	ResponseFloor    time.Duration `mapstructure:"response_floor"`
	ResetURLBase     string        `mapstructure:"reset_url_base"`
	IPWindow         time.Duration `mapstructure:"ip_window"`
	IPMax            int           `mapstructure:"ip_max"`
	IdentifierWindow time.Duration `mapstructure:"identifier_window"`
	IdentifierMax    int           `mapstructure:"identifier_max"`
	ConfirmIPWindow  time.Duration `mapstructure:"confirm_ip_window"`
	ConfirmIPMax     int           `mapstructure:"confirm_ip_max"`
}

type LoginSettings struct {
	IPWindow      time.Duration `mapstructure:"ip_window"`
	IPMax         int           `mapstructure:"ip_max"`
	ResponseFloor time.Duration `mapstructure:"response_floor"`
}

type LockoutSettings struct {
	Threshold         int           `mapstructure:"threshold"`
	Duration          time.Duration `mapstructure:"duration"`
	ExtendWhileLocked bool          `mapstructure:"extend_while_locked"`
}

type PasswordSettings struct {
	Memory           uint32 `mapstructure:"memory"`
	Time             uint32 `mapstructure:"time"`
	Parallelism      uint8  `mapstructure:"parallelism"`
	MinLength        int    `mapstructure:"min_length"`
	MinClasses       int    `mapstructure:"min_classes"`
	MinStrengthScore int    `mapstructure:"min_strength_score"`
}

// SessionSettings configures HS256 session grants. An empty SigningKey
// disables them.
type SessionSettings struct {
	TTL        time.Duration `mapstructure:"ttl"`
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	Audience   string        `mapstructure:"audience"`
}

type SecuritySettings struct {
	DigestKey  string `mapstructure:"digest_key"`
	Production bool   `mapstructure:"production"`
}

type AuditSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Async      bool   `mapstructure:"async"`
	BufferSize int    `mapstructure:"buffer_size"`
	Required   bool   `mapstructure:"required"`
	File       string `mapstructure:"file"`
}

type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled"`
	Latency bool `mapstructure:"latency"`
}

var envKeys = []string{
	"app.name", "app.env", "app.log_level", "app.log_format",
	"http.addr", "http.read_timeout", "http.write_timeout", "http.shutdown_timeout",
	"http.rate_limit", "http.trust_proxy", "http.development",
	"postgres.url", "postgres.counters", "postgres.prune_interval", "postgres.prune_retention",
	"redis.addr", "redis.password", "redis.db", "redis.prefix",
	"kafka.brokers", "kafka.audit_topic",
	"smtp.host", "smtp.port", "smtp.username", "smtp.password", "smtp.from",
	"notify.queue", "notify.concurrency", "notify.max_retry", "notify.timeout",
	"recovery.token_ttl", "recovery.response_floor", "recovery.reset_url_base",
	"recovery.ip_window", "recovery.ip_max",
	"recovery.identifier_window", "recovery.identifier_max",
	"recovery.confirm_ip_window", "recovery.confirm_ip_max",
	"login.ip_window", "login.ip_max", "login.response_floor",
	"lockout.threshold", "lockout.duration", "lockout.extend_while_locked",
	"password.memory", "password.time", "password.parallelism",
	"password.min_length", "password.min_classes", "password.min_strength_score",
	"session.ttl", "session.signing_key", "session.issuer", "session.audience",
	"security.digest_key", "security.production",
	"audit.enabled", "audit.async", "audit.buffer_size", "audit.required", "audit.file",
	"metrics.enabled", "metrics.latency",
}

// Load reads settings. file may be empty; when set it must exist.
func Load(file string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	def := goGuard.DefaultConfig()

	v.SetDefault("app.name", "goguard")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "15s")
	v.SetDefault("http.rate_limit", "300-M")

	v.SetDefault("postgres.prune_interval", "10m")
	v.SetDefault("postgres.prune_retention", "48h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "gg:")

	v.SetDefault("kafka.audit_topic", "goguard.audit")

	v.SetDefault("smtp.port", "587")

	v.SetDefault("notify.queue", "notifications")
	v.SetDefault("notify.concurrency", 2)
	v.SetDefault("notify.max_retry", 5)
	v.SetDefault("notify.timeout", "30s")

	v.SetDefault("recovery.token_ttl", def.Recovery.TokenTTL)
	v.SetDefault("recovery.response_floor", def.Recovery.ResponseFloor)
	v.SetDefault("recovery.reset_url_base", def.Recovery.ResetURLBase)
	v.SetDefault("recovery.ip_window", def.Recovery.IPWindow)
	v.SetDefault("recovery.ip_max", def.Recovery.IPMax)
	v.SetDefault("recovery.identifier_window", def.Recovery.IdentifierWindow)
	v.SetDefault("recovery.identifier_max", def.Recovery.IdentifierMax)
	v.SetDefault("recovery.confirm_ip_window", def.Recovery.ConfirmIPWindow)
	v.SetDefault("recovery.confirm_ip_max", def.Recovery.ConfirmIPMax)

	v.SetDefault("login.ip_window", def.Login.IPWindow)
	v.SetDefault("login.ip_max", def.Login.IPMax)
	v.SetDefault("login.response_floor", def.Login.ResponseFloor)

	v.SetDefault("lockout.threshold", def.Lockout.Threshold)
	v.SetDefault("lockout.duration", def.Lockout.Duration)

	v.SetDefault("password.memory", def.Password.Memory)
	v.SetDefault("password.time", def.Password.Time)
	v.SetDefault("password.parallelism", def.Password.Parallelism)
	v.SetDefault("password.min_length", def.Password.MinLength)

	v.SetDefault("session.ttl", def.Session.TTL)
	v.SetDefault("session.issuer", def.Session.Issuer)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.async", true)
	v.SetDefault("audit.buffer_size", def.Audit.BufferSize)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", true)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// EngineConfig maps the settings onto goGuard.DefaultConfig and validates
// the result.
func (s *Settings) EngineConfig() (goGuard.Config, error) {
	cfg := goGuard.DefaultConfig()

	cfg.Recovery.TokenTTL = s.Recovery.TokenTTL
	cfg.Recovery.ResponseFloor = s.Recovery.ResponseFloor
	cfg.Recovery.ResetURLBase = s.Recovery.ResetURLBase
	cfg.Recovery.IPWindow = s.Recovery.IPWindow
	cfg.Recovery.IPMax = s.Recovery.IPMax
	cfg.Recovery.IdentifierWindow = s.Recovery.IdentifierWindow
	cfg.Recovery.IdentifierMax = s.Recovery.IdentifierMax
	cfg.Recovery.ConfirmIPWindow = s.Recovery.ConfirmIPWindow
	cfg.Recovery.ConfirmIPMax = s.Recovery.ConfirmIPMax

	cfg.Login.IPWindow = s.Login.IPWindow
	cfg.Login.IPMax = s.Login.IPMax
	cfg.Login.ResponseFloor = s.Login.ResponseFloor

	cfg.Lockout.Threshold = s.Lockout.Threshold
	cfg.Lockout.Duration = s.Lockout.Duration
	cfg.Lockout.ExtendWhileLocked = s.Lockout.ExtendWhileLocked

	cfg.Password.Memory = s.Password.Memory
	cfg.Password.Time = s.Password.Time
	cfg.Password.Parallelism = s.Password.Parallelism
	cfg.Password.MinLength = s.Password.MinLength
	cfg.Password.MinClasses = s.Password.MinClasses
	cfg.Password.MinStrengthScore = s.Password.MinStrengthScore

	cfg.Session.TTL = s.Session.TTL
	cfg.Session.Issuer = s.Session.Issuer
	cfg.Session.Audience = s.Session.Audience
	if s.Session.SigningKey != "" {
		cfg.Session.Enabled = true
		cfg.Session.SigningMethod = "hs256"
		cfg.Session.PrivateKey = []byte(s.Session.SigningKey)
	}

	if s.Security.DigestKey != "" {
		cfg.Security.IdentityDigestKey = []byte(s.Security.DigestKey)
	}
	cfg.Security.ProductionMode = s.Security.Production
	if s.Redis.Prefix != "" {
		cfg.Security.CounterPrefix = s.Redis.Prefix + "att:"
	}

	cfg.Audit.Enabled = s.Audit.Enabled
	cfg.Audit.Async = s.Audit.Async
	cfg.Audit.BufferSize = s.Audit.BufferSize
	cfg.Audit.Required = s.Audit.Required

	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = s.Metrics.Latency

	if err := cfg.Validate(); err != nil {
		return goGuard.Config{}, fmt.Errorf("invalid engine config: %w", err)
	}
	return cfg, nil
}

// AttemptRetention is how long attempt records must be kept: PruneRetention
// raised to twice the longest configured window.
func (s *Settings) AttemptRetention(cfg goGuard.Config) time.Duration {
	retention := s.Postgres.PruneRetention
	for _, w := range []time.Duration{
		cfg.Recovery.IPWindow,
		cfg.Recovery.IdentifierWindow,
		cfg.Recovery.ConfirmIPWindow,
		cfg.Login.IPWindow,
	} {
		if 2*w > retention {
			retention = 2 * w
		}
	}
	return retention
}
