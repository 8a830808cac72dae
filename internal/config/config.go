// Package config loads client and server configuration through viper:
// defaults, then an optional YAML file, then MEDSYNC_* environment variables,
// then command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/iudanet/medsync/internal/conflict"
)

// EnvPrefix - префикс переменных окружения (MEDSYNC_SERVER_URL, MEDSYNC_LOG_LEVEL, ...)
const EnvPrefix = "MEDSYNC"

// LogConfig параметры логирования
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// SyncConfig параметры синхронизации
type SyncConfig struct {
	Schedule       string        `mapstructure:"schedule"`        // cron spec фоновой синхронизации, пусто - выключена
	ConflictPolicy string        `mapstructure:"conflict_policy"` // manual, last_write_wins
	MinInterval    time.Duration `mapstructure:"min_interval"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// CacheConfig параметры офлайн кэша
type CacheConfig struct {
	CleanupSchedule    string        `mapstructure:"cleanup_schedule"`
	Retention          time.Duration `mapstructure:"retention"`
	PrescriptionWindow time.Duration `mapstructure:"prescription_window"`
	EssentialLimit     int           `mapstructure:"essential_limit"`
}

// NetworkConfig параметры опроса сервера
type NetworkConfig struct {
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

// NotifyConfig параметры уведомлений
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"` // пусто - уведомления выключены
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Client - конфигурация клиента
type Client struct {
	Log            LogConfig     `mapstructure:"log"`
	ServerURL      string        `mapstructure:"server_url"`
	DBPath         string        `mapstructure:"db_path"`
	Notify         NotifyConfig  `mapstructure:"notify"`
	Sync           SyncConfig    `mapstructure:"sync"`
	Cache          CacheConfig   `mapstructure:"cache"`
	Network        NetworkConfig `mapstructure:"network"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// JWTConfig параметры токенов доступа
type JWTConfig struct {
	Secret    string        `mapstructure:"secret"`
	AccessTTL time.Duration `mapstructure:"access_ttl"`
}

// RateLimitConfig - не больше Requests запросов за Window с одного IP
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// Server - конфигурация сервера
type Server struct {
	Log       LogConfig       `mapstructure:"log"`
	Address   string          `mapstructure:"address"`
	DBPath    string          `mapstructure:"db_path"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// MinJWTSecretLen - минимальная длина секрета подписи HS256
const MinJWTSecretLen = 32

// NewViper returns a viper instance reading MEDSYNC_* variables; nested keys
// map "sync.min_interval" to MEDSYNC_SYNC_MIN_INTERVAL.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetClientDefaults registers client defaults on v.
func SetClientDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("db_path", "medsync-client.db")
	v.SetDefault("request_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("sync.min_interval", 30*time.Second)
	v.SetDefault("sync.schedule", "@every 5m")
	v.SetDefault("sync.backoff_base", 30*time.Second)
	v.SetDefault("sync.backoff_max", time.Hour)
	v.SetDefault("sync.conflict_policy", conflict.PolicyManual)

	v.SetDefault("cache.retention", 7*24*time.Hour)
	v.SetDefault("cache.cleanup_schedule", "@daily")
	v.SetDefault("cache.essential_limit", 500)
	v.SetDefault("cache.prescription_window", 30*24*time.Hour)

	v.SetDefault("network.probe_interval", 15*time.Second)
	v.SetDefault("network.failure_threshold", 2)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", 5*time.Second)
}

// SetServerDefaults registers server defaults on v.
func SetServerDefaults(v *viper.Viper) {
	v.SetDefault("address", ":8080")
	v.SetDefault("db_path", "medsync-server.db")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", 12*time.Hour)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadClient reads the client configuration. path may be empty.
// Defaults must already be registered (SetClientDefaults) so that flags bound
// before the call keep their precedence.
func LoadClient(v *viper.Viper, path string) (*Client, error) {
	if err := readFile(v, path); err != nil {
		return nil, err
	}

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadServer reads the server configuration. path may be empty.
func LoadServer(v *viper.Viper, path string) (*Server, error) {
	if err := readFile(v, path); err != nil {
		return nil, err
	}

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Validate checks the client configuration.
func (c *Client) Validate() error {
	var errs []error

	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server_url must be an absolute http(s) URL, got %q", c.ServerURL))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	errs = append(errs, c.Log.validate())

	if c.Sync.MinInterval < 0 {
		errs = append(errs, errors.New("sync.min_interval must not be negative"))
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffMax < c.Sync.BackoffBase {
		errs = append(errs, errors.New("sync.backoff_base must be positive and not exceed sync.backoff_max"))
	}
	if _, err := conflict.New(c.Sync.ConflictPolicy); err != nil {
		errs = append(errs, fmt.Errorf("sync.conflict_policy: %w", err))
	}
	errs = append(errs, validateSchedule("sync.schedule", c.Sync.Schedule))

	if c.Cache.Retention <= 0 {
		errs = append(errs, errors.New("cache.retention must be positive"))
	}
	if c.Cache.EssentialLimit <= 0 {
		errs = append(errs, errors.New("cache.essential_limit must be positive"))
	}
	if c.Cache.PrescriptionWindow <= 0 {
		errs = append(errs, errors.New("cache.prescription_window must be positive"))
	}
	errs = append(errs, validateSchedule("cache.cleanup_schedule", c.Cache.CleanupSchedule))

	if c.Network.ProbeInterval <= 0 {
		errs = append(errs, errors.New("network.probe_interval must be positive"))
	}
	if c.Network.FailureThreshold < 1 {
		errs = append(errs, errors.New("network.failure_threshold must be at least 1"))
	}

	if c.Notify.WebhookURL != "" {
		if u, err := url.Parse(c.Notify.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("notify.webhook_url is not a valid URL: %q", c.Notify.WebhookURL))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the server configuration.
func (s *Server) Validate() error {
	var errs []error

	if s.Address == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if s.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if len(s.JWT.Secret) < MinJWTSecretLen {
		errs = append(errs, fmt.Errorf("jwt.secret must be at least %d characters", MinJWTSecretLen))
	}
	if s.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("jwt.access_ttl must be positive"))
	}
	if s.RateLimit.Requests <= 0 || s.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.requests and rate_limit.window must be positive"))
	}
	errs = append(errs, s.Log.validate())

	return errors.Join(errs...)
}

func (l LogConfig) validate() error {
	if _, err := ParseLevel(l.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch l.Format {
	case FormatText, FormatJSON:
		return nil
	}
	return fmt.Errorf("log.format must be %q or %q, got %q", FormatText, FormatJSON, l.Format)
}

func validateSchedule(key, spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%s: invalid cron spec %q: %w", key, spec, err)
	}
	return nil
}
