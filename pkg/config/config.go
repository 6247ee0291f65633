package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SAFETRADE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SAFETRADE_APP_ENV"
	EnvPort     = "SAFETRADE_APP_PORT"
	EnvDBDSN    = "SAFETRADE_DB_DSN"
	EnvDBHost   = "SAFETRADE_DB_HOST"
	EnvDBUser   = "SAFETRADE_DB_USER"
	EnvDBName   = "SAFETRADE_DB_NAME"
	EnvRedisURL = "SAFETRADE_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Provider     ProviderConfig
	Webhook      WebhookConfig
	Worker       WorkerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SAFETRADE_APP_ENV" required:"true"`
	Port         string `envconfig:"SAFETRADE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SAFETRADE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SAFETRADE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SAFETRADE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SAFETRADE_DB_DSN"`
	Driver string `envconfig:"SAFETRADE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SAFETRADE_DB_HOST"`
	LegacyPort     int    `envconfig:"SAFETRADE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SAFETRADE_DB_USER"`
	LegacyPassword string `envconfig:"SAFETRADE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SAFETRADE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SAFETRADE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SAFETRADE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SAFETRADE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SAFETRADE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SAFETRADE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SAFETRADE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SAFETRADE_REDIS_ADDR"`
	Password     string        `envconfig:"SAFETRADE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SAFETRADE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SAFETRADE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SAFETRADE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SAFETRADE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SAFETRADE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SAFETRADE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SAFETRADE_AUTO_MIGRATE" default:"false"`
}

// ProviderConfig carries the fulfillment provider credentials and bounds.
type ProviderConfig struct {
	BaseURL string        `envconfig:"SAFETRADE_PROVIDER_BASE_URL" default:"https://api.bitrefill.com/v2"`
	APIKey  string        `envconfig:"SAFETRADE_PROVIDER_API_KEY"`
	Timeout time.Duration `envconfig:"SAFETRADE_PROVIDER_TIMEOUT" default:"30s"`
	Sandbox bool          `envconfig:"SAFETRADE_PROVIDER_SANDBOX" default:"false"`
}

// WebhookConfig bounds outbound partner webhook delivery.
type WebhookConfig struct {
	MaxAttempts    int           `envconfig:"SAFETRADE_WEBHOOK_MAX_ATTEMPTS" default:"4"`
	RequestTimeout time.Duration `envconfig:"SAFETRADE_WEBHOOK_REQUEST_TIMEOUT" default:"10s"`
}

// WorkerConfig tunes the webhook delivery worker loop.
type WorkerConfig struct {
	BatchSize      int    `envconfig:"SAFETRADE_WORKER_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"SAFETRADE_WORKER_POLL_MS" default:"1000"`
	MetricsPort    string `envconfig:"SAFETRADE_WORKER_METRICS_PORT" default:"9090"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
