package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Features  FeatureFlagsConfig
	Stripe    StripeConfig
	Courier   CourierConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Sendgrid  SendgridConfig
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
	Env          string `envconfig:"ORDERLY_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERLY_DB_DSN"`
	Driver string `envconfig:"ORDERLY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERLY_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERLY_DB_USER"`
	LegacyPassword string `envconfig:"ORDERLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERLY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERLY_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"ORDERLY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ORDERLY_JWT_ISSUER" required:"true"`
}

type RateLimitConfig struct {
	CheckoutWindow  time.Duration `envconfig:"ORDERLY_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit int64         `envconfig:"ORDERLY_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERLY_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"ORDERLY_STRIPE_API_KEY" required:"true"`
	WebhookSecret string `envconfig:"ORDERLY_STRIPE_WEBHOOK_SECRET" required:"true"`
	Env           string `envconfig:"ORDERLY_STRIPE_ENV" default:"test"`
	// Platform fee charged on each order, in basis points of the total.
	ApplicationFeeBPS int64  `envconfig:"ORDERLY_STRIPE_APPLICATION_FEE_BPS" default:"250"`
	OnboardReturnURL  string `envconfig:"ORDERLY_STRIPE_ONBOARD_RETURN_URL"`
	OnboardRefreshURL string `envconfig:"ORDERLY_STRIPE_ONBOARD_REFRESH_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CourierConfig holds credentials for the delivery-dispatch partner API.
type CourierConfig struct {
	BaseURL       string        `envconfig:"ORDERLY_COURIER_BASE_URL" required:"true"`
	AuthURL       string        `envconfig:"ORDERLY_COURIER_AUTH_URL" required:"true"`
	ClientID      string        `envconfig:"ORDERLY_COURIER_CLIENT_ID" required:"true"`
	ClientSecret  string        `envconfig:"ORDERLY_COURIER_CLIENT_SECRET" required:"true"`
	WebhookSecret string        `envconfig:"ORDERLY_COURIER_WEBHOOK_SECRET" required:"true"`
	HTTPTimeout   time.Duration `envconfig:"ORDERLY_COURIER_HTTP_TIMEOUT" default:"15s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ORDERLY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"ORDERLY_PUBSUB_ORDERS_TOPIC" default:"orderly-order-events"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"ORDERLY_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"ORDERLY_SENDGRID_FROM_EMAIL"`
	FromName    string `envconfig:"ORDERLY_SENDGRID_FROM_NAME" default:"Orderly"`
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
