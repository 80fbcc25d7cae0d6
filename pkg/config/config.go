package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GoogleMaps   GoogleMapsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Payments     PaymentsConfig
	Delivery     DeliveryConfig
	Couriers     CouriersConfig
	Cron         CronConfig
	HTTP         HTTPConfig
}

// Load reads FORKFLEET_* variables, derives the DSN from the discrete DB_*
// variables when no DSN is set, and rejects out-of-range settings.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	dsn, err := cfg.DB.resolveDSN()
	if err != nil {
		return nil, err
	}
	cfg.DB.DSN = dsn
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate runs the struct tag rules and the parsed-value checks, reporting
// every problem at once.
func (c *Config) validate() error {
	var errs error
	if err := validator.New().Struct(c); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			return err
		}
		for _, f := range fields {
			errs = multierr.Append(errs, fmt.Errorf("%s fails %s=%s", f.Namespace(), f.Tag(), f.Param()))
		}
	}
	if _, err := c.Payments.Commission(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := c.Couriers.HTTPProviders(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"FORKFLEET_APP_ENV" required:"true"`
	Port         string `envconfig:"FORKFLEET_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"FORKFLEET_APP_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"FORKFLEET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FORKFLEET_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"FORKFLEET_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FORKFLEET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FORKFLEET_DB_DSN"`
	Driver string `envconfig:"FORKFLEET_DB_DRIVER" default:"postgres" validate:"oneof=postgres pgx sqlite"`

	LegacyHost     string `envconfig:"FORKFLEET_DB_HOST"`
	LegacyPort     int    `envconfig:"FORKFLEET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FORKFLEET_DB_USER"`
	LegacyPassword string `envconfig:"FORKFLEET_DB_PASSWORD"`
	LegacyName     string `envconfig:"FORKFLEET_DB_NAME"`
	LegacySSLMode  string `envconfig:"FORKFLEET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FORKFLEET_DB_MAX_OPEN_CONNS" default:"20" validate:"min=1"`
	MaxIdleConns    int           `envconfig:"FORKFLEET_DB_MAX_IDLE_CONNS" default:"10" validate:"ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `envconfig:"FORKFLEET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FORKFLEET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FORKFLEET_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FORKFLEET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FORKFLEET_REDIS_ADDR"`
	Password     string        `envconfig:"FORKFLEET_REDIS_PASSWORD"`
	DB           int           `envconfig:"FORKFLEET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FORKFLEET_REDIS_POOL_SIZE" default:"10" validate:"min=1"`
	MinIdleConns int           `envconfig:"FORKFLEET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FORKFLEET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FORKFLEET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FORKFLEET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"FORKFLEET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FORKFLEET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FORKFLEET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate       bool `envconfig:"FORKFLEET_AUTO_MIGRATE" default:"false"`
	AllowBankTransfer bool `envconfig:"FORKFLEET_FEATURE_ALLOW_BANK_TRANSFER" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"FORKFLEET_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"FORKFLEET_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type GoogleMapsConfig struct {
	APIKey string `envconfig:"FORKFLEET_GOOGLE_MAPS_API_KEY"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"FORKFLEET_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"FORKFLEET_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"FORKFLEET_PUBSUB_ORDERS_TOPIC" required:"true"`
	PaymentsTopic         string `envconfig:"FORKFLEET_PUBSUB_PAYMENTS_TOPIC" required:"true"`
	NotificationTopic     string `envconfig:"FORKFLEET_PUBSUB_NOTIFICATION_TOPIC" default:"ff-notification-events"`
	AnalyticsSubscription string `envconfig:"FORKFLEET_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"FORKFLEET_BIGQUERY_DATASET" default:"forkfleet"`
	OrderEventsTable string `envconfig:"FORKFLEET_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type OutboxConfig struct {
	BatchSize           int           `envconfig:"FORKFLEET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50" validate:"min=1,max=1000"`
	PollIntervalMS      int           `envconfig:"FORKFLEET_OUTBOX_PUBLISH_POLL_MS" default:"500" validate:"min=10"`
	MaxAttempts         int           `envconfig:"FORKFLEET_OUTBOX_MAX_ATTEMPTS" default:"10" validate:"min=1"`
	Retention           time.Duration `envconfig:"FORKFLEET_OUTBOX_RETENTION" default:"720h" validate:"gt=0"`
	DeadLetterRetention time.Duration `envconfig:"FORKFLEET_OUTBOX_DLQ_RETENTION" default:"2160h" validate:"gtefield=Retention"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"FORKFLEET_STRIPE_API_KEY"`
	Secret     string `envconfig:"FORKFLEET_STRIPE_SECRET"`
	Env        string `envconfig:"FORKFLEET_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"FORKFLEET_STRIPE_SUCCESS_URL"`
	CancelURL  string `envconfig:"FORKFLEET_STRIPE_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether card payments can be routed to Stripe.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

type SquareConfig struct {
	AccessToken   string `envconfig:"FORKFLEET_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"FORKFLEET_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"FORKFLEET_SQUARE_WEBHOOK_URL"`
	LocationID    string `envconfig:"FORKFLEET_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"FORKFLEET_SQUARE_ENV" default:"sandbox"`
	RedirectURL   string `envconfig:"FORKFLEET_SQUARE_REDIRECT_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether bank transfers can be routed to Square.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.WebhookSecret) != ""
}

type PaymentsConfig struct {
	GatewayTimeout time.Duration `envconfig:"FORKFLEET_PAYMENT_GATEWAY_TIMEOUT" default:"10s"`
	CommissionRate string        `envconfig:"FORKFLEET_PLATFORM_COMMISSION_RATE" default:"0.15"`
}

// Commission parses the platform commission as a fraction in [0, 1). It
// returns nil when the setting is blank so callers apply their default; an
// explicit "0" is a real zero commission.
func (p PaymentsConfig) Commission() (*decimal.Decimal, error) {
	raw := strings.TrimSpace(p.CommissionRate)
	if raw == "" {
		return nil, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%s must be within [0, 1), got %s", EnvCommissionRate, raw)
	}
	return &rate, nil
}

type DeliveryConfig struct {
	QuoteTTL            time.Duration `envconfig:"FORKFLEET_DELIVERY_QUOTE_TTL" default:"15m" validate:"gt=0"`
	CourierTimeout      time.Duration `envconfig:"FORKFLEET_COURIER_TIMEOUT" default:"8s" validate:"gt=0,ltefield=ShoppingDeadline"`
	ShoppingDeadline    time.Duration `envconfig:"FORKFLEET_RATE_SHOPPING_DEADLINE" default:"12s"`
	BookingTimeout      time.Duration `envconfig:"FORKFLEET_DELIVERY_BOOKING_TIMEOUT" default:"10s"`
	BookingRetryBackoff time.Duration `envconfig:"FORKFLEET_DELIVERY_BOOKING_RETRY_BACKOFF" default:"2m"`
	BookingMaxAttempts  int           `envconfig:"FORKFLEET_DELIVERY_BOOKING_MAX_ATTEMPTS" default:"12" validate:"min=1"`
}

// CouriersConfig lists the courier adapters wired into rate shopping.
type CouriersConfig struct {
	HTTPProvidersJSON string `envconfig:"FORKFLEET_COURIER_HTTP_PROVIDERS"`
	QuoteRetries      uint64 `envconfig:"FORKFLEET_COURIER_QUOTE_RETRIES" default:"2"`

	FlatRateEnabled  bool   `envconfig:"FORKFLEET_COURIER_FLAT_RATE_ENABLED" default:"true"`
	FlatRateBaseFee  int64  `envconfig:"FORKFLEET_COURIER_FLAT_RATE_BASE_FEE" default:"299"`
	FlatRatePerKm    int64  `envconfig:"FORKFLEET_COURIER_FLAT_RATE_PER_KM" default:"85"`
	FlatRateCurrency string `envconfig:"FORKFLEET_COURIER_FLAT_RATE_CURRENCY" default:"USD"`
	FlatRateMaxKm    int    `envconfig:"FORKFLEET_COURIER_FLAT_RATE_MAX_KM" default:"15"`
}

// HTTPProviderConfig describes one REST courier integration.
type HTTPProviderConfig struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	// RatePerSecond throttles calls to the courier; zero disables it.
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
}

// HTTPProviders decodes FORKFLEET_COURIER_HTTP_PROVIDERS.
func (c CouriersConfig) HTTPProviders() ([]HTTPProviderConfig, error) {
	raw := strings.TrimSpace(c.HTTPProvidersJSON)
	if raw == "" {
		return nil, nil
	}
	var providers []HTTPProviderConfig
	if err := json.Unmarshal([]byte(raw), &providers); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvCourierHTTPProviders, err)
	}
	seen := map[string]struct{}{}
	for _, p := range providers {
		name := strings.TrimSpace(p.Name)
		if name == "" || strings.TrimSpace(p.BaseURL) == "" {
			return nil, fmt.Errorf("%s entries require name and base_url", EnvCourierHTTPProviders)
		}
		if p.RatePerSecond < 0 || p.Burst < 0 {
			return nil, fmt.Errorf("%s entry %q has a negative rate limit", EnvCourierHTTPProviders, name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%s lists provider %q twice", EnvCourierHTTPProviders, name)
		}
		seen[name] = struct{}{}
	}
	return providers, nil
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"FORKFLEET_CRON_INTERVAL" default:"1m" validate:"gt=0"`
	LockTTL        time.Duration `envconfig:"FORKFLEET_CRON_LOCK_TTL" default:"5m" validate:"gt=0"`
	JobTimeout     time.Duration `envconfig:"FORKFLEET_CRON_JOB_TIMEOUT" default:"4m" validate:"gt=0,ltfield=LockTTL"`
	RetentionEvery time.Duration `envconfig:"FORKFLEET_CRON_RETENTION_EVERY" default:"1h" validate:"gte=0"`
}

// HTTPConfig covers the API server's edge: CORS and write-path throttling.
type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"FORKFLEET_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout    time.Duration `envconfig:"FORKFLEET_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	RateLimitWindow    time.Duration `envconfig:"FORKFLEET_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutIPLimit    int           `envconfig:"FORKFLEET_CHECKOUT_IP_LIMIT" default:"60" validate:"min=0"`
	CheckoutUserLimit  int           `envconfig:"FORKFLEET_CHECKOUT_USER_LIMIT" default:"10" validate:"min=0"`
	QuotesUserLimit    int           `envconfig:"FORKFLEET_DELIVERY_QUOTES_USER_LIMIT" default:"30" validate:"min=0"`
}

// resolveDSN prefers FORKFLEET_DB_DSN and otherwise assembles a postgres URL
// from the discrete host/user/name variables.
func (db DBConfig) resolveDSN() (string, error) {
	if db.DSN != "" {
		return db.DSN, nil
	}
	parts := map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName}
	var missing []string
	for _, name := range legacyDBEnvVars {
		if parts[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		dsn.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	return dsn.String(), nil
}
