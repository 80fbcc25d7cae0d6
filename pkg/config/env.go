package config

// EnvPrefix is handed to envconfig; every field also carries its full variable name.
const EnvPrefix = "FORKFLEET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv               = "FORKFLEET_APP_ENV"
	EnvPort                 = "FORKFLEET_APP_PORT"
	EnvDBDSN                = "FORKFLEET_DB_DSN"
	EnvDBHost               = "FORKFLEET_DB_HOST"
	EnvDBUser               = "FORKFLEET_DB_USER"
	EnvDBName               = "FORKFLEET_DB_NAME"
	EnvRedisURL             = "FORKFLEET_REDIS_URL"
	EnvJWTSecret            = "FORKFLEET_JWT_SECRET"
	EnvJWTIssuer            = "FORKFLEET_JWT_ISSUER"
	EnvGCPProjectID         = "FORKFLEET_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic    = "FORKFLEET_PUBSUB_ORDERS_TOPIC"
	EnvPubSubPaymentsTopic  = "FORKFLEET_PUBSUB_PAYMENTS_TOPIC"
	EnvCommissionRate       = "FORKFLEET_PLATFORM_COMMISSION_RATE"
	EnvCourierHTTPProviders = "FORKFLEET_COURIER_HTTP_PROVIDERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
