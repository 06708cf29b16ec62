package config

// EnvPrefix scopes every variable read by Load.
const EnvPrefix = "SAREEHUB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "SAREEHUB_APP_ENV"
	EnvPort     = "SAREEHUB_APP_PORT"
	EnvLogLevel = "SAREEHUB_LOG_LEVEL"

	EnvDBDSN  = "SAREEHUB_DB_DSN"
	EnvDBHost = "SAREEHUB_DB_HOST"
	EnvDBUser = "SAREEHUB_DB_USER"
	EnvDBName = "SAREEHUB_DB_NAME"

	EnvRedisURL = "SAREEHUB_REDIS_URL"

	EnvJWTSecret  = "SAREEHUB_JWT_SECRET"
	EnvJWTIssuer  = "SAREEHUB_JWT_ISSUER"
	EnvJWTExpMins = "SAREEHUB_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "SAREEHUB_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic          = "SAREEHUB_PUBSUB_ORDERS_TOPIC"
	EnvPubSubRealtimeSubscription = "SAREEHUB_PUBSUB_REALTIME_SUBSCRIPTION"

	EnvReservationTTL = "SAREEHUB_INVENTORY_RESERVATION_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
