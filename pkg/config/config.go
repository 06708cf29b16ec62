package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	Inventory    InventoryConfig
	Webhooks     WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Inventory.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SAREEHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"SAREEHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SAREEHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SAREEHUB_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated list of storefront origins.
	CORSOrigins []string `envconfig:"SAREEHUB_CORS_ORIGINS"`
	// MetricsPort exposes /metrics from background workers; empty disables it.
	MetricsPort string `envconfig:"SAREEHUB_METRICS_PORT"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"SAREEHUB_DB_DSN"`

	Host     string `envconfig:"SAREEHUB_DB_HOST"`
	Port     int    `envconfig:"SAREEHUB_DB_PORT" default:"5432"`
	User     string `envconfig:"SAREEHUB_DB_USER"`
	Password string `envconfig:"SAREEHUB_DB_PASSWORD"`
	Name     string `envconfig:"SAREEHUB_DB_NAME"`
	SSLMode  string `envconfig:"SAREEHUB_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"SAREEHUB_DB_SQLITE_PATH" default:"file:sareehub.db?_busy_timeout=5000&_foreign_keys=on"`

	MaxOpenConns    int           `envconfig:"SAREEHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SAREEHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SAREEHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SAREEHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SAREEHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SAREEHUB_REDIS_ADDR"`
	Password     string        `envconfig:"SAREEHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"SAREEHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SAREEHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SAREEHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SAREEHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SAREEHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SAREEHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"SAREEHUB_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"SAREEHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"SAREEHUB_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"SAREEHUB_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SAREEHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SAREEHUB_AUTO_MIGRATE" default:"false"`
	Realtime    bool `envconfig:"SAREEHUB_FEATURE_REALTIME" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SAREEHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"SAREEHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SAREEHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string        `envconfig:"SAREEHUB_PUBSUB_ORDERS_TOPIC" required:"true"`
	InventoryTopic        string        `envconfig:"SAREEHUB_PUBSUB_INVENTORY_TOPIC" default:"sh-inventory-events"`
	RealtimeSubscription  string        `envconfig:"SAREEHUB_PUBSUB_REALTIME_SUBSCRIPTION" default:"sh-realtime-{instance}"`
	RealtimeIdleExpiry    time.Duration `envconfig:"SAREEHUB_PUBSUB_REALTIME_IDLE_EXPIRY" default:"24h"`
	AnalyticsSubscription string        `envconfig:"SAREEHUB_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"sh-analytics"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"SAREEHUB_BIGQUERY_DATASET" default:"sareehub"`
	MovementsTable  string `envconfig:"SAREEHUB_BIGQUERY_MOVEMENTS_TABLE" default:"inventory_movements"`
	OrderFactsTable string `envconfig:"SAREEHUB_BIGQUERY_ORDER_FACTS_TABLE" default:"order_facts"`
	AutoCreate      bool   `envconfig:"SAREEHUB_BIGQUERY_AUTO_CREATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SAREEHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"SAREEHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"SAREEHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int           `envconfig:"SAREEHUB_OUTBOX_RETENTION_DAYS" default:"30"`
	PublishTimeout time.Duration `envconfig:"SAREEHUB_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MaxBackoff     time.Duration `envconfig:"SAREEHUB_OUTBOX_MAX_BACKOFF" default:"10s"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"SAREEHUB_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	RequestIdempotencyTTL  time.Duration `envconfig:"SAREEHUB_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type InventoryConfig struct {
	ReservationTTL    time.Duration `envconfig:"SAREEHUB_INVENTORY_RESERVATION_TTL" default:"30m"`
	SweepInterval     time.Duration `envconfig:"SAREEHUB_INVENTORY_SWEEP_INTERVAL" default:"1m"`
	SweepBatchSize    int           `envconfig:"SAREEHUB_INVENTORY_SWEEP_BATCH_SIZE" default:"100"`
	LowStockThreshold int           `envconfig:"SAREEHUB_INVENTORY_LOW_STOCK_THRESHOLD" default:"3"`
}

func (i InventoryConfig) validate() error {
	if i.ReservationTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvReservationTTL)
	}
	if i.SweepBatchSize <= 0 {
		return fmt.Errorf("inventory sweep batch size must be positive")
	}
	return nil
}

type WebhookConfig struct {
	PaymentRateLimit  int           `envconfig:"SAREEHUB_WEBHOOK_PAYMENT_RATE_LIMIT" default:"120"`
	PaymentRateWindow time.Duration `envconfig:"SAREEHUB_WEBHOOK_PAYMENT_RATE_WINDOW" default:"1m"`
	DedupTTL          time.Duration `envconfig:"SAREEHUB_WEBHOOK_DEDUP_TTL" default:"168h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	var missing []string
	for _, key := range legacyDBEnvVars {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.User)
	if db.Password != "" {
		user = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
