package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Cart          CartConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SPORTEDGE_APP_ENV" required:"true"`
	Port         string   `envconfig:"SPORTEDGE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"SPORTEDGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"SPORTEDGE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"SPORTEDGE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// ServiceConfig identifies the running binary. MetricsPort exposes /metrics
// from the background binaries; empty disables it.
type ServiceConfig struct {
	Kind        string `envconfig:"SPORTEDGE_SERVICE_KIND" default:"api"`
	MetricsPort string `envconfig:"SPORTEDGE_METRICS_PORT"`
}

type DBConfig struct {
	DSN    string `envconfig:"SPORTEDGE_DB_DSN"`
	Driver string `envconfig:"SPORTEDGE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SPORTEDGE_DB_HOST"`
	Port     int    `envconfig:"SPORTEDGE_DB_PORT" default:"5432"`
	User     string `envconfig:"SPORTEDGE_DB_USER"`
	Password string `envconfig:"SPORTEDGE_DB_PASSWORD"`
	Name     string `envconfig:"SPORTEDGE_DB_NAME"`
	SSLMode  string `envconfig:"SPORTEDGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SPORTEDGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SPORTEDGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SPORTEDGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SPORTEDGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SPORTEDGE_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SPORTEDGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SPORTEDGE_REDIS_ADDR"`
	Password     string        `envconfig:"SPORTEDGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPORTEDGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPORTEDGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SPORTEDGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SPORTEDGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPORTEDGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SPORTEDGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SPORTEDGE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SPORTEDGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SPORTEDGE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"SPORTEDGE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SPORTEDGE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SPORTEDGE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SPORTEDGE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SPORTEDGE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SPORTEDGE_ARGON_KEY_LEN" default:"32"`
}

type PasswordResetConfig struct {
	TokenTTL time.Duration `envconfig:"SPORTEDGE_PASSWORD_RESET_TOKEN_TTL" default:"1h"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SPORTEDGE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"SPORTEDGE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"SPORTEDGE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"SPORTEDGE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"SPORTEDGE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"SPORTEDGE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SPORTEDGE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SPORTEDGE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SPORTEDGE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	OrderIdempotencyTTL  time.Duration `envconfig:"SPORTEDGE_ORDER_IDEMPOTENCY_TTL" default:"168h"`
}

type CartConfig struct {
	MaxLineQuantity int `envconfig:"SPORTEDGE_CART_MAX_LINE_QUANTITY" default:"99"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SPORTEDGE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SPORTEDGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SPORTEDGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"SPORTEDGE_PUBSUB_ORDERS_TOPIC" default:"se-order-events"`
	AnalyticsSubscription string `envconfig:"SPORTEDGE_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"se-order-events-analytics"`
	// CreateResources creates a missing topic or subscription on startup.
	// Meant for the emulator and dev projects.
	CreateResources bool `envconfig:"SPORTEDGE_PUBSUB_CREATE_RESOURCES" default:"false"`
	AckDeadline     int  `envconfig:"SPORTEDGE_PUBSUB_ACK_DEADLINE_SECONDS" default:"60"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"SPORTEDGE_BIGQUERY_DATASET" default:"sportedge"`
	OrderSalesTable string `envconfig:"SPORTEDGE_BIGQUERY_ORDER_SALES_TABLE" default:"order_sales"`
	// CreateTables lets the analytics worker create a missing sales table.
	CreateTables bool `envconfig:"SPORTEDGE_BIGQUERY_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SPORTEDGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SPORTEDGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SPORTEDGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"SPORTEDGE_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"SPORTEDGE_CRON_LOCK_TTL" default:"15m"`
	OutboxRetention time.Duration `envconfig:"SPORTEDGE_CRON_OUTBOX_RETENTION" default:"720h"`
}

// PollInterval converts the configured poll interval into a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

// ensureDSN fills DSN. SQLite mode gets a local file; otherwise an explicit
// DSN wins and the discrete host, user and name fields are the fallback.
func (db *DBConfig) ensureDSN(useSQLite bool) error {
	switch {
	case useSQLite:
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = "file:sportedge.db?cache=shared"
		}
		return nil
	case db.DSN != "":
		return nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.User)
	if db.Password != "" {
		user = url.UserPassword(db.User, db.Password)
	}
	dsn := url.URL{Scheme: "postgres", User: user, Host: fmt.Sprintf("%s:%d", db.Host, db.Port), Path: db.Name}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}

// Validate reports every cross-field problem at once.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}
	access := time.Duration(c.JWT.ExpirationMinutes) * time.Minute
	check(access > 0, "%s must be positive", EnvJWTExpMins)
	check(c.JWT.RefreshTokenTTL() > access, "%s must outlive the access token", EnvRefreshTokenTTLMinutes)
	check(!c.App.IsProd() || len(c.JWT.Secret) >= 32, "%s must be at least 32 bytes in prod", EnvJWTSecret)
	check(c.Outbox.MaxAttempts > 0, "outbox max attempts must be positive")
	check(c.Cron.Interval > 0, "cron interval must be positive")
	check(c.Cron.OutboxRetention >= 24*time.Hour, "outbox retention must be at least 24h")
	check(c.Cart.MaxLineQuantity > 0, "cart max line quantity must be positive")
	check(c.Eventing.OrderIdempotencyTTL >= 24*time.Hour, "order idempotency ttl must be at least 24h")
	check(c.DB.Driver == DriverPostgres || c.DB.Driver == DriverSQLite, "unsupported database driver %q", c.DB.Driver)
	return err
}
