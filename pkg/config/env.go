package config

const EnvPrefix = "SPORTEDGE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "SPORTEDGE_APP_ENV"
	EnvPort     = "SPORTEDGE_APP_PORT"
	EnvLogLevel = "SPORTEDGE_LOG_LEVEL"

	EnvDBDSN  = "SPORTEDGE_DB_DSN"
	EnvDBHost = "SPORTEDGE_DB_HOST"
	EnvDBUser = "SPORTEDGE_DB_USER"
	EnvDBName = "SPORTEDGE_DB_NAME"

	EnvRedisURL = "SPORTEDGE_REDIS_URL"

	EnvJWTSecret              = "SPORTEDGE_JWT_SECRET"
	EnvJWTIssuer              = "SPORTEDGE_JWT_ISSUER"
	EnvJWTExpMins             = "SPORTEDGE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "SPORTEDGE_REFRESH_TOKEN_TTL_MINUTES"

	EnvUseSQLite   = "SPORTEDGE_USE_SQLITE"
	EnvAutoMigrate = "SPORTEDGE_AUTO_MIGRATE"

	EnvGCPProjectID          = "SPORTEDGE_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic     = "SPORTEDGE_PUBSUB_ORDERS_TOPIC"
	EnvPubSubAnalyticsSub    = "SPORTEDGE_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvBigQueryDataset       = "SPORTEDGE_BIGQUERY_DATASET"
	EnvPasswordResetTokenTTL = "SPORTEDGE_PASSWORD_RESET_TOKEN_TTL"
)

