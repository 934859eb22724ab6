package config

const (
	EnvPrefix = "FIELDSTOCK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverSQLite = "sqlite"

	EnvAppEnv   = "FIELDSTOCK_APP_ENV"
	EnvPort     = "FIELDSTOCK_APP_PORT"
	EnvLogLevel = "FIELDSTOCK_LOG_LEVEL"

	EnvDBDSN  = "FIELDSTOCK_DB_DSN"
	EnvDBHost = "FIELDSTOCK_DB_HOST"
	EnvDBUser = "FIELDSTOCK_DB_USER"
	EnvDBName = "FIELDSTOCK_DB_NAME"

	EnvRedisURL  = "FIELDSTOCK_REDIS_URL"
	EnvUseSQLite  = "FIELDSTOCK_USE_SQLITE"
	EnvSQLitePath = "FIELDSTOCK_SQLITE_PATH"

	EnvGCPProjectID              = "FIELDSTOCK_GCP_PROJECT_ID"
	EnvPubSubAlertTopic          = "FIELDSTOCK_PUBSUB_ALERT_TOPIC"
	EnvPubSubRecommendationTopic = "FIELDSTOCK_PUBSUB_RECOMMENDATION_TOPIC"

	EnvPipelineRollupLookbackDays     = "FIELDSTOCK_PIPELINE_ROLLUP_LOOKBACK_DAYS"
	EnvPipelineRiskThreshold          = "FIELDSTOCK_PIPELINE_RISK_THRESHOLD"
	EnvPipelineConfidenceThreshold    = "FIELDSTOCK_PIPELINE_CONFIDENCE_THRESHOLD"
	EnvPipelineCriticalRiskThreshold  = "FIELDSTOCK_PIPELINE_CRITICAL_RISK_THRESHOLD"
	EnvPipelineAlertRiskThreshold     = "FIELDSTOCK_PIPELINE_ALERT_RISK_THRESHOLD"
	EnvPipelineLeadTimeDays           = "FIELDSTOCK_PIPELINE_LEAD_TIME_DAYS"
	EnvPipelineDealerReliabilityFloor = "FIELDSTOCK_PIPELINE_DEALER_RELIABILITY_FLOOR"
	EnvPipelineLargeQuantityFactor    = "FIELDSTOCK_PIPELINE_LARGE_QTY_FACTOR"
	EnvPipelineLowConfidenceFlag      = "FIELDSTOCK_PIPELINE_LOW_CONFIDENCE_FLAG"
	EnvPipelineForecastConcurrency    = "FIELDSTOCK_PIPELINE_FORECAST_CONCURRENCY"
	EnvPipelineForecastMaxAge         = "FIELDSTOCK_PIPELINE_FORECAST_MAX_AGE"

	EnvFieldServiceBaseURL = "FIELDSTOCK_FIELDSVC_BASE_URL"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
