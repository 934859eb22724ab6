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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Pipeline     PipelineConfig
	FieldService FieldServiceConfig
	Tracing      TracingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	} else if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pipeline.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FIELDSTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"FIELDSTOCK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FIELDSTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FIELDSTOCK_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"FIELDSTOCK_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FIELDSTOCK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FIELDSTOCK_DB_DSN"`
	Driver string `envconfig:"FIELDSTOCK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FIELDSTOCK_DB_HOST"`
	Port     int    `envconfig:"FIELDSTOCK_DB_PORT" default:"5432"`
	User     string `envconfig:"FIELDSTOCK_DB_USER"`
	Password string `envconfig:"FIELDSTOCK_DB_PASSWORD"`
	Name     string `envconfig:"FIELDSTOCK_DB_NAME"`
	SSLMode  string `envconfig:"FIELDSTOCK_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"FIELDSTOCK_SQLITE_PATH" default:"fieldstock.db"`

	MaxOpenConns    int           `envconfig:"FIELDSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FIELDSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FIELDSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FIELDSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FIELDSTOCK_DB_SLOW_QUERY" default:"500ms"`
	ConnectTimeout  time.Duration `envconfig:"FIELDSTOCK_DB_CONNECT_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	URL            string        `envconfig:"FIELDSTOCK_REDIS_URL"`
	Address        string        `envconfig:"FIELDSTOCK_REDIS_ADDR" default:"localhost:6379"`
	Password       string        `envconfig:"FIELDSTOCK_REDIS_PASSWORD"`
	DB             int           `envconfig:"FIELDSTOCK_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"FIELDSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"FIELDSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"FIELDSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"FIELDSTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"FIELDSTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"FIELDSTOCK_REDIS_IDEMPOTENCY_TTL" default:"24h"`
	Namespace      string        `envconfig:"FIELDSTOCK_REDIS_NAMESPACE" default:"fs"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FIELDSTOCK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FIELDSTOCK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FIELDSTOCK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	AlertTopic          string `envconfig:"FIELDSTOCK_PUBSUB_ALERT_TOPIC" default:"fs-inventory-alerts"`
	RecommendationTopic string `envconfig:"FIELDSTOCK_PUBSUB_RECOMMENDATION_TOPIC" default:"fs-reorder-recommendations"`
	// Batching knobs applied to every publisher the client hands out.
	BatchDelay     time.Duration `envconfig:"FIELDSTOCK_PUBSUB_BATCH_DELAY" default:"10ms"`
	BatchCount     int           `envconfig:"FIELDSTOCK_PUBSUB_BATCH_COUNT" default:"100"`
	PublishTimeout time.Duration `envconfig:"FIELDSTOCK_PUBSUB_PUBLISH_TIMEOUT" default:"30s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FIELDSTOCK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FIELDSTOCK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FIELDSTOCK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FIELDSTOCK_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetention   int `envconfig:"FIELDSTOCK_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
	PruneBatchSize int `envconfig:"FIELDSTOCK_OUTBOX_PRUNE_BATCH_SIZE" default:"5000"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FIELDSTOCK_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"FIELDSTOCK_CRON_LOCK_TTL" default:"6h"`
}

// PipelineConfig carries the tunables for the four replenishment stages.
type PipelineConfig struct {
	RollupLookbackDays     int `envconfig:"FIELDSTOCK_PIPELINE_ROLLUP_LOOKBACK_DAYS" default:"30"`
	RiskThreshold          int `envconfig:"FIELDSTOCK_PIPELINE_RISK_THRESHOLD" default:"60"`
	ConfidenceThreshold    int `envconfig:"FIELDSTOCK_PIPELINE_CONFIDENCE_THRESHOLD" default:"30"`
	CriticalRiskThreshold  int `envconfig:"FIELDSTOCK_PIPELINE_CRITICAL_RISK_THRESHOLD" default:"90"`
	AlertRiskThreshold     int `envconfig:"FIELDSTOCK_PIPELINE_ALERT_RISK_THRESHOLD" default:"90"`
	LeadTimeDays           int `envconfig:"FIELDSTOCK_PIPELINE_LEAD_TIME_DAYS" default:"7"`
	DealerReliabilityFloor int `envconfig:"FIELDSTOCK_PIPELINE_DEALER_RELIABILITY_FLOOR" default:"70"`
	LargeQuantityFactor    int `envconfig:"FIELDSTOCK_PIPELINE_LARGE_QTY_FACTOR" default:"2"`
	LowConfidenceFlag      int `envconfig:"FIELDSTOCK_PIPELINE_LOW_CONFIDENCE_FLAG" default:"50"`
	ForecastConcurrency    int `envconfig:"FIELDSTOCK_PIPELINE_FORECAST_CONCURRENCY" default:"8"`
	// ForecastMaxAge bounds how old a current snapshot may be before the generator
	// and the alert scan ignore it. Zero disables the bound.
	ForecastMaxAge time.Duration `envconfig:"FIELDSTOCK_PIPELINE_FORECAST_MAX_AGE" default:"48h"`
}

func (p PipelineConfig) validate() error {
	scores := map[string]int{
		EnvPipelineRiskThreshold:          p.RiskThreshold,
		EnvPipelineConfidenceThreshold:    p.ConfidenceThreshold,
		EnvPipelineCriticalRiskThreshold:  p.CriticalRiskThreshold,
		EnvPipelineAlertRiskThreshold:     p.AlertRiskThreshold,
		EnvPipelineDealerReliabilityFloor: p.DealerReliabilityFloor,
		EnvPipelineLowConfidenceFlag:      p.LowConfidenceFlag,
	}
	for env, value := range scores {
		if value < 0 || value > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %d", env, value)
		}
	}
	positives := map[string]int{
		EnvPipelineRollupLookbackDays:  p.RollupLookbackDays,
		EnvPipelineLeadTimeDays:        p.LeadTimeDays,
		EnvPipelineLargeQuantityFactor: p.LargeQuantityFactor,
		EnvPipelineForecastConcurrency: p.ForecastConcurrency,
	}
	for env, value := range positives {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", env, value)
		}
	}
	if p.ForecastMaxAge < 0 {
		return fmt.Errorf("%s must not be negative, got %s", EnvPipelineForecastMaxAge, p.ForecastMaxAge)
	}
	return nil
}

// TracingConfig controls OpenTelemetry export. With no endpoint, spans go to stdout.
type TracingConfig struct {
	Enabled     bool    `envconfig:"FIELDSTOCK_OTEL_ENABLED" default:"false"`
	Endpoint    string  `envconfig:"FIELDSTOCK_OTEL_ENDPOINT"`
	Insecure    bool    `envconfig:"FIELDSTOCK_OTEL_INSECURE" default:"false"`
	SampleRatio float64 `envconfig:"FIELDSTOCK_OTEL_SAMPLE_RATIO" default:"0.1"`
	Version     string  `envconfig:"FIELDSTOCK_VERSION" default:"dev"`
}

type FieldServiceConfig struct {
	BaseURL       string        `envconfig:"FIELDSTOCK_FIELDSVC_BASE_URL" default:"http://localhost:9090"`
	APIKey        string        `envconfig:"FIELDSTOCK_FIELDSVC_API_KEY"`
	Timeout       time.Duration `envconfig:"FIELDSTOCK_FIELDSVC_TIMEOUT" default:"10s"`
	TrustCacheTTL time.Duration `envconfig:"FIELDSTOCK_FIELDSVC_TRUST_CACHE_TTL" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
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
