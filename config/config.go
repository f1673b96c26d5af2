package config

import (
	"fmt"
	"time"

	"github.com/Ramsey-B/thistle/pkg/drafting"
	"github.com/Ramsey-B/thistle/pkg/ingest"
	"github.com/Ramsey-B/thistle/pkg/linking"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/profiles"
	"github.com/Ramsey-B/thistle/pkg/queue"
	"github.com/Ramsey-B/thistle/pkg/scheduler"
	"github.com/Ramsey-B/thistle/pkg/sla"
	"github.com/Ramsey-B/thistle/pkg/synchealth"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"thistle"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`

	StartupMaxAttempts int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`

	// memory or postgres
	StoreDriver string `env:"STORE_DRIVER" env-default:"postgres"`

	DatabaseHost                string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"thistle"`
	DatabaseSSLMode             string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0"`

	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Redis Streams settings
	RedisStreamsJobQueue      string `env:"REDIS_STREAMS_JOB_QUEUE" env-default:"thistle:sync-jobs"`
	RedisStreamsConsumerGroup string `env:"REDIS_STREAMS_CONSUMER_GROUP" env-default:"thistle-workers"`
	// Consumer name (defaults to hostname if empty)
	RedisStreamsConsumerName string `env:"REDIS_STREAMS_CONSUMER_NAME" env-default:""`
	WorkerCount              int    `env:"WORKER_COUNT" env-default:"4"`

	// Kafka is disabled when no brokers are set
	KafkaBrokers           string `env:"KAFKA_BROKERS" env-default:""`
	KafkaInteractionsTopic string `env:"KAFKA_INTERACTIONS_TOPIC" env-default:"thistle.interactions"`
	KafkaAlertsTopic       string `env:"KAFKA_ALERTS_TOPIC" env-default:"thistle.sync-alerts"`

	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// grpc or http
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`

	// JSON file describing the marketplace feeds, see LoadFeeds
	FeedsFile         string        `env:"FEEDS_FILE" env-default:"feeds.json"`
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" env-default:"30s"`

	IngestBatchSize    int           `env:"INGEST_BATCH_SIZE" env-default:"100"`
	IngestMaxBatches   int           `env:"INGEST_MAX_BATCHES" env-default:"50"`
	IngestSoftBudget   time.Duration `env:"INGEST_SOFT_BUDGET" env-default:"2m"`
	IngestHardBudget   time.Duration `env:"INGEST_HARD_BUDGET" env-default:"5m"`
	IngestMaxRetries   int           `env:"INGEST_MAX_RETRIES" env-default:"2"`
	IngestRetryBackoff time.Duration `env:"INGEST_RETRY_BACKOFF" env-default:"2s"`
	IngestLockMargin   time.Duration `env:"INGEST_LOCK_MARGIN" env-default:"30s"`

	DraftingEnabled bool          `env:"DRAFTING_ENABLED" env-default:"false"`
	DraftingURL     string        `env:"DRAFTING_URL" env-default:""`
	DraftingAPIKey  string        `env:"DRAFTING_API_KEY" env-default:""`
	DraftingModel   string        `env:"DRAFTING_MODEL" env-default:""`
	DraftingTimeout time.Duration `env:"DRAFTING_TIMEOUT" env-default:"20s"`

	SLADefaultDeadlineMinutes int    `env:"SLA_DEFAULT_DEADLINE_MINUTES" env-default:"1440"`
	SLADefaultPriority        string `env:"SLA_DEFAULT_PRIORITY" env-default:"normal"`
	SLAEscalationPriority     string `env:"SLA_ESCALATION_PRIORITY" env-default:"urgent"`
	SLASweepBatchSize         int    `env:"SLA_SWEEP_BATCH_SIZE" env-default:"500"`

	LinkMinConfidence  float64       `env:"LINK_MIN_CONFIDENCE" env-default:"0.5"`
	LinkWindow         time.Duration `env:"LINK_WINDOW" env-default:"72h"`
	LinkMaxCandidates  int           `env:"LINK_MAX_CANDIDATES" env-default:"200"`
	LinkWeightCustomer float64       `env:"LINK_WEIGHT_CUSTOMER" env-default:"0.45"`
	LinkWeightOrder    float64       `env:"LINK_WEIGHT_ORDER" env-default:"0.45"`
	LinkWeightProduct  float64       `env:"LINK_WEIGHT_PRODUCT" env-default:"0.25"`
	LinkWeightTemporal float64       `env:"LINK_WEIGHT_TEMPORAL" env-default:"0.10"`

	ProfileSentimentWindow    int     `env:"PROFILE_SENTIMENT_WINDOW" env-default:"5"`
	ProfileTrendThreshold     float64 `env:"PROFILE_TREND_THRESHOLD" env-default:"0.2"`
	ProfileComplaintThreshold int     `env:"PROFILE_COMPLAINT_THRESHOLD" env-default:"3"`
	ProfileVIPThreshold       int     `env:"PROFILE_VIP_THRESHOLD" env-default:"10"`

	HealthFreshnessWindow         time.Duration `env:"HEALTH_FRESHNESS_WINDOW" env-default:"3h"`
	HealthErrorWindow             time.Duration `env:"HEALTH_ERROR_WINDOW" env-default:"1h"`
	HealthErrorRateThreshold      float64       `env:"HEALTH_ERROR_RATE_THRESHOLD" env-default:"0.2"`
	HealthMinAttempts             int           `env:"HEALTH_MIN_ATTEMPTS" env-default:"1"`
	HealthRateLimitStreak         int           `env:"HEALTH_RATE_LIMIT_STREAK" env-default:"3"`
	HealthQualityFailureThreshold float64       `env:"HEALTH_QUALITY_FAILURE_THRESHOLD" env-default:"0.5"`
	HealthMinDraftRequests        int           `env:"HEALTH_MIN_DRAFT_REQUESTS" env-default:"3"`

	// Enable/disable the scheduler
	SchedulerEnabled        bool          `env:"SCHEDULER_ENABLED" env-default:"true"`
	SchedulerPollInterval   time.Duration `env:"SCHEDULER_POLL_INTERVAL" env-default:"30s"`
	SchedulerSweepInterval  time.Duration `env:"SCHEDULER_SWEEP_INTERVAL" env-default:"1m"`
	SchedulerHealthInterval time.Duration `env:"SCHEDULER_HEALTH_INTERVAL" env-default:"5m"`
	SchedulerLockTTL        time.Duration `env:"SCHEDULER_LOCK_TTL" env-default:"60s"`
	SchedulerBatchSize      int           `env:"SCHEDULER_BATCH_SIZE" env-default:"100"`
}

// Validate rejects settings that the subsystems cannot default their way out of.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	if !models.Priority(c.SLADefaultPriority).Valid() {
		return fmt.Errorf("SLA_DEFAULT_PRIORITY %q is not a priority", c.SLADefaultPriority)
	}
	if !models.Priority(c.SLAEscalationPriority).Valid() {
		return fmt.Errorf("SLA_ESCALATION_PRIORITY %q is not a priority", c.SLAEscalationPriority)
	}
	if c.IngestSoftBudget > c.IngestHardBudget {
		return fmt.Errorf("INGEST_SOFT_BUDGET (%s) exceeds INGEST_HARD_BUDGET (%s)", c.IngestSoftBudget, c.IngestHardBudget)
	}
	if c.DraftingEnabled && c.DraftingURL == "" {
		return fmt.Errorf("DRAFTING_URL is required when DRAFTING_ENABLED is set")
	}
	return nil
}

func (c Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DatabaseUserName, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName, c.DatabaseSSLMode)
}

func (c Config) Ingest() ingest.Config {
	return ingest.Config{
		BatchSize:       c.IngestBatchSize,
		MaxBatches:      c.IngestMaxBatches,
		SoftBudget:      c.IngestSoftBudget,
		HardBudget:      c.IngestHardBudget,
		MaxRetries:      c.IngestMaxRetries,
		RetryBackoff:    c.IngestRetryBackoff,
		LockMargin:      c.IngestLockMargin,
		DraftingEnabled: c.DraftingEnabled,
	}
}

func (c Config) Drafting() drafting.Config {
	return drafting.Config{
		Enabled: c.DraftingEnabled,
		URL:     c.DraftingURL,
		APIKey:  c.DraftingAPIKey,
		Model:   c.DraftingModel,
		Timeout: c.DraftingTimeout,
	}
}

func (c Config) SLA() sla.Config {
	return sla.Config{
		DefaultPriority:    models.Priority(c.SLADefaultPriority),
		DefaultDeadline:    time.Duration(c.SLADefaultDeadlineMinutes) * time.Minute,
		EscalationPriority: models.Priority(c.SLAEscalationPriority),
		SweepBatchSize:     c.SLASweepBatchSize,
	}
}

func (c Config) Linking() linking.Config {
	return linking.Config{
		Weights: linking.Weights{
			Customer: c.LinkWeightCustomer,
			Order:    c.LinkWeightOrder,
			Product:  c.LinkWeightProduct,
			Temporal: c.LinkWeightTemporal,
		},
		MinConfidence: c.LinkMinConfidence,
		Window:        c.LinkWindow,
		MaxCandidates: c.LinkMaxCandidates,
	}
}

func (c Config) Profiles() profiles.Config {
	return profiles.Config{
		SentimentWindow:    c.ProfileSentimentWindow,
		TrendThreshold:     c.ProfileTrendThreshold,
		ComplaintThreshold: c.ProfileComplaintThreshold,
		VIPThreshold:       c.ProfileVIPThreshold,
	}
}

func (c Config) SyncHealth() synchealth.Config {
	return synchealth.Config{
		FreshnessWindow:         c.HealthFreshnessWindow,
		ErrorWindow:             c.HealthErrorWindow,
		ErrorRateThreshold:      c.HealthErrorRateThreshold,
		MinAttempts:             c.HealthMinAttempts,
		RateLimitStreak:         c.HealthRateLimitStreak,
		QualityFailureThreshold: c.HealthQualityFailureThreshold,
		MinDraftRequests:        c.HealthMinDraftRequests,
	}
}

func (c Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		PollInterval:   c.SchedulerPollInterval,
		SweepInterval:  c.SchedulerSweepInterval,
		HealthInterval: c.SchedulerHealthInterval,
		LockTTL:        c.SchedulerLockTTL,
		BatchSize:      c.SchedulerBatchSize,
	}
}

func (c Config) Queue() queue.ProcessorConfig {
	cfg := queue.DefaultProcessorConfig()
	cfg.Stream = c.RedisStreamsJobQueue
	cfg.Group = c.RedisStreamsConsumerGroup
	if c.RedisStreamsConsumerName != "" {
		cfg.ConsumerName = c.RedisStreamsConsumerName
	}
	cfg.WorkerCount = c.WorkerCount
	return cfg
}
