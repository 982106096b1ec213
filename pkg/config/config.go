package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"eventmarket/pkg/client"
	"eventmarket/pkg/logger"
)

type Config struct {
	StorageDriver string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	PostgresDSN string
	SQLitePath  string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LockLeaseDuration     time.Duration
	LockHeartbeatInterval time.Duration
	LockWaitPollInterval  time.Duration
	LockMaxWait           time.Duration
	LockSweepInterval     time.Duration

	IdentityCacheSize int

	KafkaEnabled            bool
	KafkaTopicLockEvents    string
	KafkaTopicJobCartEvents string
	KafkaDLQTopic           string

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the configuration from the environment and exits the process when it is invalid.
func Load(serviceName string) *Config {
	cfg := FromEnv(serviceName)

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from environment variables without validating it.
func FromEnv(serviceName string) *Config {
	return &Config{
		StorageDriver: getEnvStr(EnvStorageDriver, DefaultStorageDriver),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		PostgresDSN: getEnvStr(EnvPostgresDSN, DefaultPostgresDSN),
		SQLitePath:  getEnvStr(EnvSQLitePath, DefaultSQLitePath),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		LockLeaseDuration:     getEnvDuration(EnvLockLeaseDuration, DefaultLockLeaseDuration),
		LockHeartbeatInterval: getEnvDuration(EnvLockHeartbeatInterval, DefaultLockHeartbeatInterval),
		LockWaitPollInterval:  getEnvDuration(EnvLockWaitPollInterval, DefaultLockWaitPollInterval),
		LockMaxWait:           getEnvDuration(EnvLockMaxWait, DefaultLockMaxWait),
		LockSweepInterval:     getEnvDuration(EnvLockSweepInterval, DefaultLockSweepInterval),

		IdentityCacheSize: getEnvNum(EnvIdentityCacheSize, DefaultIdentityCacheSize),

		KafkaEnabled:            getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		KafkaTopicLockEvents:    getEnvStr(EnvKafkaTopicLockEvents, DefaultKafkaTopicLockEvents),
		KafkaTopicJobCartEvents: getEnvStr(EnvKafkaTopicJobCartEvents, DefaultKafkaTopicJobCartEvents),
		KafkaDLQTopic:           getEnvStr(EnvKafkaDLQTopic, DefaultKafkaDLQTopic),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

// SetStorage connects the client for the configured storage driver.
func (cfg *Config) SetStorage() {
	switch cfg.StorageDriver {
	case StoragePostgres:
		cfg.Client.SetPostgres(cfg.Log, cfg.PostgresDSN, cfg.MongoConnTimeout)
	case StorageSQLite:
		cfg.Client.SetSQLite(cfg.Log, cfg.SQLitePath)
	default:
		cfg.SetMongo()
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// Ping checks the configured storage backend.
func (cfg *Config) Ping(ctx context.Context) error {
	return cfg.Client.Ping(ctx)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StorageDriver {
	case StorageMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StoragePostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresDSN) {
			errors = append(errors, "PostgresDSN must start with 'postgres://' or 'postgresql://'")
		}
	case StorageSQLite:
		if cfg.SQLitePath == "" {
			errors = append(errors, "SQLitePath cannot be empty")
		}
	default:
		errors = append(errors, fmt.Sprintf("StorageDriver must be one of [mongo, postgres, sqlite], got: %s", cfg.StorageDriver))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.LockLeaseDuration <= 0 {
		errors = append(errors, fmt.Sprintf("LockLeaseDuration must be positive, got: %s", cfg.LockLeaseDuration))
	}
	if cfg.LockHeartbeatInterval <= 0 || cfg.LockHeartbeatInterval*2 > cfg.LockLeaseDuration {
		errors = append(errors, fmt.Sprintf("LockHeartbeatInterval (%s) must be positive and at most half of LockLeaseDuration (%s)", cfg.LockHeartbeatInterval, cfg.LockLeaseDuration))
	}
	if cfg.LockWaitPollInterval <= 0 {
		errors = append(errors, fmt.Sprintf("LockWaitPollInterval must be positive, got: %s", cfg.LockWaitPollInterval))
	}
	if cfg.LockMaxWait <= 0 || cfg.LockMaxWait >= cfg.RequestTimeout || cfg.LockMaxWait >= cfg.WriteTimeout {
		errors = append(errors, fmt.Sprintf("LockMaxWait (%s) must be positive and below RequestTimeout (%s) and WriteTimeout (%s)", cfg.LockMaxWait, cfg.RequestTimeout, cfg.WriteTimeout))
	}
	if cfg.LockMaxWait > client.MaxServerWait {
		errors = append(errors, fmt.Sprintf("LockMaxWait (%s) must not exceed %s", cfg.LockMaxWait, client.MaxServerWait))
	}
	if cfg.LockSweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("LockSweepInterval must be positive, got: %s", cfg.LockSweepInterval))
	}
	if cfg.IdentityCacheSize <= 0 {
		errors = append(errors, fmt.Sprintf("IdentityCacheSize must be positive, got: %d", cfg.IdentityCacheSize))
	}

	if cfg.KafkaEnabled {
		if cfg.KafkaTopicLockEvents == "" {
			errors = append(errors, "KafkaTopicLockEvents cannot be empty when Kafka is enabled")
		}
		if cfg.KafkaTopicJobCartEvents == "" {
			errors = append(errors, "KafkaTopicJobCartEvents cannot be empty when Kafka is enabled")
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"storage_driver", cfg.StorageDriver,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"postgres_dsn", redactPostgresDSN(cfg.PostgresDSN),
		"sqlite_path", cfg.SQLitePath,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"lock_lease_duration", cfg.LockLeaseDuration,
		"lock_heartbeat_interval", cfg.LockHeartbeatInterval,
		"lock_wait_poll_interval", cfg.LockWaitPollInterval,
		"lock_max_wait", cfg.LockMaxWait,
		"lock_sweep_interval", cfg.LockSweepInterval,
		"identity_cache_size", cfg.IdentityCacheSize,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_topic_lock_events", cfg.KafkaTopicLockEvents,
		"kafka_topic_job_cart_events", cfg.KafkaTopicJobCartEvents,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func redactPostgresDSN(dsn string) string {
	credentialRegex := regexp.MustCompile(`(postgres(ql)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(dsn, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
