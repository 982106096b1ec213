package config

const (
	EnvStorageDriver = "STORAGE_DRIVER"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresDSN = "POSTGRES_DSN"
	EnvSQLitePath  = "SQLITE_PATH"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLockLeaseDuration     = "LOCK_LEASE_DURATION"
	EnvLockHeartbeatInterval = "LOCK_HEARTBEAT_INTERVAL"
	EnvLockWaitPollInterval  = "LOCK_WAIT_POLL_INTERVAL"
	EnvLockMaxWait           = "LOCK_MAX_WAIT"
	EnvLockSweepInterval     = "LOCK_SWEEP_INTERVAL"

	EnvIdentityCacheSize = "IDENTITY_CACHE_SIZE"

	EnvKafkaEnabled            = "KAFKA_ENABLED"
	EnvKafkaTopicLockEvents    = "KAFKA_TOPIC_LOCK_EVENTS"
	EnvKafkaTopicJobCartEvents = "KAFKA_TOPIC_JOB_CART_EVENTS"
	EnvKafkaDLQTopic           = "KAFKA_DLQ_TOPIC"
)
