package config

const (
	DefaultTickIntervalMs       = 1000
	DefaultExecutionTimeoutMs   = 10000
	DefaultConnectRetryMs       = 5000
	DefaultMaxConcurrentRunners = 50
	DefaultResyncSpec           = "@every 1m"
	DefaultEventBufferSize      = 1024
	DefaultLogLevel             = "info"
	DefaultStorageDriver        = Postgres
	DefaultRedisChannel         = "stepfire:transactions"
	DefaultRabbitMQContentType  = "application/json"
)
