package queue

import "time"

// Config holds the configuration for the task queue
type Config struct {
	PollInterval    time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout     time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxAttempts     int8          `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	KeyPrefix       string        `env:"QUEUE_KEY_PREFIX" envDefault:"publista:queue"`
}
