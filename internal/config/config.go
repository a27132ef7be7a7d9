package config

import (
	"github.com/catalystcommunity/app-utils-go/env"
)

var (
	// DbUri is the database connection string
	DbUri string

	// Port is the HTTP server port for /metrics and /healthz
	Port int

	// WorkerStartupTimeoutMs bounds the readiness poll in the lifecycle manager
	WorkerStartupTimeoutMs = env.GetEnvAsIntOrDefault("WORKER_STARTUP_TIMEOUT_MS", "120000")

	// WorkerCheckIntervalMs is the default readiness poll interval
	WorkerCheckIntervalMs = env.GetEnvAsIntOrDefault("WORKER_CHECK_INTERVAL_MS", "3000")

	// WorkerApiTimeoutMs bounds every HTTP call made to a worker
	WorkerApiTimeoutMs = env.GetEnvAsIntOrDefault("WORKER_API_TIMEOUT_MS", "5000")

	// SamplerIntervalMs is the default metric sampler tick interval
	SamplerIntervalMs = env.GetEnvAsIntOrDefault("SAMPLER_INTERVAL_MS", "5000")

	// WorkerDefaultHost is used when a worker's options don't specify one
	WorkerDefaultHost = env.GetEnvOrDefault("WORKER_DEFAULT_HOST", "127.0.0.1")

	// WorkerBasePort is the starting point for the port allocator
	WorkerBasePort = env.GetEnvAsIntOrDefault("WORKER_BASE_PORT", "8188")

	// NvidiaSmiPath is the path/name of the NVIDIA query tool used by the platform probe
	NvidiaSmiPath = env.GetEnvOrDefault("NVIDIA_SMI_PATH", "nvidia-smi")

	// GracefulShutdownTimeoutMs bounds SIGTERM-then-wait before SIGKILL escalation
	GracefulShutdownTimeoutMs = env.GetEnvAsIntOrDefault("WORKER_GRACEFUL_SHUTDOWN_TIMEOUT_MS", "5000")

	// DbConnectMaxRetries bounds the store's connect-with-backoff loop
	DbConnectMaxRetries = env.GetEnvAsIntOrDefault("DB_CONNECT_MAX_RETRIES", "5")

	// DbConnectRetryIntervalSeconds is the backoff unit between connect attempts
	DbConnectRetryIntervalSeconds = env.GetEnvAsIntOrDefault("DB_CONNECT_RETRY_INTERVAL_SECONDS", "2")

	// RuntimePathOverride, if set, short-circuits the runtime locator's search
	RuntimePathOverride = env.GetEnvOrDefault("RUNTIME_PATH", "")

	// SQLLoggerLevel controls gorm's logger verbosity (silent, error, warn, info)
	SQLLoggerLevel = env.GetEnvOrDefault("SQL_LOGGER_LEVEL", "warn")
)
