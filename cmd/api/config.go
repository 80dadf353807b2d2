package main

import (
	"log/slog"
	"time"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" default:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"15s"`

	PostgresDSN string `env:"PG_DSN"`

	LedgerGatewayURL string        `env:"LEDGER_GATEWAY_URL"`
	LedgerTimeout    time.Duration `env:"LEDGER_CALL_TIMEOUT" default:"10s"`

	PayoutRetryAttempts  int           `env:"PAYOUT_RETRY_ATTEMPTS" default:"3"`
	PayoutRetryBaseDelay time.Duration `env:"PAYOUT_RETRY_BASE_DELAY" default:"500ms"`
	PayoutRetryMaxDelay  time.Duration `env:"PAYOUT_RETRY_MAX_DELAY" default:"5s"`

	RecoveryPollInterval time.Duration `env:"RECOVERY_POLL_INTERVAL" default:"30s"`
	RecoveryBaseDelay    time.Duration `env:"RECOVERY_BASE_DELAY" default:"1m"`
	RecoveryMaxDelay     time.Duration `env:"RECOVERY_MAX_DELAY" default:"30m"`
	RecoveryMaxRetries   int           `env:"RECOVERY_MAX_RETRIES" default:"10"`

	ReaperSweepInterval time.Duration `env:"REAPER_SWEEP_INTERVAL" default:"15s"`
	ReaperPendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" default:"1m"`
	ReaperPurgeInterval time.Duration `env:"REAPER_PURGE_INTERVAL" default:"1h"`
	ReaperRetention     time.Duration `env:"REAPER_RETENTION" default:"720h"`

	// Empty brokers means alerts go to the structured log only.
	AlertKafkaBrokers string `env:"ALERT_KAFKA_BROKERS" default:""`
	AlertKafkaTopic   string `env:"ALERT_KAFKA_TOPIC" default:"custody.alerts"`
}
