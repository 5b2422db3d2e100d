package app

import (
	"strings"
	"time"

	"eatsoon/cmd/internal/invitation"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Empty DatabaseURL runs with in-memory stores and no trigger listener.
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	NotifyChannel        string
	AcceptMaxAttempts    int
	CallableMaxBodyBytes int64
	CORSAllowedOrigins   []string
	CORSMaxAgeSeconds    int

	// Empty disables tracing.
	OTelEndpoint string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("EATSOON_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("EATSOON_LOG_LEVEL", "info"),
		LogFormat: EnvString("EATSOON_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("EATSOON_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("EATSOON_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("EATSOON_HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       EnvDuration("EATSOON_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("EATSOON_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("EATSOON_DATABASE_URL", ""),
		DBSchema:    EnvString("EATSOON_DB_SCHEMA", "eatsoon"),
		DBMaxConns:  EnvInt32("EATSOON_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("EATSOON_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("EATSOON_READINESS_REQUIRE_DB", false),

		NotifyChannel:        EnvString("EATSOON_NOTIFY_CHANNEL", invitation.DefaultNotifyChannel),
		AcceptMaxAttempts:    EnvInt("EATSOON_ACCEPT_MAX_ATTEMPTS", 5),
		CallableMaxBodyBytes: int64(EnvInt("EATSOON_CALLABLE_MAX_BODY_BYTES", 16<<10)),
		CORSAllowedOrigins:   EnvList("EATSOON_CORS_ALLOWED_ORIGINS"),
		CORSMaxAgeSeconds:    EnvInt("EATSOON_CORS_MAX_AGE_SECONDS", 600),

		OTelEndpoint: EnvString("EATSOON_OTEL_ENDPOINT", ""),
	}
}

func (c Config) prettyLogs() bool {
	return strings.EqualFold(strings.TrimSpace(c.LogFormat), "pretty")
}
