package app

import "time"

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

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, WARDEN_AUTH_SECRET MUST be set (>= 32 bytes) and identity
	// resolution must be JWT-based; the dev header source is refused.
	RequireAuthSecret bool

	AuthSecret string
	AuthIssuer string
	UserHeader string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("WARDEN_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("WARDEN_LOG_LEVEL", "info"),
		LogFormat: EnvString("WARDEN_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("WARDEN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WARDEN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WARDEN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WARDEN_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("WARDEN_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("WARDEN_DATABASE_URL", ""),
		DBSchema:    EnvString("WARDEN_DB_SCHEMA", "warden"),
		DBMaxConns:  EnvInt32("WARDEN_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WARDEN_DB_MIN_CONNS", 0),

		CORSAllowedOrigins:   EnvStringList("WARDEN_CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),
		CORSAllowCredentials: EnvBool("WARDEN_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("WARDEN_CORS_MAX_AGE_SECONDS", 600),

		ReadinessRequireDB: EnvBool("WARDEN_READINESS_REQUIRE_DB", false),

		RequireAuthSecret: EnvBool("WARDEN_REQUIRE_AUTH_SECRET", false),

		AuthSecret: EnvString("WARDEN_AUTH_SECRET", ""),
		AuthIssuer: EnvString("WARDEN_AUTH_ISSUER", ""),
		UserHeader: EnvString("WARDEN_USER_HEADER", "X-Warden-User"),
	}
}
