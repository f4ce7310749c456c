// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server      ServerConfig
	Engine      EngineConfig
	ObjectStore ObjectStoreConfig
	Binder      BinderConfig
	Init        InitConfig
	Sandbox     SandboxConfig
	Rate        RateLimitConfig
	Security    SecurityConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, bounded by RequestTimeout)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 120s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
}

// EngineConfig holds embedded analytical engine settings.
type EngineConfig struct {
	// DataDir is the root under which per-session directories are created (required)
	// Supports both ENGINE_DATA_DIR and SESSION_ROOT env vars for compatibility
	DataDir string `env:"ENGINE_DATA_DIR" envAlt:"SESSION_ROOT" required:"true"`

	// ExtensionDir is a writable directory for engine extensions (default: ./.duckdb/extensions)
	ExtensionDir string `env:"ENGINE_EXTENSION_DIR" default:".duckdb/extensions"`

	// Preload lists extensions installed once at startup
	Preload []string `env:"ENGINE_PRELOAD_EXTENSIONS" default:"httpfs,postgres,mysql,sqlite,excel"`

	// Threads caps engine worker threads per handle (default: 0, engine decides)
	Threads int `env:"ENGINE_THREADS" default:"0"`

	// DefaultRowCap is used when a caller does not supply a row cap (default: 1000)
	DefaultRowCap int `env:"ENGINE_DEFAULT_ROW_CAP" default:"1000"`

	// MaxRowCap is the largest row cap a caller may request (default: 10000)
	MaxRowCap int `env:"ENGINE_MAX_ROW_CAP" default:"10000"`
}

// ObjectStoreConfig holds S3-compatible object storage settings.
type ObjectStoreConfig struct {
	// Endpoint is host[:port] of the object store, without scheme (empty disables object sources)
	Endpoint string `env:"OBJECT_STORE_ENDPOINT"`

	// Region is the storage region (default: us-east-1)
	Region string `env:"OBJECT_STORE_REGION" default:"us-east-1"`

	// AccessKey is the access key id
	AccessKey string `env:"OBJECT_STORE_ACCESS_KEY"`

	// SecretKey is the secret access key
	SecretKey string `env:"OBJECT_STORE_SECRET_KEY"`

	// UseSSL toggles TLS to the endpoint (default: false)
	UseSSL bool `env:"OBJECT_STORE_USE_SSL" default:"false"`

	// PathStyle selects path-style addressing (default: true)
	PathStyle bool `env:"OBJECT_STORE_PATH_STYLE" default:"true"`
}

// BinderConfig holds external source binding settings.
type BinderConfig struct {
	// ProbeEnabled checks PostgreSQL reachability before attaching (default: true)
	ProbeEnabled bool `env:"BINDER_PROBE_ENABLED" default:"true"`

	// ProbeTimeout bounds the reachability probe (default: 5s)
	ProbeTimeout time.Duration `env:"BINDER_PROBE_TIMEOUT" default:"5s"`
}

// InitConfig holds session initialization concurrency settings.
type InitConfig struct {
	// MaxConcurrent is the maximum number of parallel session initializations (default: 4)
	MaxConcurrent int `env:"INIT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an initialization slot (default: 30s)
	MaxWaitTime time.Duration `env:"INIT_MAX_WAIT_TIME" default:"30s"`
}

// SandboxConfig holds script execution settings.
type SandboxConfig struct {
	// Interpreter is the program used to run caller scripts (default: python3)
	Interpreter string `env:"SANDBOX_INTERPRETER" default:"python3"`

	// Timeout is the default wall-clock limit for one script (default: 60s)
	Timeout time.Duration `env:"SANDBOX_TIMEOUT" default:"60s"`

	// MaxTimeout is the largest timeout a caller may request (default: 5m)
	MaxTimeout time.Duration `env:"SANDBOX_MAX_TIMEOUT" default:"5m"`

	// MaxOutputBytes caps captured stdout and stderr each (default: 1MB)
	MaxOutputBytes int `env:"SANDBOX_MAX_OUTPUT_BYTES" default:"1048576"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CredentialKey decrypts stored external database passwords (64 hex chars)
	CredentialKey string `env:"CREDENTIAL_KEY"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// Enabled reports whether object storage sources can be bound.
func (c *ObjectStoreConfig) Enabled() bool {
	return c.Endpoint != ""
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
