package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

// LookupFunc returns the raw value of one variable and whether it is set.
type LookupFunc func(key string) (string, bool)

// Load reads the process environment, applies defaults and validates.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load over an arbitrary variable source. Every missing or
// malformed variable is reported, not just the first.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	l := loader{lookup: lookup}
	l.fill(reflect.ValueOf(cfg).Elem())
	if err := errors.Join(l.errs...); err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "config load", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "config validation", err)
	}
	return cfg, nil
}

type loader struct {
	lookup LookupFunc
	errs   []error
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// fill walks the struct tree. Tags: env names the variable, envAlt a
// fallback name, default the value used when both are unset or blank,
// required="true" makes absence an error.
func (l *loader) fill(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct && field.Type != timeType {
			l.fill(fv)
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		raw := l.get(name)
		if raw == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				raw = l.get(alt)
			}
		}
		if raw == "" {
			if field.Tag.Get("required") == "true" {
				l.errs = append(l.errs, fmt.Errorf("required environment variable %s is not set", name))
				continue
			}
			raw = field.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid value for %s=%q: %w", name, raw, err))
		}
	}
}

func (l *loader) get(key string) string {
	v, _ := l.lookup(key)
	return strings.TrimSpace(v)
}

// assign parses raw into the field's type.
func assign(fv reflect.Value, raw string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
	case fv.Kind() == reflect.String:
		fv.SetString(raw)
	case fv.Kind() == reflect.Int || fv.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		fv.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Engine validation
	if c.Engine.DataDir == "" {
		errs = append(errs, "ENGINE_DATA_DIR is required")
	}
	if c.Engine.ExtensionDir == "" {
		errs = append(errs, "ENGINE_EXTENSION_DIR must not be empty")
	}
	if c.Engine.Threads < 0 {
		errs = append(errs, "ENGINE_THREADS must be non-negative")
	}
	if c.Engine.DefaultRowCap <= 0 {
		errs = append(errs, "ENGINE_DEFAULT_ROW_CAP must be positive")
	}
	if c.Engine.MaxRowCap < c.Engine.DefaultRowCap {
		errs = append(errs, fmt.Sprintf("ENGINE_MAX_ROW_CAP (%d) must be >= ENGINE_DEFAULT_ROW_CAP (%d)",
			c.Engine.MaxRowCap, c.Engine.DefaultRowCap))
	}

	// Object store validation
	if c.ObjectStore.Enabled() {
		if strings.Contains(c.ObjectStore.Endpoint, "://") {
			errs = append(errs, "OBJECT_STORE_ENDPOINT must not include a scheme; use OBJECT_STORE_USE_SSL")
		}
		if (c.ObjectStore.AccessKey == "") != (c.ObjectStore.SecretKey == "") {
			errs = append(errs, "OBJECT_STORE_ACCESS_KEY and OBJECT_STORE_SECRET_KEY must be set together")
		}
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	// Binder validation
	if c.Binder.ProbeEnabled && c.Binder.ProbeTimeout <= 0 {
		errs = append(errs, "BINDER_PROBE_TIMEOUT must be positive when probing is enabled")
	}

	// Init validation
	if c.Init.MaxConcurrent <= 0 {
		errs = append(errs, "INIT_MAX_CONCURRENT must be positive")
	}
	if c.Init.MaxWaitTime <= 0 {
		errs = append(errs, "INIT_MAX_WAIT_TIME must be positive")
	}

	// Sandbox validation
	if c.Sandbox.Interpreter == "" {
		errs = append(errs, "SANDBOX_INTERPRETER must not be empty")
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, "SANDBOX_TIMEOUT must be positive")
	}
	if c.Sandbox.MaxTimeout < c.Sandbox.Timeout {
		errs = append(errs, "SANDBOX_MAX_TIMEOUT must be >= SANDBOX_TIMEOUT")
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		errs = append(errs, "SANDBOX_MAX_OUTPUT_BYTES must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.CredentialKey != "" && len(c.Security.CredentialKey) != 64 {
		errs = append(errs, "CREDENTIAL_KEY must be 64 hex characters (32 bytes)")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Secrets like object store keys and the credential key are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Engine: {DataDir: %q, ExtensionDir: %q, DefaultRowCap: %d, MaxRowCap: %d}, ",
		c.Engine.DataDir, c.Engine.ExtensionDir, c.Engine.DefaultRowCap, c.Engine.MaxRowCap))
	b.WriteString(fmt.Sprintf("ObjectStore: {Endpoint: %q, AccessKey: %s, SecretKey: %s}, ",
		c.ObjectStore.Endpoint, mask(c.ObjectStore.AccessKey), mask(c.ObjectStore.SecretKey)))
	b.WriteString(fmt.Sprintf("Init: {MaxConcurrent: %d}, ", c.Init.MaxConcurrent))
	b.WriteString(fmt.Sprintf("Sandbox: {Interpreter: %q, Timeout: %s}, ", c.Sandbox.Interpreter, c.Sandbox.Timeout))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {CredentialKey: %s}, ", mask(c.Security.CredentialKey)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

// mask hides a secret while still showing whether it is set.
func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
