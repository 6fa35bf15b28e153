package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// oneOf records an error unless value is one of allowed.
func (r *ValidationResult) oneOf(field, what, value string, allowed ...string) {
	if slices.Contains(allowed, value) {
		return
	}
	var named []string
	for _, a := range allowed {
		if a != "" {
			named = append(named, a)
		}
	}
	r.addError(field, fmt.Sprintf("invalid %s %q", what, value), "valid values are: "+strings.Join(named, ", "))
}

func (r *ValidationResult) notNegative(field string, value int) {
	if value < 0 {
		r.addError(field, fmt.Sprintf("%s cannot be negative", leaf(field)), "")
	}
}

func (r *ValidationResult) notNegativeDuration(field string, value time.Duration) {
	if value < 0 {
		r.addError(field, fmt.Sprintf("%s cannot be negative", leaf(field)), "")
	}
}

func (r *ValidationResult) portInRange(field string, port int) {
	if port < 1 || port > 65535 {
		r.addError(field, fmt.Sprintf("port %d is out of valid range (1-65535)", port), "")
	}
}

// leaf is the last segment of a dotted key.
func leaf(field string) string {
	return field[strings.LastIndex(field, ".")+1:]
}

// Validate reports fatal errors and non-fatal warnings for the whole
// configuration. It never stops at the first problem.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Cache.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	switch d.Driver {
	case DriverSQLite:
		if strings.TrimSpace(d.Path) == "" {
			result.addError("database.path", "path is required for the sqlite driver", "point database.path at a knowledgebase snapshot")
		}
		if d.ConnectionString != "" || d.ConnectionStringFile != "" {
			result.addWarning("database.dsn", "dsn is ignored by the sqlite driver", "set database.driver=mysql to use a DSN")
		}
	case DriverMySQL:
		d.validateMySQL(result)
	default:
		result.oneOf("database.driver", "driver", d.Driver, DriverSQLite, DriverMySQL)
	}

	result.notNegative("database.pool.max_open", d.Pool.MaxOpen)
	result.notNegative("database.pool.max_idle", d.Pool.MaxIdle)
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.addWarning("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	timeout, retry := d.ConnectionTimeout, d.ConnectionRetryInterval
	result.notNegativeDuration("database.connection_timeout", timeout)
	result.notNegativeDuration("database.connection_retry_interval", retry)
	switch {
	case timeout <= 0:
	case retry == 0:
		result.addError("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	case retry > timeout:
		result.addWarning("database.connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
}

func (d *DatabaseConfig) validateMySQL(result *ValidationResult) {
	if d.ConnectionString == "" {
		result.portInRange("database.port", d.Port)
	}
	d.TLS.validate(result)

	name, _, err := resolveEffectiveDatabaseName(d.Database, d.ConnectionString)
	switch {
	case err == nil:
		d.Database = name
	case strings.HasPrefix(err.Error(), "database.dsn"):
		result.addError("database.dsn", err.Error(), "set a valid MySQL DSN in database.dsn/database.dsn_file")
	case strings.Contains(err.Error(), "mismatch"):
		result.addError("database.database", err.Error(), "either remove database.database or set it to match the DSN database")
	default:
		result.addError("database.database", err.Error(), "set database.database or include a /database in database.dsn")
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	result.oneOf("database.tls.mode", "TLS mode", t.Mode, "", "off", "skip-verify", "verify-ca", "verify-full")

	switch t.Mode {
	case "verify-ca", "verify-full":
		if t.resolveCAFile() == "" {
			result.addError("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "set ca_file or ca_file_env to specify the CA certificate")
		}
	case "skip-verify":
		result.addWarning("database.tls.mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}

	if (t.resolveCertFile() == "") != (t.resolveKeyFile() == "") {
		result.addError("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	result.portInRange("server.port", s.Port)

	switch {
	case s.RateLimitEnabled:
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	case s.RateLimitRPS > 0 || s.RateLimitBurst > 0:
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled", "enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		s.validateCORS(result)
	}
	for _, method := range s.CORSAllowedMethods {
		if !slices.Contains([]string{"GET", "HEAD", "OPTIONS"}, strings.ToUpper(strings.TrimSpace(method))) {
			result.addWarning("server.cors_allowed_methods", fmt.Sprintf("method %q is allowed but no route accepts it", method), "the API is read-only")
		}
	}

	result.oneOf("server.tls_mode", "TLS mode", s.TLSMode, "", "off", "auto", "file")
	if s.TLSMode == "file" {
		if s.TLSCertFile == "" {
			result.addError("server.tls_cert_file", "TLS cert file required when tls_mode is 'file'", "")
		}
		if s.TLSKeyFile == "" {
			result.addError("server.tls_key_file", "TLS key file required when tls_mode is 'file'", "")
		}
	}
}

func (s *ServerConfig) validateCORS(result *ValidationResult) {
	const field = "server.cors_allowed_origins"
	if len(s.CORSAllowedOrigins) == 0 {
		result.addError(field, "CORS enabled but no allowed origins configured", "set cors_allowed_origins or disable CORS")
		return
	}

	wildcard := slices.ContainsFunc(s.CORSAllowedOrigins, func(o string) bool {
		return strings.TrimSpace(o) == "*"
	})
	plainHTTP := !slices.ContainsFunc(s.CORSAllowedOrigins, func(o string) bool {
		return !strings.HasPrefix(strings.TrimSpace(o), "http://")
	})

	if wildcard {
		if s.CORSAllowCredentials {
			result.addError(field, "wildcard origin (*) cannot be used with credentials", "use specific origins with credentials, or wildcard without credentials")
		}
		result.addWarning(field, "CORS wildcard origin enabled", "use specific origins in production")
	}
	if plainHTTP && s.TLSMode != "" && s.TLSMode != "off" {
		result.addWarning(field, "CORS allowed origins are http:// only while TLS is enabled", "use https:// origins when serving over TLS")
	}
}

func (c *CacheConfig) validate(result *ValidationResult) {
	switch {
	case c.AboutTTL < 0:
		result.addError("cache.about_ttl", "about_ttl cannot be negative", "")
	case c.AboutTTL == 0:
		result.addWarning("cache.about_ttl", "about_ttl is 0; the About record is reloaded on every request", "set a TTL such as 5m")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	result.oneOf("observability.logging.level", "log level", o.Logging.Level, "debug", "info", "warn", "error")
	result.oneOf("observability.logging.format", "log format", o.Logging.Format, "json", "text")

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", fmt.Sprintf("trace_sample_ratio %v is outside 0.0-1.0", o.TraceSampleRatio), "")
	}

	o.OTLP.validate("observability.otlp", result)
	for prefix, signal := range map[string]*OTLPConfig{
		"observability.traces":  o.Traces,
		"observability.logs":    o.Logs,
		"observability.metrics": o.Metrics,
	} {
		if signal != nil {
			signal.validate(prefix, result)
		}
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	result.oneOf(prefix+".protocol", "OTLP protocol", o.Protocol, "", "grpc", "http/protobuf")
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
	result.oneOf(prefix+".compression", "OTLP compression", o.Compression, "", "none", "gzip")
	result.notNegative(prefix+".retry_max_attempts", o.RetryMaxAttempts)
}

// validOTLPEndpoint accepts host:port or an absolute URL.
func validOTLPEndpoint(endpoint string) bool {
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		return err == nil && parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return endpoint != "" && err == nil
}
