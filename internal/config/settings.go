package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// setting is one configuration key. The Go type of def picks the flag type.
type setting struct {
	key   string
	def   any
	usage string
	// flagOnly keys get no viper default, so an unset optional section
	// (observability.traces) stays nil after unmarshalling.
	flagOnly bool
}

var settings = []setting{
	{key: "database.driver", def: DriverSQLite, usage: "Database driver (sqlite, mysql)"},
	{key: "database.path", def: "moalmanac.sqlite3", usage: "Path to the SQLite knowledgebase snapshot"},
	{key: "database.dsn", def: "", usage: "Complete MySQL DSN (user:pass@tcp(host:port)/db)"},
	{key: "database.dsn_file", def: "", usage: "File holding the MySQL DSN (@- reads stdin)"},
	{key: "database.host", def: "localhost", usage: "MySQL host"},
	{key: "database.port", def: 3306, usage: "MySQL port"},
	{key: "database.user", def: "moalmanac", usage: "MySQL user"},
	{key: "database.password", def: "", usage: "MySQL password"},
	{key: "database.password_file", def: "", usage: "File holding the MySQL password (@- reads stdin)"},
	{key: "database.password_prompt", def: false, usage: "Prompt for the MySQL password"},
	{key: "database.database", def: "", usage: "MySQL schema holding the knowledgebase"},

	{key: "database.tls.mode", def: "", usage: "MySQL TLS mode (off, skip-verify, verify-ca, verify-full)"},
	{key: "database.tls.ca_file", def: "", usage: "CA certificate for server verification"},
	{key: "database.tls.ca_file_env", def: "", usage: "Env var holding the CA certificate path"},
	{key: "database.tls.cert_file", def: "", usage: "Client certificate for mTLS"},
	{key: "database.tls.cert_file_env", def: "", usage: "Env var holding the client certificate path"},
	{key: "database.tls.key_file", def: "", usage: "Client private key for mTLS"},
	{key: "database.tls.key_file_env", def: "", usage: "Env var holding the client key path"},
	{key: "database.tls.server_name", def: "", usage: "Server name expected by verify-full"},

	{key: "database.pool.max_open", def: 25, usage: "Maximum open connections"},
	{key: "database.pool.max_idle", def: 5, usage: "Maximum idle connections"},
	{key: "database.pool.max_lifetime", def: 5 * time.Minute, usage: "Connection max lifetime"},
	{key: "database.connection_timeout", def: 60 * time.Second, usage: "How long startup waits for the database (0 fails at once)"},
	{key: "database.connection_retry_interval", def: 2 * time.Second, usage: "Initial delay between connection attempts"},

	{key: "server.port", def: 8080, usage: "HTTP listen port"},
	{key: "server.read_only_sessions", def: true, usage: "Pin each request to a read-only database session"},
	{key: "server.rate_limit_enabled", def: false, usage: "Enable the global rate limit"},
	{key: "server.rate_limit_rps", def: 0.0, usage: "Rate limit in requests per second"},
	{key: "server.rate_limit_burst", def: 0, usage: "Rate limit burst size"},
	{key: "server.cors_enabled", def: false, usage: "Enable CORS"},
	{key: "server.cors_allowed_origins", def: []string{}, usage: "Allowed CORS origins"},
	{key: "server.cors_allowed_methods", def: []string{"GET", "OPTIONS"}, usage: "Allowed CORS methods"},
	{key: "server.cors_allowed_headers", def: []string{"Content-Type"}, usage: "Allowed CORS request headers"},
	{key: "server.cors_expose_headers", def: []string{}, usage: "Response headers exposed to browsers"},
	{key: "server.cors_allow_credentials", def: false, usage: "Allow credentialed CORS requests"},
	{key: "server.cors_max_age", def: 86400, usage: "Preflight cache lifetime in seconds"},
	{key: "server.read_timeout", def: 15 * time.Second, usage: "HTTP read timeout"},
	{key: "server.write_timeout", def: 30 * time.Second, usage: "HTTP write timeout"},
	{key: "server.idle_timeout", def: 60 * time.Second, usage: "HTTP idle timeout"},
	{key: "server.shutdown_timeout", def: 30 * time.Second, usage: "Graceful shutdown timeout"},
	{key: "server.health_check_timeout", def: 2 * time.Second, usage: "Database ping timeout for /health"},
	{key: "server.tls_mode", def: "off", usage: "HTTPS mode (off, auto, file)"},
	{key: "server.tls_cert_file", def: "", usage: "Certificate for file mode"},
	{key: "server.tls_key_file", def: "", usage: "Private key for file mode"},
	{key: "server.tls_auto_cert_dir", def: ".tls", usage: "Directory for the auto mode certificate"},

	{key: "cache.about_ttl", def: 5 * time.Minute, usage: "How long the About record is cached"},

	{key: "observability.service_name", def: "moalmanac-api", usage: "Service name reported to telemetry"},
	{key: "observability.service_version", def: "", usage: "Service version reported to telemetry"},
	{key: "observability.environment", def: "development", usage: "Deployment environment"},
	{key: "observability.metrics_enabled", def: true, usage: "Serve Prometheus metrics on /metrics"},
	{key: "observability.tracing_enabled", def: false, usage: "Export traces over OTLP"},
	{key: "observability.trace_sample_ratio", def: 1.0, usage: "Trace sampling ratio from 0.0 to 1.0"},
	{key: "observability.sqlcommenter_enabled", def: true, usage: "Tag MySQL queries with trace context"},
	{key: "observability.logging.level", def: "info", usage: "Log level (debug, info, warn, error)"},
	{key: "observability.logging.format", def: "json", usage: "Log format (json, text)"},
	{key: "observability.logging.exports_enabled", def: false, usage: "Export logs over OTLP"},

	{key: "observability.otlp.endpoint", def: "localhost:4317", usage: "OTLP endpoint for every signal"},
	{key: "observability.otlp.protocol", def: "grpc", usage: "OTLP protocol (grpc, http/protobuf)"},
	{key: "observability.otlp.insecure", def: false, usage: "Export without TLS"},
	{key: "observability.otlp.tls_cert_file", def: "", usage: "CA certificate for the collector"},
	{key: "observability.otlp.tls_client_cert_file", def: "", usage: "Client certificate for collector mTLS"},
	{key: "observability.otlp.tls_client_key_file", def: "", usage: "Client key for collector mTLS"},
	{key: "observability.otlp.timeout", def: 10 * time.Second, usage: "OTLP export timeout"},
	{key: "observability.otlp.compression", def: "gzip", usage: "OTLP compression (none, gzip)"},
	{key: "observability.otlp.retry_enabled", def: true, usage: "Retry transient export failures"},
	{key: "observability.otlp.retry_max_attempts", def: 3, usage: "Export attempts before giving up"},

	{key: "observability.traces.endpoint", def: "", usage: "OTLP endpoint for traces only", flagOnly: true},
	{key: "observability.traces.protocol", def: "", usage: "OTLP protocol for traces only", flagOnly: true},
	{key: "observability.traces.insecure", def: false, usage: "Export traces without TLS", flagOnly: true},
	{key: "observability.logs.endpoint", def: "", usage: "OTLP endpoint for logs only", flagOnly: true},
	{key: "observability.logs.protocol", def: "", usage: "OTLP protocol for logs only", flagOnly: true},
	{key: "observability.logs.insecure", def: false, usage: "Export logs without TLS", flagOnly: true},
}

// DefineFlags adds one flag per configuration key to fs, plus --config.
// Calling it twice on the same flag set is a no-op.
func DefineFlags(fs *pflag.FlagSet) {
	if fs.Lookup("config") != nil {
		return
	}
	for _, s := range settings {
		switch def := s.def.(type) {
		case string:
			fs.String(s.key, def, s.usage)
		case int:
			fs.Int(s.key, def, s.usage)
		case bool:
			fs.Bool(s.key, def, s.usage)
		case float64:
			fs.Float64(s.key, def, s.usage)
		case time.Duration:
			fs.Duration(s.key, def, s.usage)
		case []string:
			fs.StringSlice(s.key, def, s.usage)
		default:
			panic(fmt.Sprintf("config: setting %s has unsupported type %T", s.key, def))
		}
	}
	fs.StringP("config", "c", "", "Config file path")
}

func setDefaults(v *viper.Viper) {
	for _, s := range settings {
		if !s.flagOnly {
			v.SetDefault(s.key, s.def)
		}
	}
}
