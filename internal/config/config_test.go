package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name:     "sqlite uses path",
			config:   DatabaseConfig{Driver: DriverSQLite, Path: "/data/moalmanac.sqlite3"},
			expected: "/data/moalmanac.sqlite3",
		},
		{
			name: "mysql discrete fields",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "password",
				Database: "moalmanac",
			},
			expected: "root:password@tcp(localhost:3306)/moalmanac?parseTime=true&loc=UTC",
		},
		{
			name: "mysql special characters in password",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "db.example.com",
				Port:     3306,
				User:     "admin",
				Password: "p@ss:w0rd!",
				Database: "mydb",
			},
			expected: "admin:p@ss:w0rd!@tcp(db.example.com:3306)/mydb?parseTime=true&loc=UTC",
		},
		{
			name: "mysql dsn gets parseTime and loc",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "u:p@tcp(h:3306)/moalmanac",
			},
			expected: "u:p@tcp(h:3306)/moalmanac?parseTime=true&loc=UTC",
		},
		{
			name: "mysql skip-verify tls",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "u:p@tcp(h:3306)/moalmanac?parseTime=true&loc=UTC",
				TLS:              DatabaseTLSConfig{Mode: "skip-verify"},
			},
			expected: "u:p@tcp(h:3306)/moalmanac?parseTime=true&loc=UTC&tls=skip-verify",
		},
		{
			name: "mysql verify-full uses registered config",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "u:p@tcp(h:3306)/moalmanac?parseTime=true&loc=UTC",
				TLS:              DatabaseTLSConfig{Mode: "verify-full"},
			},
			expected: "u:p@tcp(h:3306)/moalmanac?parseTime=true&loc=UTC&tls=" + tlsConfigName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestEffectiveDatabaseName(t *testing.T) {
	name, source, err := resolveEffectiveDatabaseName("", "u:p@tcp(h:3306)/moalmanac")
	require.NoError(t, err)
	assert.Equal(t, "moalmanac", name)
	assert.Equal(t, "dsn", source)

	name, source, err = resolveEffectiveDatabaseName("moalmanac", "")
	require.NoError(t, err)
	assert.Equal(t, "moalmanac", name)
	assert.Equal(t, "database.database", source)

	_, _, err = resolveEffectiveDatabaseName("other", "u:p@tcp(h:3306)/moalmanac")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")

	_, _, err = resolveEffectiveDatabaseName("", "")
	require.Error(t, err)
}

func TestRegisterTLS_SkipsSQLite(t *testing.T) {
	cfg := DatabaseConfig{Driver: DriverSQLite, TLS: DatabaseTLSConfig{Mode: "verify-full"}}
	assert.NoError(t, cfg.RegisterTLS())
}

func TestTLSFileEnvIndirection(t *testing.T) {
	t.Setenv("MOA_TEST_CA", "/from/env/ca.pem")
	tlsCfg := DatabaseTLSConfig{CAFile: "/from/file/ca.pem", CAFileEnv: "MOA_TEST_CA"}
	assert.Equal(t, "/from/env/ca.pem", tlsCfg.resolveCAFile())

	tlsCfg.CAFileEnv = "MOA_TEST_CA_UNSET"
	assert.Equal(t, "/from/file/ca.pem", tlsCfg.resolveCAFile())
}

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DefineFlags(fs)
	DefineFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadFlags_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFlags(newFlagSet(t))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "moalmanac.sqlite3", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.ReadOnlySessions)
	assert.Equal(t, []string{"GET", "OPTIONS"}, cfg.Server.CORSAllowedMethods)
	assert.Equal(t, 5*time.Minute, cfg.Cache.AboutTTL)
	assert.Equal(t, "moalmanac-api", cfg.Observability.ServiceName)
	assert.False(t, cfg.Validate().HasErrors())
}

func TestLoadFlags_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "moalmanac-api.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
database:
  path: /from/file.sqlite3
server:
  port: 9000
cache:
  about_ttl: 1m
`), 0o600))

	t.Setenv("MOA_SERVER_PORT", "9100")
	t.Setenv("MOA_CACHE_ABOUT_TTL", "30s")

	cfg, err := LoadFlags(newFlagSet(t, "--config", cfgPath, "--cache.about_ttl", "10s"))
	require.NoError(t, err)

	assert.Equal(t, "/from/file.sqlite3", cfg.Database.Path, "file beats default")
	assert.Equal(t, 9100, cfg.Server.Port, "env beats file")
	assert.Equal(t, 10*time.Second, cfg.Cache.AboutTTL, "flag beats env")
}

func TestLoadFlags_RejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "moalmanac-api.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  search_enabled: true\n"), 0o600))

	_, err := LoadFlags(newFlagSet(t, "--config", cfgPath))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search_enabled")
}

func TestLoadFlags_MySQLSecretsFromFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	passwordFile := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("s3cret\n"), 0o600))

	cfg, err := LoadFlags(newFlagSet(t,
		"--database.driver", "mysql",
		"--database.database", "moalmanac",
		"--database.password_file", passwordFile,
	))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "moalmanac", cfg.Database.Database)
}

func TestLoadFlags_SQLiteIgnoresMySQLSecrets(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFlags(newFlagSet(t, "--database.password_file", "/does/not/exist"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.Password)
}

func TestLoadFlags_SingleStdinSource(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := LoadFlags(newFlagSet(t,
		"--database.driver", "mysql",
		"--database.dsn_file", "@-",
		"--database.password_file", "@-",
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn_file")
	assert.Contains(t, err.Error(), "database.password_file")
}

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   DriverMySQL,
			Host:     "localhost",
			Port:     3306,
			User:     "moalmanac",
			Database: "moalmanac",
			TLS:      DatabaseTLSConfig{Mode: "off"},
			Pool:     PoolConfig{MaxOpen: 25, MaxIdle: 5},
		},
		Server: ServerConfig{Port: 8080},
		Cache:  CacheConfig{AboutTTL: time.Minute},
		Observability: ObservabilityConfig{
			TraceSampleRatio: 1,
			Logging:          LoggingConfig{Level: "info", Format: "json"},
			OTLP:             OTLPConfig{Protocol: "grpc", Compression: "gzip"},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		// errs lists substrings of result.Error(); nil means no errors.
		errs []string
		// warning, when set, must be the only warning's message substring.
		warning string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "sqlite requires path",
			mutate: func(c *Config) { c.Database = DatabaseConfig{Driver: DriverSQLite} },
			errs:   []string{"database.path"},
		},
		{
			name: "sqlite skips mysql checks",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverSQLite, Path: "moalmanac.sqlite3", TLS: DatabaseTLSConfig{Mode: "bogus"}}
			},
		},
		{
			name: "sqlite ignores dsn",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverSQLite, Path: "moalmanac.sqlite3", ConnectionString: "u:p@tcp(h:3306)/moalmanac"}
			},
			warning: "ignored by the sqlite driver",
		},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }, errs: []string{"database.driver", "sqlite, mysql"}},
		{name: "database port zero", mutate: func(c *Config) { c.Database.Port = 0 }, errs: []string{"database.port"}},
		{name: "database port high", mutate: func(c *Config) { c.Database.Port = 70000 }, errs: []string{"database.port"}},
		{
			name: "dsn makes port irrelevant",
			mutate: func(c *Config) {
				c.Database.Port = 0
				c.Database.ConnectionString = "u:p@tcp(h:3306)/moalmanac"
			},
		},
		{name: "mysql needs a database name", mutate: func(c *Config) { c.Database.Database = "" }, errs: []string{"database.database"}},
		{name: "server port negative", mutate: func(c *Config) { c.Server.Port = -1 }, errs: []string{"server.port"}},
		{name: "invalid TLS mode", mutate: func(c *Config) { c.Database.TLS.Mode = "invalid" }, errs: []string{"database.tls.mode"}},
		{name: "verify modes require CA", mutate: func(c *Config) { c.Database.TLS.Mode = "verify-ca" }, errs: []string{"database.tls.ca_file"}},
		{
			name:    "skip-verify warns",
			mutate:  func(c *Config) { c.Database.TLS.Mode = "skip-verify" },
			warning: "does not verify",
		},
		{name: "client cert without key", mutate: func(c *Config) { c.Database.TLS.CertFile = "/client.pem" }, errs: []string{"database.tls.cert_file"}},
		{name: "negative pool size", mutate: func(c *Config) { c.Database.Pool.MaxOpen = -1 }, errs: []string{"max_open cannot be negative"}},
		{
			name: "max_idle above max_open warns",
			mutate: func(c *Config) {
				c.Database.Pool.MaxOpen = 10
				c.Database.Pool.MaxIdle = 20
			},
			warning: "max_idle",
		},
		{
			name:   "retry interval required with timeout",
			mutate: func(c *Config) { c.Database.ConnectionTimeout = time.Minute },
			errs:   []string{"connection_retry_interval"},
		},
		{
			name: "retry interval beyond timeout warns",
			mutate: func(c *Config) {
				c.Database.ConnectionTimeout = time.Second
				c.Database.ConnectionRetryInterval = time.Minute
			},
			warning: "only one connection attempt",
		},
		{name: "invalid log level", mutate: func(c *Config) { c.Observability.Logging.Level = "verbose" }, errs: []string{"observability.logging.level"}},
		{name: "invalid log format", mutate: func(c *Config) { c.Observability.Logging.Format = "xml" }, errs: []string{"observability.logging.format"}},
		{name: "sample ratio out of range", mutate: func(c *Config) { c.Observability.TraceSampleRatio = 1.5 }, errs: []string{"trace_sample_ratio"}},
		{name: "bare http protocol", mutate: func(c *Config) { c.Observability.OTLP.Protocol = "http" }, errs: []string{"observability.otlp.protocol"}},
		{
			name: "http/protobuf endpoint needs a port",
			mutate: func(c *Config) {
				c.Observability.OTLP.Protocol = "http/protobuf"
				c.Observability.OTLP.Endpoint = "localhost"
			},
			errs: []string{"observability.otlp.endpoint"},
		},
		{
			name: "http/protobuf endpoint as URL",
			mutate: func(c *Config) {
				c.Observability.OTLP.Protocol = "http/protobuf"
				c.Observability.OTLP.Endpoint = "https://collector.example.org/v1/traces"
			},
		},
		{
			name:   "signal override validated",
			mutate: func(c *Config) { c.Observability.Traces = &OTLPConfig{Compression: "zstd"} },
			errs:   []string{"observability.traces.compression"},
		},
		{
			name: "rate limit enabled without RPS",
			mutate: func(c *Config) {
				c.Server.RateLimitEnabled = true
				c.Server.RateLimitBurst = 10
			},
			errs: []string{"rate_limit_rps"},
		},
		{
			name: "rate limit enabled without burst",
			mutate: func(c *Config) {
				c.Server.RateLimitEnabled = true
				c.Server.RateLimitRPS = 100
			},
			errs: []string{"rate_limit_burst"},
		},
		{
			name: "rate limit values while disabled",
			mutate: func(c *Config) {
				c.Server.RateLimitRPS = 100
				c.Server.RateLimitBurst = 10
			},
			warning: "rate limit values",
		},
		{name: "CORS without origins", mutate: func(c *Config) { c.Server.CORSEnabled = true }, errs: []string{"cors_allowed_origins"}},
		{
			name: "CORS wildcard with credentials",
			mutate: func(c *Config) {
				c.Server.CORSEnabled = true
				c.Server.CORSAllowedOrigins = []string{"*"}
				c.Server.CORSAllowCredentials = true
			},
			errs: []string{"wildcard"},
		},
		{
			name: "CORS wildcard warns",
			mutate: func(c *Config) {
				c.Server.CORSEnabled = true
				c.Server.CORSAllowedOrigins = []string{"*"}
			},
			warning: "wildcard",
		},
		{
			name: "CORS http origins under TLS",
			mutate: func(c *Config) {
				c.Server.CORSEnabled = true
				c.Server.TLSMode = "auto"
				c.Server.CORSAllowedOrigins = []string{"http://localhost:3000"}
			},
			warning: "http://",
		},
		{
			name:    "CORS write methods",
			mutate:  func(c *Config) { c.Server.CORSAllowedMethods = []string{"GET", "POST"} },
			warning: "POST",
		},
		{name: "invalid server TLS mode", mutate: func(c *Config) { c.Server.TLSMode = "acme" }, errs: []string{"server.tls_mode", "off, auto, file"}},
		{name: "TLS file mode needs files", mutate: func(c *Config) { c.Server.TLSMode = "file" }, errs: []string{"tls_cert_file", "tls_key_file"}},
		{name: "negative about TTL", mutate: func(c *Config) { c.Cache.AboutTTL = -time.Second }, errs: []string{"cache.about_ttl"}},
		{name: "zero about TTL", mutate: func(c *Config) { c.Cache.AboutTTL = 0 }, warning: "reloaded on every request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate()

			if len(tt.errs) == 0 {
				assert.False(t, result.HasErrors(), result.Error())
			} else {
				require.True(t, result.HasErrors())
				for _, want := range tt.errs {
					assert.Contains(t, result.Error(), want)
				}
			}
			if tt.warning == "" {
				assert.Empty(t, result.Warnings)
				return
			}
			require.Len(t, result.Warnings, 1)
			assert.Contains(t, result.Warnings[0].Message, tt.warning)
		})
	}
}

func TestConfig_Validate_AcceptsEveryMode(t *testing.T) {
	for _, mode := range []string{"", "off", "skip-verify", "verify-ca", "verify-full"} {
		cfg := validConfig()
		cfg.Database.TLS.Mode = mode
		cfg.Database.TLS.CAFile = "/etc/ssl/ca.pem"
		assert.False(t, cfg.Validate().HasErrors(), "database TLS mode %q", mode)
	}
	for _, protocol := range []string{"", "grpc", "http/protobuf"} {
		cfg := validConfig()
		cfg.Observability.OTLP.Protocol = protocol
		cfg.Observability.OTLP.Endpoint = "localhost:4318"
		assert.False(t, cfg.Validate().HasErrors(), "OTLP protocol %q", protocol)
	}
}

func TestConfig_Validate_ResolvesDatabaseFromDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Database = ""
	cfg.Database.ConnectionString = "u:p@tcp(h:3306)/from_dsn"
	assert.False(t, cfg.Validate().HasErrors())
	assert.Equal(t, "from_dsn", cfg.Database.Database)
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Port = 0
	cfg.Server.Port = 0
	cfg.Observability.Logging.Level = "invalid"
	assert.Len(t, cfg.Validate().Errors, 3)
}

func TestMergeOTLPConfigs(t *testing.T) {
	base := OTLPConfig{
		Endpoint:    "collector:4317",
		Protocol:    "grpc",
		Headers:     map[string]string{"a": "1"},
		Timeout:     10 * time.Second,
		Compression: "gzip",
	}
	obs := ObservabilityConfig{
		OTLP:   base,
		Traces: &OTLPConfig{Endpoint: "traces:4318", Protocol: "http/protobuf", Insecure: true, Headers: map[string]string{"b": "2"}},
	}

	traces := obs.GetTracesConfig()
	assert.Equal(t, "traces:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.True(t, traces.Insecure)
	assert.Equal(t, "gzip", traces.Compression)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, traces.Headers)
	assert.Equal(t, 10*time.Second, traces.Timeout)

	assert.Equal(t, base, obs.GetLogsConfig())
}

func TestValidationError_Error(t *testing.T) {
	withHint := ValidationError{Field: "server.port", Message: "out of range", Hint: "use 1-65535"}
	assert.Equal(t, "server.port: out of range (hint: use 1-65535)", withHint.Error())

	bare := ValidationError{Field: "server.port", Message: "out of range"}
	assert.Equal(t, "server.port: out of range", bare.Error())

	result := &ValidationResult{Errors: []ValidationError{bare, withHint}}
	assert.Equal(t, bare.Error()+"; "+withHint.Error(), result.Error())
	assert.Empty(t, (&ValidationResult{}).Error())
}

func TestWithDefaultParam(t *testing.T) {
	tests := []struct {
		dsn, key, value, want string
	}{
		{"u:p@tcp(h:3306)/db", "parseTime", "true", "u:p@tcp(h:3306)/db?parseTime=true"},
		{"u:p@tcp(h:3306)/db?timeout=5s", "loc", "UTC", "u:p@tcp(h:3306)/db?timeout=5s&loc=UTC"},
		{"u:p@tcp(h:3306)/db?loc=Local", "loc", "UTC", "u:p@tcp(h:3306)/db?loc=Local"},
		{"u:p@tcp(h:3306)/db?parseTimeout=1", "parseTime", "true", "u:p@tcp(h:3306)/db?parseTimeout=1&parseTime=true"},
		{"u:pa?ss@tcp(h:3306)/db", "tls", "false", "u:pa?ss@tcp(h:3306)/db?tls=false"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withDefaultParam(tt.dsn, tt.key, tt.value), tt.dsn)
	}
}
