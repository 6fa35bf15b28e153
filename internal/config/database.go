package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const tlsConfigName = "moalmanac-custom"

// DSN returns the data source name for the configured driver.
//
// For sqlite this is the snapshot path. For mysql it is ConnectionString, or
// one built from the discrete fields, with parseTime, loc and tls defaulted.
func (d *DatabaseConfig) DSN() string {
	if !d.IsMySQL() {
		return d.Path
	}

	dsn := d.ConnectionString
	if dsn == "" {
		addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		dsn = fmt.Sprintf("%s:%s@tcp(%s)/%s", d.User, d.Password, addr, d.Database)
	}
	dsn = withDefaultParam(dsn, "parseTime", "true")
	dsn = withDefaultParam(dsn, "loc", "UTC")
	if tlsParam := d.effectiveTLSParam(); tlsParam != "" {
		dsn = withDefaultParam(dsn, "tls", tlsParam)
	}
	return dsn
}

// withDefaultParam appends key=value to the DSN query unless key is already
// present. The query starts at the first '?' after the address.
func withDefaultParam(dsn, key, value string) string {
	start := strings.LastIndexByte(dsn, ')') + 1
	q := strings.IndexByte(dsn[start:], '?')
	if q < 0 {
		return dsn + "?" + key + "=" + value
	}
	for _, pair := range strings.Split(dsn[start+q+1:], "&") {
		if name, _, _ := strings.Cut(pair, "="); name == key {
			return dsn
		}
	}
	return dsn + "&" + key + "=" + value
}

// EffectiveDatabaseName returns the schema the mysql driver connects to and
// where that name came from.
func (d *DatabaseConfig) EffectiveDatabaseName() (name string, source string, err error) {
	return resolveEffectiveDatabaseName(d.Database, d.ConnectionString)
}

// resolveEffectiveDatabaseName reconciles database.database with the schema
// named in the DSN. Either may be empty but they must agree when both are set.
func resolveEffectiveDatabaseName(databaseName string, connectionString string) (name string, source string, err error) {
	fromConfig := strings.TrimSpace(databaseName)
	fromDSN, err := parseDSNDatabaseName(connectionString)
	if err != nil {
		return "", "", err
	}

	switch {
	case fromConfig != "" && fromDSN != "" && fromConfig != fromDSN:
		return "", "", fmt.Errorf("database mismatch: database.database=%q but database.dsn targets %q", fromConfig, fromDSN)
	case fromConfig != "":
		return fromConfig, "database.database", nil
	case fromDSN != "":
		return fromDSN, "dsn", nil
	default:
		return "", "", fmt.Errorf("no effective database name configured: set database.database or include /<database> in database.dsn")
	}
}

func parseDSNDatabaseName(connectionString string) (string, error) {
	dsn := strings.TrimSpace(connectionString)
	if dsn == "" {
		return "", nil
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}

// effectiveTLSParam returns the value of the DSN tls parameter, or "" when none applies.
func (d *DatabaseConfig) effectiveTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers the custom TLS configuration with the MySQL driver.
// It must run before the connection is opened and is a no-op unless mode is
// verify-ca or verify-full.
func (d *DatabaseConfig) RegisterTLS() error {
	if !d.IsMySQL() || (d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full") {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	caFile := d.TLS.resolveCAFile()
	certFile := d.TLS.resolveCertFile()
	keyFile := d.TLS.resolveKeyFile()

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
		tlsCfg.RootCAs = certPool
	}

	switch {
	case certFile != "" && keyFile != "":
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case certFile != "" || keyFile != "":
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" && d.TLS.ServerName != "" {
		tlsCfg.ServerName = d.TLS.ServerName
	}
	return tlsCfg, nil
}

func resolveFileEnv(envName, fallback string) string {
	if envName != "" {
		if path := os.Getenv(envName); path != "" {
			return path
		}
	}
	return fallback
}

func (t *DatabaseTLSConfig) resolveCAFile() string {
	return resolveFileEnv(t.CAFileEnv, t.CAFile)
}

func (t *DatabaseTLSConfig) resolveCertFile() string {
	return resolveFileEnv(t.CertFileEnv, t.CertFile)
}

func (t *DatabaseTLSConfig) resolveKeyFile() string {
	return resolveFileEnv(t.KeyFileEnv, t.KeyFile)
}
