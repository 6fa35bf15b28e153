// Package tlscert supplies the certificates of the HTTPS listener, either
// from operator-provided files or from a self-signed pair generated on first
// start.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
)

// CertMode selects where certificates come from. The values match the
// server.tls_mode setting.
type CertMode string

const (
	CertModeFile CertMode = "file"
	CertModeAuto CertMode = "auto"
)

// MinTLSVersion is the minimum TLS version the listener accepts.
const MinTLSVersion = tls.VersionTLS13

// DefaultHosts are the names a generated certificate covers when none are
// configured.
var DefaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// Config holds TLS certificate configuration.
type Config struct {
	Mode CertMode

	// File mode.
	CertFile string
	KeyFile  string

	// Auto mode.
	AutoCertDir string
	AutoHosts   []string
}

// Manager provides the listener's TLS configuration.
type Manager interface {
	GetTLSConfig() (*tls.Config, error)
	// Description names the certificate source for startup logs.
	Description() string
	Shutdown() error
}

// NewManager creates a certificate manager for cfg.Mode.
func NewManager(cfg Config, logger *slog.Logger) (Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case CertModeFile:
		m, err := newFileManager(cfg, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	case CertModeAuto:
		m, err := newAutoManager(cfg, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported TLS mode %q (valid modes: file, auto)", cfg.Mode)
	}
}
