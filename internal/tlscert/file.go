package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fileManager serves an operator-provided pair. The pair is reloaded when
// either file's modification time changes, so certificates can be rotated
// without a restart.
type fileManager struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu      sync.Mutex
	cert    *tls.Certificate
	certMod time.Time
	keyMod  time.Time
}

func newFileManager(cfg Config, logger *slog.Logger) (*fileManager, error) {
	if cfg.CertFile == "" {
		return nil, fmt.Errorf("server.tls_cert_file is required when server.tls_mode=file")
	}
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("server.tls_key_file is required when server.tls_mode=file")
	}
	if err := checkRegularFile(cfg.CertFile); err != nil {
		return nil, fmt.Errorf("invalid certificate file: %w", err)
	}
	if err := checkRegularFile(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("invalid key file: %w", err)
	}
	if err := checkKeyFilePermissions(cfg.KeyFile); err != nil {
		return nil, err
	}

	m := &fileManager{certFile: cfg.CertFile, keyFile: cfg.KeyFile, logger: logger}
	if _, err := m.current(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *fileManager) GetTLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion: MinTLSVersion,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert, err := m.current()
			if err != nil {
				m.logger.Error("failed to reload certificate",
					slog.String("cert_file", m.certFile),
					slog.String("error", err.Error()))
				if cert == nil {
					return nil, err
				}
			}
			return cert, nil
		},
	}, nil
}

// current returns the loaded pair, reloading it when the files changed.
// A failed reload keeps serving the previous pair.
func (m *fileManager) current() (*tls.Certificate, error) {
	certMod, err := modTime(m.certFile)
	if err != nil {
		return m.fallback(err)
	}
	keyMod, err := modTime(m.keyFile)
	if err != nil {
		return m.fallback(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cert != nil && certMod.Equal(m.certMod) && keyMod.Equal(m.keyMod) {
		return m.cert, nil
	}

	cert, err := tls.LoadX509KeyPair(m.certFile, m.keyFile)
	if err != nil {
		if m.cert != nil {
			return m.cert, fmt.Errorf("failed to load certificate: %w", err)
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if m.cert != nil {
		m.logger.Info("certificate reloaded", slog.String("cert_file", m.certFile))
	}
	m.cert, m.certMod, m.keyMod = &cert, certMod, keyMod
	return m.cert, nil
}

func (m *fileManager) fallback(err error) (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cert != nil {
		return m.cert, nil
	}
	return nil, err
}

func (m *fileManager) Description() string {
	return fmt.Sprintf("file (cert=%s, key=%s)", m.certFile, m.keyFile)
}

func (m *fileManager) Shutdown() error {
	return nil
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func checkRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}

// checkKeyFilePermissions rejects keys readable by group or others.
func checkKeyFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %o (use 0600 or 0400)", path, mode)
	}
	return nil
}
