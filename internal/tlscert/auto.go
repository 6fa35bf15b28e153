package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	autoCertFile = "server.crt"
	autoKeyFile  = "server.key"

	// autoCertLifetime is how long a generated certificate is valid.
	autoCertLifetime = 365 * 24 * time.Hour
	// autoRenewBefore regenerates certificates this close to expiry.
	autoRenewBefore = 7 * 24 * time.Hour
)

// autoManager serves a self-signed pair kept in a directory. The pair is
// generated when missing, expiring, or issued for different hosts.
type autoManager struct {
	certPath string
	keyPath  string
	cert     tls.Certificate
}

func newAutoManager(cfg Config, logger *slog.Logger) (*autoManager, error) {
	hosts := cfg.AutoHosts
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	dir := cfg.AutoCertDir
	if dir == "" {
		dir = ".tls"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	m := &autoManager{
		certPath: filepath.Join(dir, autoCertFile),
		keyPath:  filepath.Join(dir, autoKeyFile),
	}

	if reusable(m.certPath, m.keyPath, hosts, time.Now()) {
		logger.Info("using existing self-signed certificate", slog.String("cert_path", m.certPath))
	} else {
		logger.Info("generating self-signed certificate",
			slog.String("cert_path", m.certPath),
			slog.Any("hosts", hosts))
		if err := writeSelfSigned(m.certPath, m.keyPath, hosts, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		logger.Warn("self-signed certificate is for development only", slog.String("cert_path", m.certPath))
	}

	cert, err := tls.LoadX509KeyPair(m.certPath, m.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load self-signed certificate: %w", err)
	}
	m.cert = cert
	return m, nil
}

func (m *autoManager) GetTLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion:   MinTLSVersion,
		Certificates: []tls.Certificate{m.cert},
	}, nil
}

func (m *autoManager) Description() string {
	return fmt.Sprintf("self-signed (cert=%s)", m.certPath)
}

func (m *autoManager) Shutdown() error {
	return nil
}

func writeSelfSigned(certPath, keyPath string, hosts []string, now time.Time) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"moalmanac-api (self-signed)"},
			CommonName:   hosts[0],
		},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(autoCertLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}

	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// reusable reports whether the pair on disk loads, is not close to expiry
// and covers exactly hosts.
func reusable(certPath, keyPath string, hosts []string, now time.Time) bool {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil || len(pair.Certificate) == 0 {
		return false
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return false
	}
	if now.Before(cert.NotBefore) || now.Add(autoRenewBefore).After(cert.NotAfter) {
		return false
	}
	return sameHosts(cert, hosts)
}

func sameHosts(cert *x509.Certificate, hosts []string) bool {
	var wantDNS, wantIPs, gotDNS, gotIPs []string
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			wantIPs = append(wantIPs, ip.String())
		} else {
			wantDNS = append(wantDNS, host)
		}
	}
	gotDNS = append(gotDNS, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		gotIPs = append(gotIPs, ip.String())
	}
	for _, s := range [][]string{wantDNS, wantIPs, gotDNS, gotIPs} {
		slices.Sort(s)
	}
	return slices.Equal(slices.Compact(wantDNS), slices.Compact(gotDNS)) &&
		slices.Equal(slices.Compact(wantIPs), slices.Compact(gotIPs))
}
