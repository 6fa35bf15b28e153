package observability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// OTLPExporterConfig holds OTLP exporter configuration options
type OTLPExporterConfig struct {
	Endpoint          string
	Protocol          string
	Insecure          bool
	TLSCertFile       string
	TLSClientCertFile string
	TLSClientKeyFile  string
	Headers           map[string]string
	Timeout           time.Duration
	Compression       string
	RetryEnabled      bool
	RetryMaxAttempts  int
}

type otlpProtocol string

const (
	otlpProtocolGRPC otlpProtocol = "grpc"
	otlpProtocolHTTP otlpProtocol = "http/protobuf"
)

const (
	retryInitialInterval = time.Second
	retryMaxInterval     = 5 * time.Second
	retryMaxWindow       = 30 * time.Second
)

func parseOTLPProtocol(value string) (otlpProtocol, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(otlpProtocolGRPC):
		return otlpProtocolGRPC, nil
	case "http", string(otlpProtocolHTTP):
		return otlpProtocolHTTP, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol %q (use grpc or http/protobuf)", value)
	}
}

// exportTarget is the protocol-neutral form of an OTLPExporterConfig. Trace
// and log exporters are both built from it.
type exportTarget struct {
	protocol otlpProtocol
	endpoint string
	// url is set when endpoint carries a scheme; only the HTTP exporters
	// accept it in that form.
	url     bool
	tls     *tls.Config // nil means plaintext
	headers map[string]string
	timeout time.Duration
	gzip    bool
	retry   time.Duration // zero disables retries
}

func newExportTarget(cfg OTLPExporterConfig) (exportTarget, error) {
	protocol, err := parseOTLPProtocol(cfg.Protocol)
	if err != nil {
		return exportTarget{}, err
	}

	target := exportTarget{
		protocol: protocol,
		endpoint: cfg.Endpoint,
		url:      strings.HasPrefix(cfg.Endpoint, "http://") || strings.HasPrefix(cfg.Endpoint, "https://"),
		headers:  cfg.Headers,
		timeout:  cfg.Timeout,
		gzip:     strings.EqualFold(cfg.Compression, "gzip"),
	}
	if cfg.RetryEnabled {
		target.retry = retryWindow(cfg.RetryMaxAttempts)
	}
	if !cfg.Insecure {
		if target.tls, err = buildTLSConfig(cfg); err != nil {
			return exportTarget{}, err
		}
	}
	return target, nil
}

// retryWindow converts an attempt budget into the elapsed-time bound the
// exporters understand, following their exponential backoff.
func retryWindow(attempts int) time.Duration {
	var window time.Duration
	interval := retryInitialInterval
	for i := 0; i < attempts; i++ {
		window += interval
		interval = min(2*interval, retryMaxInterval)
	}
	return min(window, retryMaxWindow)
}

func buildTLSConfig(cfg OTLPExporterConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.TLSCertFile != "" {
		caCert, err := os.ReadFile(cfg.TLSCertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read OTLP TLS CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse OTLP TLS CA file")
		}
		tlsConfig.RootCAs = pool
	}

	// mTLS
	if cfg.TLSClientCertFile != "" || cfg.TLSClientKeyFile != "" {
		if cfg.TLSClientCertFile == "" || cfg.TLSClientKeyFile == "" {
			return nil, fmt.Errorf("OTLP TLS client cert and key must both be set")
		}
		cert, err := tls.LoadX509KeyPair(cfg.TLSClientCertFile, cfg.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load OTLP TLS client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func (t exportTarget) spanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if t.protocol == otlpProtocolHTTP {
		var opts []otlptracehttp.Option
		if t.url {
			opts = append(opts, otlptracehttp.WithEndpointURL(t.endpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(t.endpoint))
		}
		if t.tls == nil {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(t.tls))
		}
		if len(t.headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(t.headers))
		}
		if t.timeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(t.timeout))
		}
		if t.gzip {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		if t.retry > 0 {
			opts = append(opts, otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
				Enabled:         true,
				InitialInterval: retryInitialInterval,
				MaxInterval:     retryMaxInterval,
				MaxElapsedTime:  t.retry,
			}))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(t.endpoint)}
	if t.tls == nil {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(t.tls)))
	}
	if len(t.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(t.headers))
	}
	if t.timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(t.timeout))
	}
	if t.gzip {
		opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
	}
	if t.retry > 0 {
		opts = append(opts, otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: retryInitialInterval,
			MaxInterval:     retryMaxInterval,
			MaxElapsedTime:  t.retry,
		}))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func (t exportTarget) logExporter(ctx context.Context) (log.Exporter, error) {
	if t.protocol == otlpProtocolHTTP {
		var opts []otlploghttp.Option
		if t.url {
			opts = append(opts, otlploghttp.WithEndpointURL(t.endpoint))
		} else {
			opts = append(opts, otlploghttp.WithEndpoint(t.endpoint))
		}
		if t.tls == nil {
			opts = append(opts, otlploghttp.WithInsecure())
		} else {
			opts = append(opts, otlploghttp.WithTLSClientConfig(t.tls))
		}
		if len(t.headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(t.headers))
		}
		if t.timeout > 0 {
			opts = append(opts, otlploghttp.WithTimeout(t.timeout))
		}
		if t.gzip {
			opts = append(opts, otlploghttp.WithCompression(otlploghttp.GzipCompression))
		}
		if t.retry > 0 {
			opts = append(opts, otlploghttp.WithRetry(otlploghttp.RetryConfig{
				Enabled:         true,
				InitialInterval: retryInitialInterval,
				MaxInterval:     retryMaxInterval,
				MaxElapsedTime:  t.retry,
			}))
		}
		return otlploghttp.New(ctx, opts...)
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(t.endpoint)}
	if t.tls == nil {
		opts = append(opts, otlploggrpc.WithInsecure())
	} else {
		opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(t.tls)))
	}
	if len(t.headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(t.headers))
	}
	if t.timeout > 0 {
		opts = append(opts, otlploggrpc.WithTimeout(t.timeout))
	}
	if t.gzip {
		opts = append(opts, otlploggrpc.WithCompressor("gzip"))
	}
	if t.retry > 0 {
		opts = append(opts, otlploggrpc.WithRetry(otlploggrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: retryInitialInterval,
			MaxInterval:     retryMaxInterval,
			MaxElapsedTime:  t.retry,
		}))
	}
	return otlploggrpc.New(ctx, opts...)
}
