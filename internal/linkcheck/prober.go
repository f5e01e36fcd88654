// Package linkcheck implements the HTTP reachability probe behind the
// reachability run.
package linkcheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/collection"
)

// DefaultTimeout bounds one probe including redirects.
const DefaultTimeout = 10 * time.Second

// Config controls probe behavior.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Prober classifies bookmark URLs with a HEAD request.
type Prober struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Prober with a pooled transport.
func New(cfg Config, logger *zap.Logger) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        32,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: cfg.Timeout,
			},
		},
		logger: logger,
	}
}

// Probe issues a HEAD request with no-cache semantics and maps the result
// onto the reachability taxonomy. Malformed or non-http(s) URLs
// short-circuit without a network call.
func (p *Prober) Probe(ctx context.Context, rawURL string) collection.Reachability {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return collection.Reachability{Reason: "Invalid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return collection.Reachability{Reason: fmt.Sprintf("Unsupported scheme (%s)", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return collection.Reachability{Reason: "Invalid URL"}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		reason := classifyTransportError(err)
		p.logger.Debug("probe transport failure",
			zap.String("url", rawURL),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return collection.Reachability{Reason: reason, Duration: elapsed}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return collection.Reachability{
		Accessible: resp.StatusCode < 400,
		StatusCode: resp.StatusCode,
		Reason:     classifyStatus(resp.StatusCode),
		Duration:   elapsed,
	}
}

// classifyStatus maps an HTTP status onto a human-readable reason. 2xx/3xx
// are reachable and carry no reason.
func classifyStatus(code int) string {
	switch {
	case code < 400:
		return ""
	case code == http.StatusUnauthorized:
		return "Unauthorized (401)"
	case code == http.StatusForbidden:
		return "Forbidden (403)"
	case code == http.StatusNotFound:
		return "Not Found (404)"
	case code == http.StatusGone:
		return "Gone (410)"
	case code < 500:
		return fmt.Sprintf("Client Error (%d)", code)
	default:
		return fmt.Sprintf("Server Error (%d)", code)
	}
}

// classifyTransportError maps transport-level failures onto distinct
// human-readable reasons.
func classifyTransportError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "Host not found"
	}

	var certErr x509.UnknownAuthorityError
	var invalidErr x509.CertificateInvalidError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &invalidErr) || errors.As(err, &hostErr) {
		return "Untrusted certificate"
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) || strings.Contains(err.Error(), "tls:") {
		return "Secure connection failed"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Request timed out"
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused"
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETDOWN):
		return "No network connection"
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return "Connection lost"
	}
	return "Connection failed"
}
