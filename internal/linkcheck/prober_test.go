package linkcheck

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProbeStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		accessible bool
		reason     string
	}{
		{"ok", http.StatusOK, true, ""},
		{"redirect target ok", http.StatusNoContent, true, ""},
		{"unauthorized", http.StatusUnauthorized, false, "Unauthorized (401)"},
		{"forbidden", http.StatusForbidden, false, "Forbidden (403)"},
		{"not found", http.StatusNotFound, false, "Not Found (404)"},
		{"gone", http.StatusGone, false, "Gone (410)"},
		{"teapot", http.StatusTeapot, false, "Client Error (418)"},
		{"server error", http.StatusBadGateway, false, "Server Error (502)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodHead, r.Method)
				require.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			got := New(Config{}, zap.NewNop()).Probe(context.Background(), srv.URL)
			require.Equal(t, tt.accessible, got.Accessible)
			require.Equal(t, tt.status, got.StatusCode)
			require.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestProbeFollowsRedirects(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()
	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusMovedPermanently)
	}))
	defer hop.Close()

	got := New(Config{}, zap.NewNop()).Probe(context.Background(), hop.URL)
	require.True(t, got.Accessible)
}

func TestProbeShortCircuitsWithoutNetwork(t *testing.T) {
	t.Parallel()

	p := New(Config{}, zap.NewNop())

	got := p.Probe(context.Background(), "не://such url")
	require.False(t, got.Accessible)
	require.Equal(t, "Invalid URL", got.Reason)

	got = p.Probe(context.Background(), "ftp://archive.example.com/file")
	require.False(t, got.Accessible)
	require.Equal(t, "Unsupported scheme (ftp)", got.Reason)
}

func TestProbeConnectionRefused(t *testing.T) {
	t.Parallel()

	// Reserve a port, then close it so nothing listens there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	got := New(Config{Timeout: 2 * time.Second}, zap.NewNop()).Probe(context.Background(), "http://"+addr)
	require.False(t, got.Accessible)
	require.Equal(t, "Connection refused", got.Reason)
}

func TestProbeTimeout(t *testing.T) {
	t.Parallel()

	stall := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-stall
	}))
	defer func() {
		close(stall)
		srv.Close()
	}()

	got := New(Config{Timeout: 100 * time.Millisecond}, zap.NewNop()).Probe(context.Background(), srv.URL)
	require.False(t, got.Accessible)
	require.Equal(t, "Request timed out", got.Reason)
}

func TestClassifyTransportError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "missing.example"}, "Host not found"},
		{"refused", syscall.ECONNREFUSED, "Connection refused"},
		{"unreachable", syscall.ENETUNREACH, "No network connection"},
		{"reset", syscall.ECONNRESET, "Connection lost"},
		{"eof", io.ErrUnexpectedEOF, "Connection lost"},
		{"deadline", context.DeadlineExceeded, "Request timed out"},
		{"other", errors.New("weird proxy failure"), "Connection failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, classifyTransportError(tt.err))
		})
	}
}
