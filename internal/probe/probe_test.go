package probe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "dynpoll/pkg/logx"
)

func TestHTTPProbeStatus(t *testing.T) {
	t.Parallel()
	var code atomic.Int32
	code.Store(http.StatusOK)
	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Probe"))
		w.WriteHeader(int(code.Load()))
	}))
	defer srv.Close()

	exec, err := HTTP(HTTPConfig{URL: srv.URL, Header: map[string]string{"X-Probe": "dynpoll"}}, srv.Client(), logx.Nop())
	require.NoError(t, err)

	require.NoError(t, exec(context.Background()))
	assert.Equal(t, "dynpoll", gotHeader.Load())

	code.Store(http.StatusServiceUnavailable)
	err = exec(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestHTTPProbeExpectStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	exec, err := HTTP(HTTPConfig{URL: srv.URL, Method: "head", ExpectStatus: []int{http.StatusNoContent}}, srv.Client(), logx.Logger{})
	require.NoError(t, err)
	assert.NoError(t, exec(context.Background()))

	strict, err := HTTP(HTTPConfig{URL: srv.URL, Method: "HEAD", ExpectStatus: []int{http.StatusOK}}, srv.Client(), logx.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, strict(context.Background()), ErrUnexpectedStatus)
}

func TestHTTPProbeTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	exec, err := HTTP(HTTPConfig{URL: srv.URL, Timeout: 50 * time.Millisecond}, srv.Client(), logx.Nop())
	require.NoError(t, err)
	start := time.Now()
	assert.Error(t, exec(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPProbeHonoursJobContext(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	exec, err := HTTP(HTTPConfig{URL: srv.URL}, srv.Client(), logx.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, exec(ctx), context.Canceled)
}

func TestHTTPConfigErrors(t *testing.T) {
	t.Parallel()
	_, err := HTTP(HTTPConfig{}, nil, logx.Nop())
	assert.Error(t, err)
	_, err = HTTP(HTTPConfig{URL: "http://x", Method: "POST"}, nil, logx.Nop())
	assert.Error(t, err)
	_, err = HTTP(HTTPConfig{URL: "://bad"}, nil, logx.Nop())
	assert.Error(t, err)
}

func TestTickLogs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	exec := Tick(logx.NewWriter(&buf, "info"), "heartbeat")
	require.NoError(t, exec(context.Background()))
	assert.Contains(t, buf.String(), "heartbeat")
	assert.Contains(t, buf.String(), "tick")
}
