// Package probe builds executors for configured jobs.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dynpoll/internal/poller"
	logx "dynpoll/pkg/logx"
)

const (
	defaultTimeout = 10 * time.Second
	maxDrain       = 64 << 10
)

var ErrUnexpectedStatus = errors.New("unexpected status")

type HTTPConfig struct {
	URL     string
	Method  string
	Timeout time.Duration
	// ExpectStatus lists accepted codes. Empty accepts any 2xx.
	ExpectStatus []int
	Header       map[string]string
}

// HTTP returns an executor that sends one request per firing. A transport
// error or an unexpected status fails the run.
func HTTP(cfg HTTPConfig, client *http.Client, log logx.Logger) (poller.Executor, error) {
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodHead {
		return nil, fmt.Errorf("probe: method %q not supported (GET or HEAD)", cfg.Method)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("probe: url required")
	}
	if _, err := http.NewRequest(method, cfg.URL, http.NoBody); err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	expect := append([]int(nil), cfg.ExpectStatus...)
	header := make(http.Header, len(cfg.Header))
	for k, v := range cfg.Header {
		header.Set(k, v)
	}

	return func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, method, cfg.URL, http.NoBody)
		if err != nil {
			return err
		}
		req.Header = header.Clone()

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
		_ = resp.Body.Close()

		id, _ := poller.JobIDFromContext(ctx)
		log.Debug("probe done",
			logx.String("job", string(id)),
			logx.String("url", cfg.URL),
			logx.Int("status", resp.StatusCode),
			logx.Duration("took", time.Since(start)),
		)
		if !statusOK(resp.StatusCode, expect) {
			return fmt.Errorf("%w: %s %s -> %d", ErrUnexpectedStatus, method, cfg.URL, resp.StatusCode)
		}
		return nil
	}, nil
}

func statusOK(code int, expect []int) bool {
	if len(expect) == 0 {
		return code >= 200 && code < 300
	}
	for _, c := range expect {
		if c == code {
			return true
		}
	}
	return false
}

// Tick returns an executor that only logs a heartbeat.
func Tick(log logx.Logger, name string) poller.Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(ctx context.Context) error {
		id, _ := poller.JobIDFromContext(ctx)
		log.Info("tick", logx.String("job", string(id)), logx.String("name", name))
		return nil
	}
}
