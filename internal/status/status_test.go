package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynpoll/internal/clock"
	"dynpoll/internal/poller"
	logx "dynpoll/pkg/logx"
)

func newJobs(t *testing.T) (*poller.Poller, poller.JobID) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p, err := poller.New(poller.WithClock(clk), poller.WithIDSource(&poller.SequentialIDs{Prefix: "j"}))
	require.NoError(t, err)
	id, err := p.ScheduleNamed("health", func(context.Context) error { return nil }, func() poller.IntervalSequence {
		return poller.SequenceFunc(func() time.Duration { return time.Minute })
	})
	require.NoError(t, err)
	return p, id
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterJobs(t *testing.T) {
	p, id := newJobs(t)
	h := Router(Source{Jobs: p, Started: time.Now()}, Config{}, logx.Nop())

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hl health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hl))
	assert.Equal(t, "ok", hl.Status)
	assert.Equal(t, 1, hl.Jobs)

	rec = do(t, h, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []poller.JobInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, "health", jobs[0].Name)

	rec = do(t, h, http.MethodGet, "/jobs/"+string(id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/jobs/nope", nil).Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/jobs/"+string(id), nil).Code)
	assert.False(t, p.Live(id))
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/jobs/"+string(id), nil).Code)
}

func TestRouterAuth(t *testing.T) {
	p, _ := newJobs(t)
	h := Router(Source{Jobs: p}, Config{Token: "s3cret"}, logx.Nop())

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/jobs", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/jobs?token=wrong", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/jobs?token=s3cret", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/jobs", map[string]string{"Authorization": "Bearer s3cret"}).Code)
}

func TestRouterOptionalRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "dynpoll_jobs_live 1\n") })

	off := Router(Source{}, Config{}, logx.Nop())
	assert.Equal(t, http.StatusNotFound, do(t, off, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, off, http.MethodGet, "/debug/pprof/", nil).Code)

	on := Router(Source{Metrics: metrics}, Config{Pprof: true}, logx.Nop())
	rec := do(t, on, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dynpoll_jobs_live")
	assert.Equal(t, http.StatusOK, do(t, on, http.MethodGet, "/debug/pprof/", nil).Code)

	rec = do(t, off, http.MethodGet, "/jobs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServiceLifecycle(t *testing.T) {
	p, _ := newJobs(t)
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Source{Jobs: p}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	addr := svc.Addr()
	require.NotEmpty(t, addr)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + svc.Addr() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, svc.Start(ctx), "start is idempotent")
	assert.Equal(t, addr, svc.Addr())

	require.NoError(t, svc.Reconfigure(ctx, Config{Enabled: false}))
	assert.Empty(t, svc.Addr())
	assert.Nil(t, svc.Routines())

	require.NoError(t, svc.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}))
	assert.NotEmpty(t, svc.Addr())
	assert.NotEmpty(t, svc.Routines())
	svc.Stop(ctx)
	assert.Empty(t, svc.Addr())
}

func TestServiceRefusesInsecureBind(t *testing.T) {
	svc := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Source{}, logx.Nop())
	assert.ErrorIs(t, svc.Start(context.Background()), ErrInsecureBind)
	assert.Empty(t, svc.Addr())
}

func TestDisabledServiceIsNoop(t *testing.T) {
	svc := New(Config{}, Source{}, logx.Nop())
	require.NoError(t, svc.Start(context.Background()))
	assert.Empty(t, svc.Addr())
	svc.Stop(context.Background())
}

func TestIsLoopbackAddr(t *testing.T) {
	assert.True(t, isLoopbackAddr("127.0.0.1:80"))
	assert.True(t, isLoopbackAddr("localhost:80"))
	assert.True(t, isLoopbackAddr("[::1]:80"))
	assert.False(t, isLoopbackAddr(":80"))
	assert.False(t, isLoopbackAddr("10.0.0.1:80"))
	assert.False(t, isLoopbackAddr("nonsense"))
}
