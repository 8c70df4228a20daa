package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "poller"))

	log.Warn("executor failed", String("job", "j1"), Err(errors.New("boom")), Int("n", 3))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "executor failed", lines[0]["message"])
	assert.Equal(t, "poller", lines[0]["comp"])
	assert.Equal(t, "j1", lines[0]["job"])
	assert.Equal(t, "boom", lines[0]["err"])
	assert.EqualValues(t, 3, lines[0]["n"])
	assert.Contains(t, lines[0]["caller"], "logger_test.go:")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Debug("hidden")
	log.Info("hidden")
	log.Error("shown")

	assert.Len(t, decodeLines(t, &buf), 1)
	assert.False(t, log.Enabled(LevelDebug))
	assert.True(t, log.Enabled(LevelError))
}

func TestThrottledDropsBeyondBurst(t *testing.T) {
	var buf bytes.Buffer
	lim := rate.NewLimiter(rate.Limit(0.001), 2)
	log := NewWriter(&buf, "info").Throttled(lim)

	for i := 0; i < 10; i++ {
		log.Warn("noisy")
	}
	assert.Len(t, decodeLines(t, &buf), 2)
}

func TestThrottledIgnoresFilteredLevels(t *testing.T) {
	var buf bytes.Buffer
	lim := rate.NewLimiter(rate.Limit(0.001), 1)
	log := NewWriter(&buf, "warn").Throttled(lim)

	log.Debug("filtered, must not spend the token")
	log.Warn("kept")
	assert.Len(t, decodeLines(t, &buf), 1)
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	assert.NotPanics(t, func() { log.Error("nothing") })
	assert.False(t, Nop().IsZero())
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "INFO", " warning ", "error", "trace"} {
		assert.True(t, ValidLevel(s), s)
	}
	assert.False(t, ValidLevel("verbose"))
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info"})
	t.Cleanup(func() { _ = svc.Close() })

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	assert.True(t, log.Enabled(LevelDebug))
	assert.Equal(t, "debug", svc.Config().Level)

	log.Info("to file")
	require.NoError(t, svc.Close())
	assert.FileExists(t, path)
}
