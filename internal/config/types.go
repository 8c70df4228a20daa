package config

// Config is the daemon configuration file. Unknown keys are rejected.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Poller  PollerConfig  `json:"poller"`
	Status  StatusConfig  `json:"status"`
	Jobs    []JobConfig   `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PollerConfig controls how failures are handled. It is read once at
// startup; changing it requires a restart.
//
// Defaults (when fields are omitted/zero):
//   - failure_policy: "rearm"
//   - failure_log_rate: 1 (lines per second)
//   - failure_log_burst: 10
type PollerConfig struct {
	FailurePolicy   string  `json:"failure_policy,omitempty"` // "rearm" | "deregister"
	FailureLogRate  float64 `json:"failure_log_rate,omitempty"`
	FailureLogBurst int     `json:"failure_log_burst,omitempty"`
}

// StatusConfig controls the HTTP status server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8089").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8089"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	// RuntimeMetrics adds Go and process collectors to /metrics. Read at startup.
	RuntimeMetrics bool `json:"runtime_metrics,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// Job kinds.
const (
	KindHTTP    = "http"
	KindTick    = "tick"
	KindSystemd = "systemd"
)

// JobConfig describes one polled job. Name is the stable key used to match
// jobs across reloads.
//
// Example:
//
//	{ "name": "api", "kind": "http", "schedule": "exp:1s..1m", "url": "http://127.0.0.1:8080/healthz" }
type JobConfig struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Schedule string `json:"schedule"`
	Disabled bool   `json:"disabled,omitempty"`

	// Jitter spreads every delay by up to ±jitter of itself (0..1).
	Jitter float64 `json:"jitter,omitempty"`
	// MaxRate caps firings per second (0 disables the cap).
	MaxRate float64 `json:"max_rate,omitempty"`

	// HTTP probe settings.
	URL          string            `json:"url,omitempty"`
	Method       string            `json:"method,omitempty"`
	Timeout      string            `json:"timeout,omitempty"` // Go duration string
	ExpectStatus []int             `json:"expect_status,omitempty"`
	Header       map[string]string `json:"header,omitempty"`

	// Unit is the systemd unit checked by kind "systemd" (".service" is implied).
	Unit string `json:"unit,omitempty"`
}

// EnabledJobs returns the jobs that are not disabled, in file order.
func (c *Config) EnabledJobs() []JobConfig {
	if c == nil {
		return nil
	}
	out := make([]JobConfig, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		if !j.Disabled {
			out = append(out, j)
		}
	}
	return out
}
