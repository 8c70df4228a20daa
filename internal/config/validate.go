package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"dynpoll/pkg/interval"
	logx "dynpoll/pkg/logx"
)

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", lvl))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Poller.FailurePolicy)) {
	case "", "rearm", "deregister":
	default:
		add(fmt.Errorf("poller.failure_policy: %q (use rearm or deregister)", cfg.Poller.FailurePolicy))
	}
	if cfg.Poller.FailureLogRate < 0 {
		add(errors.New("poller.failure_log_rate: must be >= 0"))
	}
	if cfg.Poller.FailureLogBurst < 0 {
		add(errors.New("poller.failure_log_burst: must be >= 0"))
	}

	_, err := ParseDurationField("status.read_timeout", cfg.Status.ReadTimeout)
	add(err)
	_, err = ParseDurationField("status.write_timeout", cfg.Status.WriteTimeout)
	add(err)
	_, err = ParseDurationField("status.idle_timeout", cfg.Status.IdleTimeout)
	add(err)

	seen := make(map[string]bool, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			add(fmt.Errorf("%s.name: required", path))
		} else {
			path = fmt.Sprintf("jobs[%s]", name)
			if seen[name] {
				add(fmt.Errorf("%s.name: duplicate", path))
			}
			seen[name] = true
		}
		add(validateJob(path, j))
	}
	return errors.Join(errs...)
}

func validateJob(path string, j JobConfig) error {
	var errs []error
	if _, err := interval.Parse(j.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("%s.schedule: %w", path, err))
	}
	if j.Jitter < 0 || j.Jitter > 1 {
		errs = append(errs, fmt.Errorf("%s.jitter: must be within 0..1", path))
	}
	if j.MaxRate < 0 {
		errs = append(errs, fmt.Errorf("%s.max_rate: must be >= 0", path))
	}

	switch strings.ToLower(strings.TrimSpace(j.Kind)) {
	case KindTick:
	case KindSystemd:
		if strings.TrimSpace(j.Unit) == "" {
			errs = append(errs, fmt.Errorf("%s.unit: required", path))
		}
	case KindHTTP:
		u, err := url.Parse(strings.TrimSpace(j.URL))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("%s.url: absolute http(s) url required", path))
		}
		switch strings.ToUpper(strings.TrimSpace(j.Method)) {
		case "", http.MethodGet, http.MethodHead:
		default:
			errs = append(errs, fmt.Errorf("%s.method: %q (use GET or HEAD)", path, j.Method))
		}
		if _, err := ParseDurationField(path+".timeout", j.Timeout); err != nil {
			errs = append(errs, err)
		}
		for _, c := range j.ExpectStatus {
			if c < 100 || c > 599 {
				errs = append(errs, fmt.Errorf("%s.expect_status: %d is not an http status", path, c))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("%s.kind: %q (use http, tick or systemd)", path, j.Kind))
	}
	return errors.Join(errs...)
}
