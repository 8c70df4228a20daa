package app

import (
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"dynpoll/internal/config"
	"dynpoll/internal/poller"
	"dynpoll/internal/probe"
	"dynpoll/internal/status"
	"dynpoll/pkg/interval"
	logx "dynpoll/pkg/logx"
)

const (
	defaultFailureLogRate  = 1
	defaultFailureLogBurst = 10
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStatusConfig(cfg *config.Config) (status.Config, error) {
	read, write, idle, err := cfg.Status.Timeouts()
	if err != nil {
		return status.Config{}, err
	}
	return status.Config{
		Enabled:       cfg.Status.Enabled,
		Addr:          strings.TrimSpace(cfg.Status.Addr),
		Token:         strings.TrimSpace(cfg.Status.Token),
		AllowInsecure: cfg.Status.AllowInsecure,
		Pprof:         cfg.Status.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapFailurePolicy(s string) (poller.FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rearm":
		return poller.FailureRearm, nil
	case "deregister":
		return poller.FailureDeregister, nil
	default:
		return 0, fmt.Errorf("poller.failure_policy: unknown %q", s)
	}
}

// mapPollerOptions turns the poller section into options. The section is read
// once; a reload that changes it only logs that a restart is needed.
func mapPollerOptions(cfg *config.Config) ([]poller.Option, error) {
	policy, err := mapFailurePolicy(cfg.Poller.FailurePolicy)
	if err != nil {
		return nil, err
	}
	r := cfg.Poller.FailureLogRate
	if r == 0 {
		r = defaultFailureLogRate
	}
	burst := cfg.Poller.FailureLogBurst
	if burst == 0 {
		burst = defaultFailureLogBurst
	}
	return []poller.Option{
		poller.WithFailurePolicy(policy),
		poller.WithFailureLogRate(rate.Limit(r), burst),
	}, nil
}

// sequenceFactory builds a fresh sequence per scheduled job: the parsed
// schedule, then jitter, then the rate cap.
func (a *App) sequenceFactory(j config.JobConfig) (poller.SequenceFactory, error) {
	sp, err := interval.Parse(j.Schedule)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	base := sp.Factory(a.clock)
	jitter, maxRate := j.Jitter, j.MaxRate
	clk := a.clock
	return func() poller.IntervalSequence {
		seq := base()
		if jitter > 0 {
			seq = interval.Jitter(seq, jitter, nil)
		}
		if maxRate > 0 {
			seq = interval.Limited(seq, rate.NewLimiter(rate.Limit(maxRate), 1), clk)
		}
		return seq
	}, nil
}

func (a *App) executor(j config.JobConfig) (poller.Executor, error) {
	log := a.logs.Logger().With(logx.String("comp", "probe"))
	switch strings.ToLower(strings.TrimSpace(j.Kind)) {
	case config.KindTick:
		return probe.Tick(log, j.Name), nil
	case config.KindHTTP:
		timeout, err := config.ParseDurationField("jobs["+j.Name+"].timeout", j.Timeout)
		if err != nil {
			return nil, err
		}
		return probe.HTTP(probe.HTTPConfig{
			URL:          strings.TrimSpace(j.URL),
			Method:       j.Method,
			Timeout:      timeout,
			ExpectStatus: j.ExpectStatus,
			Header:       j.Header,
		}, a.client, log)
	case config.KindSystemd:
		return probe.Systemd(a.unitStater(), j.Unit, log)
	default:
		return nil, fmt.Errorf("job %s: unknown kind %q", j.Name, j.Kind)
	}
}

// validateJobs checks that every enabled job can be turned into an executor
// and a sequence. It runs before a reloaded config is committed.
func (a *App) validateJobs(cfg *config.Config) error {
	for _, j := range cfg.EnabledJobs() {
		if _, err := a.sequenceFactory(j); err != nil {
			return err
		}
		if _, err := a.executor(j); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
	}
	return nil
}
