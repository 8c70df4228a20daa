package config

import (
	"reflect"
	"sort"
	"strings"

	logx "dynpoll/pkg/logx"
)

// JobDiff lists job names by how they changed between two configs. Disabled
// jobs count as absent.
type JobDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

func (d JobDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffJobs compares the enabled jobs of two configs by name.
func DiffJobs(oldCfg, newCfg *Config) JobDiff {
	before := jobsByName(oldCfg)
	after := jobsByName(newCfg)

	var d JobDiff
	for name, nj := range after {
		oj, ok := before[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case !reflect.DeepEqual(oj, nj):
			d.Changed = append(d.Changed, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

func jobsByName(cfg *Config) map[string]JobConfig {
	out := map[string]JobConfig{}
	for _, j := range cfg.EnabledJobs() {
		out[strings.TrimSpace(j.Name)] = j
	}
	return out
}

// SummarizeChange returns the changed sections and safe log fields. Tokens
// are never included, only whether one is set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Poller != newCfg.Poller {
		changed = append(changed, "poller")
		attrs = append(attrs, logx.String("poller.failure_policy", newCfg.Poller.FailurePolicy))
	}

	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", strings.TrimSpace(newCfg.Status.Addr)),
			logx.Bool("status.pprof", newCfg.Status.Pprof),
			logx.Bool("status.token_set", strings.TrimSpace(newCfg.Status.Token) != ""),
		)
	}

	if d := DiffJobs(oldCfg, newCfg); !d.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Strs("jobs.added", d.Added),
			logx.Strs("jobs.removed", d.Removed),
			logx.Strs("jobs.changed", d.Changed),
		)
	}
	return changed, attrs
}
