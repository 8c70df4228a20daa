package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional non-negative Go duration. Empty means
// zero. path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// Timeouts resolves the status server timeouts.
func (s StatusConfig) Timeouts() (read, write, idle time.Duration, err error) {
	if read, err = ParseDurationOrDefault("status.read_timeout", s.ReadTimeout, 10*time.Second); err != nil {
		return
	}
	// pprof profiles can run for 30s+, so writes are unbounded unless set.
	if write, err = ParseDurationField("status.write_timeout", s.WriteTimeout); err != nil {
		return
	}
	idle, err = ParseDurationOrDefault("status.idle_timeout", s.IdleTimeout, time.Minute)
	return
}
