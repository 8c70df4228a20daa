package interval

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind is the normalized kind of a schedule string.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
	KindExponential
	KindSteps
)

func (k Kind) String() string {
	switch k {
	case KindCron:
		return "cron"
	case KindInterval:
		return "interval"
	case KindExponential:
		return "exponential"
	case KindSteps:
		return "steps"
	default:
		return "unknown"
	}
}

// Spec is a parsed schedule string.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "0 */10 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - Exponential: "exp:1s..5m" (doubling from 1s, capped at 5m)
//   - Steps: "steps:1s,5s,30s" (then 30s forever)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type Spec struct {
	Kind   Kind
	Raw    string
	Source string // "cron" | "duration" | "hhmm" | "exp" | "steps"

	Cron  string
	Every time.Duration

	Initial time.Duration
	Max     time.Duration

	Steps []time.Duration

	sched cron.Schedule
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Parse parses a schedule string. Cron expressions are validated here, so a
// Spec returned without error always yields a working Factory.
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return parseCronSpec(raw, expr)
	case strings.HasPrefix(low, "interval:"):
		return parseIntervalSpec(raw, s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseIntervalSpec(raw, s[len("every:"):])
	case strings.HasPrefix(low, "exp:"):
		return parseExpSpec(raw, s[len("exp:"):])
	case strings.HasPrefix(low, "steps:"):
		return parseStepsSpec(raw, s[len("steps:"):])
	}

	// Any whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCronSpec(raw, s)
	}

	if reHHMM.MatchString(s) || isDuration(s) {
		return parseIntervalSpec(raw, s)
	}

	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', duration like '55m', 'exp:1s..5m' or 'steps:1s,5s')",
		raw,
	)
}

// MustParse is Parse for schedules known at compile time.
func MustParse(raw string) Spec {
	sp, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return sp
}

// Factory returns a factory building a fresh sequence per call. clk feeds
// cron schedules and is ignored by the other kinds.
func (sp Spec) Factory(clk Clock) Factory {
	switch sp.Kind {
	case KindCron:
		sched := sp.sched
		return func() Sequence { return Cron(sched, clk) }
	case KindExponential:
		initial, limit := sp.Initial, sp.Max
		return func() Sequence { return Exponential(initial, 2, limit) }
	case KindSteps:
		ds := append([]time.Duration(nil), sp.Steps...)
		return func() Sequence { return Steps(ds...) }
	default:
		every := sp.Every
		return func() Sequence { return Constant(every) }
	}
}

func (sp Spec) String() string {
	switch sp.Kind {
	case KindCron:
		return "cron " + sp.Cron
	case KindExponential:
		return fmt.Sprintf("exp %s..%s", sp.Initial, sp.Max)
	case KindSteps:
		parts := make([]string, len(sp.Steps))
		for i, d := range sp.Steps {
			parts[i] = d.String()
		}
		return "steps " + strings.Join(parts, ",")
	default:
		return "every " + sp.Every.String()
	}
}

func parseCronSpec(raw, expr string) (Spec, error) {
	sched, err := CronParser.Parse(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Kind: KindCron, Raw: raw, Source: "cron", Cron: expr, sched: sched}, nil
}

func parseIntervalSpec(raw, v string) (Spec, error) {
	d, src, err := parseInterval(v)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Kind: KindInterval, Raw: raw, Source: src, Every: d}, nil
}

func parseExpSpec(raw, v string) (Spec, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(v), "..")
	if !ok {
		return Spec{}, fmt.Errorf("invalid exponential %q (use 'exp:<initial>..<max>')", v)
	}
	initial, _, err := parseInterval(lo)
	if err != nil {
		return Spec{}, err
	}
	limit, _, err := parseInterval(hi)
	if err != nil {
		return Spec{}, err
	}
	if limit < initial {
		return Spec{}, fmt.Errorf("exponential max %s is below initial %s", limit, initial)
	}
	return Spec{Kind: KindExponential, Raw: raw, Source: "exp", Initial: initial, Max: limit}, nil
}

func parseStepsSpec(raw, v string) (Spec, error) {
	fields := strings.Split(v, ",")
	ds := make([]time.Duration, 0, len(fields))
	for _, f := range fields {
		d, _, err := parseInterval(f)
		if err != nil {
			return Spec{}, fmt.Errorf("step %d: %w", len(ds)+1, err)
		}
		ds = append(ds, d)
	}
	return Spec{Kind: KindSteps, Raw: raw, Source: "steps", Steps: ds}, nil
}

func isDuration(s string) bool {
	_, err := time.ParseDuration(s)
	return err == nil
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, "", fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, "", fmt.Errorf("interval must be > 0")
		}
		return d, "hhmm", nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}
