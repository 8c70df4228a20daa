// Package interval provides delay sequences for the poller and a parser for
// schedule strings.
//
// A Sequence is stateful and belongs to exactly one job. Share a Factory, not
// a Sequence.
package interval

import (
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Sequence yields the delay before each firing.
type Sequence interface {
	Next() time.Duration
}

// Factory builds a fresh Sequence for one job.
type Factory func() Sequence

// Clock is the subset of a clock that time-aware sequences need.
type Clock interface {
	Now() time.Time
}

type constant time.Duration

func (c constant) Next() time.Duration { return time.Duration(c) }

// Constant always yields d.
func Constant(d time.Duration) Sequence { return constant(d) }

type steps struct {
	ds []time.Duration
	i  int
}

func (s *steps) Next() time.Duration {
	if len(s.ds) == 0 {
		return 0
	}
	d := s.ds[s.i]
	if s.i < len(s.ds)-1 {
		s.i++
	}
	return d
}

// Steps yields ds in order and then repeats the last one. An empty Steps
// yields zero forever.
func Steps(ds ...time.Duration) Sequence {
	return &steps{ds: append([]time.Duration(nil), ds...)}
}

type exponential struct {
	cur    float64
	factor float64
	limit  time.Duration
}

func (e *exponential) Next() time.Duration {
	if e.cur >= math.MaxInt64 {
		return math.MaxInt64
	}
	d := time.Duration(e.cur)
	if e.limit > 0 && d >= e.limit {
		return e.limit
	}
	e.cur *= e.factor
	return d
}

// Exponential yields initial, initial*factor, ... capped at maxDelay. A factor
// of 1 or less doubles; a maxDelay of 0 means uncapped.
func Exponential(initial time.Duration, factor float64, maxDelay time.Duration) Sequence {
	if factor <= 1 {
		factor = 2
	}
	return &exponential{cur: float64(initial), factor: factor, limit: maxDelay}
}

type linear struct {
	cur, step, limit time.Duration
}

func (l *linear) Next() time.Duration {
	d := l.cur
	if l.limit > 0 && d >= l.limit {
		return l.limit
	}
	l.cur += l.step
	return d
}

// Linear yields initial, initial+step, ... capped at maxDelay (0 means
// uncapped).
func Linear(initial, step, maxDelay time.Duration) Sequence {
	return &linear{cur: initial, step: step, limit: maxDelay}
}

type fn struct {
	f func(n int) time.Duration
	n int
}

func (s *fn) Next() time.Duration {
	d := s.f(s.n)
	s.n++
	return d
}

// Func yields f(0), f(1), ...
func Func(f func(n int) time.Duration) Sequence { return &fn{f: f} }

type jitter struct {
	base     Sequence
	fraction float64
	rng      *rand.Rand
}

func (j *jitter) Next() time.Duration {
	d := j.base.Next()
	if d <= 0 || j.fraction <= 0 {
		return d
	}
	var u float64
	if j.rng != nil {
		u = j.rng.Float64()
	} else {
		u = rand.Float64() //nolint:gosec // jitter does not need crypto rand
	}
	// u in [0,1) maps to a spread of [-fraction, +fraction).
	out := time.Duration(float64(d) * (1 + j.fraction*(2*u-1)))
	if out < 0 {
		return 0
	}
	return out
}

// Jitter spreads each delay of base by up to ±fraction of itself. fraction is
// clamped to [0, 1]. A nil rng uses the package-level source.
func Jitter(base Sequence, fraction float64, rng *rand.Rand) Sequence {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return &jitter{base: base, fraction: fraction, rng: rng}
}

type limited struct {
	base Sequence
	lim  *rate.Limiter
	clk  Clock
}

func (l *limited) Next() time.Duration {
	d := l.base.Next()
	if d < 0 {
		d = 0
	}
	at := l.clk.Now().Add(d)
	r := l.lim.ReserveN(at, 1)
	if !r.OK() {
		return d
	}
	return d + r.DelayFrom(at)
}

// Limited stretches each delay of base so that firings never exceed lim.
// Every call reserves one token at the time the firing is due.
func Limited(base Sequence, lim *rate.Limiter, clk Clock) Sequence {
	return &limited{base: base, lim: lim, clk: clk}
}
