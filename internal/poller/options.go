package poller

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"dynpoll/internal/clock"
	"dynpoll/internal/eventbus"
	logx "dynpoll/pkg/logx"
)

type Option interface {
	applyOption(c *pollerConfig) error
}

type optionFunc func(c *pollerConfig) error

func (x optionFunc) applyOption(c *pollerConfig) error { return x(c) }

type pollerConfig struct {
	ctx       context.Context
	clock     clock.Clock
	ids       IDSource
	reg       *Registry
	log       logx.Logger
	bus       eventbus.Bus
	observer  Observer
	policy    FailurePolicy
	onFailure func(id JobID, err error)
	failRate  rate.Limit
	failBurst int
}

// WithContext sets the parent of every job context. Cancelling it does not
// stop any chain; it is only visible to executors.
func WithContext(ctx context.Context) Option {
	return optionFunc(func(c *pollerConfig) error {
		if ctx == nil {
			return errors.New("poller: context must not be nil")
		}
		c.ctx = ctx
		return nil
	})
}

func WithClock(clk clock.Clock) Option {
	return optionFunc(func(c *pollerConfig) error {
		if clk == nil {
			return errors.New("poller: clock must not be nil")
		}
		c.clock = clk
		return nil
	})
}

func WithIDSource(ids IDSource) Option {
	return optionFunc(func(c *pollerConfig) error {
		if ids == nil {
			return errors.New("poller: id source must not be nil")
		}
		c.ids = ids
		return nil
	})
}

// WithRegistry injects the liveness registry, e.g. to inspect it from a test.
func WithRegistry(reg *Registry) Option {
	return optionFunc(func(c *pollerConfig) error {
		if reg == nil {
			return errors.New("poller: registry must not be nil")
		}
		c.reg = reg
		return nil
	})
}

func WithLogger(log logx.Logger) Option {
	return optionFunc(func(c *pollerConfig) error {
		c.log = log
		return nil
	})
}

func WithBus(bus eventbus.Bus) Option {
	return optionFunc(func(c *pollerConfig) error {
		if bus == nil {
			return errors.New("poller: bus must not be nil")
		}
		c.bus = bus
		return nil
	})
}

func WithObserver(o Observer) Option {
	return optionFunc(func(c *pollerConfig) error {
		if o == nil {
			return errors.New("poller: observer must not be nil")
		}
		c.observer = o
		return nil
	})
}

func WithFailurePolicy(p FailurePolicy) Option {
	return optionFunc(func(c *pollerConfig) error {
		if p != FailureRearm && p != FailureDeregister {
			return errors.New("poller: unknown failure policy")
		}
		c.policy = p
		return nil
	})
}

// WithFailureHandler registers a callback run after every executor failure,
// on the firing goroutine, before the failure policy is applied.
func WithFailureHandler(fn func(id JobID, err error)) Option {
	return optionFunc(func(c *pollerConfig) error {
		c.onFailure = fn
		return nil
	})
}

// WithFailureLogRate bounds how many failure log lines the poller writes.
// Events, observer calls and the failure handler are never throttled.
func WithFailureLogRate(r rate.Limit, burst int) Option {
	return optionFunc(func(c *pollerConfig) error {
		if r < 0 || burst <= 0 {
			return errors.New("poller: failure log rate must be >= 0 with a positive burst")
		}
		c.failRate = r
		c.failBurst = burst
		return nil
	})
}
