package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dynpoll/internal/clock"
	"dynpoll/internal/config"
	"dynpoll/internal/eventbus"
	"dynpoll/internal/metrics"
	"dynpoll/internal/poller"
	"dynpoll/internal/probe"
	"dynpoll/internal/runtime/supervisor"
	"dynpoll/internal/status"
	logx "dynpoll/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	clock   clock.Clock
	client  *http.Client
	notify  func(state string)
	metrics *metrics.Recorder
	poller  *poller.Poller
	status  *status.Service

	unitsMu sync.Mutex
	units   probe.UnitStater
	dbus    *probe.DBusUnits

	// jobsMu guards jobs, the config name -> live id map.
	jobsMu sync.Mutex
	jobs   map[string]poller.JobID

	stopOnce sync.Once
}

type Option func(a *App)

// WithClock replaces the wall clock for the poller and schedule sequences.
func WithClock(clk clock.Clock) Option {
	return func(a *App) {
		if clk != nil {
			a.clock = clk
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		if c != nil {
			a.client = c
		}
	}
}

// WithUnits replaces the systemd D-Bus client used by systemd jobs.
func WithUnits(u probe.UnitStater) Option {
	return func(a *App) { a.units = u }
}

// WithNotifier replaces sd_notify. fn receives states such as
// daemon.SdNotifyReady.
func WithNotifier(fn func(state string)) Option {
	return func(a *App) {
		if fn != nil {
			a.notify = fn
		}
	}
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		clock:   clock.Real(),
		client:  &http.Client{},
		jobs:    map[string]poller.JobID{},
	}
	a.notify = a.sdNotify
	for _, o := range opts {
		o(a)
	}

	a.metrics = metrics.New(metrics.Options{Runtime: cfg.Status.RuntimeMetrics})

	popts, err := mapPollerOptions(cfg)
	if err != nil {
		return nil, err
	}
	popts = append(popts,
		poller.WithClock(a.clock),
		poller.WithLogger(logSvc.Logger().With(logx.String("comp", "poller"))),
		poller.WithBus(a.bus),
		poller.WithObserver(a.metrics),
	)
	p, err := poller.New(popts...)
	if err != nil {
		return nil, err
	}
	a.poller = p

	stCfg, err := mapStatusConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.status = status.New(stCfg, status.Source{
		Jobs:    p,
		Metrics: a.metrics.Handler(),
		Started: a.clock.Now(),
	}, logSvc.Logger())

	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Poller() *poller.Poller { return a.poller }

// StatusAddr returns the bound status address, or "" when disabled.
func (a *App) StatusAddr() string { return a.status.Addr() }

// JobID returns the live id of the configured job name. A job cancelled
// through the status API or the deregister policy has none.
func (a *App) JobID(name string) (poller.JobID, bool) {
	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()
	id, ok := a.jobs[name]
	if !ok || !a.poller.Live(id) {
		return "", false
	}
	return id, true
}

// JobNames returns the configured jobs that are still live, sorted. A job
// removed by the deregister failure policy is not listed.
func (a *App) JobNames() []string {
	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()
	out := make([]string, 0, len(a.jobs))
	for name, id := range a.jobs {
		if a.poller.Live(id) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStatusConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPollerOptions(cfg); err != nil {
			return err
		}
		return a.validateJobs(cfg)
	})

	if err := a.status.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	initial := a.cfgm.Get()
	if err := a.applyJobs(nil, initial); err != nil {
		a.log.Warn("some jobs were not scheduled", logx.Err(err))
	}

	// Debug view of the poller lifecycle events.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, initial)
		return nil
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("jobs", a.poller.Len()), logx.String("config", a.cfgPath))
	return nil
}

// reloadLoop applies published configs in order. lastApplied starts as the
// config the jobs were scheduled from, captured before subscribing.
func (a *App) reloadLoop(c context.Context, sub chan *config.Config, lastApplied *config.Config) {
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.notify(daemon.SdNotifyReloading)
	defer a.notify(daemon.SdNotifyReady)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(newCfg))
		case "poller":
			a.log.Warn("poller config changed; restart required for changes to take effect")
		case "status":
			stCfg, err := mapStatusConfig(newCfg)
			if err != nil {
				a.log.Warn("invalid status config; keeping previous", logx.Err(err))
				break
			}
			if err := a.status.Reconfigure(c, stCfg); err != nil {
				a.log.Warn("status reconfigure failed", logx.Err(err))
			}
		case "jobs":
			if err := a.applyJobs(oldCfg, newCfg); err != nil {
				a.log.Warn("some jobs were not rescheduled", logx.Err(err))
			}
		}
	}

	a.log.Info("config reloaded", fields...)
}

// applyJobs cancels removed and changed jobs, then schedules added and
// changed ones. Unchanged jobs keep running with their sequence state; an
// unchanged job that is no longer live is scheduled again.
func (a *App) applyJobs(oldCfg, newCfg *config.Config) error {
	d := config.DiffJobs(oldCfg, newCfg)

	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()

	var dead []string
	for name, id := range a.jobs {
		if !a.poller.Live(id) {
			delete(a.jobs, name)
			dead = append(dead, name)
		}
	}
	if d.Empty() && len(dead) == 0 {
		return nil
	}

	for _, name := range append(append([]string{}, d.Removed...), d.Changed...) {
		id, ok := a.jobs[name]
		if !ok {
			continue
		}
		a.poller.Cancel(id)
		delete(a.jobs, name)
		a.log.Debug("job cancelled", logx.String("job", name), logx.String("id", string(id)))
	}

	want := map[string]bool{}
	for _, name := range d.Added {
		want[name] = true
	}
	for _, name := range d.Changed {
		want[name] = true
	}
	for _, name := range dead {
		want[name] = true
	}

	var errs []error
	for _, j := range newCfg.EnabledJobs() {
		name := strings.TrimSpace(j.Name)
		if !want[name] {
			continue
		}
		id, err := a.scheduleLocked(j)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.log.Info("job scheduled", logx.String("job", name), logx.String("id", string(id)), logx.String("schedule", j.Schedule))
	}
	return errors.Join(errs...)
}

func (a *App) scheduleLocked(j config.JobConfig) (poller.JobID, error) {
	exec, err := a.executor(j)
	if err != nil {
		return "", fmt.Errorf("job %s: %w", j.Name, err)
	}
	factory, err := a.sequenceFactory(j)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(j.Name)
	id, err := a.poller.ScheduleNamed(name, exec, factory)
	if err != nil {
		return "", fmt.Errorf("job %s: %w", j.Name, err)
	}
	a.jobs[name] = id
	return id, nil
}

func (a *App) unitStater() probe.UnitStater {
	a.unitsMu.Lock()
	defer a.unitsMu.Unlock()
	if a.units == nil {
		a.dbus = probe.NewDBusUnits()
		a.units = a.dbus
	}
	return a.units
}

func (a *App) sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		a.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}

// Stop shuts the app down once; later calls return immediately.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.stopOnce.Do(func() { a.stop(ctx) })
	return nil
}

func (a *App) stop(ctx context.Context) {
	a.log.Info("stopping")
	a.notify(daemon.SdNotifyStopping)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Wait for the reload loop first so it cannot schedule jobs after CancelAll.
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.step(ctx, "jobs", time.Second, func(context.Context) error {
		a.jobsMu.Lock()
		n := a.poller.CancelAll()
		a.jobs = map[string]poller.JobID{}
		a.jobsMu.Unlock()
		a.log.Debug("jobs cancelled", logx.Int("count", n))
		return nil
	})
	a.step(ctx, "status", time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	a.step(ctx, "units", time.Second, func(context.Context) error {
		a.unitsMu.Lock()
		defer a.unitsMu.Unlock()
		if a.dbus != nil {
			a.dbus.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	stepCtx := ctx
	if limit > 0 {
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < limit {
				limit = max(rem, 0)
			}
		}
		if limit > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		// fn must honor stepCtx; if it doesn't, report when it finally returns.
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()))
		go func() {
			err := <-done
			a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}
