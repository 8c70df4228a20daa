package poller

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dynpoll/internal/clock"
	"dynpoll/internal/eventbus"
	logx "dynpoll/pkg/logx"
)

const (
	defaultFailureLogRate  = rate.Limit(1)
	defaultFailureLogBurst = 10
)

// Poller schedules and cancels jobs. The zero value is not usable; construct
// with New. All methods are safe for concurrent use.
type Poller struct {
	ctx       context.Context
	clock     clock.Clock
	ids       IDSource
	reg       *Registry
	log       logx.Logger
	failLog   logx.Logger
	bus       eventbus.Bus
	obs       Observer
	policy    FailurePolicy
	onFailure func(id JobID, err error)

	// mu keeps jobs consistent with reg across Schedule and Cancel.
	mu   sync.Mutex
	jobs map[JobID]*job
}

type job struct {
	id     JobID
	name   string
	exec   Executor
	seq    IntervalSequence
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	scheduledAt time.Time
	lastFire    time.Time
	nextFire    time.Time
	lastTook    time.Duration
	fires       uint64
	failures    uint64
	lastErr     string
	running     bool
}

// New builds a Poller. Without options it uses the wall clock, random UUID
// ids, a fresh registry, no logging and the FailureRearm policy.
func New(options ...Option) (*Poller, error) {
	c := pollerConfig{
		ctx:       context.Background(),
		clock:     clock.Real(),
		ids:       UUIDs(),
		bus:       eventbus.Nop{},
		observer:  NopObserver{},
		policy:    FailureRearm,
		failRate:  defaultFailureLogRate,
		failBurst: defaultFailureLogBurst,
	}
	for _, o := range options {
		if err := o.applyOption(&c); err != nil {
			return nil, err
		}
	}
	if c.reg == nil {
		c.reg = NewRegistry()
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return &Poller{
		ctx:       c.ctx,
		clock:     c.clock,
		ids:       c.ids,
		reg:       c.reg,
		log:       c.log,
		failLog:   c.log.Throttled(rate.NewLimiter(c.failRate, c.failBurst)),
		bus:       c.bus,
		obs:       c.observer,
		policy:    c.policy,
		onFailure: c.onFailure,
		jobs:      map[JobID]*job{},
	}, nil
}

// Schedule registers an anonymous job. See ScheduleNamed.
func (p *Poller) Schedule(exec Executor, factory SequenceFactory) (JobID, error) {
	return p.ScheduleNamed("", exec, factory)
}

// ScheduleNamed registers a job and arms its first firing with the first value
// of a sequence built by factory. It returns as soon as the timer is armed.
// The name only labels logs, events and snapshots.
func (p *Poller) ScheduleNamed(name string, exec Executor, factory SequenceFactory) (JobID, error) {
	if exec == nil {
		return "", ErrNilExecutor
	}
	if factory == nil {
		return "", ErrNilFactory
	}
	seq := factory()
	if seq == nil {
		return "", ErrNilSequence
	}

	first, err := nextDelay(seq)
	if err != nil {
		return "", err
	}

	id := p.ids.NewID()
	ctx, cancel := context.WithCancel(context.WithValue(p.ctx, ctxKey{}, id))
	j := &job{
		id:     id,
		name:   name,
		exec:   exec,
		seq:    seq,
		ctx:    ctx,
		cancel: cancel,
	}

	// Register before arming: a zero first delay may fire immediately.
	p.mu.Lock()
	if !p.reg.Register(id) {
		p.mu.Unlock()
		cancel()
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	p.jobs[id] = j
	j.mu.Lock()
	j.scheduledAt = p.clock.Now()
	j.mu.Unlock()
	p.arm(j, first)
	p.mu.Unlock()

	p.obs.JobScheduled(id, name)
	p.publish(EventJobScheduled, JobEvent{ID: id, Name: name, Next: first})
	p.log.Debug("job scheduled", logx.String("job", string(id)), logx.String("name", name), logx.Duration("first", first))
	return id, nil
}

// Cancel stops future firings of id. An already armed timer still fires once
// and does nothing. Unknown or already cancelled ids are a no-op; the result
// reports whether a live job was removed.
func (p *Poller) Cancel(id JobID) bool {
	return p.deregister(id, ReasonCancel)
}

// CancelAll cancels every live job and returns how many were removed.
// Only this poller's jobs are touched, even when the registry is shared.
func (p *Poller) CancelAll() int {
	p.mu.Lock()
	ids := make([]JobID, 0, len(p.jobs))
	for id := range p.jobs {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	n := 0
	for _, id := range ids {
		if p.Cancel(id) {
			n++
		}
	}
	return n
}

// Live reports whether id is currently scheduled.
func (p *Poller) Live(id JobID) bool { return p.reg.IsLive(id) }

// Len returns the number of live jobs.
func (p *Poller) Len() int { return p.reg.Len() }

// Info returns the snapshot row for id.
func (p *Poller) Info(id JobID) (JobInfo, bool) {
	p.mu.Lock()
	j := p.jobs[id]
	p.mu.Unlock()
	if j == nil || !p.reg.IsLive(id) {
		return JobInfo{}, false
	}
	return j.info(), true
}

// Snapshot returns every live job ordered by scheduling time.
func (p *Poller) Snapshot() []JobInfo {
	p.mu.Lock()
	jobs := make([]*job, 0, len(p.jobs))
	for id, j := range p.jobs {
		if p.reg.IsLive(id) {
			jobs = append(jobs, j)
		}
	}
	p.mu.Unlock()

	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.info())
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].ScheduledAt.Equal(out[b].ScheduledAt) {
			return out[a].ScheduledAt.Before(out[b].ScheduledAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

func (p *Poller) deregister(id JobID, reason string) bool {
	p.mu.Lock()
	if !p.reg.Cancel(id) {
		p.mu.Unlock()
		return false
	}
	j := p.jobs[id]
	delete(p.jobs, id)
	p.mu.Unlock()

	var name string
	var fires uint64
	if j != nil {
		j.cancel()
		name = j.name
		fires = j.info().Fires
	}
	p.obs.JobCancelled(id, name)
	p.publish(EventJobCancelled, JobEvent{ID: id, Name: name, Fires: fires, Reason: reason})
	p.log.Debug("job cancelled", logx.String("job", string(id)), logx.String("name", name), logx.String("reason", reason))
	return true
}

// arm arms the next firing. Only Schedule and the job's own firing call it,
// so a job never has two timers pending.
func (p *Poller) arm(j *job, d time.Duration) {
	j.mu.Lock()
	j.nextFire = p.clock.Now().Add(d)
	j.mu.Unlock()
	p.clock.AfterFunc(d, func() { p.fire(j) })
}

func (p *Poller) fire(j *job) {
	start := p.clock.Now()
	if !p.begin(j, start) {
		p.stopped(j)
		return
	}

	stack, execErr := p.run(j)
	took := p.clock.Now().Sub(start)

	j.mu.Lock()
	j.running = false
	j.lastTook = took
	j.fires++
	fires := j.fires
	if execErr != nil {
		j.failures++
		j.lastErr = execErr.Error()
	} else {
		j.lastErr = ""
	}
	j.mu.Unlock()

	if execErr != nil {
		p.failed(j, took, fires, execErr, stack)
		if p.policy == FailureDeregister {
			p.deregister(j.id, ReasonFailure)
			return
		}
	} else {
		p.obs.JobFired(j.id, j.name, took)
	}

	// Skip pulling a delay for a job cancelled while it ran.
	if !p.live(j) {
		if execErr == nil {
			p.publish(EventJobFired, JobEvent{ID: j.id, Name: j.name, Took: took, Fires: fires})
		}
		p.stopped(j)
		return
	}
	next, err := nextDelay(j.seq)
	if err != nil {
		p.failed(j, 0, fires, err, "")
		p.deregister(j.id, ReasonFailure)
		return
	}
	if execErr == nil {
		p.publish(EventJobFired, JobEvent{ID: j.id, Name: j.name, Took: took, Next: next, Fires: fires})
	}
	p.arm(j, next)
}

// begin commits to running j under the lock deregister takes, so once
// Cancel has returned no new run of the job can start.
func (p *Poller) begin(j *job, start time.Time) bool {
	p.mu.Lock()
	ok, orphaned := p.liveLocked(j)
	if ok {
		j.mu.Lock()
		j.running = true
		j.lastFire = start
		j.nextFire = time.Time{}
		j.mu.Unlock()
	}
	p.mu.Unlock()
	if orphaned {
		p.orphaned(j)
	}
	return ok
}

// live reports whether j still holds its id in the registry.
func (p *Poller) live(j *job) bool {
	p.mu.Lock()
	ok, orphaned := p.liveLocked(j)
	p.mu.Unlock()
	if orphaned {
		p.orphaned(j)
	}
	return ok
}

// liveLocked compares the job itself, not just the id, so a stale timer
// cannot drive a newer job that was handed the same id. orphaned is true the
// first time j is seen removed from the registry without going through
// Cancel; the caller reports it after unlocking. p.mu must be held.
func (p *Poller) liveLocked(j *job) (ok, orphaned bool) {
	if !p.reg.IsLive(j.id) {
		if p.jobs[j.id] == j {
			delete(p.jobs, j.id)
			return false, true
		}
		return false, false
	}
	return p.jobs[j.id] == j, false
}

// orphaned reports a job removed straight from the registry the same way
// deregister reports a cancelled one.
func (p *Poller) orphaned(j *job) {
	j.cancel()
	p.obs.JobCancelled(j.id, j.name)
	p.publish(EventJobCancelled, JobEvent{ID: j.id, Name: j.name, Fires: j.info().Fires, Reason: ReasonRegistry})
	p.log.Debug("job cancelled", logx.String("job", string(j.id)), logx.String("name", j.name), logx.String("reason", ReasonRegistry))
}

func (p *Poller) run(j *job) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, r)
			stack = string(debug.Stack())
		}
	}()
	return "", j.exec(j.ctx)
}

func nextDelay(seq IntervalSequence) (d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSequencePanic, r)
		}
	}()
	d = seq.Next()
	if d < 0 {
		d = 0
	}
	return d, nil
}

func (p *Poller) failed(j *job, took time.Duration, fires uint64, err error, stack string) {
	p.failLog.Warn("job failed",
		logx.String("job", string(j.id)),
		logx.String("name", j.name),
		logx.String("policy", p.policy.String()),
		logx.Duration("took", took),
		logx.Err(err),
		logx.Stack(stack),
	)
	p.obs.JobFailed(j.id, j.name, took, err)
	p.publish(EventJobFailed, JobEvent{ID: j.id, Name: j.name, Took: took, Fires: fires, Error: err.Error()})
	if p.onFailure != nil {
		p.onFailure(j.id, err)
	}
}

func (p *Poller) stopped(j *job) {
	p.obs.JobStopped(j.id, j.name)
	p.publish(EventJobStopped, JobEvent{ID: j.id, Name: j.name, Fires: j.info().Fires})
	p.log.Trace("chain ended", logx.String("job", string(j.id)), logx.String("name", j.name))
}

func (p *Poller) publish(typ string, ev JobEvent) {
	p.bus.Publish(eventbus.Event{Type: typ, Time: p.clock.Now(), Data: ev})
}

func (j *job) info() JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobInfo{
		ID:          j.id,
		Name:        j.name,
		ScheduledAt: j.scheduledAt,
		LastFire:    j.lastFire,
		NextFire:    j.nextFire,
		LastTook:    j.lastTook,
		Fires:       j.fires,
		Failures:    j.failures,
		LastError:   j.lastErr,
		Running:     j.running,
	}
}
