package poller

import (
	"context"
	"time"
)

// JobID identifies a scheduled job. It is opaque to callers.
type JobID string

// Executor is the caller's action. The context is the job's own context: it
// is cancelled by Cancel, but the poller never interrupts a running executor.
// A returned error or a panic counts as a failure.
type Executor func(ctx context.Context) error

// IntervalSequence yields the delay before each firing. Implementations are
// stateful and owned by exactly one job; negative values mean "now".
type IntervalSequence interface {
	Next() time.Duration
}

// SequenceFactory builds the sequence for one job. Schedule calls it exactly
// once.
type SequenceFactory func() IntervalSequence

// SequenceFunc adapts a plain function to IntervalSequence.
type SequenceFunc func() time.Duration

func (f SequenceFunc) Next() time.Duration { return f() }

// FailurePolicy decides what happens to a job whose executor failed.
type FailurePolicy int

const (
	// FailureRearm reports the failure and keeps the chain going.
	FailureRearm FailurePolicy = iota
	// FailureDeregister reports the failure and removes the job.
	FailureDeregister
)

func (p FailurePolicy) String() string {
	switch p {
	case FailureRearm:
		return "rearm"
	case FailureDeregister:
		return "deregister"
	default:
		return "unknown"
	}
}

// JobInfo is a point-in-time view of one live job.
type JobInfo struct {
	ID          JobID         `json:"id"`
	Name        string        `json:"name,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	LastFire    time.Time     `json:"last_fire,omitzero"`
	NextFire    time.Time     `json:"next_fire,omitzero"`
	LastTook    time.Duration `json:"last_took"`
	Fires       uint64        `json:"fires"`
	Failures    uint64        `json:"failures"`
	LastError   string        `json:"last_error,omitempty"`
	Running     bool          `json:"running"`
}

// Observer receives lifecycle callbacks. Calls for one job are serialized;
// calls for different jobs may be concurrent.
type Observer interface {
	JobScheduled(id JobID, name string)
	JobFired(id JobID, name string, took time.Duration)
	JobFailed(id JobID, name string, took time.Duration, err error)
	JobCancelled(id JobID, name string)
	// JobStopped is called when a firing finds its job no longer live.
	JobStopped(id JobID, name string)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) JobScheduled(JobID, string) {}
func (NopObserver) JobFired(JobID, string, time.Duration) {}
func (NopObserver) JobFailed(JobID, string, time.Duration, error) {}
func (NopObserver) JobCancelled(JobID, string) {}
func (NopObserver) JobStopped(JobID, string) {}

// Event types published on the bus.
const (
	EventJobScheduled = "poller.job.scheduled"
	EventJobFired     = "poller.job.fired"
	EventJobFailed    = "poller.job.failed"
	EventJobCancelled = "poller.job.cancelled"
	EventJobStopped   = "poller.job.stopped"
)

// Reasons carried by EventJobCancelled.
const (
	ReasonCancel   = "cancel"
	ReasonFailure  = "failure"
	ReasonRegistry = "registry" // removed from the registry directly
)

// JobEvent is the payload of every poller event.
type JobEvent struct {
	ID     JobID         `json:"id"`
	Name   string        `json:"name,omitempty"`
	Took   time.Duration `json:"took,omitempty"`
	Next   time.Duration `json:"next,omitempty"`
	Fires  uint64        `json:"fires"`
	Error  string        `json:"error,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

type ctxKey struct{}

// JobIDFromContext returns the id of the job whose executor received ctx.
func JobIDFromContext(ctx context.Context) (JobID, bool) {
	id, ok := ctx.Value(ctxKey{}).(JobID)
	return id, ok
}
