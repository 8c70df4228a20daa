// Package metrics exports poller activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dynpoll/internal/poller"
)

const namespace = "dynpoll"

type Options struct {
	// Runtime adds the Go and process collectors.
	Runtime bool
	Buckets []float64
}

var defaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Recorder implements poller.Observer on its own registry.
type Recorder struct {
	reg *prometheus.Registry

	fired     *prometheus.CounterVec
	failed    *prometheus.CounterVec
	cancelled prometheus.Counter
	stopped   prometheus.Counter
	live      prometheus.Gauge
	duration  *prometheus.HistogramVec
}

var _ poller.Observer = (*Recorder)(nil)

func New(opts Options) *Recorder {
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_fired_total",
			Help:      "Executor runs that returned without error.",
		}, []string{"job"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failed_total",
			Help:      "Executor runs that returned an error or panicked.",
		}, []string{"job"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_cancelled_total",
			Help:      "Jobs removed from the registry.",
		}),
		stopped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_stopped_total",
			Help:      "Timer chains that ended on a cancelled job.",
		}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_live",
			Help:      "Jobs currently scheduled.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "executor_duration_seconds",
			Help:      "Executor run time in seconds.",
			Buckets:   buckets,
		}, []string{"job"}),
	}
	r.reg.MustRegister(r.fired, r.failed, r.cancelled, r.stopped, r.live, r.duration)
	if opts.Runtime {
		r.reg.MustRegister(collectors.NewGoCollector())
		r.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Named jobs are labelled by name so the label survives a reschedule; the
// random id is only used for anonymous jobs.
func label(id poller.JobID, name string) string {
	if name != "" {
		return name
	}
	return string(id)
}

func (r *Recorder) JobScheduled(poller.JobID, string) { r.live.Inc() }

func (r *Recorder) JobFired(id poller.JobID, name string, took time.Duration) {
	l := label(id, name)
	r.fired.WithLabelValues(l).Inc()
	r.duration.WithLabelValues(l).Observe(took.Seconds())
}

func (r *Recorder) JobFailed(id poller.JobID, name string, took time.Duration, _ error) {
	l := label(id, name)
	r.failed.WithLabelValues(l).Inc()
	if took > 0 {
		r.duration.WithLabelValues(l).Observe(took.Seconds())
	}
}

func (r *Recorder) JobCancelled(id poller.JobID, name string) {
	r.cancelled.Inc()
	r.live.Dec()
	r.dropAnonymous(id, name)
}

// JobStopped also drops anonymous series again: a run already in flight at
// cancel time reports after JobCancelled and recreates them.
func (r *Recorder) JobStopped(id poller.JobID, name string) {
	r.stopped.Inc()
	r.dropAnonymous(id, name)
}

// dropAnonymous deletes the series of an unnamed job. Anonymous ids never
// come back.
func (r *Recorder) dropAnonymous(id poller.JobID, name string) {
	if name != "" {
		return
	}
	l := string(id)
	r.fired.DeleteLabelValues(l)
	r.failed.DeleteLabelValues(l)
	r.duration.DeleteLabelValues(l)
}
