// Package poller runs independent recurring jobs whose delay between runs is
// pulled, one value at a time, from a per-job interval sequence.
//
// A job is a pair of an Executor and a SequenceFactory. Schedule calls the
// factory once, registers the job as live, and arms a one-shot timer with the
// sequence's first delay. Every firing:
//   - checks liveness in the Registry and ends the chain if the job is gone
//   - runs the executor to completion
//   - pulls the next delay and arms the next timer
//
// Because the next timer is armed only after the executor returns, a job never
// overlaps itself; a slow executor pushes its own next run back instead.
//
// Cancel only flips liveness. A timer that is already armed still fires once,
// finds the job absent, and does nothing.
package poller
