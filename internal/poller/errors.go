package poller

import "errors"

var (
	ErrNilExecutor   = errors.New("poller: executor required")
	ErrNilFactory    = errors.New("poller: interval sequence factory required")
	ErrNilSequence   = errors.New("poller: factory returned a nil sequence")
	ErrDuplicateID   = errors.New("poller: id source returned an id that is still live")
	ErrExecutorPanic = errors.New("poller: executor panicked")
	ErrSequencePanic = errors.New("poller: interval sequence panicked")
)
