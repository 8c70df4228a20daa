package poller

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource issues job identifiers. Ids must not repeat while a job holding
// them could still be live.
type IDSource interface {
	NewID() JobID
}

// IDFunc adapts a function to IDSource.
type IDFunc func() JobID

func (f IDFunc) NewID() JobID { return f() }

// UUIDs returns the default source: random (v4) UUIDs.
func UUIDs() IDSource {
	return IDFunc(func() JobID { return JobID(uuid.NewString()) })
}

// SequentialIDs hands out Prefix followed by 1, 2, 3, ... for the lifetime of
// the value. Safe for concurrent use.
type SequentialIDs struct {
	Prefix string
	n      atomic.Uint64
}

func (s *SequentialIDs) NewID() JobID {
	return JobID(s.Prefix + strconv.FormatUint(s.n.Add(1), 10))
}
