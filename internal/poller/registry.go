package poller

import (
	"sort"
	"sync"
)

// Registry is the single source of truth for whether a job should keep
// running. An id is live iff it is present; there is no stored false.
type Registry struct {
	mu   sync.RWMutex
	live map[JobID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{live: map[JobID]struct{}{}}
}

// Register marks id live. It returns false, and changes nothing, if id is
// already present.
func (r *Registry) Register(id JobID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; ok {
		return false
	}
	r.live[id] = struct{}{}
	return true
}

// IsLive is total: unknown ids are simply not live.
func (r *Registry) IsLive(id JobID) bool {
	r.mu.RLock()
	_, ok := r.live[id]
	r.mu.RUnlock()
	return ok
}

// Cancel removes id. Unknown or already removed ids are a no-op; the result
// reports whether anything was removed.
func (r *Registry) Cancel(id JobID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; !ok {
		return false
	}
	delete(r.live, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// IDs returns the live ids in lexical order.
func (r *Registry) IDs() []JobID {
	r.mu.RLock()
	out := make([]JobID, 0, len(r.live))
	for id := range r.live {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
