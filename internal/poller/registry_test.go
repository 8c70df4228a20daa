package poller

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	assert.False(t, r.IsLive("a"), "unknown ids are not live")
	assert.True(t, r.Register("a"))
	assert.False(t, r.Register("a"), "second register is refused")
	assert.True(t, r.IsLive("a"))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Cancel("a"))
	assert.False(t, r.Cancel("a"))
	assert.False(t, r.Cancel("never"))
	assert.False(t, r.IsLive("a"))
	assert.Zero(t, r.Len())
}

func TestRegistryIDsSorted(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, id := range []JobID{"c", "a", "b"} {
		r.Register(id)
	}
	assert.Equal(t, []JobID{"a", "b", "c"}, r.IDs())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := JobID(strconv.Itoa(w) + "-" + strconv.Itoa(i))
				r.Register(id)
				_ = r.IsLive(id)
				if i%2 == 0 {
					r.Cancel(id)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 8*100, r.Len())
}

func TestSequentialIDs(t *testing.T) {
	t.Parallel()
	ids := &SequentialIDs{Prefix: "job-"}
	assert.Equal(t, JobID("job-1"), ids.NewID())
	assert.Equal(t, JobID("job-2"), ids.NewID())

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[JobID]bool{}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				id := ids.NewID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1000)
}

func TestUUIDsDistinct(t *testing.T) {
	t.Parallel()
	src := UUIDs()
	a, b := src.NewID(), src.NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, string(a), 36)
}

func TestFailurePolicyString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "rearm", FailureRearm.String())
	assert.Equal(t, "deregister", FailureDeregister.String())
	assert.Equal(t, "unknown", FailurePolicy(7).String())
}
