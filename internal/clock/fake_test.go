package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)

	var got []string
	c.AfterFunc(30*time.Millisecond, func() { got = append(got, "c") })
	c.AfterFunc(10*time.Millisecond, func() { got = append(got, "a") })
	c.AfterFunc(20*time.Millisecond, func() { got = append(got, "b") })
	c.AfterFunc(10*time.Millisecond, func() { got = append(got, "a2") })

	c.Advance(25 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b"}, got)
	assert.Equal(t, epoch.Add(25*time.Millisecond), c.Now())
	assert.Equal(t, 1, c.Pending())

	c.Advance(5 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b", "c"}, got)
	assert.Zero(t, c.Pending())
}

func TestFakeCallbackCanRearm(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)

	var fires []time.Time
	var arm func()
	arm = func() {
		c.AfterFunc(10*time.Millisecond, func() {
			fires = append(fires, c.Now())
			arm()
		})
	}
	arm()

	c.Advance(45 * time.Millisecond)
	require.Len(t, fires, 4)
	for i, at := range fires {
		assert.Equal(t, epoch.Add(time.Duration(i+1)*10*time.Millisecond), at)
	}
	assert.Equal(t, 1, c.Pending())
}

func TestFakeStop(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)

	fired := false
	tm := c.AfterFunc(time.Millisecond, func() { fired = true })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())

	c.Advance(time.Second)
	assert.False(t, fired)

	tm = c.AfterFunc(time.Millisecond, func() {})
	c.Advance(time.Millisecond)
	assert.False(t, tm.Stop(), "stop after fire")
}

func TestFakeStep(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)
	assert.False(t, c.Step())

	n := 0
	var arm func()
	arm = func() {
		c.AfterFunc(0, func() {
			n++
			arm()
		})
	}
	arm()

	for i := 0; i < 5; i++ {
		require.True(t, c.Step())
	}
	assert.Equal(t, 5, n)
	assert.Equal(t, epoch, c.Now())

	when, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, epoch, when)
}

func TestFakeNegativeDelayIsImmediate(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)
	fired := false
	c.AfterFunc(-time.Second, func() { fired = true })
	c.Advance(0)
	assert.True(t, fired)
}
