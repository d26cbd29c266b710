package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	c := NewFakeClock()
	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_FiresOnlyDueTimers(t *testing.T) {
	c := NewFakeClock()
	var fired []string

	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "a") })
	c.AfterFunc(300*time.Millisecond, func() { fired = append(fired, "b") })

	c.Advance(99 * time.Millisecond)
	assert.Empty(t, fired)

	c.Advance(time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, Epoch.Add(1100*time.Millisecond), c.Now())
}

func TestFakeClock_NowDuringCallbackIsDeadline(t *testing.T) {
	c := NewFakeClock()
	var at time.Time
	c.AfterFunc(250*time.Millisecond, func() { at = c.Now() })

	c.Advance(time.Second)
	assert.Equal(t, Epoch.Add(250*time.Millisecond), at)
}

func TestFakeClock_StopPreventsFire(t *testing.T) {
	c := NewFakeClock()
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeClock_CallbackCanRearm(t *testing.T) {
	c := NewFakeClock()
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	assert.Equal(t, 5, ticks)
	assert.Equal(t, 1, c.Pending())
}

func TestFakeClock_SameDeadlineFiresInArmOrder(t *testing.T) {
	c := NewFakeClock()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		c.AfterFunc(time.Second, func() { order = append(order, i) })
	}

	c.Advance(time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}
