package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bagoessprasetyo/property-management-sub000/internal/testutil"
)

func TestPoller_TicksWhileActive(t *testing.T) {
	clk := testutil.NewFakeClock()
	active := true
	polls := 0
	p := NewPoller(clk, 30*time.Second, func() bool { return active }, func() { polls++ })

	p.Start()
	p.Start()
	clk.Advance(95 * time.Second)
	assert.Equal(t, 3, polls)

	active = false
	clk.Advance(60 * time.Second)
	assert.Equal(t, 3, polls, "inactive ticks are skipped")

	active = true
	clk.Advance(30 * time.Second)
	assert.Equal(t, 4, polls)

	p.Stop()
	clk.Advance(5 * time.Minute)
	assert.Equal(t, 4, polls)
	assert.Zero(t, clk.Pending())
}

func TestPoller_Defaults(t *testing.T) {
	p := NewPoller(testutil.NewFakeClock(), 0, nil, func() {})
	assert.Equal(t, DefaultPollInterval, p.Interval())
}
