package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFetchGate(t *testing.T) {
	g := NewFetchGate(10*time.Minute, 2)
	t0 := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	ok, _ := g.Allow("SE3", t0)
	assert.True(t, ok, "unknown area is always allowed")

	g.Record("SE3", t0, true)
	ok, wait := g.Allow("se3", t0.Add(4*time.Minute))
	assert.False(t, ok)
	assert.Equal(t, 6*time.Minute, wait)

	ok, _ = g.Allow("SE3", t0.Add(10*time.Minute))
	assert.True(t, ok)

	ok, _ = g.Allow("FI", t0.Add(time.Minute))
	assert.True(t, ok, "areas are gated independently")
}

func TestFetchGateBackoff(t *testing.T) {
	g := NewFetchGate(10*time.Minute, 2)
	t0 := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		failures int
		wait     time.Duration
	}{
		{1, 20 * time.Minute},
		{2, 40 * time.Minute},
		{3, 40 * time.Minute},
	}
	for _, tt := range tests {
		g.Record("SE3", t0, false)
		assert.Equal(t, tt.failures, g.Failures("SE3"))

		ok, _ := g.Allow("SE3", t0.Add(tt.wait-time.Second))
		assert.False(t, ok, "failures=%d", tt.failures)
		ok, _ = g.Allow("SE3", t0.Add(tt.wait))
		assert.True(t, ok, "failures=%d", tt.failures)
	}

	g.Record("SE3", t0, true)
	assert.Zero(t, g.Failures("SE3"))

	g.Reset("SE3")
	ok, _ := g.Allow("SE3", t0)
	assert.True(t, ok)
}
