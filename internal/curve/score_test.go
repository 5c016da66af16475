package curve

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNextScore_ZeroElapsedAddsVolumeExactly(t *testing.T) {
	prev := decimal.NewFromInt(100)
	vol := decimal.NewFromFloat(12.5)

	got := NextScore(prev, 1_000_000, 1_000_000, vol)
	assert.True(t, got.Equal(decimal.NewFromFloat(112.5)), "got %s", got)
}

func TestNextScore_OneDecayUnit(t *testing.T) {
	prev := decimal.NewFromInt(100)

	got := NextScore(prev, 0, 1800*1000, decimal.Zero)
	assert.True(t, got.LessThan(prev), "score should decay, got %s", got)
	assert.True(t, got.IsPositive(), "score decays asymptotically, never to zero, got %s", got)
}

func TestNextScore_ClockSkewClampedToZero(t *testing.T) {
	prev := decimal.NewFromInt(50)
	vol := decimal.NewFromInt(7)

	// Trade timestamp before the last update behaves like zero elapsed.
	got := NextScore(prev, 2_000_000, 1_000_000, vol)
	assert.True(t, got.Equal(decimal.NewFromInt(57)), "got %s", got)
}

func TestNextScore_LongIdleDecaysTowardZero(t *testing.T) {
	prev := decimal.NewFromInt(1000)

	week := int64(7 * 24 * 3600 * 1000)
	got := NextScore(prev, 0, week, decimal.Zero)
	assert.True(t, got.IsPositive())
	assert.True(t, got.LessThan(decimal.NewFromFloat(0.01)), "week-idle score should be near zero, got %s", got)
}

func TestNextScore_BurstDominates(t *testing.T) {
	// Fresh volume outweighs a decayed historical score.
	old := NextScore(decimal.NewFromInt(500), 0, 3*1800*1000, decimal.Zero)
	burst := NextScore(old, 3*1800*1000, 3*1800*1000+1000, decimal.NewFromInt(400))
	assert.True(t, burst.GreaterThan(decimal.NewFromInt(400)))
	assert.True(t, old.LessThan(decimal.NewFromInt(100)), "decayed score %s", old)
}
