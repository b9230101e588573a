package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelOfThresholdBoundaries(t *testing.T) {
	for level := 2; level <= MaxLevel; level++ {
		threshold := ThresholdFor(level)
		assert.Equal(t, level, LevelOf(threshold), "exactly at threshold of level %d", level)
		assert.Equal(t, level-1, LevelOf(threshold-1), "one below threshold of level %d", level)
	}
}

func TestLevelOfExtremes(t *testing.T) {
	assert.Equal(t, 1, LevelOf(0))
	assert.Equal(t, 1, LevelOf(99))
	assert.Equal(t, 10, LevelOf(11700))
	assert.Equal(t, 10, LevelOf(1_000_000))
}

func TestThresholdForClamps(t *testing.T) {
	assert.Equal(t, int64(0), ThresholdFor(0))
	assert.Equal(t, int64(0), ThresholdFor(-3))
	assert.Equal(t, int64(11700), ThresholdFor(11))
}

func TestXPToNextLevel(t *testing.T) {
	assert.Equal(t, int64(100), XPToNextLevel(0))
	assert.Equal(t, int64(1), XPToNextLevel(99))
	assert.Equal(t, int64(400), XPToNextLevel(100))
	assert.Equal(t, int64(0), XPToNextLevel(11700), "max level needs nothing")
}

func TestLevelProgress(t *testing.T) {
	assert.Equal(t, float64(0), LevelProgress(0))
	assert.Equal(t, float64(50), LevelProgress(50))
	assert.Equal(t, float64(100), LevelProgress(11700))
	assert.Equal(t, float64(100), LevelProgress(99999))
}

func TestMarkerColorGradient(t *testing.T) {
	assert.Equal(t, 0x0099ff, MarkerColor(1))
	assert.Equal(t, 0xffd700, MarkerColor(10))
	// Monotonically increasing across the whole-value interpolation.
	for level := 2; level <= MaxLevel; level++ {
		assert.Greater(t, MarkerColor(level), MarkerColor(level-1))
	}
	assert.Equal(t, MarkerColor(1), MarkerColor(0))
	assert.Equal(t, MarkerColor(10), MarkerColor(12))
}
