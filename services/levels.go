package services

// Level thresholds: minimum total XP for each level 1..10. Threshold(1) = 0
// so every non-negative XP value maps to a level.
var levelThresholds = [...]int64{
	1:  0,
	2:  100,
	3:  500,
	4:  1200,
	5:  2200,
	6:  3500,
	7:  5100,
	8:  7000,
	9:  9200,
	10: 11700,
}

const (
	MinLevel = 1
	MaxLevel = 10

	// Marker role colors run a gradient from blue (level 1) to gold (level 10).
	markerColorLow  = 0x0099ff
	markerColorHigh = 0xffd700
)

// ThresholdFor returns the minimum total XP required for level. Levels
// outside 1..10 are clamped.
func ThresholdFor(level int) int64 {
	if level < MinLevel {
		level = MinLevel
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return levelThresholds[level]
}

// LevelOf returns the greatest level whose threshold is <= xp.
func LevelOf(xp int64) int {
	for level := MaxLevel; level > MinLevel; level-- {
		if xp >= levelThresholds[level] {
			return level
		}
	}
	return MinLevel
}

// XPToNextLevel returns how much more XP is needed to reach the next level,
// or 0 at max level.
func XPToNextLevel(xp int64) int64 {
	level := LevelOf(xp)
	if level >= MaxLevel {
		return 0
	}
	need := levelThresholds[level+1] - xp
	if need < 0 {
		return 0
	}
	return need
}

// LevelProgress returns the percentage (0..100) of the way from the current
// level's threshold to the next one. 100 at max level.
func LevelProgress(xp int64) float64 {
	level := LevelOf(xp)
	if level >= MaxLevel {
		return 100
	}
	lower := levelThresholds[level]
	span := levelThresholds[level+1] - lower
	if span <= 0 {
		return 100
	}
	pct := float64(xp-lower) / float64(span) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// MarkerColor interpolates the marker role color for a level across the
// blue-to-gold gradient, reproducing the legacy whole-value interpolation
// rather than per-channel blending.
func MarkerColor(level int) int {
	if level < MinLevel {
		level = MinLevel
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return markerColorLow + (markerColorHigh-markerColorLow)*(level-1)/(MaxLevel-1)
}
