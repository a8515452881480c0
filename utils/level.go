package utils

import "math"

// XPForLevel returns the total XP required to reach a level.
// floor(50 * level^1.5), strictly increasing for level >= 1.
func XPForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return int(math.Floor(50 * math.Pow(float64(level), 1.5)))
}

// LevelFromXP returns the largest level L >= 1 with XPForLevel(L) <= xp.
func LevelFromXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	level := 1
	for XPForLevel(level+1) <= xp {
		level++
	}
	return level
}
