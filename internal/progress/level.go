package progress

// XPPerLevel is the width of every level band
const XPPerLevel = 250

// Level is the display form of cumulative XP. Percent is the progress bar
// fill within the current level, 0 to 99.
type Level struct {
	Level          int `json:"level"`
	XPIntoLevel    int `json:"xpIntoLevel"`
	XPForNextLevel int `json:"xpForNextLevel"`
	Percent        int `json:"percent"`
}

// DeriveLevel maps cumulative XP onto 250-XP bands starting at level 1.
// Negative XP is treated as zero.
func DeriveLevel(xp int) Level {
	if xp < 0 {
		xp = 0
	}
	into := xp % XPPerLevel
	return Level{
		Level:          xp/XPPerLevel + 1,
		XPIntoLevel:    into,
		XPForNextLevel: XPPerLevel,
		Percent:        into * 100 / XPPerLevel,
	}
}

// IsUnlocked reports whether content gated at unlockLevel is open to a user
// with the given XP. Nil means the content is never gated.
func IsUnlocked(xp int, unlockLevel *int) bool {
	if unlockLevel == nil {
		return true
	}
	return DeriveLevel(xp).Level >= *unlockLevel
}
