package progress

// Stats is the learner snapshot achievements are derived from
type Stats struct {
	XP               int
	CurrentStreak    int
	TotalTimeMinutes int
	CompletedCount   int
}

// Achievement is a badge earned from stats alone
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`

	earned func(Stats) bool
}

// Achievements lists every badge in display order
var Achievements = []Achievement{
	{
		ID: "first-steps", Title: "First Steps", Description: "Complete your first activity", Icon: "🎯",
		earned: func(s Stats) bool { return s.CompletedCount >= 1 },
	},
	{
		ID: "quick-learner", Title: "Quick Learner", Description: "Reach Level 5", Icon: "⚡",
		earned: func(s Stats) bool { return DeriveLevel(s.XP).Level >= 5 },
	},
	{
		ID: "week-warrior", Title: "Week Warrior", Description: "7 day streak", Icon: "🔥",
		earned: func(s Stats) bool { return s.CurrentStreak >= 7 },
	},
	{
		ID: "math-master", Title: "Math Master", Description: "Complete 50 activities", Icon: "👑",
		earned: func(s Stats) bool { return s.CompletedCount >= 50 },
	},
	{
		ID: "level-10", Title: "Level 10", Description: "Reach Level 10", Icon: "⭐",
		earned: func(s Stats) bool { return DeriveLevel(s.XP).Level >= 10 },
	},
}

// Earned returns the achievements unlocked by s
func Earned(s Stats) []Achievement {
	var out []Achievement
	for _, a := range Achievements {
		if a.earned(s) {
			out = append(out, a)
		}
	}
	return out
}

// NewlyEarned returns achievements earned in after but not in before
func NewlyEarned(before, after Stats) []Achievement {
	var out []Achievement
	for _, a := range Achievements {
		if a.earned(after) && !a.earned(before) {
			out = append(out, a)
		}
	}
	return out
}
