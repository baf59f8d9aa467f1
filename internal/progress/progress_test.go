package progress

import (
	"testing"
	"time"
)

func TestParseDurationMinutes(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"15 min", 15},
		{"N/A", 0},
		{"", 0},
		{"10", 10},
		{"about 5-10 minutes", 5},
		{"1h 30m", 1},
		{"min 007", 7},
		{"99999999999999999999999 min", 0},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := ParseDurationMinutes(tt.label); got != tt.want {
				t.Errorf("ParseDurationMinutes(%q) = %d, want %d", tt.label, got, tt.want)
			}
		})
	}
}

func TestNextStreak(t *testing.T) {
	today := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	day := func(offset int, hour int) *time.Time {
		d := time.Date(2024, 3, 10+offset, hour, 0, 0, 0, time.UTC)
		return &d
	}

	tests := []struct {
		name    string
		last    *time.Time
		current int
		want    int
	}{
		{"no previous activity", nil, 0, 1},
		{"no previous activity ignores current", nil, 9, 1},
		{"same day keeps streak", day(0, 1), 4, 4},
		{"same day late evening", day(0, 23), 0, 0},
		{"yesterday increments", day(-1, 23), 3, 4},
		{"yesterday from zero", day(-1, 0), 0, 1},
		{"two days ago resets", day(-2, 12), 12, 1},
		{"month ago resets", day(-30, 12), 5, 1},
		// a future last-activity date resets like any other gap
		{"tomorrow resets", day(1, 0), 6, 1},
		{"next week resets", day(7, 0), 6, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextStreak(tt.last, tt.current, today); got != tt.want {
				t.Errorf("NextStreak() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNextStreakAcrossMonthBoundary(t *testing.T) {
	last := time.Date(2024, 2, 29, 20, 0, 0, 0, time.UTC)
	today := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if got := NextStreak(&last, 2, today); got != 3 {
		t.Errorf("NextStreak() = %d, want 3", got)
	}
}

func TestDateRoundTrip(t *testing.T) {
	d := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	s := FormatDate(d)
	if s != "2024-12-31" {
		t.Fatalf("FormatDate() = %q", s)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if DaysBetween(parsed, d) != 0 {
		t.Errorf("parsed date %v does not match %v", parsed, d)
	}
}

func TestDeriveLevel(t *testing.T) {
	tests := []struct {
		xp   int
		want Level
	}{
		{0, Level{Level: 1, XPIntoLevel: 0, XPForNextLevel: 250, Percent: 0}},
		{249, Level{Level: 1, XPIntoLevel: 249, XPForNextLevel: 250, Percent: 99}},
		{250, Level{Level: 2, XPIntoLevel: 0, XPForNextLevel: 250, Percent: 0}},
		{499, Level{Level: 2, XPIntoLevel: 249, XPForNextLevel: 250, Percent: 99}},
		{500, Level{Level: 3, XPIntoLevel: 0, XPForNextLevel: 250, Percent: 0}},
		{2260, Level{Level: 10, XPIntoLevel: 10, XPForNextLevel: 250, Percent: 4}},
		{-5, Level{Level: 1, XPIntoLevel: 0, XPForNextLevel: 250, Percent: 0}},
	}

	for _, tt := range tests {
		if got := DeriveLevel(tt.xp); got != tt.want {
			t.Errorf("DeriveLevel(%d) = %+v, want %+v", tt.xp, got, tt.want)
		}
	}
}

func TestLevelPercent(t *testing.T) {
	if got := DeriveLevel(375).Percent; got != 50 {
		t.Errorf("DeriveLevel(375).Percent = %d, want 50", got)
	}

	var zero Level
	if zero.Percent != 0 {
		t.Errorf("zero Level Percent = %d, want 0", zero.Percent)
	}
}

func TestIsUnlocked(t *testing.T) {
	five := 5
	one := 1

	tests := []struct {
		name   string
		xp     int
		unlock *int
		want   bool
	}{
		{"no gate", 0, nil, true},
		{"level one gate", 0, &one, true},
		{"below gate", 999, &five, false},
		{"exactly at gate", 1000, &five, true},
		{"above gate", 5000, &five, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnlocked(tt.xp, tt.unlock); got != tt.want {
				t.Errorf("IsUnlocked(%d) = %v, want %v", tt.xp, got, tt.want)
			}
		})
	}
}

func ids(list []Achievement) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func TestEarned(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  []string
	}{
		{"fresh account", Stats{}, []string{}},
		{"first completion", Stats{CompletedCount: 1, XP: 50}, []string{"first-steps"}},
		{"level five", Stats{CompletedCount: 10, XP: 1000}, []string{"first-steps", "quick-learner"}},
		{"week streak", Stats{CompletedCount: 7, CurrentStreak: 7}, []string{"first-steps", "week-warrior"}},
		{
			"everything",
			Stats{CompletedCount: 50, XP: 2250, CurrentStreak: 10},
			[]string{"first-steps", "quick-learner", "week-warrior", "math-master", "level-10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Earned(tt.stats))
			if len(got) != len(tt.want) {
				t.Fatalf("Earned() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Earned()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewlyEarned(t *testing.T) {
	before := Stats{CompletedCount: 0, XP: 980}
	after := Stats{CompletedCount: 1, XP: 1030, CurrentStreak: 1}

	got := ids(NewlyEarned(before, after))
	if len(got) != 2 || got[0] != "first-steps" || got[1] != "quick-learner" {
		t.Errorf("NewlyEarned() = %v", got)
	}

	if again := NewlyEarned(after, after); len(again) != 0 {
		t.Errorf("NewlyEarned(after, after) = %v, want none", ids(again))
	}
}

func TestAvatarCatalogue(t *testing.T) {
	free := 0
	for _, c := range Characters {
		if c.UnlockLevel == nil {
			free++
		}
	}
	if free != 4 {
		t.Errorf("free characters = %d, want 4", free)
	}

	dragon, ok := FindCharacter("🐉")
	if !ok || dragon.UnlockLevel == nil || *dragon.UnlockLevel != 25 {
		t.Errorf("dragon lookup = %+v, %v", dragon, ok)
	}
	if _, ok := FindCharacter("🐸"); ok {
		t.Error("unknown character should not be found")
	}

	if !IsColorTheme(DefaultColor) {
		t.Errorf("default color %q must be a known theme", DefaultColor)
	}
	if IsColorTheme("rainbow") {
		t.Error("unknown theme should be rejected")
	}
	if len(ColorThemes) != 6 {
		t.Errorf("color themes = %d, want 6", len(ColorThemes))
	}
}
