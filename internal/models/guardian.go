package models

import "time"

// GuardianControls are the per-child settings a guardian manages
type GuardianControls struct {
	GuardianID            int64     `json:"guardianId"`
	LearnerID             int64     `json:"learnerId"`
	DailyTimeLimitEnabled bool      `json:"dailyTimeLimitEnabled"`
	DailyTimeLimitMinutes int       `json:"dailyTimeLimitMinutes"`
	NotifyAchievements    bool      `json:"notifyAchievements"`
	WeeklyReport          bool      `json:"weeklyReport"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// DefaultGuardianControls returns the settings a new link starts with
func DefaultGuardianControls(guardianID, learnerID int64) GuardianControls {
	return GuardianControls{
		GuardianID:            guardianID,
		LearnerID:             learnerID,
		DailyTimeLimitEnabled: true,
		DailyTimeLimitMinutes: 60,
		NotifyAchievements:    true,
	}
}
