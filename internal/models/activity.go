package models

import "time"

// ContentType classifies an activity
type ContentType string

const (
	ContentLesson   ContentType = "lesson"
	ContentQuiz     ContentType = "quiz"
	ContentVideo    ContentType = "video"
	ContentDownload ContentType = "download"
)

// Valid reports whether c is a known content type
func (c ContentType) Valid() bool {
	switch c {
	case ContentLesson, ContentQuiz, ContentVideo, ContentDownload:
		return true
	}
	return false
}

// Activity is a lesson, quiz, video or download that awards XP once
type Activity struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	ContentType   ContentType    `json:"contentType"`
	Difficulty    string         `json:"difficulty"`
	DurationLabel string         `json:"duration"`
	XPValue       int            `json:"xpValue"`
	UnlockLevel   *int           `json:"unlockLevel,omitempty"`
	Icon          string         `json:"icon,omitempty"`
	URL           string         `json:"url,omitempty"`
	Body          string         `json:"body,omitempty"`
	Questions     []QuizQuestion `json:"questions,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// QuizQuestion is one multiple-choice question with four options
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// ActivityView is an activity annotated for a particular learner
type ActivityView struct {
	Activity
	Completed bool `json:"completed"`
	Locked    bool `json:"locked"`
}
