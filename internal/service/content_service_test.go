package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathquest/internal/models"
	"mathquest/internal/validation"
)

type fakeGenerator struct {
	text    string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

const validQuiz = "```json\n" + `[
  {"question": "What is 2 + 2?", "options": ["3", "4", "5", "6"], "correctAnswer": 1},
  {"question": "What is 3 x 3?", "options": ["6", "9", "12", "8"], "correctAnswer": 1}
]` + "\n```"

func TestParseQuiz(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
		ok    bool
	}{
		{"fenced array", validQuiz, 2, true},
		{"bare array", `[{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": 3}]`, 1, true},
		{"not json", "Here is your quiz!", 0, false},
		{"object not array", `{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": 0}`, 0, false},
		{"empty array", `[]`, 0, false},
		{"three options", `[{"question": "1+1?", "options": ["1","2","3"], "correctAnswer": 0}]`, 0, false},
		{"empty question", `[{"question": " ", "options": ["1","2","3","4"], "correctAnswer": 0}]`, 0, false},
		{"answer out of range", `[{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": 4}]`, 0, false},
		{"negative answer", `[{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": -1}]`, 0, false},
		{"integral float answer", `[{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": 3.0}]`, 1, true},
		{"exponent answer", `[{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": 2e0}]`, 1, true},
		{"fractional answer", `[{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": 1.5}]`, 0, false},
		{"boolean answer", `[{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": true}]`, 0, false},
		{"string answer", `[{"question": "1+1?", "options": ["1","2","3","4"], "correctAnswer": "1"}]`, 0, false},
		{"missing answer", `[{"question": "1+1?", "options": ["1","2","3","4"]}]`, 0, false},
		{"non-string option", `[{"question": "1+1?", "options": [1,2,3,4], "correctAnswer": 0}]`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			questions, err := ParseQuiz(tt.input)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrMalformedContent)
				return
			}
			require.NoError(t, err)
			assert.Len(t, questions, tt.want)
		})
	}
}

func TestParseQuizIntegralFloatAnswer(t *testing.T) {
	questions, err := ParseQuiz(`[{"question": "6 / 2?", "options": ["1","2","4","3"], "correctAnswer": 3.0}]`)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, 3, questions[0].CorrectAnswer)
}

func TestGenerateQuiz(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gen := &fakeGenerator{text: validQuiz}
	content := NewContentService(gen, env.catalog, env.log)

	draft, err := content.GenerateQuiz(ctx, GenerateRequest{Topic: "Addition"})
	require.NoError(t, err)
	assert.Len(t, draft.Questions, 2)
	assert.Nil(t, draft.Activity)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "5-question")
	assert.Contains(t, gen.prompts[0], "Easy")

	saved, err := content.GenerateQuiz(ctx, GenerateRequest{Topic: "Addition", DifficultyTier: "Medium", Save: true, XPValue: 40})
	require.NoError(t, err)
	require.NotNil(t, saved.Activity)
	assert.Equal(t, models.ContentQuiz, saved.Activity.ContentType)

	stored, err := env.activities.GetActivityByID(ctx, saved.Activity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Questions, 2)
	assert.Equal(t, 40, stored.XPValue)
	assert.Equal(t, "Medium", stored.Difficulty)
}

func TestGenerateQuizRejectsMalformedOutput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	content := NewContentService(&fakeGenerator{text: "Sorry, I can't help with that."}, env.catalog, env.log)

	_, err := content.GenerateQuiz(ctx, GenerateRequest{Topic: "Addition", Save: true})
	require.ErrorIs(t, err, ErrMalformedContent)

	activities, err := env.activities.ListActivities(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, activities, "a rejected draft is never saved")
}

func TestGenerateLesson(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	content := NewContentService(&fakeGenerator{text: "# Fractions\n\nA fraction is part of a whole."}, env.catalog, env.log)

	draft, err := content.GenerateLesson(ctx, GenerateRequest{Topic: "Fractions", Save: true})
	require.NoError(t, err)
	assert.Contains(t, draft.Content, "# Fractions")
	require.NotNil(t, draft.Activity)
	assert.Equal(t, models.ContentLesson, draft.Activity.ContentType)
	assert.Equal(t, draft.Content, draft.Activity.Body)
}

func TestGenerateErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	off := NewContentService(nil, env.catalog, env.log)
	_, err := off.GenerateLesson(ctx, GenerateRequest{Topic: "Fractions"})
	assert.ErrorIs(t, err, ErrGeneratorOff)

	content := NewContentService(&fakeGenerator{text: validQuiz}, env.catalog, env.log)
	_, err = content.GenerateQuiz(ctx, GenerateRequest{Topic: "  "})
	var verr validation.ValidationError
	assert.ErrorAs(t, err, &verr)

	boom := errors.New("upstream unavailable")
	failing := NewContentService(&fakeGenerator{err: boom}, env.catalog, env.log)
	_, err = failing.GenerateLesson(ctx, GenerateRequest{Topic: "Fractions"})
	assert.ErrorIs(t, err, boom)
}

func TestActivityInputValidate(t *testing.T) {
	tests := []struct {
		name  string
		in    ActivityInput
		field string
	}{
		{"valid", ActivityInput{Title: "Counting", ContentType: models.ContentVideo}, ""},
		{"missing title", ActivityInput{ContentType: models.ContentVideo}, "title"},
		{"bad type", ActivityInput{Title: "Counting", ContentType: "game"}, "contentType"},
		{"bad difficulty", ActivityInput{Title: "Counting", ContentType: models.ContentVideo, Difficulty: "Extreme"}, "difficulty"},
		{"negative xp", ActivityInput{Title: "Counting", ContentType: models.ContentVideo, XPValue: -5}, "xpValue"},
		{"zero unlock", ActivityInput{Title: "Counting", ContentType: models.ContentVideo, UnlockLevel: intPtr(0)}, "unlockLevel"},
		{"bad question", ActivityInput{Title: "Quiz", ContentType: models.ContentQuiz, Questions: []models.QuizQuestion{{Question: "?", Options: []string{"a"}}}}, "questions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr validation.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
