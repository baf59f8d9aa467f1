package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/validation"
)

// DefaultQuizQuestions is used when a request does not ask for a count
const DefaultQuizQuestions = 5

// TextGenerator is a black-box text completion service
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator completes prompts with a Gemini model
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a generator for the given API key and model
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate returns the concatenated text parts of the first candidate
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// GenerateRequest is the input contract for lesson and quiz drafts
type GenerateRequest struct {
	Topic          string `json:"topic"`
	DifficultyTier string `json:"difficultyTier"`
	NumQuestions   int    `json:"numQuestions"`
	// Save persists a successful draft as a new activity
	Save        bool `json:"save"`
	XPValue     int  `json:"xpValue"`
	UnlockLevel *int `json:"unlockLevel"`
}

func (r *GenerateRequest) normalize() error {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.Topic == "" {
		return validation.ValidationError{Field: "topic", Message: "topic is required"}
	}
	if r.DifficultyTier == "" {
		r.DifficultyTier = "Easy"
	}
	if r.NumQuestions <= 0 {
		r.NumQuestions = DefaultQuizQuestions
	}
	if r.NumQuestions > 20 {
		return validation.ValidationError{Field: "numQuestions", Message: "at most 20 questions"}
	}
	return nil
}

// LessonDraft is a generated lesson, with the stored activity when saved
type LessonDraft struct {
	Content  string           `json:"content"`
	Activity *models.Activity `json:"activity,omitempty"`
}

// QuizDraft is a validated generated quiz, with the stored activity when saved
type QuizDraft struct {
	Questions []models.QuizQuestion `json:"questions"`
	Activity  *models.Activity      `json:"activity,omitempty"`
}

// ContentService drafts lessons and quizzes for administrators
type ContentService struct {
	generator TextGenerator
	catalog   *CatalogService
	log       *logger.Logger
}

// NewContentService creates a content service. A nil generator makes every
// request fail with ErrGeneratorOff.
func NewContentService(generator TextGenerator, catalog *CatalogService, log *logger.Logger) *ContentService {
	return &ContentService{
		generator: generator,
		catalog:   catalog,
		log:       log.With("service", "ContentService"),
	}
}

// GenerateLesson drafts lesson Markdown
func (s *ContentService) GenerateLesson(ctx context.Context, req GenerateRequest) (*LessonDraft, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if s.generator == nil {
		return nil, ErrGeneratorOff
	}

	content, err := s.generator.Generate(ctx, lessonPrompt(req))
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty lesson", ErrMalformedContent)
	}

	draft := &LessonDraft{Content: content}
	if req.Save {
		draft.Activity, err = s.catalog.CreateActivity(ctx, ActivityInput{
			Title:         req.Topic,
			Description:   fmt.Sprintf("A %s lesson about %s", strings.ToLower(req.DifficultyTier), req.Topic),
			ContentType:   models.ContentLesson,
			Difficulty:    req.DifficultyTier,
			DurationLabel: "15 min",
			XPValue:       req.XPValue,
			UnlockLevel:   req.UnlockLevel,
			Icon:          "📘",
			Body:          content,
		})
		if err != nil {
			return nil, err
		}
	}
	return draft, nil
}

// GenerateQuiz drafts quiz questions and validates their structure
func (s *ContentService) GenerateQuiz(ctx context.Context, req GenerateRequest) (*QuizDraft, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if s.generator == nil {
		return nil, ErrGeneratorOff
	}

	raw, err := s.generator.Generate(ctx, quizPrompt(req))
	if err != nil {
		return nil, err
	}
	questions, err := ParseQuiz(raw)
	if err != nil {
		s.log.Warn("Rejected generated quiz", "topic", req.Topic, "error", err)
		return nil, err
	}

	draft := &QuizDraft{Questions: questions}
	if req.Save {
		draft.Activity, err = s.catalog.CreateActivity(ctx, ActivityInput{
			Title:         req.Topic + " Quiz",
			Description:   fmt.Sprintf("%d questions about %s", len(questions), req.Topic),
			ContentType:   models.ContentQuiz,
			Difficulty:    req.DifficultyTier,
			DurationLabel: fmt.Sprintf("%d min", 2*len(questions)),
			XPValue:       req.XPValue,
			UnlockLevel:   req.UnlockLevel,
			Icon:          "📝",
			Questions:     questions,
		})
		if err != nil {
			return nil, err
		}
	}
	return draft, nil
}

type rawQuestion struct {
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
}

// ParseQuiz strips Markdown code fences from generated text and validates
// it as a JSON array of four-option questions. Any structural problem is
// reported as ErrMalformedContent.
func ParseQuiz(text string) ([]models.QuizQuestion, error) {
	cleaned := stripCodeFences(text)

	var raw []rawQuestion
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array of questions: %v", ErrMalformedContent, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrMalformedContent)
	}

	questions := make([]models.QuizQuestion, len(raw))
	for i, q := range raw {
		answer, err := parseAnswerIndex(q.CorrectAnswer)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrMalformedContent, i+1, err)
		}
		questions[i] = models.QuizQuestion{
			Question:      strings.TrimSpace(q.Question),
			Options:       q.Options,
			CorrectAnswer: answer,
		}
	}
	if err := validateQuestions(questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	return questions, nil
}

func parseAnswerIndex(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || string(raw) == "null" {
		return 0, errors.New("correctAnswer must be a number")
	}
	// 3 and 3.0 are the same JSON number
	f, err := json.Number(raw).Float64()
	if err != nil {
		return 0, errors.New("correctAnswer must be a number")
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errors.New("correctAnswer must be an integer")
	}
	return int(f), nil
}

func validateQuestions(questions []models.QuizQuestion) error {
	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("question %d has no text", i+1)
		}
		if len(q.Options) != 4 {
			return fmt.Errorf("question %d has %d options, want 4", i+1, len(q.Options))
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer > 3 {
			return fmt.Errorf("question %d correctAnswer %d out of range", i+1, q.CorrectAnswer)
		}
	}
	return nil
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

func lessonPrompt(req GenerateRequest) string {
	return fmt.Sprintf(`Create a comprehensive math lesson about %q for %s difficulty level.

The lesson should be written in Markdown and include:
- A clear title (as a heading)
- An introduction explaining the topic
- Step-by-step explanations with at least 3 examples
- Practice tips
- Key concepts to remember

Keep the language clear and engaging for young learners.`, req.Topic, req.DifficultyTier)
}

func quizPrompt(req GenerateRequest) string {
	return fmt.Sprintf(`Create a %d-question multiple choice quiz about %q for %s difficulty level.

Return ONLY a JSON array with this exact structure:
[
  {"question": "Question text?", "options": ["A", "B", "C", "D"], "correctAnswer": 0}
]

Rules:
- correctAnswer is the index (0-3) of the correct option
- exactly %d questions, exactly 4 options each
- no text or Markdown outside the JSON array`, req.NumQuestions, req.Topic, req.DifficultyTier, req.NumQuestions)
}
