package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mathquest/internal/models"
	"mathquest/internal/realtime"
	"mathquest/internal/repository"
	"mathquest/internal/service"
)

var seedForce bool

type seedSession struct {
	name, day, start, end string
	kind                  models.SessionType
	teacher               string
	capacity              int
}

var sampleSessions = []seedSession{
	{"Addition Basics", "Monday", "15:00", "15:45", models.SessionTutoring, "Ms. Sarah", 3},
	{"Homework Help", "Monday", "16:00", "17:00", models.SessionGroup, "Mr. John", 8},
	{"Multiplication Magic", "Tuesday", "15:00", "15:45", models.SessionTutoring, "Ms. Emily", 2},
	{"Math Games Hour", "Tuesday", "16:00", "17:00", models.SessionGroup, "Ms. Lisa", 12},
	{"Division Workshop", "Wednesday", "15:00", "15:45", models.SessionTutoring, "Mr. David", 4},
	{"Problem Solving Club", "Wednesday", "16:30", "17:30", models.SessionGroup, "Ms. Rachel", 10},
	{"Fractions Fun", "Thursday", "15:00", "15:45", models.SessionTutoring, "Ms. Sarah", 3},
	{"Study Buddies", "Thursday", "16:00", "17:00", models.SessionGroup, "Mr. John", 15},
	{"Math Challenge", "Friday", "15:00", "16:00", models.SessionTutoring, "Ms. Emily", 5},
	{"Weekend Prep", "Friday", "16:30", "17:30", models.SessionGroup, "Ms. Lisa", 8},
	{"Morning Math", "Saturday", "10:00", "11:00", models.SessionGroup, "Mr. David", 12},
	{"Week Review", "Sunday", "14:00", "15:00", models.SessionGroup, "Ms. Rachel", 10},
}

// seedActivity is a catalogue entry; lesson bodies and quiz questions are
// drafted by the text generator when one is configured
type seedActivity struct {
	service.ActivityInput
	numQuestions int
}

func unlockAt(n int) *int { return &n }

var sampleActivities = []seedActivity{
	{ActivityInput: service.ActivityInput{Title: "Addition Basics", ContentType: models.ContentLesson, Difficulty: "Easy", DurationLabel: "15 min", XPValue: 50, Icon: "📚",
		Description: "Learn the fundamentals of adding numbers"}},
	{ActivityInput: service.ActivityInput{Title: "Counting Fun", ContentType: models.ContentVideo, Difficulty: "Easy", DurationLabel: "8 min", XPValue: 30, Icon: "🎬",
		Description: "Watch and learn to count with fun animations", URL: "https://www.youtube.com/watch?v=uONIJ5TQ2DA"}},
	{ActivityInput: service.ActivityInput{Title: "Addition Quiz Level 1", ContentType: models.ContentQuiz, Difficulty: "Easy", DurationLabel: "10 min", XPValue: 60, Icon: "🎯",
		Description: "Test your addition skills with 10 questions"}, numQuestions: 10},
	{ActivityInput: service.ActivityInput{Title: "Math Practice Worksheets", ContentType: models.ContentDownload, Difficulty: "Easy", DurationLabel: "N/A", Icon: "📄",
		Description: "Printable worksheets for extra practice", URL: "/worksheets/addition-practice.pdf"}},
	{ActivityInput: service.ActivityInput{Title: "Subtraction Mastery", ContentType: models.ContentLesson, Difficulty: "Medium", DurationLabel: "20 min", XPValue: 75, Icon: "📖",
		Description: "Master the art of subtraction"}},
	{ActivityInput: service.ActivityInput{Title: "Multiplication Tables", ContentType: models.ContentVideo, Difficulty: "Medium", DurationLabel: "12 min", XPValue: 50, Icon: "🎥",
		Description: "Learn multiplication tables 1-10", URL: "https://www.youtube.com/watch?v=7J1OkxuyLD0"}},
	{ActivityInput: service.ActivityInput{Title: "Multiplication Challenge", ContentType: models.ContentQuiz, Difficulty: "Medium", DurationLabel: "15 min", XPValue: 80, Icon: "🏆",
		Description: "Challenge yourself with multiplication problems"}, numQuestions: 8},
	{ActivityInput: service.ActivityInput{Title: "Division Deep Dive", ContentType: models.ContentLesson, Difficulty: "Hard", DurationLabel: "25 min", XPValue: 100, Icon: "📕",
		Description: "Advanced division techniques", UnlockLevel: unlockAt(10)}},
	{ActivityInput: service.ActivityInput{Title: "Fractions Explained", ContentType: models.ContentVideo, Difficulty: "Hard", DurationLabel: "18 min", XPValue: 90, Icon: "🎞️",
		Description: "Understanding fractions visually", UnlockLevel: unlockAt(12),
		URL: "https://www.khanacademy.org/math/cc-fifth-grade-math/imp-fractions-3/imp-adding-and-subtracting-fractions-with-unlike-denominators/v/adding-fractions-with-unlike-denominators-introduction"}},
	{ActivityInput: service.ActivityInput{Title: "Advanced Math Quiz", ContentType: models.ContentQuiz, Difficulty: "Hard", DurationLabel: "20 min", XPValue: 120, Icon: "💎",
		Description: "Ultimate math challenge for experts", UnlockLevel: unlockAt(15)}, numQuestions: 8},
	{ActivityInput: service.ActivityInput{Title: "Basic Operations Worksheets", ContentType: models.ContentDownload, Difficulty: "Easy", DurationLabel: "N/A", Icon: "📄",
		Description: "Printable worksheets for addition, subtraction, and more", URL: "https://www.homeschoolmath.net/worksheets/basic-operations-worksheets.php"}},
	{ActivityInput: service.ActivityInput{Title: "Math Salamanders Worksheets", ContentType: models.ContentDownload, Difficulty: "Easy", DurationLabel: "N/A", Icon: "📋",
		Description: "Fun worksheets covering all basic operations", URL: "https://www.math-salamanders.com/addition-subtraction-multiplication-division-worksheets.html"}},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the sample schedule and activity catalogue",
	Long: `Load the sample weekly schedule and activity catalogue. Tables that
already hold rows are left alone unless --force is given.

With GEMINI_API_KEY set, lesson bodies and quiz questions are generated;
otherwise lessons get a short placeholder body and quizzes start empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		publisher := realtime.NewPublisher(nil, log)

		sessions := service.NewScheduleService(db, repository.NewSessionRepository(db), repository.NewUserRepository(db), publisher, log)
		activityRepo := repository.NewActivityRepository(db)
		catalog := service.NewCatalogService(activityRepo, publisher, log)

		var generator service.TextGenerator
		if cfg.GeminiAPIKey != "" {
			gemini, err := service.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return err
			}
			generator = gemini
		}
		content := service.NewContentService(generator, catalog, log)

		if err := seedSessions(ctx, sessions); err != nil {
			return err
		}
		return seedActivities(ctx, activityRepo, catalog, content, generator != nil)
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Seed even when rows already exist")
}

func seedSessions(ctx context.Context, schedule *service.ScheduleService) error {
	existing, err := schedule.ListSessions(ctx, 0)
	if err != nil {
		return err
	}
	if len(existing) > 0 && !seedForce {
		fmt.Printf("Skipping sessions: %d already scheduled\n", len(existing))
		return nil
	}

	for _, s := range sampleSessions {
		capacity := s.capacity
		if _, err := schedule.CreateSession(ctx, service.SessionInput{
			Name:      s.name,
			Day:       s.day,
			StartTime: s.start,
			EndTime:   s.end,
			Type:      s.kind,
			Teacher:   s.teacher,
			Capacity:  &capacity,
		}); err != nil {
			return fmt.Errorf("seed session %q: %w", s.name, err)
		}
	}
	fmt.Printf("Seeded %d sessions\n", len(sampleSessions))
	return nil
}

func seedActivities(ctx context.Context, activities *repository.ActivityRepository, catalog *service.CatalogService, content *service.ContentService, generate bool) error {
	existing, err := activities.ListActivities(ctx, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 && !seedForce {
		fmt.Printf("Skipping activities: %d already in the catalogue\n", len(existing))
		return nil
	}

	for _, a := range sampleActivities {
		in := a.ActivityInput
		switch {
		case in.ContentType == models.ContentLesson && generate:
			draft, err := content.GenerateLesson(ctx, service.GenerateRequest{Topic: in.Title, DifficultyTier: in.Difficulty})
			if err != nil {
				return fmt.Errorf("generate lesson %q: %w", in.Title, err)
			}
			in.Body = draft.Content
		case in.ContentType == models.ContentLesson:
			in.Body = fmt.Sprintf("# %s\n\n%s.\n", in.Title, in.Description)
		case in.ContentType == models.ContentQuiz && generate:
			draft, err := content.GenerateQuiz(ctx, service.GenerateRequest{Topic: in.Title, DifficultyTier: in.Difficulty, NumQuestions: a.numQuestions})
			if err != nil {
				return fmt.Errorf("generate quiz %q: %w", in.Title, err)
			}
			in.Questions = draft.Questions
		}

		if _, err := catalog.CreateActivity(ctx, in); err != nil {
			return fmt.Errorf("seed activity %q: %w", in.Title, err)
		}
		fmt.Printf("  %s %s\n", in.Icon, in.Title)
	}
	fmt.Printf("Seeded %d activities\n", len(sampleActivities))
	return nil
}
