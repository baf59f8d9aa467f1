package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"mathquest/internal/config"
	"mathquest/internal/database"
	"mathquest/internal/handlers"
	"mathquest/internal/logger"
	"mathquest/internal/realtime"
	"mathquest/internal/repository"
	"mathquest/internal/security"
	"mathquest/internal/service"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}
	defer db.Close()
	db.SetMaxTxAttempts(cfg.TxMaxAttempts)

	log.Info("Database connection established", "type", cfg.DatabaseType)

	applied, err := db.RunMigrations(ctx, cfg.MigrationsPath)
	if err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}
	log.Info("Migrations completed successfully", "applied", len(applied))

	bus := newBus(ctx, cfg, log)
	defer bus.Close()
	publisher := realtime.NewPublisher(bus, log)

	emailService, err := service.NewEmailService(ctx, log, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.EmailDebug)
	if err != nil {
		log.Fatal("Failed to initialize email service", "error", err)
	}

	var generator service.TextGenerator
	if cfg.GeminiAPIKey != "" {
		gemini, err := service.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal("Failed to initialize content generator", "error", err)
		}
		generator = gemini
		log.Info("Content generation enabled", "model", cfg.GeminiModel)
	} else {
		log.Info("Content generation disabled: GEMINI_API_KEY not configured")
	}

	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)

	tokens := security.NewTokenIssuer(cfg.JWTSecret)
	csrf := security.NewCSRFGenerator(cfg.CSRFSecret)
	limiter := security.NewRateLimiter(ctx, 10, time.Minute)

	authService := service.NewAuthService(db, userRepo, tokens, emailService, log, cfg.SessionDuration)
	progressService := service.NewProgressService(db, userRepo, completionRepo, activityRepo, guardianRepo, publisher, emailService, log)
	scheduleService := service.NewScheduleService(db, sessionRepo, userRepo, publisher, log)
	catalogService := service.NewCatalogService(activityRepo, publisher, log)
	contentService := service.NewContentService(generator, catalogService, log)
	guardianService := service.NewGuardianService(db, userRepo, guardianRepo, progressService, scheduleService, log)
	backupService := service.NewBackupService(db, log)

	oauthProviders := map[string]handlers.OAuthProvider{
		"google": {
			Name:  "google",
			Label: "Google",
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		},
	}

	hs := &handlers.Handlers{
		Middleware: handlers.NewMiddleware(authService, csrf, limiter, log),
		Auth:       handlers.NewAuthHandler(authService, csrf, oauthProviders, cfg.OAuthRedirectBaseURL, log),
		Learner:    handlers.NewLearnerHandler(progressService, scheduleService, log),
		Guardian:   handlers.NewGuardianHandler(guardianService, log),
		Admin:      handlers.NewAdminHandler(catalogService, scheduleService, contentService, backupService, log),
		Events:     handlers.NewEventsHandler(bus, guardianService, log),
		DB:         db,
		Log:        log,
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handlers.Logging(log, hs.Routes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go cleanupExpiredSessions(ctx, authService, log)

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
	}
}

// newBus fans updates out through Redis when configured so every replica's
// subscribers see them; otherwise updates stay in this process
func newBus(ctx context.Context, cfg *config.Config, log *logger.Logger) realtime.Bus {
	if cfg.RedisAddr == "" {
		log.Info("Realtime updates are process-local: REDIS_ADDR not configured")
		return realtime.NewHub()
	}
	bus, err := realtime.NewRedisBus(ctx, log, cfg.RedisAddr, cfg.RedisChannel)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
	}
	log.Info("Realtime updates fan out through Redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	return bus
}

// cleanupExpiredSessions periodically removes expired login sessions and
// reset tokens
func cleanupExpiredSessions(ctx context.Context, authService *service.AuthService, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := authService.CleanupExpired(ctx); err != nil {
				log.Warn("Failed to cleanup expired sessions", "error", err)
			}
		}
	}
}
