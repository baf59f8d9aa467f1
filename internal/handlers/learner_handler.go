package handlers

import (
	"context"
	"net/http"

	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/progress"
	"mathquest/internal/service"
)

// LearnerHandler serves the signed-in user's profile, catalogue and
// schedule views
type LearnerHandler struct {
	progressService *service.ProgressService
	scheduleService *service.ScheduleService
	log             *logger.Logger
}

// NewLearnerHandler creates a new learner handler
func NewLearnerHandler(progressService *service.ProgressService, scheduleService *service.ScheduleService, log *logger.Logger) *LearnerHandler {
	return &LearnerHandler{
		progressService: progressService,
		scheduleService: scheduleService,
		log:             log.With("handler", "learner"),
	}
}

// Me returns the caller's profile with level and achievements
func (h *LearnerHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	profile, err := h.progressService.GetProfile(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to load profile", err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

type characterOption struct {
	progress.Character
	Locked bool `json:"locked"`
}

type avatarOptions struct {
	Characters  []characterOption     `json:"characters"`
	ColorThemes []progress.ColorTheme `json:"colorThemes"`
}

// AvatarOptions lists the avatar characters and color themes
func (h *LearnerHandler) AvatarOptions(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	opts := avatarOptions{ColorThemes: progress.ColorThemes}
	for _, c := range progress.Characters {
		opts.Characters = append(opts.Characters, characterOption{
			Character: c,
			Locked:    !progress.IsUnlocked(user.XP, c.UnlockLevel),
		})
	}
	respondJSON(w, http.StatusOK, opts)
}

type avatarRequest struct {
	Character string `json:"character"`
	Color     string `json:"color"`
}

// UpdateAvatar changes the caller's avatar
func (h *LearnerHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	var in avatarRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	user := GetUserFromContext(r.Context())
	updated, err := h.progressService.UpdateAvatar(r.Context(), user.ID, in.Character, in.Color)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to update avatar", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// ListActivities returns the catalogue, optionally filtered by ?type=
func (h *LearnerHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	contentType := models.ContentType(r.URL.Query().Get("type"))
	if contentType != "" && !contentType.Valid() {
		respondWithError(w, h.log, http.StatusBadRequest, "Unknown content type", "", nil)
		return
	}
	user := GetUserFromContext(r.Context())
	views, err := h.progressService.ListActivities(r.Context(), user.ID, contentType)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to list activities", err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// GetActivity returns one activity annotated for the caller
func (h *LearnerHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	user := GetUserFromContext(r.Context())
	view, err := h.progressService.GetActivity(r.Context(), user.ID, id)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to load activity", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// CompleteActivity records a completion and returns the progress outcome
func (h *LearnerHandler) CompleteActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	user := GetUserFromContext(r.Context())
	result, err := h.progressService.CompleteActivityByID(r.Context(), user.ID, id)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to complete activity", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListSessions returns the schedule annotated for the caller
func (h *LearnerHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	views, err := h.scheduleService.ListSessions(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to list sessions", err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// JoinSession puts the caller on a session roster
func (h *LearnerHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	h.changeRoster(w, r, h.scheduleService.JoinSession)
}

// LeaveSession takes the caller off a session roster
func (h *LearnerHandler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	h.changeRoster(w, r, h.scheduleService.LeaveSession)
}

func (h *LearnerHandler) changeRoster(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, sessionID, participantID int64) (bool, error)) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	user := GetUserFromContext(r.Context())
	if _, err := change(r.Context(), id, user.ID); err != nil {
		respondWithServiceError(w, h.log, "Failed to change session roster", err)
		return
	}
	session, err := h.scheduleService.GetSession(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to reload session", err)
		return
	}
	respondJSON(w, http.StatusOK, models.SessionView{
		Session:   *session,
		Enrolled:  session.HasParticipant(user.ID),
		SpotsLeft: session.SpotsLeft(),
	})
}
