package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"mathquest/internal/logger"
	"mathquest/internal/service"
)

// maxBackupBytes caps uploaded backup documents
const maxBackupBytes = 50 << 20

// AdminHandler handles administrator routes
type AdminHandler struct {
	catalogService  *service.CatalogService
	scheduleService *service.ScheduleService
	contentService  *service.ContentService
	backupService   *service.BackupService
	log             *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(catalogService *service.CatalogService, scheduleService *service.ScheduleService, contentService *service.ContentService, backupService *service.BackupService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		catalogService:  catalogService,
		scheduleService: scheduleService,
		contentService:  contentService,
		backupService:   backupService,
		log:             log.With("handler", "admin"),
	}
}

// CreateActivity adds an activity to the catalogue
func (h *AdminHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var in service.ActivityInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	activity, err := h.catalogService.CreateActivity(r.Context(), in)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to create activity", err)
		return
	}
	respondJSON(w, http.StatusCreated, activity)
}

// UpdateActivity replaces an activity's editable fields
func (h *AdminHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	var in service.ActivityInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	activity, err := h.catalogService.UpdateActivity(r.Context(), id, in)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to update activity", err)
		return
	}
	respondJSON(w, http.StatusOK, activity)
}

// DeleteActivity removes an activity from the catalogue
func (h *AdminHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	if err := h.catalogService.DeleteActivity(r.Context(), id); err != nil {
		respondWithServiceError(w, h.log, "Failed to delete activity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateSession schedules a session
func (h *AdminHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var in service.SessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	session, err := h.scheduleService.CreateSession(r.Context(), in)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to create session", err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

// UpdateSession edits a session
func (h *AdminHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	var in service.SessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	session, err := h.scheduleService.UpdateSession(r.Context(), id, in)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to update session", err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// DeleteSession removes a session and its roster
func (h *AdminHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	if err := h.scheduleService.DeleteSession(r.Context(), id); err != nil {
		respondWithServiceError(w, h.log, "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateLesson drafts a lesson with the text generator
func (h *AdminHandler) GenerateLesson(w http.ResponseWriter, r *http.Request) {
	var in service.GenerateRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	draft, err := h.contentService.GenerateLesson(r.Context(), in)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to generate lesson", err)
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

// GenerateQuiz drafts and validates a quiz with the text generator
func (h *AdminHandler) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var in service.GenerateRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	draft, err := h.contentService.GenerateQuiz(r.Context(), in)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to generate quiz", err)
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

// ExportDatabase exports the database to JSON for download
func (h *AdminHandler) ExportDatabase(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	// buffer so a failed export still gets a JSON error instead of a
	// truncated download
	var buf bytes.Buffer
	if _, err := h.backupService.Export(r.Context(), &buf); err != nil {
		respondWithError(w, h.log, http.StatusInternalServerError, "Failed to export database", "Error exporting database", err)
		return
	}

	filename := fmt.Sprintf("mathquest_backup_%s.json", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	_, _ = buf.WriteTo(w)

	h.log.Info("Database exported", "adminID", user.ID)
}

// ImportDatabase restores a backup document from the request body.
// ?clear=true empties every table first.
func (h *AdminHandler) ImportDatabase(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	clearData := r.URL.Query().Get("clear") == "true"

	body := http.MaxBytesReader(w, r.Body, maxBackupBytes)
	if err := h.backupService.Import(r.Context(), body, clearData); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, "Failed to import database: "+err.Error(), "Error importing database", err)
		return
	}

	h.log.Info("Database imported", "adminID", user.ID, "clear", clearData)
	respondJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// DatabaseStats holds database statistics
type DatabaseStats struct {
	Users       int `json:"users"`
	Activities  int `json:"activities"`
	Completions int `json:"completions"`
	Sessions    int `json:"sessions"`
	Links       int `json:"guardianLinks"`
}

// GetDatabaseStats counts the records a backup would contain
func (h *AdminHandler) GetDatabaseStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.backupService.Snapshot(r.Context())
	if err != nil {
		respondWithServiceError(w, h.log, "Error getting database stats", err)
		return
	}
	respondJSON(w, http.StatusOK, DatabaseStats{
		Users:       len(snapshot.Users),
		Activities:  len(snapshot.Activities),
		Completions: len(snapshot.Completions),
		Sessions:    len(snapshot.Sessions),
		Links:       len(snapshot.Links),
	})
}
