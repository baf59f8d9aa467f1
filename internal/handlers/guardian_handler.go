package handlers

import (
	"net/http"

	"mathquest/internal/logger"
	"mathquest/internal/service"
)

// GuardianHandler handles a guardian's view of linked learners
type GuardianHandler struct {
	guardianService *service.GuardianService
	log             *logger.Logger
}

// NewGuardianHandler creates a new guardian handler
func NewGuardianHandler(guardianService *service.GuardianService, log *logger.Logger) *GuardianHandler {
	return &GuardianHandler{
		guardianService: guardianService,
		log:             log.With("handler", "guardian"),
	}
}

// ListChildren returns every learner linked to the caller
func (h *GuardianHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	guardian := GetUserFromContext(r.Context())
	children, err := h.guardianService.ListChildren(r.Context(), guardian.ID)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to list children", err)
		return
	}
	respondJSON(w, http.StatusOK, children)
}

type createChildRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// CreateChild creates a learner account linked to the caller and returns
// its generated sign-in
func (h *GuardianHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var in createChildRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	guardian := GetUserFromContext(r.Context())
	child, err := h.guardianService.CreateChild(r.Context(), guardian.ID, in.FirstName, in.LastName)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to create child", err)
		return
	}
	respondJSON(w, http.StatusCreated, child)
}

type linkChildRequest struct {
	Email string `json:"email"`
}

// LinkChild links an existing learner account by email
func (h *GuardianHandler) LinkChild(w http.ResponseWriter, r *http.Request) {
	var in linkChildRequest
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	guardian := GetUserFromContext(r.Context())
	learner, err := h.guardianService.LinkLearnerByEmail(r.Context(), guardian.ID, in.Email)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to link child", err)
		return
	}
	respondJSON(w, http.StatusOK, learner)
}

// ChildDashboard returns a linked child's progress, activity and schedule
func (h *GuardianHandler) ChildDashboard(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	guardian := GetUserFromContext(r.Context())
	dashboard, err := h.guardianService.ChildDashboard(r.Context(), guardian.ID, learnerID)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to load child dashboard", err)
		return
	}
	respondJSON(w, http.StatusOK, dashboard)
}

// UpdateControls saves the caller's controls for a linked child
func (h *GuardianHandler) UpdateControls(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	var in service.ControlsInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	guardian := GetUserFromContext(r.Context())
	controls, err := h.guardianService.UpdateControls(r.Context(), guardian.ID, learnerID, in)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to update controls", err)
		return
	}
	respondJSON(w, http.StatusOK, controls)
}

// RegeneratePassword issues a new password for a linked child
func (h *GuardianHandler) RegeneratePassword(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}
	guardian := GetUserFromContext(r.Context())
	password, err := h.guardianService.RegenerateChildPassword(r.Context(), guardian.ID, learnerID)
	if err != nil {
		respondWithServiceError(w, h.log, "Failed to regenerate password", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"password": password})
}
