package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"mathquest/internal/logger"
	"mathquest/internal/service"
	"mathquest/internal/validation"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, log *logger.Logger, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		if status >= http.StatusInternalServerError {
			log.Error(logMsg, "status", status, "error", err)
		} else {
			log.Debug(logMsg, "status", status, "error", err)
		}
	}
	respondJSON(w, status, errorBody{Error: userMsg})
}

// respondWithServiceError maps a service or database error to its status
func respondWithServiceError(w http.ResponseWriter, log *logger.Logger, logMsg string, err error) {
	var verr validation.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: verr.Message, Field: verr.Field})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrLoginNotFound),
		errors.Is(err, service.ErrLoginExpired):
		respondWithError(w, log, http.StatusUnauthorized, err.Error(), logMsg, err)
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrActivityLocked),
		errors.Is(err, service.ErrOptionLocked),
		errors.Is(err, service.ErrNotALearner):
		respondWithError(w, log, http.StatusForbidden, err.Error(), logMsg, err)
	case errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, service.ErrActivityNotFound),
		errors.Is(err, service.ErrSessionNotFound):
		respondWithError(w, log, http.StatusNotFound, err.Error(), logMsg, err)
	case errors.Is(err, service.ErrSessionFull),
		errors.Is(err, service.ErrEmailTaken):
		respondWithError(w, log, http.StatusConflict, err.Error(), logMsg, err)
	case errors.Is(err, service.ErrUnknownOption),
		errors.Is(err, service.ErrInvalidResetToken):
		respondWithError(w, log, http.StatusBadRequest, err.Error(), logMsg, err)
	case errors.Is(err, service.ErrMalformedContent):
		log.Warn(logMsg, "error", err)
		respondJSON(w, http.StatusBadGateway, errorBody{Error: "generated content was malformed", Retryable: true})
	case errors.Is(err, service.ErrGeneratorOff):
		respondWithError(w, log, http.StatusServiceUnavailable, err.Error(), logMsg, err)
	case service.IsRetryExhausted(err):
		log.Warn(logMsg, "error", err)
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "too much concurrent activity, try again", Retryable: true})
	default:
		respondWithError(w, log, http.StatusInternalServerError, ErrInternalServerError, logMsg, err)
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
