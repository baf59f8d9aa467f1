package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mathquest/internal/database"
	"mathquest/internal/logger"
	"mathquest/internal/service"
	"mathquest/internal/validation"
)

func TestRespondWithErrorWritesStatusAndBody(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondWithError(recorder, logger.FromZap(zaptest.NewLogger(t)), 418, "Teapot", "", nil)

	assert.Equal(t, 418, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var body errorBody
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
	assert.Equal(t, "Teapot", body.Error)
	assert.False(t, body.Retryable)
}

func TestRespondWithServiceErrorMapsStatus(t *testing.T) {
	log := logger.FromZap(zaptest.NewLogger(t))

	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"validation", validation.ValidationError{Field: "title", Message: "title is required"}, http.StatusBadRequest, false},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, false},
		{"expired login", service.ErrLoginExpired, http.StatusUnauthorized, false},
		{"locked activity", service.ErrActivityLocked, http.StatusForbidden, false},
		{"forbidden", fmt.Errorf("dashboard: %w", service.ErrForbidden), http.StatusForbidden, false},
		{"missing profile", service.ErrProfileNotFound, http.StatusNotFound, false},
		{"missing session", service.ErrSessionNotFound, http.StatusNotFound, false},
		{"full session", service.ErrSessionFull, http.StatusConflict, false},
		{"email taken", service.ErrEmailTaken, http.StatusConflict, false},
		{"unknown avatar", service.ErrUnknownOption, http.StatusBadRequest, false},
		{"malformed content", fmt.Errorf("%w: bad json", service.ErrMalformedContent), http.StatusBadGateway, true},
		{"generator off", service.ErrGeneratorOff, http.StatusServiceUnavailable, false},
		{"retries exhausted", fmt.Errorf("%w after 5 attempts: %w", database.ErrRetryExhausted, database.ErrConflict), http.StatusServiceUnavailable, true},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondWithServiceError(recorder, log, "test", tt.err)

			assert.Equal(t, tt.status, recorder.Code)
			var body errorBody
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.retryable, body.Retryable)
		})
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondWithServiceError(recorder, logger.Nop(), "test", validation.ValidationError{Field: "capacity", Message: "must not be negative"})

	var body errorBody
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
	assert.Equal(t, "capacity", body.Field)
	assert.Equal(t, "must not be negative", body.Error)
}

func TestInternalErrorDoesNotLeakDetail(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondWithServiceError(recorder, logger.Nop(), "test", errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "pq:")
}
