package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/realtime"
	"mathquest/internal/service"
)

const (
	eventBufferSize   = 64
	heartbeatInterval = 25 * time.Second
)

// EventsHandler streams realtime updates as server-sent events
type EventsHandler struct {
	bus             realtime.Bus
	guardianService *service.GuardianService
	heartbeat       time.Duration
	log             *logger.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(bus realtime.Bus, guardianService *service.GuardianService, log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		bus:             bus,
		guardianService: guardianService,
		heartbeat:       heartbeatInterval,
		log:             log.With("handler", "events"),
	}
}

// authorize decides whether user may watch topic. Catalogue and session
// topics are public to signed-in users; a user record is visible to the
// user, linked guardians and administrators.
func (h *EventsHandler) authorize(ctx context.Context, user *models.User, topic string) error {
	if user.IsAdmin() {
		return nil
	}
	switch {
	case topic == realtime.TopicActivities, realtime.IsSessionTopic(topic):
		return nil
	case topic == realtime.TopicAll:
		return service.ErrForbidden
	}

	id, ok := realtime.ParseUserTopic(topic)
	if !ok {
		return service.ErrForbidden
	}
	if id == user.ID {
		return nil
	}
	if user.AccountType == models.AccountGuardian {
		linked, err := h.guardianService.IsGuardianOf(ctx, user.ID, id)
		if err != nil {
			return err
		}
		if linked {
			return nil
		}
	}
	return service.ErrForbidden
}

// Stream subscribes to every ?topic= given and writes updates until the
// client disconnects. A client that falls too far behind receives a
// resync event and is disconnected so it reloads.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := GetUserFromContext(ctx)

	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		respondWithError(w, h.log, http.StatusBadRequest, "at least one topic is required", "", nil)
		return
	}
	for _, topic := range topics {
		if err := h.authorize(ctx, user, topic); err != nil {
			respondWithServiceError(w, h.log, "Topic authorization failed", err)
			return
		}
	}

	rc := http.NewResponseController(w)
	// the server write timeout would otherwise cut the stream
	_ = rc.SetWriteDeadline(time.Time{})

	updates := make(chan realtime.Update, eventBufferSize)
	overflow := make(chan struct{})
	var once sync.Once
	deliver := func(u realtime.Update) {
		select {
		case updates <- u:
		default:
			once.Do(func() { close(overflow) })
		}
	}
	for _, topic := range topics {
		unsubscribe := h.bus.Subscribe(topic, deliver)
		defer unsubscribe()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	_ = rc.Flush()

	h.log.Debug("Event stream opened", "userID", user.ID, "topics", topics)
	defer h.log.Debug("Event stream closed", "userID", user.ID)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-overflow:
			h.log.Warn("Event stream overflowed", "userID", user.ID)
			_, _ = fmt.Fprint(w, "event: resync\ndata: {}\n\n")
			_ = rc.Flush()
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		case u := <-updates:
			if err := writeEvent(w, u); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, u realtime.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Event, payload)
	return err
}
