package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TopicAll receives every update regardless of topic
const TopicAll = "*"

// TopicActivities carries catalogue changes
const TopicActivities = "activities"

const (
	EventUserUpdated       = "user.updated"
	EventSessionUpdated    = "session.updated"
	EventSessionDeleted    = "session.deleted"
	EventActivityCreated   = "activity.created"
	EventActivityUpdated   = "activity.updated"
	EventActivityDeleted   = "activity.deleted"
	EventAchievementEarned = "achievement.earned"
)

// UserTopic is the topic for one user record
func UserTopic(id int64) string { return fmt.Sprintf("users/%d", id) }

// SessionTopic is the topic for one session record
func SessionTopic(id int64) string { return fmt.Sprintf("sessions/%d", id) }

// ParseUserTopic returns the user id named by a users/{id} topic
func ParseUserTopic(topic string) (int64, bool) {
	rest, ok := strings.CutPrefix(topic, "users/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IsSessionTopic reports whether topic names a session record
func IsSessionTopic(topic string) bool { return strings.HasPrefix(topic, "sessions/") }

// Update is a snapshot pushed to subscribers after a committed write
type Update struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	At    time.Time       `json:"at"`
}

// NewUpdate encodes v as the snapshot payload
func NewUpdate(topic, event string, v interface{}) (Update, error) {
	u := Update{Topic: topic, Event: event, At: time.Now().UTC()}
	if v == nil {
		return u, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Update{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	u.Data = raw
	return u, nil
}

// Bus delivers updates to subscribers. Subscribe returns a function that
// removes the subscription; calling it more than once is safe.
type Bus interface {
	Publish(ctx context.Context, u Update) error
	Subscribe(topic string, onUpdate func(Update)) (unsubscribe func())
	Close() error
}
