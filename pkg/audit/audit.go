package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mediconnect-backend/pkg/constants"
	"mediconnect-backend/pkg/logger"
)

// EventType represents the type of audit event
type EventType string

const (
	EventAppointmentBooked EventType = "appointment_booked"
	EventStatusChanged     EventType = "status_changed"
	EventCallJoined        EventType = "call_joined"
	EventCallCompleted     EventType = "call_completed"
	EventMailboxCleared    EventType = "mailbox_cleared"
)

// Event represents an audit log entry for one appointment
type Event struct {
	EventID       uuid.UUID `json:"eventId"`
	AppointmentID string    `json:"appointmentId"`
	UserID        string    `json:"userId,omitempty"`
	Type          EventType `json:"type"`
	Details       string    `json:"details,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store is the subset of a Redis client the audit log needs
type Store interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// Logger keeps a capped, expiring list of events per appointment in Redis.
// Every event is also written to the application log.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger creates an audit logger. store may be nil, in which case
// events only reach the application log.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

func key(appointmentID string) string {
	return fmt.Sprintf("audit:appointment:%s", appointmentID)
}

// Log records event, newest first
func (l *Logger) Log(ctx context.Context, event *Event) error {
	event.Timestamp = l.now().UTC()
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}

	logger.FromContext(ctx).Info("Audit event",
		zap.String("event_type", string(event.Type)),
		zap.String("appointment_id", event.AppointmentID),
		zap.String("user_id", event.UserID),
		zap.String("details", event.Details))

	if l.store == nil {
		return nil
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	k := key(event.AppointmentID)
	if err := l.store.LPush(ctx, k, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	if err := l.store.LTrim(ctx, k, 0, constants.AuditMaxEvents-1).Err(); err != nil {
		return fmt.Errorf("failed to trim audit log: %w", err)
	}
	if err := l.store.Expire(ctx, k, constants.AuditLogRetention).Err(); err != nil {
		return fmt.Errorf("failed to set audit log expiry: %w", err)
	}
	return nil
}

// Events returns up to limit events for appointmentID, newest first.
// Entries that fail to decode are skipped.
func (l *Logger) Events(ctx context.Context, appointmentID string, limit int) ([]*Event, error) {
	if l.store == nil {
		return []*Event{}, nil
	}
	if limit <= 0 || limit > constants.AuditMaxEvents {
		limit = constants.AuditMaxEvents
	}

	raw, err := l.store.LRange(ctx, key(appointmentID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	events := make([]*Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			logger.FromContext(ctx).Warn("Skipping corrupt audit entry",
				zap.String("appointment_id", appointmentID),
				zap.Error(err))
			continue
		}
		events = append(events, &e)
	}
	return events, nil
}
