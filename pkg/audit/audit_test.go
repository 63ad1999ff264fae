package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediconnect-backend/pkg/constants"
)

// listStore keeps Redis lists in memory
type listStore struct {
	lists   map[string][]string
	expires map[string]time.Duration
	pushErr error
}

func newListStore() *listStore {
	return &listStore{lists: map[string][]string{}, expires: map[string]time.Duration{}}
}

func (s *listStore) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if s.pushErr != nil {
		return redis.NewIntResult(0, s.pushErr)
	}
	for _, v := range values {
		var item string
		switch b := v.(type) {
		case []byte:
			item = string(b)
		case string:
			item = b
		}
		s.lists[key] = append([]string{item}, s.lists[key]...)
	}
	return redis.NewIntResult(int64(len(s.lists[key])), nil)
}

func (s *listStore) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	l := s.lists[key]
	if int(stop)+1 < len(l) {
		s.lists[key] = l[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (s *listStore) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	s.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (s *listStore) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	l := s.lists[key]
	if int(stop)+1 < len(l) {
		l = l[start : stop+1]
	}
	return redis.NewStringSliceResult(l, nil)
}

func TestLogger_LogAndEvents(t *testing.T) {
	store := newListStore()
	l := NewLogger(store)
	ctx := context.Background()

	require.NoError(t, l.Log(ctx, &Event{AppointmentID: "appt-1", UserID: "pat-1", Type: EventCallJoined}))
	require.NoError(t, l.Log(ctx, &Event{AppointmentID: "appt-1", UserID: "doc-1", Type: EventCallCompleted}))
	require.NoError(t, l.Log(ctx, &Event{AppointmentID: "appt-2", Type: EventAppointmentBooked}))

	events, err := l.Events(ctx, "appt-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventCallCompleted, events[0].Type)
	assert.Equal(t, "doc-1", events[0].UserID)
	assert.NotEmpty(t, events[0].EventID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, EventCallJoined, events[1].Type)

	assert.Equal(t, constants.AuditLogRetention, store.expires["audit:appointment:appt-1"])

	events, err = l.Events(ctx, "appt-1", 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLogger_CapsList(t *testing.T) {
	store := newListStore()
	l := NewLogger(store)
	for i := 0; i < constants.AuditMaxEvents+5; i++ {
		require.NoError(t, l.Log(context.Background(), &Event{AppointmentID: "appt-1", Type: EventStatusChanged}))
	}
	assert.Len(t, store.lists["audit:appointment:appt-1"], constants.AuditMaxEvents)
}

func TestLogger_SkipsCorruptEntries(t *testing.T) {
	store := newListStore()
	store.lists["audit:appointment:appt-1"] = []string{"not json", `{"type":"call_joined","appointmentId":"appt-1"}`}

	events, err := NewLogger(store).Events(context.Background(), "appt-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventCallJoined, events[0].Type)
}

func TestLogger_StoreErrors(t *testing.T) {
	store := newListStore()
	store.pushErr = errors.New("redis down")

	err := NewLogger(store).Log(context.Background(), &Event{AppointmentID: "appt-1", Type: EventCallJoined})
	assert.ErrorContains(t, err, "redis down")
}

func TestLogger_WithoutStore(t *testing.T) {
	l := NewLogger(nil)
	require.NoError(t, l.Log(context.Background(), &Event{AppointmentID: "appt-1", Type: EventCallJoined}))

	events, err := l.Events(context.Background(), "appt-1", 5)
	require.NoError(t, err)
	assert.Empty(t, events)
}
