package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"mediconnect-backend/internal/database"
	"mediconnect-backend/internal/domain"
	"mediconnect-backend/pkg/logger"
)

// ChangeFeed publishes mailbox snapshots on Redis Pub/Sub so every
// service instance can push them to its WebSocket subscribers.
type ChangeFeed struct {
	client *database.RedisClient
}

// NewChangeFeed creates a Redis-backed change feed
func NewChangeFeed(client *database.RedisClient) *ChangeFeed {
	return &ChangeFeed{client: client}
}

func channelFor(appointmentID string) string {
	return fmt.Sprintf("appointment:%s", appointmentID)
}

func encodeSnapshot(snap domain.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func decodeSnapshot(appointmentID string, payload string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.AppointmentID != appointmentID {
		return domain.Snapshot{}, fmt.Errorf("snapshot for %q on channel of %q", snap.AppointmentID, appointmentID)
	}
	return snap, nil
}

// Publish sends snap to the appointment's channel
func (f *ChangeFeed) Publish(ctx context.Context, snap domain.Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := f.client.SafePublish(ctx, channelFor(snap.AppointmentID), payload); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Subscribe calls fn for each snapshot published for appointmentID until
// cancel is called or ctx is done. The subscription is confirmed before
// Subscribe returns.
func (f *ChangeFeed) Subscribe(ctx context.Context, appointmentID string, fn func(domain.Snapshot)) (func(), error) {
	subCtx, stop := context.WithCancel(ctx)

	pubsub, err := f.client.SafeSubscribe(subCtx, channelFor(appointmentID))
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if _, err := pubsub.Receive(subCtx); err != nil {
		stop()
		pubsub.Close()
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				snap, err := decodeSnapshot(appointmentID, msg.Payload)
				if err != nil {
					logger.Warn("Dropping malformed snapshot",
						zap.String("appointment_id", appointmentID),
						zap.Error(err))
					continue
				}
				if subCtx.Err() != nil {
					return
				}
				fn(snap)
			}
		}
	}()

	return stop, nil
}
