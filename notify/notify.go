// Package notify fans out live event updates (check-ins, guest list changes) over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TypeCheckIn       = "checkin"
	TypeGuestsChanged = "guests_changed"
	TypeQRGenerated   = "qr_generated"
)

type Update struct {
	Type      string          `json:"type"`
	EventID   uuid.UUID       `json:"event_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewUpdate marshals data into an Update.
func NewUpdate(kind string, eventID uuid.UUID, data any, at time.Time) (Update, error) {
	u := Update{Type: kind, EventID: eventID, Timestamp: at.UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Update{}, fmt.Errorf("marshal update data: %w", err)
		}
		u.Data = raw
	}
	return u, nil
}

type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Nop drops every update. Used when no Redis is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Update) error { return nil }

// Channel is the Redis channel carrying updates for one event.
func Channel(eventID uuid.UUID) string {
	return "qrcheckin:event:" + eventID.String()
}

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Publish(ctx context.Context, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := r.client.Publish(ctx, Channel(u.EventID), payload).Err(); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

// Subscribe streams updates for eventID until ctx is done or the returned close
// function is called. Malformed messages are skipped.
func (r *Redis) Subscribe(ctx context.Context, eventID uuid.UUID) (<-chan Update, func() error, error) {
	sub := r.client.Subscribe(ctx, Channel(eventID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", Channel(eventID), err)
	}

	out := make(chan Update)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var u Update
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub.Close, nil
}
