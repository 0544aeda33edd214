package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultEventTTL = 24 * time.Hour

// EventDeduper records processed webhook event ids in Redis so a redelivered
// event is recognised for TTL after it was first applied.
type EventDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEventDeduper(client *redis.Client, ttl time.Duration) *EventDeduper {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventDeduper{client: client, ttl: ttl}
}

func (d *EventDeduper) key(eventID string) string {
	return "idem:webhook:" + eventID
}

func (d *EventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	err := d.client.Get(ctx, d.key(eventID)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", eventID, err)
	}
	return true, nil
}

func (d *EventDeduper) Mark(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, d.key(eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
}
