package queue

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// StreamPublisher appends lifecycle events to a Redis Stream. The relay
// drains the stream into Kafka, so the hot path never waits on a broker.
type StreamPublisher struct {
	rdb    *rd.Client
	stream string
}

func NewStreamPublisher(rdb *rd.Client, stream string) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream}
}

// Publish appends one event to the stream as flat string fields.
func (p *StreamPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return p.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":    ev.EventID,
			"event_type":  ev.EventType,
			"order_id":    strconv.FormatUint(uint64(ev.OrderID), 10),
			"order_no":    ev.OrderNo,
			"user_id":     strconv.FormatInt(ev.UserID, 10),
			"status":      ev.Status,
			"total_cents": strconv.FormatInt(ev.TotalCents, 10),
			"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}
