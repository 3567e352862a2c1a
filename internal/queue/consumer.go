package queue

import (
	"context"
	"encoding/json"
	"strings"

	"bookshop/internal/model"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Consumer reads lifecycle events from Kafka and appends them to the
// order_audits table. The unique event_id makes redelivery a no-op.
type Consumer struct {
	r   *kafka.Reader
	db  *gorm.DB
	log *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db:  db,
		log: log,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx canceled or connection gone
		}

		var ev OrderEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			c.log.Warn("audit consumer unmarshal", zap.Error(err))
			continue
		}
		if err := ev.Validate(); err != nil {
			c.log.Warn("audit consumer dirty event", zap.Error(err))
			continue
		}

		audit := &model.OrderAudit{
			EventID:    ev.EventID,
			EventType:  ev.EventType,
			OrderID:    ev.OrderID,
			OrderNo:    ev.OrderNo,
			UserID:     ev.UserID,
			Status:     ev.Status,
			TotalCents: ev.TotalCents,
			OccurredAt: ev.OccurredAt,
		}
		if err := c.db.Create(audit).Error; err != nil {
			// Redelivered event hits the UNIQUE index; treat as done.
			if errorsLikeUnique(err) {
				continue
			}
			c.log.Warn("audit consumer db create", zap.Error(err))
			continue
		}
	}
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
