// Package events publishes security audit events to the shared event stream.
// Publishing is best-effort: the auth flow never fails because the stream is
// down.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

// Event types emitted by the auth flow.
const (
	EventOTPIssued      = "otp_issued"
	EventPhoneVerified  = "phone_verified"
	EventRateLimitBlock = "rate_limit_block"
)

type Publisher interface {
	Publish(ctx context.Context, event *models.SecurityEvent)
}

// NopPublisher drops events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.SecurityEvent) {}

type KafkaPublisher struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaPublisher(producer *client.KafkaProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *models.SecurityEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to marshal security event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return
	}

	if err := p.producer.ProduceMessage(ctx, p.topic, []byte(event.EventType), payload, nil); err != nil {
		util.Warn("Failed to publish security event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return
	}

	util.Debug("Security event published",
		zap.String("event_type", event.EventType),
		zap.String("event_id", event.EventID))
}
