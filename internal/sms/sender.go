// Package sms delivers one-time codes to phones. Delivery is fire-and-forget
// from the auth flow's perspective: a failed send is logged, never surfaced
// to the requester.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/util"
)

type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// CodeMessage renders the text body carrying an OTP code.
func CodeMessage(code string) string {
	return fmt.Sprintf("Your code: %s", code)
}

// ConsoleSender logs the message instead of delivering it. Development only.
type ConsoleSender struct{}

func NewConsoleSender() *ConsoleSender {
	return &ConsoleSender{}
}

func (s *ConsoleSender) Send(_ context.Context, phone, message string) error {
	util.Info("SMS (console transport)",
		zap.String("phone", phone),
		zap.String("message", message))
	return nil
}

// KafkaSender hands the message to the SMS gateway's inbound topic. The
// gateway owns provider selection, retries, and delivery receipts.
type KafkaSender struct {
	producer *client.KafkaProducer
	topic    string
}

type outboundSMS struct {
	Phone     string    `json:"phone"`
	Message   string    `json:"message"`
	QueuedAt  time.Time `json:"queued_at"`
	Requestor string    `json:"requestor"`
}

func NewKafkaSender(producer *client.KafkaProducer, topic string) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic}
}

func (s *KafkaSender) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(outboundSMS{
		Phone:     phone,
		Message:   message,
		QueuedAt:  time.Now().UTC(),
		Requestor: "phone-auth-service",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	if err := s.producer.ProduceMessage(ctx, s.topic, []byte(phone), payload, nil); err != nil {
		return fmt.Errorf("failed to queue sms: %w", err)
	}

	util.Debug("SMS queued", zap.String("phone", phone), zap.String("topic", s.topic))
	return nil
}
