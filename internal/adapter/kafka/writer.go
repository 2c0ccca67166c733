package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/config"
	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Header keys on notification messages.
const (
	HeaderDestination        = "destination"
	HeaderRecommendationType = "recommendation_type"
	HeaderCreatedAt          = "created_at"
)

func newProducer(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// NotificationWriter publishes push notifications. The logical destination
// (alerts/{farmId} or recommendations/{farmId}) travels as a header and the
// farm ID is the message key, so a farm's notifications stay ordered.
// It implements notify.Publisher.
type NotificationWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotificationWriter creates a producer for the notification topic.
func NewNotificationWriter(cfg *config.Config, logger *slog.Logger) *NotificationWriter {
	return &NotificationWriter{writer: newProducer(cfg.KafkaBrokers, cfg.KafkaNotificationTopic), logger: logger}
}

// Publish sends rec to destination.
func (w *NotificationWriter) Publish(ctx context.Context, destination string, rec domain.Recommendation) error {
	msg, err := serializeNotification(destination, rec)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", rec.ID, destination, err)
	}
	return nil
}

func (w *NotificationWriter) Close() error {
	return w.writer.Close()
}

// serializeNotification marshals a Recommendation into a Kafka message.
func serializeNotification(destination string, rec domain.Recommendation) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize recommendation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.FarmID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderDestination, Value: []byte(destination)},
			{Key: HeaderRecommendationType, Value: []byte(rec.Type)},
			{Key: HeaderCreatedAt, Value: []byte(rec.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}

// EmailRequest is the payload consumed by the mail relay.
type EmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailWriter publishes email requests for the mail relay.
// It implements notify.Mailer.
type EmailWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewEmailWriter creates a producer for the email request topic.
func NewEmailWriter(cfg *config.Config, logger *slog.Logger) *EmailWriter {
	return &EmailWriter{writer: newProducer(cfg.KafkaBrokers, cfg.KafkaEmailTopic), logger: logger}
}

// SendEmail queues one email.
func (w *EmailWriter) SendEmail(ctx context.Context, to, subject, body string) error {
	msg, err := serializeEmail(EmailRequest{To: to, Subject: subject, Body: body})
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("queue email: %w", err)
	}
	return nil
}

func (w *EmailWriter) Close() error {
	return w.writer.Close()
}

func serializeEmail(req EmailRequest) (kafkago.Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize email request: %w", err)
	}
	return kafkago.Message{Key: []byte(req.To), Value: data}, nil
}
