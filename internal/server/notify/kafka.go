package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventOTPIssued is the event type carried in the "event_type" header.
const EventOTPIssued = "otp.issued"

// OTPEvent is the JSON payload consumed by the mailer.
type OTPEvent struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	Email      string `json:"email"`
	Code       string `json:"otp"`
	Purpose    string `json:"purpose"`
	ExpiresAt  string `json:"expires_at"`
	OccurredAt string `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes an OTPEvent per passcode, keyed by email so all
// events for one address stay ordered on one partition.
type KafkaNotifier struct {
	w   messageWriter
	now func() time.Time
}

// NewKafkaNotifier returns a notifier writing to topic on brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaNotifier{w: w, now: time.Now}
}

// SendOTP implements Notifier. It returns once the broker acknowledged.
func (n *KafkaNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	ev := OTPEvent{
		EventID:    uuid.NewString(),
		Type:       EventOTPIssued,
		Email:      msg.Email,
		Code:       msg.Code,
		Purpose:    string(msg.Purpose),
		ExpiresAt:  msg.ExpiresAt.UTC().Format(time.RFC3339),
		OccurredAt: n.now().UTC().Format(time.RFC3339),
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode otp event: %w", err)
	}

	err = n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Email),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOTPIssued)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}
