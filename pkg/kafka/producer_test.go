package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func newTestDLQProducer() *Producer {
	return &Producer{
		topic:    "bookings",
		dlqTopic: "bookings-dlq",
		dlqWriter: &kafka.Writer{
			Addr:        kafka.TCP("127.0.0.1:1"),
			Topic:       "bookings-dlq",
			MaxAttempts: 1,
			Logger:      kafka.LoggerFunc(func(msg string, args ...any) {}),
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {}),
		},
	}
}

func TestSendToDLQ_NilHeadersDoesNotPanic(t *testing.T) {
	producer := newTestDLQProducer()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	msg := Message{Key: "booking-1", Value: []byte(`{}`)}
	if err := producer.sendToDLQ(ctx, msg, ErrEmptyValue); err == nil {
		t.Fatal("expected write to unreachable broker to fail")
	}
	if msg.Headers != nil {
		t.Errorf("expected caller's nil headers to stay nil, got %v", msg.Headers)
	}
}

func TestSendToDLQ_DoesNotMutateCallerHeaders(t *testing.T) {
	producer := newTestDLQProducer()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	msg := NewMessage().
		WithKey("booking-1").
		WithValue(map[string]string{"status": "pending"}).
		WithEventType("booking.created").
		Build()
	before := len(msg.Headers)

	_ = producer.sendToDLQ(ctx, msg, ErrEmptyValue)

	if len(msg.Headers) != before {
		t.Errorf("expected %d headers after DLQ attempt, got %d", before, len(msg.Headers))
	}
	if _, ok := msg.Headers["dlq-error"]; ok {
		t.Error("expected DLQ metadata to stay off the caller's message")
	}
}
