package events

import (
	"context"
	"time"

	"smartpark/pkg/kafka"
	"smartpark/pkg/logger"
	"smartpark/pkg/model"
)

// Booking lifecycle event types.
const (
	EventBookingCreated     = "booking.created"
	EventBookingConfirmed   = "booking.confirmed"
	EventBookingCancelled   = "booking.cancelled"
	EventBookingCompleted   = "booking.completed"
	EventBookingRescheduled = "booking.rescheduled"

	// EventSlotReleaseFailed flags a booking whose terminal transition
	// committed but whose slot release did not, leaving the lot's
	// availability pessimistic until reconciled.
	EventSlotReleaseFailed = "booking.slot_release_failed"
)

const eventSource = "smartpark"

// BookingEvent is the payload published for every booking state change.
type BookingEvent struct {
	EventType  string    `json:"event_type"`
	BookingID  string    `json:"booking_id"`
	LotID      string    `json:"lot_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits booking lifecycle events. Implementations must not block
// the booking flow on broker failures beyond the producer's own retry budget.
type Publisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, booking *model.Booking)
}

// KafkaPublisher publishes booking events to a Kafka topic, keyed by booking
// ID so events for one booking land on the same partition in order.
type KafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		log:      log,
	}
}

func (p *KafkaPublisher) PublishBookingEvent(ctx context.Context, eventType string, booking *model.Booking) {
	event := BookingEvent{
		EventType:  eventType,
		BookingID:  booking.ID,
		LotID:      booking.LotID,
		UserID:     booking.UserID,
		Status:     booking.Status,
		StartTime:  booking.StartTime,
		EndTime:    booking.EndTime,
		OccurredAt: time.Now().UTC(),
	}

	msg := kafka.NewMessage().
		WithKey(booking.ID).
		WithValue(event).
		WithEventType(eventType).
		WithSource(eventSource).
		Build()

	// Event publication is best-effort: the state change has already been
	// committed, so a broker outage must not fail the request.
	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish booking event",
			"event_type", eventType,
			"booking_id", booking.ID,
			"error", err,
		)
	}
}

// NoopPublisher drops all events. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishBookingEvent(ctx context.Context, eventType string, booking *model.Booking) {
}
