package model

import "time"

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// Booking reserves one slot in a lot for a time window. LotID, UserID and
// LotOwner are immutable after creation; LotOwner is denormalized from the
// lot so chat access decisions need no extra lookup.
type Booking struct {
	ID         string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	LotID      string    `json:"lot_id" bson:"lot_id" validate:"required,mongodb"`
	UserID     string    `json:"user_id" bson:"user_id" validate:"required"`
	LotOwner   string    `json:"lot_owner" bson:"lot_owner" validate:"required"`
	StartTime  time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Status     string    `json:"status" bson:"status" validate:"required,oneof=pending confirmed cancelled completed"`
	MessageSeq int64     `json:"-" bson:"message_seq"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// Terminal reports whether no further state transitions are allowed.
func (b *Booking) Terminal() bool {
	return b.Status == BookingCancelled || b.Status == BookingCompleted
}

// BookingWindow is the payload for creating or rescheduling a booking.
type BookingWindow struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}
