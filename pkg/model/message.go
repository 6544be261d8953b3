package model

import "time"

// Message is one chat message inside a booking's channel. Immutable after
// creation except for ReadBy, which only grows. SenderRole is recorded at
// send time so history keeps rendering correctly even if roles change later.
type Message struct {
	ID         string    `json:"id,omitempty" bson:"_id,omitempty"`
	BookingID  string    `json:"booking_id" bson:"booking_id"`
	Seq        int64     `json:"seq" bson:"seq"`
	SenderID   string    `json:"sender_id" bson:"sender_id"`
	SenderRole string    `json:"sender_role" bson:"sender_role"`
	Text       string    `json:"text" bson:"text"`
	ReadBy     []string  `json:"read_by" bson:"read_by"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// ChatSummary is one row of the admin's active-chat overview.
type ChatSummary struct {
	BookingID      string    `json:"booking_id" bson:"_id"`
	LastMessage    string    `json:"last_message" bson:"last_message"`
	LastCreatedAt  time.Time `json:"last_created_at" bson:"last_created_at"`
	UnreadForAdmin int64     `json:"unread_for_admin" bson:"unread_for_admin"`
}
