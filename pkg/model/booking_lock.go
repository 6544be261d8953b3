package model

import "time"

// BookingLock is a TTL advisory lock serializing the reserve+insert and
// transition+release pairs for one booking or lot. Duplicate-key insert
// means another request holds the lock.
type BookingLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
