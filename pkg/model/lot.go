package model

import "time"

// Lot is a parking facility with a fixed capacity and a live available-slot
// counter. The counter is mutated only through LotRepository's conditional
// updates, never by read-modify-write.
type Lot struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name           string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	City           string    `json:"city" bson:"city" validate:"required,min=2,max=60"`
	Owner          string    `json:"owner" bson:"owner" validate:"required"`
	Capacity       int       `json:"capacity" bson:"capacity" validate:"required,min=1,max=10000"`
	AvailableSlots int       `json:"available_slots" bson:"available_slots" validate:"min=0"`
	PricePerHour   float64   `json:"price_per_hour" bson:"price_per_hour" validate:"min=0"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// ActiveReservations is the number of slots currently held by pending or
// confirmed bookings.
func (l *Lot) ActiveReservations() int {
	return l.Capacity - l.AvailableSlots
}

// LotUpdate carries the mutable lot fields. Capacity changes go through the
// dedicated capacity endpoint so the available counter can be rebased safely.
type LotUpdate struct {
	Name         string   `json:"name,omitempty"`
	City         string   `json:"city,omitempty"`
	PricePerHour *float64 `json:"price_per_hour,omitempty"`
}
