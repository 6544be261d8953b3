// Package gate decides who may use a booking's chat channel. The decision is
// a pure function over the principal and the booking: the booking carries the
// lot owner from creation time, so no storage lookup is needed here.
package gate

import (
	"smartpark/pkg/model"
)

// Reason explains a denial. The HTTP layer collapses every reason into one
// generic 403; the WebSocket layer reports the specific reason to the
// already-authenticated connection.
type Reason string

const (
	ReasonGranted             Reason = ""
	ReasonBookingNotConfirmed Reason = "bookingNotConfirmed"
	ReasonNotParticipant      Reason = "notParticipant"
)

// Decision is the outcome of a single access check.
type Decision struct {
	Granted bool
	Reason  Reason
}

// CanAccess grants chat access iff the booking is confirmed and the principal
// is a participant: the booking's user, or an admin who owns the booking's
// lot. Participation is checked first so a non-participant learns nothing
// about the booking's state.
func CanAccess(principal *model.Principal, booking *model.Booking) Decision {
	if principal == nil || booking == nil {
		return Decision{Granted: false, Reason: ReasonNotParticipant}
	}

	if !isParticipant(principal, booking) {
		return Decision{Granted: false, Reason: ReasonNotParticipant}
	}

	if booking.Status != model.BookingConfirmed {
		return Decision{Granted: false, Reason: ReasonBookingNotConfirmed}
	}

	return Decision{Granted: true}
}

func isParticipant(principal *model.Principal, booking *model.Booking) bool {
	if booking.UserID == principal.ID {
		return true
	}
	return principal.IsAdmin() && booking.LotOwner == principal.ID
}
