package gate

import (
	"smartpark/pkg/model"
	"testing"
)

func TestCanAccess(t *testing.T) {
	booking := func(status string) *model.Booking {
		return &model.Booking{
			ID:       "b1",
			LotID:    "l1",
			UserID:   "user-1",
			LotOwner: "admin-1",
			Status:   status,
		}
	}

	tests := []struct {
		name        string
		principal   *model.Principal
		booking     *model.Booking
		wantGranted bool
		wantReason  Reason
	}{
		{
			name:        "booking user on confirmed booking",
			principal:   &model.Principal{ID: "user-1", Role: model.RoleUser},
			booking:     booking(model.BookingConfirmed),
			wantGranted: true,
		},
		{
			name:        "lot owner admin on confirmed booking",
			principal:   &model.Principal{ID: "admin-1", Role: model.RoleAdmin},
			booking:     booking(model.BookingConfirmed),
			wantGranted: true,
		},
		{
			name:        "booking user on pending booking",
			principal:   &model.Principal{ID: "user-1", Role: model.RoleUser},
			booking:     booking(model.BookingPending),
			wantGranted: false,
			wantReason:  ReasonBookingNotConfirmed,
		},
		{
			name:        "booking user on cancelled booking",
			principal:   &model.Principal{ID: "user-1", Role: model.RoleUser},
			booking:     booking(model.BookingCancelled),
			wantGranted: false,
			wantReason:  ReasonBookingNotConfirmed,
		},
		{
			name:        "booking user on completed booking",
			principal:   &model.Principal{ID: "user-1", Role: model.RoleUser},
			booking:     booking(model.BookingCompleted),
			wantGranted: false,
			wantReason:  ReasonBookingNotConfirmed,
		},
		{
			name:        "unrelated user on confirmed booking",
			principal:   &model.Principal{ID: "user-2", Role: model.RoleUser},
			booking:     booking(model.BookingConfirmed),
			wantGranted: false,
			wantReason:  ReasonNotParticipant,
		},
		{
			name:        "admin of a different lot on confirmed booking",
			principal:   &model.Principal{ID: "admin-2", Role: model.RoleAdmin},
			booking:     booking(model.BookingConfirmed),
			wantGranted: false,
			wantReason:  ReasonNotParticipant,
		},
		{
			name:        "user with admin's ID but user role",
			principal:   &model.Principal{ID: "admin-1", Role: model.RoleUser},
			booking:     booking(model.BookingConfirmed),
			wantGranted: false,
			wantReason:  ReasonNotParticipant,
		},
		{
			name:        "unrelated user on pending booking reports participation first",
			principal:   &model.Principal{ID: "user-2", Role: model.RoleUser},
			booking:     booking(model.BookingPending),
			wantGranted: false,
			wantReason:  ReasonNotParticipant,
		},
		{
			name:        "nil booking",
			principal:   &model.Principal{ID: "user-1", Role: model.RoleUser},
			booking:     nil,
			wantGranted: false,
			wantReason:  ReasonNotParticipant,
		},
		{
			name:        "nil principal",
			principal:   nil,
			booking:     booking(model.BookingConfirmed),
			wantGranted: false,
			wantReason:  ReasonNotParticipant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanAccess(tt.principal, tt.booking)
			if got.Granted != tt.wantGranted {
				t.Errorf("CanAccess() granted = %v, want %v", got.Granted, tt.wantGranted)
			}
			if !tt.wantGranted && got.Reason != tt.wantReason {
				t.Errorf("CanAccess() reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if tt.wantGranted && got.Reason != ReasonGranted {
				t.Errorf("CanAccess() granted with reason %q, want empty", got.Reason)
			}
		})
	}
}
