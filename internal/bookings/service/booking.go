package service

import (
	"context"
	"errors"
	bookingserrors "smartpark/internal/bookings/errors"
	"smartpark/internal/bookings/repository"
	"smartpark/internal/bookings/validator"
	"smartpark/internal/events"
	"smartpark/pkg/config"
	apperrors "smartpark/pkg/errors"
	"smartpark/pkg/model"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// LotInventory is the slice of the lots service the booking flow needs.
// Defined here so this package depends on behavior, not on the lots package.
type LotInventory interface {
	GetByID(ctx context.Context, id string) (*model.Lot, error)
	ReserveSlot(ctx context.Context, lotID string) error
	ReleaseSlot(ctx context.Context, lotID string) error
}

type BookingService interface {
	Create(ctx context.Context, principal *model.Principal, lotID string, window *model.BookingWindow) (*model.Booking, error)
	GetByID(ctx context.Context, principal *model.Principal, id string) (*model.Booking, error)
	List(ctx context.Context, principal *model.Principal, limit int, offset int64) ([]*model.Booking, int64, error)

	Confirm(ctx context.Context, principal *model.Principal, id string) error
	Cancel(ctx context.Context, principal *model.Principal, id string) error
	Complete(ctx context.Context, principal *model.Principal, id string) error
	Reschedule(ctx context.Context, principal *model.Principal, id string, window *model.BookingWindow) error
}

type bookingService struct {
	repo      repository.BookingRepository
	lockRepo  repository.BookingLockRepository
	lots      LotInventory
	publisher events.Publisher
	validator *validator.BookingValidator
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	lockRepo repository.BookingLockRepository,
	lots LotInventory,
	publisher events.Publisher,
	validator *validator.BookingValidator,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		lockRepo:  lockRepo,
		lots:      lots,
		publisher: publisher,
		validator: validator,
		cfg:       cfg,
	}
}

// Create reserves a slot and inserts a pending booking. The reserve is an
// atomic decrement-if-positive on the lot, so concurrent creates against the
// last slot cannot both succeed; a failed insert releases the slot again.
func (s *bookingService) Create(ctx context.Context, principal *model.Principal, lotID string, window *model.BookingWindow) (*model.Booking, error) {
	if lotID == "" {
		return nil, apperrors.InvalidInput("Lot ID cannot be empty")
	}
	if err := s.validator.ValidateWindow(window); err != nil {
		s.cfg.Log.Warn("Booking window validation failed", "lot_id", lotID, "error", err)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	lot, err := s.lots.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}

	if err := s.lots.ReserveSlot(ctx, lotID); err != nil {
		return nil, err
	}

	booking := &model.Booking{
		LotID:     lot.ID,
		UserID:    principal.ID,
		LotOwner:  lot.Owner,
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
		Status:    model.BookingPending,
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		if releaseErr := s.lots.ReleaseSlot(ctx, lotID); releaseErr != nil {
			s.cfg.Log.Error("Failed to release slot after booking insert failure",
				"lot_id", lotID,
				"error", releaseErr,
			)
		}
		s.cfg.Log.Error("Failed to create booking", "lot_id", lotID, "error", err)
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	s.publisher.PublishBookingEvent(ctx, events.EventBookingCreated, booking)

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"lot_id", booking.LotID,
		"user_id", booking.UserID,
		"start_time", booking.StartTime,
	)
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, principal *model.Principal, id string) (*model.Booking, error) {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if !principal.IsAdmin() && booking.UserID != principal.ID {
		return nil, apperrors.Forbidden("Not authorized to view this booking")
	}

	return booking, nil
}

// List returns the caller's own bookings; admins see all bookings.
func (s *bookingService) List(ctx context.Context, principal *model.Principal, limit int, offset int64) ([]*model.Booking, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		if principal.IsAdmin() {
			count, err = s.repo.Count(ctx)
		} else {
			count, err = s.repo.CountByUser(ctx, principal.ID)
		}
		if err != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", err)
			errCount = apperrors.Internal("Failed to count bookings", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		if principal.IsAdmin() {
			bookings, err = s.repo.FindAll(ctx, limit, offset)
		} else {
			bookings, err = s.repo.FindByUser(ctx, principal.ID, limit, offset)
		}
		if err != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", err)
			errFind = apperrors.Internal("Failed to retrieve bookings", err)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// Confirm moves a pending booking to confirmed. Only the admin owning the
// booking's lot may confirm; the slot stays reserved.
func (s *bookingService) Confirm(ctx context.Context, principal *model.Principal, id string) error {
	if !principal.IsAdmin() {
		return apperrors.Forbidden("Only admins can confirm bookings")
	}

	lockID, err := s.acquireBookingLock(ctx, id)
	if err != nil {
		return err
	}
	defer s.releaseBookingLock(ctx, lockID)

	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}

	if booking.LotOwner != principal.ID {
		return apperrors.Forbidden("Only the lot's admin can confirm this booking")
	}

	if err := s.transition(ctx, booking, []string{model.BookingPending}, model.BookingConfirmed); err != nil {
		return err
	}

	s.publisher.PublishBookingEvent(ctx, events.EventBookingConfirmed, booking)

	s.cfg.Log.Info("Booking confirmed", "id", id, "lot_id", booking.LotID)
	return nil
}

// Cancel moves a pending or confirmed booking to cancelled and releases its
// slot. Allowed for the booking's user and for the lot's admin.
func (s *bookingService) Cancel(ctx context.Context, principal *model.Principal, id string) error {
	lockID, err := s.acquireBookingLock(ctx, id)
	if err != nil {
		return err
	}
	defer s.releaseBookingLock(ctx, lockID)

	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}

	lotAdmin := principal.IsAdmin() && booking.LotOwner == principal.ID
	if booking.UserID != principal.ID && !lotAdmin {
		return apperrors.Forbidden("Not authorized to cancel this booking")
	}

	if err := s.transition(ctx, booking, []string{model.BookingPending, model.BookingConfirmed}, model.BookingCancelled); err != nil {
		return err
	}

	s.releaseSlotAfterTransition(ctx, booking)

	s.publisher.PublishBookingEvent(ctx, events.EventBookingCancelled, booking)

	s.cfg.Log.Info("Booking cancelled", "id", id, "lot_id", booking.LotID)
	return nil
}

// Complete closes out a confirmed booking after its window has ended and
// releases the slot. Only the admin owning the booking's lot.
func (s *bookingService) Complete(ctx context.Context, principal *model.Principal, id string) error {
	if !principal.IsAdmin() {
		return apperrors.Forbidden("Only admins can complete bookings")
	}

	lockID, err := s.acquireBookingLock(ctx, id)
	if err != nil {
		return err
	}
	defer s.releaseBookingLock(ctx, lockID)

	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}

	if booking.LotOwner != principal.ID {
		return apperrors.Forbidden("Only the lot's admin can complete this booking")
	}

	if time.Now().Before(booking.EndTime) {
		return apperrors.Conflict("Booking cannot be completed before its window ends")
	}

	if err := s.transition(ctx, booking, []string{model.BookingConfirmed}, model.BookingCompleted); err != nil {
		return err
	}

	s.releaseSlotAfterTransition(ctx, booking)

	s.publisher.PublishBookingEvent(ctx, events.EventBookingCompleted, booking)

	s.cfg.Log.Info("Booking completed", "id", id, "lot_id", booking.LotID)
	return nil
}

// Reschedule moves the booking window. Owner only, and only while pending:
// once the admin has confirmed, the window is fixed so both sides keep the
// same expectations.
func (s *bookingService) Reschedule(ctx context.Context, principal *model.Principal, id string, window *model.BookingWindow) error {
	if err := s.validator.ValidateWindow(window); err != nil {
		s.cfg.Log.Warn("Reschedule window validation failed", "id", id, "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	lockID, err := s.acquireBookingLock(ctx, id)
	if err != nil {
		return err
	}
	defer s.releaseBookingLock(ctx, lockID)

	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}

	if booking.UserID != principal.ID {
		return apperrors.Forbidden("Only the booking's owner can reschedule it")
	}

	err = s.repo.UpdateWindow(ctx, id, window, []string{model.BookingPending})
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidTransition) {
			return apperrors.Conflict("Only pending bookings can be rescheduled")
		}
		s.cfg.Log.Error("Failed to reschedule booking", "id", id, "error", err)
		return apperrors.Internal("Failed to reschedule booking", err)
	}

	booking.StartTime = window.StartTime
	booking.EndTime = window.EndTime
	s.publisher.PublishBookingEvent(ctx, events.EventBookingRescheduled, booking)

	s.cfg.Log.Info("Booking rescheduled",
		"id", id,
		"start_time", window.StartTime,
		"end_time", window.EndTime,
	)
	return nil
}

// --- Helpers ---

func (s *bookingService) findBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	return booking, nil
}

// transition applies a conditional status update and mirrors the new status
// onto the in-memory booking on success.
func (s *bookingService) transition(ctx context.Context, booking *model.Booking, from []string, to string) error {
	err := s.repo.UpdateStatus(ctx, booking.ID, from, to)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", booking.ID)
		}
		if errors.Is(err, bookingserrors.ErrInvalidTransition) {
			return apperrors.Conflict("Booking is not in a state that allows this transition")
		}
		s.cfg.Log.Error("Failed to update booking status",
			"id", booking.ID,
			"to", to,
			"error", err,
		)
		return apperrors.Internal("Failed to update booking status", err)
	}

	booking.Status = to
	return nil
}

// releaseSlotAfterTransition returns the slot once a booking reaches a
// terminal state. The transition has already committed, so a failed release
// leaves the lot's availability pessimistic; it is reported on the event
// stream as well as logged so operators can reconcile the counter.
func (s *bookingService) releaseSlotAfterTransition(ctx context.Context, booking *model.Booking) {
	if err := s.lots.ReleaseSlot(ctx, booking.LotID); err != nil {
		s.cfg.Log.Error("Failed to release slot, lot availability is now pessimistic",
			"id", booking.ID,
			"lot_id", booking.LotID,
			"status", booking.Status,
			"error", err,
		)
		s.publisher.PublishBookingEvent(ctx, events.EventSlotReleaseFailed, booking)
	}
}

// acquireBookingLock serializes transitions for one booking. Contending
// requests retry until LockAcquireTimeout and then give up with a busy error
// rather than queueing indefinitely.
func (s *bookingService) acquireBookingLock(ctx context.Context, bookingID string) (string, error) {
	lockID := "booking_" + bookingID
	deadline := time.Now().Add(s.cfg.LockAcquireTimeout)

	for {
		lock := &model.BookingLock{
			ID:        lockID,
			ExpiresAt: time.Now().Add(s.cfg.LockTTL),
		}

		_, err := s.lockRepo.Create(ctx, lock)
		if err == nil {
			return lockID, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Internal("Failed to acquire booking lock", err)
		}
		if time.Now().After(deadline) {
			return "", apperrors.Busy("Booking")
		}

		select {
		case <-ctx.Done():
			return "", apperrors.Timeout("Request cancelled while waiting for booking lock")
		case <-time.After(s.cfg.LockRetryInterval):
		}
	}
}

func (s *bookingService) releaseBookingLock(ctx context.Context, lockID string) {
	if err := s.lockRepo.Delete(ctx, lockID); err != nil {
		s.cfg.Log.Warn("Failed to release booking lock", "lock_id", lockID, "error", err)
	}
}
