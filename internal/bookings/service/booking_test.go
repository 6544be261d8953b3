package service

import (
	"context"
	"fmt"
	bookingserrors "smartpark/internal/bookings/errors"
	"smartpark/internal/bookings/validator"
	"smartpark/internal/events"
	"smartpark/pkg/config"
	apperrors "smartpark/pkg/errors"
	"smartpark/pkg/logger"
	"smartpark/pkg/model"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Mock repository for testing
type mockBookingRepository struct {
	createFunc       func(ctx context.Context, booking *model.Booking) error
	findByIDFunc     func(ctx context.Context, id string) (*model.Booking, error)
	findAllFunc      func(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	findByUserFunc   func(ctx context.Context, userID string, limit int, offset int64) ([]*model.Booking, error)
	countFunc        func(ctx context.Context) (int64, error)
	countByUserFunc  func(ctx context.Context, userID string) (int64, error)
	updateStatusFunc func(ctx context.Context, id string, from []string, to string) error
	updateWindowFunc func(ctx context.Context, id string, window *model.BookingWindow, allowedStatuses []string) error
	cancelAllFunc    func(ctx context.Context, lotID string) (int64, error)
	nextSeqFunc      func(ctx context.Context, id string) (int64, error)
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	booking.ID = "65f100000000000000000001"
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.Booking{
		ID:       id,
		LotID:    "65f000000000000000000001",
		UserID:   "user-1",
		LotOwner: "admin-1",
		Status:   model.BookingPending,
	}, nil
}

func (m *mockBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, limit, offset)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) FindByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Booking, error) {
	if m.findByUserFunc != nil {
		return m.findByUserFunc(ctx, userID, limit, offset)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) Count(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

func (m *mockBookingRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	if m.countByUserFunc != nil {
		return m.countByUserFunc(ctx, userID)
	}
	return 0, nil
}

func (m *mockBookingRepository) UpdateStatus(ctx context.Context, id string, from []string, to string) error {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, from, to)
	}
	return nil
}

func (m *mockBookingRepository) UpdateWindow(ctx context.Context, id string, window *model.BookingWindow, allowedStatuses []string) error {
	if m.updateWindowFunc != nil {
		return m.updateWindowFunc(ctx, id, window, allowedStatuses)
	}
	return nil
}

func (m *mockBookingRepository) CancelAllForLot(ctx context.Context, lotID string) (int64, error) {
	if m.cancelAllFunc != nil {
		return m.cancelAllFunc(ctx, lotID)
	}
	return 0, nil
}

func (m *mockBookingRepository) NextMessageSeq(ctx context.Context, id string) (int64, error) {
	if m.nextSeqFunc != nil {
		return m.nextSeqFunc(ctx, id)
	}
	return 1, nil
}

type mockLockRepository struct {
	createFunc func(ctx context.Context, lock *model.BookingLock) (*model.BookingLock, error)
	deleteFunc func(ctx context.Context, lockID string) error
}

func (m *mockLockRepository) Create(ctx context.Context, lock *model.BookingLock) (*model.BookingLock, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, lock)
	}
	return lock, nil
}

func (m *mockLockRepository) Delete(ctx context.Context, lockID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, lockID)
	}
	return nil
}

func (m *mockLockRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

type mockLotInventory struct {
	getByIDFunc func(ctx context.Context, id string) (*model.Lot, error)
	reserveFunc func(ctx context.Context, lotID string) error
	releaseFunc func(ctx context.Context, lotID string) error

	released []string
}

func (m *mockLotInventory) GetByID(ctx context.Context, id string) (*model.Lot, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &model.Lot{ID: id, Owner: "admin-1", Capacity: 10, AvailableSlots: 5}, nil
}

func (m *mockLotInventory) ReserveSlot(ctx context.Context, lotID string) error {
	if m.reserveFunc != nil {
		return m.reserveFunc(ctx, lotID)
	}
	return nil
}

func (m *mockLotInventory) ReleaseSlot(ctx context.Context, lotID string) error {
	m.released = append(m.released, lotID)
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, lotID)
	}
	return nil
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) PublishBookingEvent(ctx context.Context, eventType string, booking *model.Booking) {
	p.events = append(p.events, eventType)
}

func newTestBookingService(repo *mockBookingRepository, lockRepo *mockLockRepository, lots *mockLotInventory, publisher *recordingPublisher) *bookingService {
	log := logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})

	return &bookingService{
		repo:      repo,
		lockRepo:  lockRepo,
		lots:      lots,
		publisher: publisher,
		validator: validator.NewBookingValidator(),
		cfg: &config.Config{
			Log:                log,
			ReadTimeout:        5 * time.Second,
			WriteTimeout:       5 * time.Second,
			LockTTL:            time.Second,
			LockAcquireTimeout: 30 * time.Millisecond,
			LockRetryInterval:  5 * time.Millisecond,
		},
	}
}

func futureWindow() *model.BookingWindow {
	start := time.Now().Add(time.Hour)
	return &model.BookingWindow{
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
	}
}

func duplicateKeyError() error {
	return mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000}},
	}
}

func TestCreate_InsertsPendingBooking(t *testing.T) {
	var reserved string
	lots := &mockLotInventory{
		reserveFunc: func(ctx context.Context, lotID string) error {
			reserved = lotID
			return nil
		},
	}
	publisher := &recordingPublisher{}
	service := newTestBookingService(&mockBookingRepository{}, &mockLockRepository{}, lots, publisher)

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	booking, err := service.Create(context.Background(), principal, "65f000000000000000000001", futureWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reserved != "65f000000000000000000001" {
		t.Errorf("expected slot reserved on lot, got %q", reserved)
	}
	if booking.Status != model.BookingPending {
		t.Errorf("expected pending status, got %q", booking.Status)
	}
	if booking.LotOwner != "admin-1" {
		t.Errorf("expected lot owner denormalized onto booking, got %q", booking.LotOwner)
	}
	if len(publisher.events) != 1 || publisher.events[0] != "booking.created" {
		t.Errorf("expected booking.created event, got %v", publisher.events)
	}
}

func TestCreate_ReleasesSlotWhenInsertFails(t *testing.T) {
	repo := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			return fmt.Errorf("insert failed")
		},
	}
	lots := &mockLotInventory{}
	service := newTestBookingService(repo, &mockLockRepository{}, lots, &recordingPublisher{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	_, err := service.Create(context.Background(), principal, "65f000000000000000000001", futureWindow())
	if !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}

	if len(lots.released) != 1 {
		t.Fatalf("expected compensating release, got %d releases", len(lots.released))
	}
}

func TestCreate_RejectsPastWindow(t *testing.T) {
	service := newTestBookingService(&mockBookingRepository{}, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	window := &model.BookingWindow{
		StartTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-time.Hour),
	}
	_, err := service.Create(context.Background(), principal, "65f000000000000000000001", window)
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfirm_RequiresAdmin(t *testing.T) {
	service := newTestBookingService(&mockBookingRepository{}, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	err := service.Confirm(context.Background(), principal, "65f100000000000000000001")
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestConfirm_OtherLotAdminIsForbidden(t *testing.T) {
	service := newTestBookingService(&mockBookingRepository{}, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "admin-2", Role: model.RoleAdmin}
	err := service.Confirm(context.Background(), principal, "65f100000000000000000001")
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden error for admin of another lot, got %v", err)
	}
}

func TestConfirm_NonPendingIsConflict(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: id, LotOwner: "admin-1", Status: model.BookingCancelled}, nil
		},
		updateStatusFunc: func(ctx context.Context, id string, from []string, to string) error {
			return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidTransition, id)
		},
	}
	service := newTestBookingService(repo, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	err := service.Confirm(context.Background(), principal, "65f100000000000000000001")
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestCancel_OwnerReleasesSlot(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:       id,
				LotID:    "65f000000000000000000001",
				UserID:   "user-1",
				LotOwner: "admin-1",
				Status:   model.BookingConfirmed,
			}, nil
		},
	}
	lots := &mockLotInventory{}
	publisher := &recordingPublisher{}
	service := newTestBookingService(repo, &mockLockRepository{}, lots, publisher)

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	if err := service.Cancel(context.Background(), principal, "65f100000000000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lots.released) != 1 || lots.released[0] != "65f000000000000000000001" {
		t.Errorf("expected slot released on cancel, got %v", lots.released)
	}
	if len(publisher.events) != 1 || publisher.events[0] != "booking.cancelled" {
		t.Errorf("expected booking.cancelled event, got %v", publisher.events)
	}
}

func TestCancel_ReleaseFailureStillCancelsAndFlagsDrift(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:       id,
				UserID:   "user-1",
				LotID:    "65f000000000000000000001",
				LotOwner: "admin-1",
				Status:   model.BookingConfirmed,
			}, nil
		},
	}
	lots := &mockLotInventory{
		releaseFunc: func(ctx context.Context, lotID string) error {
			return fmt.Errorf("release failed")
		},
	}
	publisher := &recordingPublisher{}
	service := newTestBookingService(repo, &mockLockRepository{}, lots, publisher)

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	if err := service.Cancel(context.Background(), principal, "65f100000000000000000001"); err != nil {
		t.Fatalf("expected cancel to succeed despite release failure, got %v", err)
	}

	var drift, cancelled bool
	for _, e := range publisher.events {
		switch e {
		case events.EventSlotReleaseFailed:
			drift = true
		case events.EventBookingCancelled:
			cancelled = true
		}
	}
	if !drift {
		t.Error("expected a slot release failure event for reconciliation")
	}
	if !cancelled {
		t.Error("expected the cancellation event to still be published")
	}
}

func TestCancel_StrangerIsForbidden(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: id, UserID: "user-1", Status: model.BookingPending}, nil
		},
	}
	service := newTestBookingService(repo, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "user-2", Role: model.RoleUser}
	err := service.Cancel(context.Background(), principal, "65f100000000000000000001")
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestComplete_BeforeWindowEndsIsConflict(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:       id,
				LotOwner: "admin-1",
				Status:   model.BookingConfirmed,
				EndTime:  time.Now().Add(time.Hour),
			}, nil
		},
	}
	service := newTestBookingService(repo, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	err := service.Complete(context.Background(), principal, "65f100000000000000000001")
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestComplete_AfterWindowReleasesSlot(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{
				ID:       id,
				LotID:    "65f000000000000000000001",
				LotOwner: "admin-1",
				Status:   model.BookingConfirmed,
				EndTime:  time.Now().Add(-time.Hour),
			}, nil
		},
	}
	lots := &mockLotInventory{}
	publisher := &recordingPublisher{}
	service := newTestBookingService(repo, &mockLockRepository{}, lots, publisher)

	principal := &model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	if err := service.Complete(context.Background(), principal, "65f100000000000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lots.released) != 1 {
		t.Errorf("expected slot released on completion, got %v", lots.released)
	}
	if len(publisher.events) != 1 || publisher.events[0] != "booking.completed" {
		t.Errorf("expected booking.completed event, got %v", publisher.events)
	}
}

func TestReschedule_TerminalBookingIsConflict(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return &model.Booking{ID: id, UserID: "user-1", Status: model.BookingCompleted}, nil
		},
		updateWindowFunc: func(ctx context.Context, id string, window *model.BookingWindow, allowedStatuses []string) error {
			return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidTransition, id)
		},
	}
	service := newTestBookingService(repo, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	err := service.Reschedule(context.Background(), principal, "65f100000000000000000001", futureWindow())
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestReschedule_AdminIsForbidden(t *testing.T) {
	service := newTestBookingService(&mockBookingRepository{}, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	err := service.Reschedule(context.Background(), principal, "65f100000000000000000001", futureWindow())
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestTransition_ContendedLockReportsBusy(t *testing.T) {
	lockRepo := &mockLockRepository{
		createFunc: func(ctx context.Context, lock *model.BookingLock) (*model.BookingLock, error) {
			return nil, duplicateKeyError()
		},
	}
	service := newTestBookingService(&mockBookingRepository{}, lockRepo, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	err := service.Confirm(context.Background(), principal, "65f100000000000000000001")
	if !apperrors.HasCode(err, apperrors.CodeBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
}

func TestTransition_LockReleasedAfterUse(t *testing.T) {
	var deleted string
	lockRepo := &mockLockRepository{
		deleteFunc: func(ctx context.Context, lockID string) error {
			deleted = lockID
			return nil
		},
	}
	service := newTestBookingService(&mockBookingRepository{}, lockRepo, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	if err := service.Confirm(context.Background(), principal, "65f100000000000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "booking_65f100000000000000000001" {
		t.Errorf("expected lock released, got %q", deleted)
	}
}

func TestList_UserSeesOnlyOwnBookings(t *testing.T) {
	var queriedUser string
	repo := &mockBookingRepository{
		findByUserFunc: func(ctx context.Context, userID string, limit int, offset int64) ([]*model.Booking, error) {
			queriedUser = userID
			return []*model.Booking{{ID: "65f100000000000000000001", UserID: userID}}, nil
		},
		countByUserFunc: func(ctx context.Context, userID string) (int64, error) {
			return 1, nil
		},
	}
	service := newTestBookingService(repo, &mockLockRepository{}, &mockLotInventory{}, &recordingPublisher{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	bookings, count, err := service.List(context.Background(), principal, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queriedUser != "user-1" {
		t.Errorf("expected query scoped to user-1, got %q", queriedUser)
	}
	if count != 1 || len(bookings) != 1 {
		t.Errorf("expected one booking, got count=%d len=%d", count, len(bookings))
	}
}
