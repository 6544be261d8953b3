package service

import (
	"context"
	"fmt"
	bookingserrors "smartpark/internal/bookings/errors"
	"smartpark/internal/chat/gate"
	"smartpark/pkg/config"
	apperrors "smartpark/pkg/errors"
	"smartpark/pkg/logger"
	"smartpark/pkg/model"
	"testing"
	"time"
)

// Mock repository for testing
type mockMessageRepository struct {
	insertFunc         func(ctx context.Context, msg *model.Message) error
	findByBookingFunc  func(ctx context.Context, bookingID string, limit int, offset int64) ([]*model.Message, error)
	countByBookingFunc func(ctx context.Context, bookingID string) (int64, error)
	markReadFunc       func(ctx context.Context, bookingID, principalID string) (int64, error)
	countUnreadFunc    func(ctx context.Context, bookingID, principalID, principalRole string) (int64, error)
	summariesFunc      func(ctx context.Context, adminID string) ([]*model.ChatSummary, error)
}

func (m *mockMessageRepository) Insert(ctx context.Context, msg *model.Message) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, msg)
	}
	msg.ID = "65f200000000000000000001"
	return nil
}

func (m *mockMessageRepository) FindByBooking(ctx context.Context, bookingID string, limit int, offset int64) ([]*model.Message, error) {
	if m.findByBookingFunc != nil {
		return m.findByBookingFunc(ctx, bookingID, limit, offset)
	}
	return []*model.Message{}, nil
}

func (m *mockMessageRepository) CountByBooking(ctx context.Context, bookingID string) (int64, error) {
	if m.countByBookingFunc != nil {
		return m.countByBookingFunc(ctx, bookingID)
	}
	return 0, nil
}

func (m *mockMessageRepository) MarkRead(ctx context.Context, bookingID, principalID string) (int64, error) {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, bookingID, principalID)
	}
	return 0, nil
}

func (m *mockMessageRepository) CountUnread(ctx context.Context, bookingID, principalID, principalRole string) (int64, error) {
	if m.countUnreadFunc != nil {
		return m.countUnreadFunc(ctx, bookingID, principalID, principalRole)
	}
	return 0, nil
}

func (m *mockMessageRepository) ActiveChatSummaries(ctx context.Context, adminID string) ([]*model.ChatSummary, error) {
	if m.summariesFunc != nil {
		return m.summariesFunc(ctx, adminID)
	}
	return []*model.ChatSummary{}, nil
}

type mockBookingSource struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Booking, error)
	nextSeqFunc  func(ctx context.Context, id string) (int64, error)
}

func (m *mockBookingSource) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return confirmedBooking(id), nil
}

func (m *mockBookingSource) NextMessageSeq(ctx context.Context, id string) (int64, error) {
	if m.nextSeqFunc != nil {
		return m.nextSeqFunc(ctx, id)
	}
	return 1, nil
}

type recordingBroadcaster struct {
	messages []*model.Message
}

func (b *recordingBroadcaster) BroadcastMessage(bookingID string, msg *model.Message) {
	b.messages = append(b.messages, msg)
}

func confirmedBooking(id string) *model.Booking {
	return &model.Booking{
		ID:       id,
		LotID:    "65f000000000000000000001",
		UserID:   "user-1",
		LotOwner: "admin-1",
		Status:   model.BookingConfirmed,
	}
}

func newTestChatService(repo *mockMessageRepository, bookings *mockBookingSource, broadcaster *recordingBroadcaster) *chatService {
	log := logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})

	return &chatService{
		repo:        repo,
		bookings:    bookings,
		broadcaster: broadcaster,
		cfg: &config.Config{
			Log:         log,
			ReadTimeout: 5 * time.Second,
		},
	}
}

func TestSend_AssignsSequenceAndBroadcasts(t *testing.T) {
	var inserted *model.Message
	repo := &mockMessageRepository{
		insertFunc: func(ctx context.Context, msg *model.Message) error {
			inserted = msg
			return nil
		},
	}
	bookings := &mockBookingSource{
		nextSeqFunc: func(ctx context.Context, id string) (int64, error) {
			return 42, nil
		},
	}
	broadcaster := &recordingBroadcaster{}
	service := newTestChatService(repo, bookings, broadcaster)

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	msg, err := service.Send(context.Background(), principal, "65f100000000000000000001", "  see you at the gate  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inserted == nil {
		t.Fatal("expected message to be persisted")
	}
	if msg.Seq != 42 {
		t.Errorf("expected seq 42, got %d", msg.Seq)
	}
	if msg.Text != "see you at the gate" {
		t.Errorf("expected trimmed text, got %q", msg.Text)
	}
	if len(msg.ReadBy) != 1 || msg.ReadBy[0] != "user-1" {
		t.Errorf("expected sender in read_by, got %v", msg.ReadBy)
	}
	if len(broadcaster.messages) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(broadcaster.messages))
	}
}

func TestSend_EmptyTextIsRejected(t *testing.T) {
	service := newTestChatService(&mockMessageRepository{}, &mockBookingSource{}, &recordingBroadcaster{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	_, err := service.Send(context.Background(), principal, "65f100000000000000000001", "   \n\t  ")
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestSend_PendingBookingIsDenied(t *testing.T) {
	bookings := &mockBookingSource{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			booking := confirmedBooking(id)
			booking.Status = model.BookingPending
			return booking, nil
		},
	}
	service := newTestChatService(&mockMessageRepository{}, bookings, &recordingBroadcaster{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	_, err := service.Send(context.Background(), principal, "65f100000000000000000001", "hello")
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestSend_UnknownBookingLooksLikeDenial(t *testing.T) {
	bookings := &mockBookingSource{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return nil, fmt.Errorf("%w: %s", bookingserrors.ErrNotFound, id)
		},
	}
	service := newTestChatService(&mockMessageRepository{}, bookings, &recordingBroadcaster{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	_, err := service.Send(context.Background(), principal, "65f100000000000000000001", "hello")

	// A missing booking must be indistinguishable from a denied one.
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatal("missing booking must not surface as not found")
	}
}

func TestCheckAccess_UnknownBookingIsNotParticipant(t *testing.T) {
	bookings := &mockBookingSource{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return nil, fmt.Errorf("%w: %s", bookingserrors.ErrNotFound, id)
		},
	}
	service := newTestChatService(&mockMessageRepository{}, bookings, &recordingBroadcaster{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	decision, err := service.CheckAccess(context.Background(), principal, "65f100000000000000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Granted {
		t.Error("expected access denied for unknown booking")
	}
	if decision.Reason != gate.ReasonNotParticipant {
		t.Errorf("expected reason %q, got %q", gate.ReasonNotParticipant, decision.Reason)
	}
}

func TestHistory_ReturnsMessagesAndCount(t *testing.T) {
	repo := &mockMessageRepository{
		findByBookingFunc: func(ctx context.Context, bookingID string, limit int, offset int64) ([]*model.Message, error) {
			return []*model.Message{
				{BookingID: bookingID, Seq: 1, Text: "hi"},
				{BookingID: bookingID, Seq: 2, Text: "hello"},
			}, nil
		},
		countByBookingFunc: func(ctx context.Context, bookingID string) (int64, error) {
			return 2, nil
		},
	}
	service := newTestChatService(repo, &mockBookingSource{}, &recordingBroadcaster{})

	principal := &model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	messages, count, err := service.History(context.Background(), principal, "65f100000000000000000001", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 || len(messages) != 2 {
		t.Errorf("expected 2 messages, got count=%d len=%d", count, len(messages))
	}
}

func TestHistory_OtherAdminIsDenied(t *testing.T) {
	service := newTestChatService(&mockMessageRepository{}, &mockBookingSource{}, &recordingBroadcaster{})

	principal := &model.Principal{ID: "admin-2", Role: model.RoleAdmin}
	_, _, err := service.History(context.Background(), principal, "65f100000000000000000001", 10, 0)
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected access denied for admin of another lot, got %v", err)
	}
}

func TestMarkRead_RecordsPrincipal(t *testing.T) {
	var markedBy string
	repo := &mockMessageRepository{
		markReadFunc: func(ctx context.Context, bookingID, principalID string) (int64, error) {
			markedBy = principalID
			return 3, nil
		},
	}
	service := newTestChatService(repo, &mockBookingSource{}, &recordingBroadcaster{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	if err := service.MarkRead(context.Background(), principal, "65f100000000000000000001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if markedBy != "user-1" {
		t.Errorf("expected mark read for user-1, got %q", markedBy)
	}
}

func TestActiveChats_RequiresAdmin(t *testing.T) {
	service := newTestChatService(&mockMessageRepository{}, &mockBookingSource{}, &recordingBroadcaster{})

	principal := &model.Principal{ID: "user-1", Role: model.RoleUser}
	_, err := service.ActiveChats(context.Background(), principal)
	if !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestActiveChats_ScopedToOwner(t *testing.T) {
	var queriedAdmin string
	repo := &mockMessageRepository{
		summariesFunc: func(ctx context.Context, adminID string) ([]*model.ChatSummary, error) {
			queriedAdmin = adminID
			return []*model.ChatSummary{{BookingID: "65f100000000000000000001"}}, nil
		},
	}
	service := newTestChatService(repo, &mockBookingSource{}, &recordingBroadcaster{})

	principal := &model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	summaries, err := service.ActiveChats(context.Background(), principal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queriedAdmin != "admin-1" {
		t.Errorf("expected summaries scoped to admin-1, got %q", queriedAdmin)
	}
	if len(summaries) != 1 {
		t.Errorf("expected 1 summary, got %d", len(summaries))
	}
}
