package service

import (
	"context"
	"errors"
	bookingserrors "smartpark/internal/bookings/errors"
	"smartpark/internal/chat/gate"
	"smartpark/internal/chat/repository"
	"smartpark/pkg/config"
	apperrors "smartpark/pkg/errors"
	"smartpark/pkg/model"
	"smartpark/pkg/sanitizer"
)

// BookingSource is the slice of the bookings repository the chat flow needs:
// loading the booking for gate checks and drawing message sequence numbers.
type BookingSource interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	NextMessageSeq(ctx context.Context, id string) (int64, error)
}

// Broadcaster fans a persisted message out to the connections currently
// joined to the booking's room. Implemented by the room router.
type Broadcaster interface {
	BroadcastMessage(bookingID string, msg *model.Message)
}

type ChatService interface {
	History(ctx context.Context, principal *model.Principal, bookingID string, limit int, offset int64) ([]*model.Message, int64, error)
	Send(ctx context.Context, principal *model.Principal, bookingID, text string) (*model.Message, error)
	MarkRead(ctx context.Context, principal *model.Principal, bookingID string) error
	UnreadCount(ctx context.Context, principal *model.Principal, bookingID string) (int64, error)
	ActiveChats(ctx context.Context, principal *model.Principal) ([]*model.ChatSummary, error)

	// CheckAccess runs the gate for a booking. The error is non-nil only for
	// storage failures; missing bookings surface as a denial so callers
	// cannot probe for booking existence.
	CheckAccess(ctx context.Context, principal *model.Principal, bookingID string) (gate.Decision, error)
}

type chatService struct {
	repo        repository.MessageRepository
	bookings    BookingSource
	broadcaster Broadcaster
	cfg         *config.Config
}

func NewChatService(
	repo repository.MessageRepository,
	bookings BookingSource,
	broadcaster Broadcaster,
	cfg *config.Config,
) ChatService {
	return &chatService{
		repo:        repo,
		bookings:    bookings,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

func (s *chatService) CheckAccess(ctx context.Context, principal *model.Principal, bookingID string) (gate.Decision, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
			return gate.Decision{Granted: false, Reason: gate.ReasonNotParticipant}, nil
		}
		s.cfg.Log.Error("Failed to load booking for chat access check",
			"booking_id", bookingID,
			"error", err,
		)
		return gate.Decision{}, apperrors.Internal("Failed to check chat access", err)
	}

	return gate.CanAccess(principal, booking), nil
}

func (s *chatService) History(ctx context.Context, principal *model.Principal, bookingID string, limit int, offset int64) ([]*model.Message, int64, error) {
	if err := s.authorize(ctx, principal, bookingID); err != nil {
		return nil, 0, err
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	messages, err := s.repo.FindByBooking(ctx, bookingID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to load chat history",
			"booking_id", bookingID,
			"error", err,
		)
		return nil, 0, apperrors.Internal("Failed to load chat history", err)
	}

	count, err := s.repo.CountByBooking(ctx, bookingID)
	if err != nil {
		s.cfg.Log.Error("Failed to count chat messages",
			"booking_id", bookingID,
			"error", err,
		)
		return nil, 0, apperrors.Internal("Failed to load chat history", err)
	}

	return messages, count, nil
}

// Send persists a message and fans it out to the booking's room. The gate
// runs on every send; the sequence number comes from an atomic counter on the
// booking, so messages in one booking carry a strict total order.
func (s *chatService) Send(ctx context.Context, principal *model.Principal, bookingID, text string) (*model.Message, error) {
	if err := s.authorize(ctx, principal, bookingID); err != nil {
		return nil, err
	}

	text = sanitizer.NormalizeMessageText(text)
	if text == "" {
		return nil, apperrors.InvalidInput("Message text cannot be empty")
	}

	seq, err := s.bookings.NextMessageSeq(ctx, bookingID)
	if err != nil {
		s.cfg.Log.Error("Failed to allocate message sequence",
			"booking_id", bookingID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to send message", err)
	}

	msg := &model.Message{
		BookingID:  bookingID,
		Seq:        seq,
		SenderID:   principal.ID,
		SenderRole: principal.Role,
		Text:       text,
		ReadBy:     []string{principal.ID},
	}

	if err := s.repo.Insert(ctx, msg); err != nil {
		s.cfg.Log.Error("Failed to persist message",
			"booking_id", bookingID,
			"seq", seq,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to send message", err)
	}

	s.broadcaster.BroadcastMessage(bookingID, msg)

	s.cfg.Log.Debug("Message sent",
		"booking_id", bookingID,
		"seq", seq,
		"sender_id", principal.ID,
	)

	return msg, nil
}

func (s *chatService) MarkRead(ctx context.Context, principal *model.Principal, bookingID string) error {
	if err := s.authorize(ctx, principal, bookingID); err != nil {
		return err
	}

	if _, err := s.repo.MarkRead(ctx, bookingID, principal.ID); err != nil {
		s.cfg.Log.Error("Failed to mark messages read",
			"booking_id", bookingID,
			"principal_id", principal.ID,
			"error", err,
		)
		return apperrors.Internal("Failed to mark messages read", err)
	}

	return nil
}

func (s *chatService) UnreadCount(ctx context.Context, principal *model.Principal, bookingID string) (int64, error) {
	if err := s.authorize(ctx, principal, bookingID); err != nil {
		return 0, err
	}

	count, err := s.repo.CountUnread(ctx, bookingID, principal.ID, principal.Role)
	if err != nil {
		s.cfg.Log.Error("Failed to count unread messages",
			"booking_id", bookingID,
			"principal_id", principal.ID,
			"error", err,
		)
		return 0, apperrors.Internal("Failed to count unread messages", err)
	}

	return count, nil
}

func (s *chatService) ActiveChats(ctx context.Context, principal *model.Principal) ([]*model.ChatSummary, error) {
	if !principal.IsAdmin() {
		return nil, apperrors.Forbidden("Only admins can list active chats")
	}

	summaries, err := s.repo.ActiveChatSummaries(ctx, principal.ID)
	if err != nil {
		s.cfg.Log.Error("Failed to load active chats",
			"admin_id", principal.ID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to load active chats", err)
	}

	return summaries, nil
}

// authorize collapses every denial, including unknown bookings, into the
// same generic error so HTTP responses never reveal booking existence.
func (s *chatService) authorize(ctx context.Context, principal *model.Principal, bookingID string) error {
	decision, err := s.CheckAccess(ctx, principal, bookingID)
	if err != nil {
		return err
	}
	if !decision.Granted {
		s.cfg.Log.Debug("Chat access denied",
			"booking_id", bookingID,
			"principal_id", principal.ID,
			"reason", decision.Reason,
		)
		return apperrors.AccessDenied()
	}
	return nil
}
