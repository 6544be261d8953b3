package service

import (
	"context"
	"errors"
	lotserrors "smartpark/internal/lots/errors"
	"smartpark/internal/lots/repository"
	"smartpark/internal/lots/validator"
	"smartpark/pkg/config"
	apperrors "smartpark/pkg/errors"
	"smartpark/pkg/model"
	"smartpark/pkg/sanitizer"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
)

// BookingCanceller cancels every non-terminal booking for a lot. Implemented
// by the bookings repository; injected here so lot deletion can cascade
// without the lots package importing bookings.
type BookingCanceller interface {
	CancelAllForLot(ctx context.Context, lotID string) (int64, error)
}

type LotService interface {
	Create(ctx context.Context, principal *model.Principal, lot *model.Lot) error
	GetByID(ctx context.Context, id string) (*model.Lot, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Lot, int64, error)
	Update(ctx context.Context, principal *model.Principal, id string, updates *model.LotUpdate) error
	SetCapacity(ctx context.Context, principal *model.Principal, id string, capacity int) error
	Delete(ctx context.Context, principal *model.Principal, id string) error

	ReserveSlot(ctx context.Context, lotID string) error
	ReleaseSlot(ctx context.Context, lotID string) error
}

type lotService struct {
	repo      repository.LotRepository
	canceller BookingCanceller
	validator *validator.LotValidator
	cfg       *config.Config
}

func NewLotService(
	repo repository.LotRepository,
	canceller BookingCanceller,
	validator *validator.LotValidator,
	cfg *config.Config,
) LotService {
	return &lotService{
		repo:      repo,
		canceller: canceller,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *lotService) Create(ctx context.Context, principal *model.Principal, lot *model.Lot) error {
	if !principal.IsAdmin() {
		return apperrors.Forbidden("Only admins can create lots")
	}

	lot.Name = sanitizer.NormalizeName(lot.Name)
	lot.City = sanitizer.NormalizeCity(lot.City)
	lot.Owner = principal.ID
	// A new lot starts fully available.
	lot.AvailableSlots = lot.Capacity

	if err := s.validator.Validate(lot); err != nil {
		s.cfg.Log.Warn("Lot validation failed",
			"name", lot.Name,
			"owner", lot.Owner,
			"error", err,
		)
		return apperrors.Validation("Lot validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, lot); err != nil {
		s.cfg.Log.Error("Failed to create lot",
			"name", lot.Name,
			"owner", lot.Owner,
			"error", err,
		)
		return apperrors.Internal("Failed to create lot", err)
	}

	s.cfg.Log.Info("Lot created successfully",
		"id", lot.ID,
		"name", lot.Name,
		"owner", lot.Owner,
		"capacity", lot.Capacity,
	)

	return nil
}

func (s *lotService) GetByID(ctx context.Context, id string) (*model.Lot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Lot ID cannot be empty")
	}

	lot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, lotserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Lot", id)
		}
		if errors.Is(err, lotserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid lot ID format")
		}
		s.cfg.Log.Error("Failed to get lot by ID",
			"id", id,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve lot", err)
	}

	return lot, nil
}

func (s *lotService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Lot, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var lots []*model.Lot
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
		defer cancel()
		count, err = s.repo.Count(ctx)
		if err != nil {
			s.cfg.Log.Error("Failed to count lots", "error", err)
			errCount = apperrors.Internal("Failed to count lots", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
		defer cancel()
		lots, err = s.repo.FindAll(ctx, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to get all lots",
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			errFind = apperrors.Internal("Failed to retrieve lots", err)
		}
	}()
	wg.Wait()

	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return lots, count, nil
}

func (s *lotService) Update(ctx context.Context, principal *model.Principal, id string, updates *model.LotUpdate) error {
	if err := s.requireOwner(ctx, principal, id); err != nil {
		return err
	}

	if updates.Name != "" {
		updates.Name = sanitizer.NormalizeName(updates.Name)
	}
	if updates.City != "" {
		updates.City = sanitizer.NormalizeCity(updates.City)
	}
	if updates.PricePerHour != nil && *updates.PricePerHour < 0 {
		return apperrors.InvalidInput("Price per hour cannot be negative")
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		if errors.Is(err, lotserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Lot", id)
		}
		if errors.Is(err, lotserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid lot ID format")
		}
		s.cfg.Log.Error("Failed to update lot",
			"id", id,
			"error", err,
		)
		return apperrors.Internal("Failed to update lot", err)
	}

	s.cfg.Log.Info("Lot updated successfully", "id", id)

	return nil
}

func (s *lotService) SetCapacity(ctx context.Context, principal *model.Principal, id string, capacity int) error {
	if err := s.requireOwner(ctx, principal, id); err != nil {
		return err
	}
	if capacity < 1 {
		return apperrors.InvalidInput("Capacity must be at least 1")
	}

	if err := s.repo.SetCapacity(ctx, id, capacity); err != nil {
		if errors.Is(err, lotserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Lot", id)
		}
		if errors.Is(err, lotserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid lot ID format")
		}
		if errors.Is(err, lotserrors.ErrCapacityBelowActive) {
			return apperrors.Conflict("New capacity is below the number of active reservations")
		}
		s.cfg.Log.Error("Failed to set lot capacity",
			"id", id,
			"capacity", capacity,
			"error", err,
		)
		return apperrors.Internal("Failed to set lot capacity", err)
	}

	s.cfg.Log.Info("Lot capacity updated",
		"id", id,
		"capacity", capacity,
	)

	return nil
}

// Delete removes a lot and cancels every non-terminal booking attached to it.
// Both writes run inside one transaction so a deleted lot can never leave
// live bookings behind. Cancelled bookings do not release slots back: the lot
// is gone, so its counters are gone with it.
func (s *lotService) Delete(ctx context.Context, principal *model.Principal, id string) error {
	if err := s.requireOwner(ctx, principal, id); err != nil {
		return err
	}

	var cancelled int64
	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.Delete(sessCtx, id); err != nil {
			return err
		}
		var err error
		cancelled, err = s.canceller.CancelAllForLot(sessCtx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, lotserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Lot", id)
		}
		if errors.Is(err, lotserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid lot ID format")
		}
		if apperrors.IsAppError(err) {
			return err
		}
		s.cfg.Log.Error("Failed to delete lot",
			"id", id,
			"error", err,
		)
		return apperrors.Internal("Failed to delete lot", err)
	}

	s.cfg.Log.Info("Lot deleted successfully",
		"id", id,
		"bookings_cancelled", cancelled,
	)

	return nil
}

// requireOwner loads the lot and checks the caller is the admin who owns it.
// Lot mutations are restricted to the owner, not admins at large.
func (s *lotService) requireOwner(ctx context.Context, principal *model.Principal, id string) error {
	if !principal.IsAdmin() {
		return apperrors.Forbidden("Only admins can modify lots")
	}

	lot, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if lot.Owner != principal.ID {
		return apperrors.Forbidden("Only the lot's owner can modify it")
	}
	return nil
}

func (s *lotService) ReserveSlot(ctx context.Context, lotID string) error {
	if err := s.repo.ReserveSlot(ctx, lotID); err != nil {
		if errors.Is(err, lotserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Lot", lotID)
		}
		if errors.Is(err, lotserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid lot ID format")
		}
		if errors.Is(err, lotserrors.ErrNoCapacity) {
			return apperrors.Conflict("Lot has no available slots")
		}
		s.cfg.Log.Error("Failed to reserve slot",
			"lot_id", lotID,
			"error", err,
		)
		return apperrors.Internal("Failed to reserve slot", err)
	}

	return nil
}

func (s *lotService) ReleaseSlot(ctx context.Context, lotID string) error {
	released, err := s.repo.ReleaseSlot(ctx, lotID)
	if err != nil {
		if errors.Is(err, lotserrors.ErrNotFound) {
			// Releasing against a deleted lot is a no-op.
			s.cfg.Log.Warn("Release skipped, lot no longer exists", "lot_id", lotID)
			return nil
		}
		if errors.Is(err, lotserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid lot ID format")
		}
		s.cfg.Log.Error("Failed to release slot",
			"lot_id", lotID,
			"error", err,
		)
		return apperrors.Internal("Failed to release slot", err)
	}

	if !released {
		s.cfg.Log.Warn("Release clamped, lot already at full availability", "lot_id", lotID)
	}

	return nil
}
