package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/room-scheduler-api/internal/booking"
	"github.com/noah-isme/room-scheduler-api/internal/models"
	"github.com/noah-isme/room-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
)

type reservationRepository interface {
	List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ReservationDetail, error)
	ListActiveOnDate(ctx context.Context, date models.Date) ([]models.ReservationDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.ReservationStatus) error
	UpdateStatusBulk(ctx context.Context, ids []string, status models.ReservationStatus) ([]string, error)
	Delete(ctx context.Context, id string) error
	RunLocked(ctx context.Context, roomID string, fn func(repository.ReservationStore) error) error
}

// ReservationRequest is the full create/replace payload.
type ReservationRequest struct {
	RoomID      string `json:"room_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Instructor  string `json:"instructor" validate:"max=100"`
	CourseCode  string `json:"course_code" validate:"max=20"`
	Date        string `json:"date" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	Status      string `json:"status"`
}

// PatchReservationRequest carries a partial update; nil fields keep their value.
type PatchReservationRequest struct {
	RoomID      *string `json:"room_id" validate:"omitempty,min=1"`
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	Instructor  *string `json:"instructor" validate:"omitempty,max=100"`
	CourseCode  *string `json:"course_code" validate:"omitempty,max=20"`
	Date        *string `json:"date"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Status      *string `json:"status"`
}

// StatusUpdateRequest changes only the status.
type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

// BulkStatusRequest changes the status of several reservations at once.
type BulkStatusRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
	Status string   `json:"status" validate:"required"`
}

// BulkStatusResult reports which reservations were updated.
type BulkStatusResult struct {
	Status  models.ReservationStatus `json:"status"`
	Updated []string                 `json:"updated"`
	Missing []string                 `json:"missing"`
}

// ReservationService coordinates reservation writes through the booking ledger.
type ReservationService struct {
	repo      reservationRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReservationService constructs ReservationService. now supplies the local wall clock.
func NewReservationService(repo reservationRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, now func() time.Time) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &ReservationService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, now: now}
}

// List returns reservations with pagination metadata.
func (s *ReservationService) List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, *models.Pagination, error) {
	reservations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	decorate(reservations, s.now())
	return reservations, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns one reservation.
func (s *ReservationService) Get(ctx context.Context, id string) (*models.ReservationDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	decorateOne(detail, s.now())
	return detail, nil
}

// Today returns every active reservation for the current local date.
func (s *ReservationService) Today(ctx context.Context) ([]models.ReservationDetail, error) {
	now := s.now()
	reservations, err := s.repo.ListActiveOnDate(ctx, models.DateOf(now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's schedules")
	}
	decorate(reservations, now)
	return reservations, nil
}

// Create validates a proposal against the room's timeline and stores it.
func (s *ReservationService) Create(ctx context.Context, req ReservationRequest, actorID string) (*models.ReservationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	reservation, err := reservationFromRequest(req)
	if err != nil {
		return nil, s.rejection(err)
	}
	if actorID != "" {
		reservation.CreatedBy = &actorID
	}
	if err := s.write(ctx, reservation, "", true, func(store repository.ReservationStore) error {
		return store.Create(ctx, reservation)
	}); err != nil {
		return nil, err
	}
	s.metrics.RecordBooking("create")
	s.cache.InvalidateRoom(ctx, reservation.RoomID)
	return s.Get(ctx, reservation.ID)
}

// Update replaces every editable field of a reservation.
func (s *ReservationService) Update(ctx context.Context, id string, req ReservationRequest) (*models.ReservationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := reservationFromRequest(req)
	if err != nil {
		return nil, s.rejection(err)
	}
	next.ID = current.ID
	next.CreatedBy = current.CreatedBy
	next.CreatedAt = current.CreatedAt
	return s.replace(ctx, current.Reservation, next, true)
}

// Patch applies a partial update. The ledger re-validates when the room, date, times or status change.
func (s *ReservationService) Patch(ctx context.Context, id string, req PatchReservationRequest) (*models.ReservationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Reservation
	if req.Title != nil {
		next.Title = *req.Title
	}
	if req.Description != nil {
		next.Description = *req.Description
	}
	if req.Instructor != nil {
		next.Instructor = *req.Instructor
	}
	if req.CourseCode != nil {
		next.CourseCode = *req.CourseCode
	}

	touched := false
	if req.RoomID != nil {
		next.RoomID = *req.RoomID
		touched = true
	}
	if req.Date != nil {
		if next.Date, err = parseDateField("date", *req.Date); err != nil {
			return nil, err
		}
		touched = true
	}
	if req.StartTime != nil {
		if next.StartTime, err = parseTimeField("start_time", *req.StartTime); err != nil {
			return nil, err
		}
		touched = true
	}
	if req.EndTime != nil {
		if next.EndTime, err = parseTimeField("end_time", *req.EndTime); err != nil {
			return nil, err
		}
		touched = true
	}
	if req.Status != nil {
		// checked by the ledger after the interval
		next.Status = models.ReservationStatus(*req.Status)
		touched = true
	}
	return s.replace(ctx, current.Reservation, &next, touched)
}

// UpdateStatus writes a new status without re-validating the interval; releasing a slot always succeeds.
func (s *ReservationService) UpdateStatus(ctx context.Context, id string, req StatusUpdateRequest) (*models.ReservationDetail, error) {
	status, err := booking.ParseStatus(req.Status)
	if err != nil {
		s.metrics.RecordRejection("status")
		return nil, invalidStatusError()
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule status")
	}
	s.metrics.RecordStatusChange(string(status), 1)
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateRoom(ctx, detail.RoomID)
	return detail, nil
}

// BulkUpdateStatus applies one status to many reservations.
func (s *ReservationService) BulkUpdateStatus(ctx context.Context, req BulkStatusRequest) (*BulkStatusResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk status payload")
	}
	status, err := booking.ParseStatus(req.Status)
	if err != nil {
		s.metrics.RecordRejection("status")
		return nil, invalidStatusError()
	}
	ids := dedupe(req.IDs)
	updated, err := s.repo.UpdateStatusBulk(ctx, ids, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule statuses")
	}
	s.metrics.RecordStatusChange(string(status), len(updated))
	if len(updated) > 0 {
		s.cache.Invalidate(ctx, "room:*:schedule:*")
	}

	seen := make(map[string]bool, len(updated))
	for _, id := range updated {
		seen[id] = true
	}
	result := &BulkStatusResult{Status: status, Updated: make([]string, 0, len(updated)), Missing: []string{}}
	for _, id := range ids {
		if seen[id] {
			result.Updated = append(result.Updated, id)
		} else {
			result.Missing = append(result.Missing, id)
		}
	}
	return result, nil
}

// Delete removes a reservation.
func (s *ReservationService) Delete(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	s.cache.InvalidateRoom(ctx, current.RoomID)
	return nil
}

func (s *ReservationService) replace(ctx context.Context, previous models.Reservation, next *models.Reservation, validate bool) (*models.ReservationDetail, error) {
	if err := s.write(ctx, next, next.ID, validate, func(store repository.ReservationStore) error {
		return store.Update(ctx, next)
	}); err != nil {
		return nil, err
	}
	s.metrics.RecordBooking("update")
	s.cache.InvalidateRoom(ctx, next.RoomID)
	if previous.RoomID != next.RoomID {
		s.cache.InvalidateRoom(ctx, previous.RoomID)
	}
	return s.Get(ctx, next.ID)
}

// write runs persist under the room lock, checking the proposal against the locked day first when validate is set.
func (s *ReservationService) write(ctx context.Context, r *models.Reservation, excludeID string, validate bool, persist func(repository.ReservationStore) error) error {
	proposal := booking.Proposal{
		RoomID:    r.RoomID,
		Date:      r.Date,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Status:    r.Status,
		ExcludeID: excludeID,
	}
	if validate {
		// interval and status need no rows, so reject them before taking the lock
		if err := booking.ValidateProposal(proposal, nil); err != nil {
			return s.rejection(err)
		}
	}

	err := s.repo.RunLocked(ctx, r.RoomID, func(store repository.ReservationStore) error {
		if validate {
			existing, err := store.ListActiveForRoomDate(ctx, r.RoomID, r.Date)
			if err != nil {
				return err
			}
			if err := booking.ValidateProposal(proposal, existing); err != nil {
				return err
			}
		}
		return persist(store)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "room not found")
	}
	if _, _, ok := translateBookingError(err); ok {
		return s.rejection(err)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save schedule")
}

func (s *ReservationService) rejection(err error) error {
	apiErr, reason, ok := translateBookingError(err)
	if !ok {
		return err
	}
	s.metrics.RecordRejection(reason)
	s.logger.Debug("schedule proposal rejected", zap.String("reason", reason), zap.String("code", apiErr.Code))
	return apiErr
}

func reservationFromRequest(req ReservationRequest) (*models.Reservation, error) {
	date, err := parseDateField("date", req.Date)
	if err != nil {
		return nil, err
	}
	start, err := parseTimeField("start_time", req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseTimeField("end_time", req.EndTime)
	if err != nil {
		return nil, err
	}
	status := models.ReservationStatus(req.Status)
	if status == "" {
		status = models.StatusScheduled
	}
	return &models.Reservation{
		RoomID:      req.RoomID,
		Title:       req.Title,
		Description: req.Description,
		Instructor:  req.Instructor,
		CourseCode:  req.CourseCode,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Status:      status,
	}, nil
}

func parseDateField(field, raw string) (models.Date, error) {
	date, err := models.ParseDate(raw)
	if err != nil {
		return models.Date{}, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, err.Error()), map[string]string{"field": field})
	}
	return date, nil
}

func parseTimeField(field, raw string) (models.TimeOfDay, error) {
	t, err := models.ParseTimeOfDay(raw)
	if err != nil {
		return 0, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, err.Error()), map[string]string{"field": field})
	}
	return t, nil
}

// decorate fills the derived duration and is_current fields.
func decorate(reservations []models.ReservationDetail, now time.Time) {
	for i := range reservations {
		decorateOne(&reservations[i], now)
	}
}

func decorateOne(r *models.ReservationDetail, now time.Time) {
	r.DurationMinutes = booking.DurationMinutes(r.Reservation)
	r.IsCurrent = booking.IsCurrent(r.Reservation, now)
}

func paginate(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
