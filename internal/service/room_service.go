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
	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
)

const upcomingDays = 7

type roomRepository interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.RoomDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.RoomDetail, error)
	ExistsByNumber(ctx context.Context, departmentID, number, excludeID string) (bool, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

type roomReservationReader interface {
	ListForRoomRange(ctx context.Context, roomID string, start, end models.Date, activeOnly bool) ([]models.ReservationDetail, error)
	ListActiveOnDate(ctx context.Context, date models.Date) ([]models.ReservationDetail, error)
}

type departmentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

type qrRenderer interface {
	PNG(roomID string) ([]byte, error)
	DataURL(roomID string) (string, error)
}

// RoomRequest is the create/replace payload for rooms.
type RoomRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Number       string `json:"number" validate:"required,max=20"`
	DepartmentID string `json:"department_id" validate:"required"`
	RoomType     string `json:"room_type" validate:"omitempty,oneof=classroom laboratory auditorium conference office other"`
	Capacity     int    `json:"capacity" validate:"required,gt=0"`
	Equipment    string `json:"equipment"`
	Floor        string `json:"floor" validate:"max=10"`
	Building     string `json:"building" validate:"max=100"`
	IsActive     *bool  `json:"is_active"`
}

// RoomService manages rooms and answers availability and schedule queries.
type RoomService struct {
	repo         roomRepository
	departments  departmentLookup
	reservations roomReservationReader
	qr           qrRenderer
	cache        *CacheService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
	scheduleTTL  time.Duration
}

// NewRoomService constructs RoomService.
func NewRoomService(repo roomRepository, departments departmentLookup, reservations roomReservationReader, qr qrRenderer, cache *CacheService, scheduleTTL time.Duration, validate *validator.Validate, logger *zap.Logger, now func() time.Time) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &RoomService{
		repo:         repo,
		departments:  departments,
		reservations: reservations,
		qr:           qr,
		cache:        cache,
		validator:    validate,
		logger:       logger,
		now:          now,
		scheduleTTL:  scheduleTTL,
	}
}

// List returns active rooms, each carrying its current or next reservation for today.
func (s *RoomService) List(ctx context.Context, filter models.RoomFilter) ([]models.RoomDetail, *models.Pagination, error) {
	filter.ActiveOnly = true
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	if len(rooms) > 0 {
		now := s.now()
		day, err := s.reservations.ListActiveOnDate(ctx, models.DateOf(now))
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedules")
		}
		decorate(day, now)
		byRoom := make(map[string][]models.ReservationDetail)
		for _, r := range day {
			byRoom[r.RoomID] = append(byRoom[r.RoomID], r)
		}
		for i := range rooms {
			rooms[i].CurrentSchedule = currentOrNext(byRoom[rooms[i].ID], now)
		}
	}
	return rooms, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a room with its QR code and its active reservations from today through today+7.
func (s *RoomService) Get(ctx context.Context, id string) (*models.RoomWithUpcoming, error) {
	room, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.attachQRCode(room)

	now := s.now()
	today := models.DateOf(now)
	upcoming, err := s.reservations.ListForRoomRange(ctx, id, today, today.AddDays(upcomingDays), true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedules")
	}
	decorate(upcoming, now)
	room.CurrentSchedule = currentOrNext(upcoming, now)
	return &models.RoomWithUpcoming{RoomDetail: *room, Upcoming: upcoming}, nil
}

// Create adds a room.
func (s *RoomService) Create(ctx context.Context, req RoomRequest) (*models.RoomDetail, error) {
	room, err := s.roomFromRequest(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	return s.find(ctx, room.ID)
}

// Update replaces a room's fields.
func (s *RoomService) Update(ctx context.Context, id string, req RoomRequest) (*models.RoomDetail, error) {
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	room, err := s.roomFromRequest(ctx, req, id)
	if err != nil {
		return nil, err
	}
	room.ID = id
	room.CreatedAt = current.CreatedAt
	if req.IsActive == nil {
		room.IsActive = current.IsActive
	}
	if err := s.repo.Update(ctx, room); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	s.cache.InvalidateRoom(ctx, id)
	return s.find(ctx, id)
}

// Delete removes a room and, through the foreign key, its reservations.
func (s *RoomService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	s.cache.InvalidateRoom(ctx, id)
	return nil
}

// Availability reports what occupies an active room right now and what is next.
func (s *RoomService) Availability(ctx context.Context, id string) (*models.RoomAvailability, error) {
	room, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
	}

	now := s.now()
	today := models.DateOf(now)
	day, err := s.reservations.ListForRoomRange(ctx, id, today, today, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedules")
	}
	decorate(day, now)

	current, next := booking.ResolveCurrentAndNext(plain(day), today, models.TimeOfDayOf(now))
	room.CurrentSchedule = currentOrNext(day, now)
	result := &models.RoomAvailability{
		Room:            *room,
		IsAvailable:     current == nil,
		CurrentSchedule: pick(day, current),
		NextSchedule:    pick(day, next),
		CheckedAt:       now,
	}
	return result, nil
}

// Schedule groups an active room's reservations of every status by date over [start, end].
// A missing start means Monday of the current week and a malformed one means today; a missing,
// malformed or inverted end means start+6.
func (s *RoomService) Schedule(ctx context.Context, id, startRaw, endRaw string) (*models.RoomSchedule, bool, error) {
	room, err := s.find(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !room.IsActive {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "room not found")
	}
	start, end := s.scheduleRange(startRaw, endRaw)

	key := roomScheduleKey(id, start, end)
	var cached models.RoomSchedule
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	rows, err := s.reservations.ListForRoomRange(ctx, id, start, end, false)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedules")
	}
	decorate(rows, s.now())

	byID := make(map[string]models.ReservationDetail, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	grouped := booking.GroupByDate(plain(rows), start, end)
	schedules := make(map[string][]models.ReservationDetail, len(grouped))
	for date, bucket := range grouped {
		details := make([]models.ReservationDetail, 0, len(bucket))
		for _, r := range bucket {
			details = append(details, byID[r.ID])
		}
		schedules[date] = details
	}

	result := &models.RoomSchedule{Room: *room, StartDate: start, EndDate: end, Schedules: schedules}
	s.cache.Set(ctx, key, result, s.scheduleTTL)
	return result, false, nil
}

// QRCode renders the PNG QR code for a room's schedule page.
func (s *RoomService) QRCode(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	png, err := s.qr.PNG(id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}
	return png, nil
}

func (s *RoomService) scheduleRange(startRaw, endRaw string) (models.Date, models.Date) {
	today := models.DateOf(s.now())
	start := today.StartOfWeek()
	if startRaw != "" {
		parsed, err := models.ParseDate(startRaw)
		if err != nil {
			parsed = today
		}
		start = parsed
	}
	end, err := models.ParseDate(endRaw)
	if err != nil || end.Before(start) {
		end = start.AddDays(6)
	}
	return start, end
}

func (s *RoomService) find(ctx context.Context, id string) (*models.RoomDetail, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	return room, nil
}

func (s *RoomService) attachQRCode(room *models.RoomDetail) {
	if s.qr == nil {
		return
	}
	uri, err := s.qr.DataURL(room.ID)
	if err != nil {
		s.logger.Warn("qr code render failed", zap.String("room_id", room.ID), zap.Error(err))
		return
	}
	room.QRCodeURL = uri
}

func (s *RoomService) roomFromRequest(ctx context.Context, req RoomRequest, excludeID string) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	exists, err := s.repo.ExistsByNumber(ctx, req.DepartmentID, req.Number, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "room number already exists in this department")
	}

	roomType := models.RoomType(req.RoomType)
	if roomType == "" {
		roomType = models.RoomTypeClassroom
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &models.Room{
		Name:         req.Name,
		Number:       req.Number,
		DepartmentID: req.DepartmentID,
		RoomType:     roomType,
		Capacity:     req.Capacity,
		Equipment:    req.Equipment,
		Floor:        req.Floor,
		Building:     req.Building,
		IsActive:     active,
	}, nil
}

func currentOrNext(day []models.ReservationDetail, now time.Time) *models.ReservationDetail {
	current, next := booking.ResolveCurrentAndNext(plain(day), models.DateOf(now), models.TimeOfDayOf(now))
	if current != nil {
		return pick(day, current)
	}
	return pick(day, next)
}

func plain(details []models.ReservationDetail) []models.Reservation {
	out := make([]models.Reservation, len(details))
	for i := range details {
		out[i] = details[i].Reservation
	}
	return out
}

func pick(details []models.ReservationDetail, r *models.Reservation) *models.ReservationDetail {
	if r == nil {
		return nil
	}
	for i := range details {
		if details[i].ID == r.ID {
			d := details[i]
			return &d
		}
	}
	return nil
}
