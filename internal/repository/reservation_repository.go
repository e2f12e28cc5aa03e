package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/room-scheduler-api/internal/models"
)

const reservationColumns = `s.id, s.room_id, s.title, s.description, s.instructor, s.course_code, s.date, s.start_time, s.end_time,
s.status, s.created_by, s.created_at, s.updated_at`

const reservationDetailSelect = `SELECT ` + reservationColumns + `, r.name AS room_name, r.number AS room_number, d.name AS department_name
FROM schedules s JOIN rooms r ON r.id = s.room_id JOIN departments d ON d.id = r.department_id`

// ReservationStore is the view of the reservations table available inside a room lock.
type ReservationStore interface {
	ListActiveForRoomDate(ctx context.Context, roomID string, date models.Date) ([]models.Reservation, error)
	Create(ctx context.Context, reservation *models.Reservation) error
	Update(ctx context.Context, reservation *models.Reservation) error
}

// ReservationRepository manages persistence for reservations (the schedules table).
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository constructs a reservation repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// List returns reservations matching the filter ordered by date then start time.
func (r *ReservationRepository) List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("s.room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("s.date = $%d", len(args)+1))
		args = append(args, *filter.Date)
	}
	if filter.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("s.date >= $%d", len(args)+1))
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("s.date <= $%d", len(args)+1))
		args = append(args, *filter.EndDate)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY s.date ASC, s.start_time ASC, s.id ASC LIMIT %d OFFSET %d", reservationDetailSelect, where, size, (page-1)*size)
	var reservations []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &reservations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM schedules s"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}
	return reservations, total, nil
}

// FindByID returns a reservation joined with its room.
func (r *ReservationRepository) FindByID(ctx context.Context, id string) (*models.ReservationDetail, error) {
	var reservation models.ReservationDetail
	if err := r.db.GetContext(ctx, &reservation, reservationDetailSelect+" WHERE s.id = $1", id); err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ListForRoomRange returns a room's reservations with dates in [start, end].
func (r *ReservationRepository) ListForRoomRange(ctx context.Context, roomID string, start, end models.Date, activeOnly bool) ([]models.ReservationDetail, error) {
	query := reservationDetailSelect + " WHERE s.room_id = $1 AND s.date BETWEEN $2 AND $3"
	if activeOnly {
		query += " AND s.status IN ('scheduled', 'in_progress')"
	}
	query += " ORDER BY s.date ASC, s.start_time ASC, s.id ASC"
	var reservations []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &reservations, query, roomID, start, end); err != nil {
		return nil, fmt.Errorf("list room reservations: %w", err)
	}
	return reservations, nil
}

// ListActiveOnDate returns every active reservation on the date across rooms.
func (r *ReservationRepository) ListActiveOnDate(ctx context.Context, date models.Date) ([]models.ReservationDetail, error) {
	query := reservationDetailSelect + " WHERE s.date = $1 AND s.status IN ('scheduled', 'in_progress') ORDER BY s.start_time ASC, r.number ASC"
	var reservations []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &reservations, query, date); err != nil {
		return nil, fmt.Errorf("list reservations on date: %w", err)
	}
	return reservations, nil
}

// UpdateStatus sets only the status column.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id string, status models.ReservationStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE schedules SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	return requireAffected(res)
}

// UpdateStatusBulk sets the status of every listed reservation and returns the ids that existed.
func (r *ReservationRepository) UpdateStatusBulk(ctx context.Context, ids []string, status models.ReservationStatus) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `UPDATE schedules SET status = $1, updated_at = $2 WHERE id = ANY($3) RETURNING id`
	var updated []string
	if err := r.db.SelectContext(ctx, &updated, query, status, time.Now().UTC(), pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("bulk update reservation status: %w", err)
	}
	return updated, nil
}

// Delete removes a reservation.
func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return requireAffected(res)
}

// RunLocked runs fn in a transaction holding the room row lock, so concurrent
// writers for the same room serialise. sql.ErrNoRows means the room does not exist.
func (r *ReservationRepository) RunLocked(ctx context.Context, roomID string, fn func(ReservationStore) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reservation tx: %w", err)
	}
	var locked string
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, roomID); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock room: %w", err)
	}
	if err := fn(&lockedReservations{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation tx: %w", err)
	}
	return nil
}

type lockedReservations struct {
	tx *sqlx.Tx
}

func (l *lockedReservations) ListActiveForRoomDate(ctx context.Context, roomID string, date models.Date) ([]models.Reservation, error) {
	query := "SELECT " + reservationColumns + ` FROM schedules s
WHERE s.room_id = $1 AND s.date = $2 AND s.status IN ('scheduled', 'in_progress') ORDER BY s.start_time ASC, s.id ASC`
	var reservations []models.Reservation
	if err := l.tx.SelectContext(ctx, &reservations, query, roomID, date); err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	return reservations, nil
}

func (l *lockedReservations) Create(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = now
	}
	reservation.UpdatedAt = now
	const query = `INSERT INTO schedules (id, room_id, title, description, instructor, course_code, date, start_time, end_time, status, created_by, created_at, updated_at)
VALUES (:id, :room_id, :title, :description, :instructor, :course_code, :date, :start_time, :end_time, :status, :created_by, :created_at, :updated_at)`
	if _, err := l.tx.NamedExecContext(ctx, query, reservation); err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (l *lockedReservations) Update(ctx context.Context, reservation *models.Reservation) error {
	reservation.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET room_id = :room_id, title = :title, description = :description, instructor = :instructor,
course_code = :course_code, date = :date, start_time = :start_time, end_time = :end_time, status = :status, updated_at = :updated_at
WHERE id = :id`
	res, err := l.tx.NamedExecContext(ctx, query, reservation)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	return requireAffected(res)
}
