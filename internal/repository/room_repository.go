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

	"github.com/noah-isme/room-scheduler-api/internal/models"
)

const roomDetailSelect = `SELECT r.id, r.name, r.number, r.department_id, r.room_type, r.capacity, r.equipment, r.floor, r.building,
r.is_active, r.created_at, r.updated_at, d.name AS department_name
FROM rooms r JOIN departments d ON d.id = r.department_id`

// RoomRepository manages persistence for rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs a room repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns rooms matching filter criteria.
func (r *RoomRepository) List(ctx context.Context, filter models.RoomFilter) ([]models.RoomDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.ActiveOnly {
		conditions = append(conditions, "r.is_active")
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.RoomType != "" {
		conditions = append(conditions, fmt.Sprintf("r.room_type = $%d", len(args)+1))
		args = append(args, filter.RoomType)
	}
	if filter.Search != "" {
		pos := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(r.name) LIKE $%d OR LOWER(r.number) LIKE $%d OR LOWER(r.equipment) LIKE $%d)", pos, pos, pos))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "r.name",
		"number":     "r.number",
		"capacity":   "r.capacity",
		"department": "d.name",
		"created_at": "r.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "d.name ASC, r.number"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "DESC" {
		order = "ASC"
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", roomDetailSelect, where, column, order, size, (page-1)*size)
	var rooms []models.RoomDetail
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM rooms r JOIN departments d ON d.id = r.department_id" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}
	return rooms, total, nil
}

// FindByID returns a room joined with its department.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.RoomDetail, error) {
	var room models.RoomDetail
	if err := r.db.GetContext(ctx, &room, roomDetailSelect+" WHERE r.id = $1", id); err != nil {
		return nil, err
	}
	return &room, nil
}

// ExistsByNumber checks whether the department already has a room with that number.
func (r *RoomRepository) ExistsByNumber(ctx context.Context, departmentID, number, excludeID string) (bool, error) {
	query := "SELECT 1 FROM rooms WHERE department_id = $1 AND LOWER(number) = LOWER($2)"
	args := []interface{}{departmentID, number}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check room number: %w", err)
	}
	return true, nil
}

// Create inserts a room.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	const query = `INSERT INTO rooms (id, name, number, department_id, room_type, capacity, equipment, floor, building, is_active, created_at, updated_at)
VALUES (:id, :name, :number, :department_id, :room_type, :capacity, :equipment, :floor, :building, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// Update modifies a room.
func (r *RoomRepository) Update(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rooms SET name = :name, number = :number, department_id = :department_id, room_type = :room_type,
capacity = :capacity, equipment = :equipment, floor = :floor, building = :building, is_active = :is_active, updated_at = :updated_at
WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, room)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a room together with its reservations.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return requireAffected(res)
}
