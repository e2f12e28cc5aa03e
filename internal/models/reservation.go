package models

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusScheduled  ReservationStatus = "scheduled"
	StatusInProgress ReservationStatus = "in_progress"
	StatusCompleted  ReservationStatus = "completed"
	StatusCancelled  ReservationStatus = "cancelled"
)

// ReservationStatuses lists every accepted status in lifecycle order.
var ReservationStatuses = []ReservationStatus{StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled}

// Valid reports whether s is one of the enumerated statuses.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the status still occupies the room's timeline.
func (s ReservationStatus) Active() bool {
	return s == StatusScheduled || s == StatusInProgress
}

// Reservation is a time-boxed occupancy of a room on one date. Persisted in the schedules table.
type Reservation struct {
	ID          string            `db:"id" json:"id"`
	RoomID      string            `db:"room_id" json:"room_id"`
	Title       string            `db:"title" json:"title"`
	Description string            `db:"description" json:"description"`
	Instructor  string            `db:"instructor" json:"instructor"`
	CourseCode  string            `db:"course_code" json:"course_code"`
	Date        Date              `db:"date" json:"date"`
	StartTime   TimeOfDay         `db:"start_time" json:"start_time"`
	EndTime     TimeOfDay         `db:"end_time" json:"end_time"`
	Status      ReservationStatus `db:"status" json:"status"`
	CreatedBy   *string           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// ReservationDetail is a reservation joined with its room and the derived fields.
type ReservationDetail struct {
	Reservation
	RoomName        string `db:"room_name" json:"room_name"`
	RoomNumber      string `db:"room_number" json:"room_number"`
	DepartmentName  string `db:"department_name" json:"department_name"`
	DurationMinutes int    `db:"-" json:"duration_minutes"`
	IsCurrent       bool   `db:"-" json:"is_current"`
}

// ReservationFilter describes query params for listing reservations.
type ReservationFilter struct {
	RoomID    string
	Date      *Date
	StartDate *Date
	EndDate   *Date
	Status    ReservationStatus
	Page      int
	PageSize  int
}
