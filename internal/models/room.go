package models

import "time"

// RoomType enumerates the supported kinds of room.
type RoomType string

const (
	RoomTypeClassroom  RoomType = "classroom"
	RoomTypeLaboratory RoomType = "laboratory"
	RoomTypeAuditorium RoomType = "auditorium"
	RoomTypeConference RoomType = "conference"
	RoomTypeOffice     RoomType = "office"
	RoomTypeOther      RoomType = "other"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeClassroom, RoomTypeLaboratory, RoomTypeAuditorium, RoomTypeConference, RoomTypeOffice, RoomTypeOther:
		return true
	}
	return false
}

// Room is a bookable space owned by a department.
type Room struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Number       string    `db:"number" json:"number"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	RoomType     RoomType  `db:"room_type" json:"room_type"`
	Capacity     int       `db:"capacity" json:"capacity"`
	Equipment    string    `db:"equipment" json:"equipment"`
	Floor        string    `db:"floor" json:"floor"`
	Building     string    `db:"building" json:"building"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// RoomDetail is a room with its department name and QR link. CurrentSchedule holds the
// reservation occupying the room now, or else its next one today.
type RoomDetail struct {
	Room
	DepartmentName  string             `db:"department_name" json:"department_name"`
	QRCodeURL       string             `db:"-" json:"qr_code_url,omitempty"`
	CurrentSchedule *ReservationDetail `db:"-" json:"current_schedule,omitempty"`
}

// RoomFilter describes query params for listing rooms.
type RoomFilter struct {
	DepartmentID string
	RoomType     RoomType
	Search       string
	ActiveOnly   bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// RoomAvailability answers whether a room is free at a moment.
type RoomAvailability struct {
	Room            RoomDetail         `json:"room"`
	IsAvailable     bool               `json:"is_available"`
	CurrentSchedule *ReservationDetail `json:"current_schedule"`
	NextSchedule    *ReservationDetail `json:"next_schedule"`
	CheckedAt       time.Time          `json:"checked_at"`
}

// RoomSchedule is a room's reservations over a date range, grouped by ISO date.
type RoomSchedule struct {
	Room      RoomDetail                     `json:"room"`
	StartDate Date                           `json:"start_date"`
	EndDate   Date                           `json:"end_date"`
	Schedules map[string][]ReservationDetail `json:"schedules"`
}

// RoomWithUpcoming is the room detail view with the active reservations from today through a week ahead.
type RoomWithUpcoming struct {
	RoomDetail
	Upcoming []ReservationDetail `json:"upcoming_schedules"`
}
