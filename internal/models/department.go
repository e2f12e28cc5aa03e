package models

import "time"

// Department owns rooms.
type Department struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	RoomsCount  int       `db:"rooms_count" json:"rooms_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DepartmentFilter describes query params for listing departments.
type DepartmentFilter struct {
	Search   string
	Page     int
	PageSize int
}
