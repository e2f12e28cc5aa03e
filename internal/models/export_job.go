package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates supported export file formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Valid reports whether f is a supported format.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatCSV || f == ExportFormatPDF
}

// ExportStatus captures background export lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "queued"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusFinished   ExportStatus = "finished"
	ExportStatusFailed     ExportStatus = "failed"
)

// ScheduleExport is a persisted room schedule export job.
type ScheduleExport struct {
	ID           string               `db:"id" json:"id"`
	RoomID       string               `db:"room_id" json:"room_id"`
	Params       ScheduleExportParams `db:"params" json:"params"`
	Status       ExportStatus         `db:"status" json:"status"`
	Progress     int                  `db:"progress" json:"progress"`
	FilePath     *string              `db:"file_path" json:"-"`
	ResultURL    *string              `db:"result_url" json:"result_url,omitempty"`
	RequestedBy  *string              `db:"requested_by" json:"requested_by,omitempty"`
	CreatedAt    time.Time            `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time           `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string              `db:"error_message" json:"error,omitempty"`
}

// ScheduleExportParams is the export request, persisted as JSONB.
type ScheduleExportParams struct {
	StartDate Date         `json:"start_date"`
	EndDate   Date         `json:"end_date"`
	Format    ExportFormat `json:"format"`
	// IncludeInactive also exports completed and cancelled reservations.
	IncludeInactive bool `json:"include_inactive,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ScheduleExportParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule export params: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the params.
func (p *ScheduleExportParams) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*p = ScheduleExportParams{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ScheduleExportParams", value)
	}
	if len(data) == 0 {
		*p = ScheduleExportParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal schedule export params: %w", err)
	}
	return nil
}
