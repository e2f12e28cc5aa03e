package dto

import "github.com/noah-isme/room-scheduler-api/internal/models"

// ScheduleExportRequest captures POST /rooms/:id/schedule/exports.
type ScheduleExportRequest struct {
	StartDate       string              `json:"start_date"`
	EndDate         string              `json:"end_date"`
	Format          models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	IncludeInactive bool                `json:"include_inactive"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	RoomID    string              `json:"room_id"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
