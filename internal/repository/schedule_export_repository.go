package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-scheduler-api/internal/models"
)

const scheduleExportColumns = `id, room_id, params, status, progress, file_path, result_url, requested_by, created_at, finished_at, error_message`

// UpdateScheduleExportParams defines the mutable fields; nil leaves a column untouched.
type UpdateScheduleExportParams struct {
	Status       *models.ExportStatus
	Progress     *int
	FilePath     *string
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// ScheduleExportRepository persists schedule export jobs.
type ScheduleExportRepository struct {
	db *sqlx.DB
}

// NewScheduleExportRepository constructs the repository.
func NewScheduleExportRepository(db *sqlx.DB) *ScheduleExportRepository {
	return &ScheduleExportRepository{db: db}
}

// Create inserts a queued export job.
func (r *ScheduleExportRepository) Create(ctx context.Context, job *models.ScheduleExport) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedule_exports (` + scheduleExportColumns + `)
VALUES (:id, :room_id, :params, :status, :progress, :file_path, :result_url, :requested_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create schedule export: %w", err)
	}
	return nil
}

// GetByID returns an export job.
func (r *ScheduleExportRepository) GetByID(ctx context.Context, id string) (*models.ScheduleExport, error) {
	var job models.ScheduleExport
	if err := r.db.GetContext(ctx, &job, `SELECT `+scheduleExportColumns+` FROM schedule_exports WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// Update persists the provided changes.
func (r *ScheduleExportRepository) Update(ctx context.Context, id string, params UpdateScheduleExportParams) error {
	var set []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.FilePath != nil {
		add("file_path", *params.FilePath)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE schedule_exports SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update schedule export: %w", err)
	}
	return nil
}

// ListQueued returns queued jobs oldest first, for replay after a restart.
func (r *ScheduleExportRepository) ListQueued(ctx context.Context, limit int) ([]models.ScheduleExport, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + scheduleExportColumns + ` FROM schedule_exports WHERE status IN ('queued', 'processing') ORDER BY created_at ASC LIMIT $1`
	var jobs []models.ScheduleExport
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued schedule exports: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs that still reference a file.
func (r *ScheduleExportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ScheduleExport, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + scheduleExportColumns + ` FROM schedule_exports
WHERE status = 'finished' AND file_path IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`
	var jobs []models.ScheduleExport
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished schedule exports: %w", err)
	}
	return jobs, nil
}

// ClearFile detaches the stored file from an expired job.
func (r *ScheduleExportRepository) ClearFile(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE schedule_exports SET file_path = NULL, result_url = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("clear schedule export file: %w", err)
	}
	return nil
}
