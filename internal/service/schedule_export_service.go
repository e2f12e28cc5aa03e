package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/room-scheduler-api/internal/booking"
	"github.com/noah-isme/room-scheduler-api/internal/dto"
	"github.com/noah-isme/room-scheduler-api/internal/models"
	"github.com/noah-isme/room-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
	"github.com/noah-isme/room-scheduler-api/pkg/export"
	"github.com/noah-isme/room-scheduler-api/pkg/jobs"
)

const (
	exportJobKind  = "schedule_export"
	maxExportRange = 92
)

type scheduleExportStore interface {
	Create(ctx context.Context, job *models.ScheduleExport) error
	GetByID(ctx context.Context, id string) (*models.ScheduleExport, error)
	Update(ctx context.Context, id string, params repository.UpdateScheduleExportParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ScheduleExport, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ScheduleExport, error)
	ClearFile(ctx context.Context, id string) error
}

type roomFinder interface {
	FindByID(ctx context.Context, id string) (*models.RoomDetail, error)
}

type jobDispatcher interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type urlSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (ownerID, relPath string, expiresAt time.Time, err error)
}

type tableRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
}

// ScheduleExportConfig tunes export behaviour.
type ScheduleExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ScheduleDownload is an opened export file ready to stream.
type ScheduleDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ScheduleExportService manages the lifecycle of room schedule exports.
type ScheduleExportService struct {
	repo      scheduleExportStore
	rooms     roomFinder
	queue     jobDispatcher
	storage   fileStorage
	signer    urlSigner
	renderers map[models.ExportFormat]tableRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScheduleExportConfig
	now       func() time.Time
}

// NewScheduleExportService constructs the service. Nil renderers get the CSV and PDF defaults.
func NewScheduleExportService(repo scheduleExportStore, rooms roomFinder, queue jobDispatcher, storage fileStorage, signer urlSigner, cfg ScheduleExportConfig, validate *validator.Validate, logger *zap.Logger, now func() time.Time) *ScheduleExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ScheduleExportService{
		repo:    repo,
		rooms:   rooms,
		queue:   queue,
		storage: storage,
		signer:  signer,
		renderers: map[models.ExportFormat]tableRenderer{
			models.ExportFormatCSV: export.NewCSVExporter(),
			models.ExportFormatPDF: &export.PDFExporter{Widths: map[string]float64{"Title": 3, "Instructor": 2, "Description": 3}},
		},
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       now,
	}
}

// Request validates the range, persists a queued job and hands it to the worker queue.
func (s *ScheduleExportService) Request(ctx context.Context, roomID string, req dto.ScheduleExportRequest, actorID string) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if _, err := s.rooms.FindByID(ctx, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}

	start, end, err := s.exportRange(req)
	if err != nil {
		return nil, err
	}
	job := &models.ScheduleExport{
		RoomID: roomID,
		Params: models.ScheduleExportParams{
			StartDate:       start,
			EndDate:         end,
			Format:          req.Format,
			IncludeInactive: req.IncludeInactive,
		},
		Status: models.ExportStatusQueued,
	}
	if actorID != "" {
		job.RequestedBy = &actorID
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(ctx, jobs.Job{ID: job.ID, Kind: exportJobKind}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "export queue unavailable")
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// Status exposes job progress.
func (s *ScheduleExportService) Status(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.ExportStatusResponse{
		ID:        job.ID,
		RoomID:    job.RoomID,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the signed token and opens the stored file.
func (s *ScheduleExportService) ResolveDownload(ctx context.Context, token string) (*ScheduleDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportStatusFinished || job.FilePath == nil || *job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not available")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	contentType := "application/octet-stream"
	if r, ok := s.renderers[job.Params.Format]; ok {
		contentType = r.ContentType()
	}
	return &ScheduleDownload{
		File:        file,
		Filename:    path.Base(relPath),
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}, nil
}

// RecoverPendingJobs requeues jobs left queued or half-processed by a previous process.
func (s *ScheduleExportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(ctx, jobs.Job{ID: job.ID, Kind: exportJobKind}); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recovered export jobs", zap.Int("count", len(pending)))
	}
}

// StartCleanup purges expired export files every CleanupInterval until ctx ends.
func (s *ScheduleExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes files of jobs finished before the result TTL and detaches them.
func (s *ScheduleExportService) CleanupExpired(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	const batch = 100
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
		if err != nil {
			s.logger.Warn("export cleanup list failed", zap.Error(err))
			return
		}
		for _, job := range expired {
			if job.FilePath != nil {
				if err := s.storage.Delete(*job.FilePath); err != nil {
					s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
					continue
				}
			}
			if err := s.repo.ClearFile(ctx, job.ID); err != nil {
				s.logger.Warn("export cleanup detach failed", zap.String("job_id", job.ID), zap.Error(err))
				return
			}
		}
		if len(expired) < batch {
			break
		}
	}
	if removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export storage sweep failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("export storage sweep", zap.Int("removed", len(removed)))
	}
}

func (s *ScheduleExportService) exportRange(req dto.ScheduleExportRequest) (models.Date, models.Date, error) {
	start := models.DateOf(s.now()).StartOfWeek()
	if req.StartDate != "" {
		parsed, err := parseDateField("start_date", req.StartDate)
		if err != nil {
			return models.Date{}, models.Date{}, err
		}
		start = parsed
	}
	end := start.AddDays(6)
	if req.EndDate != "" {
		parsed, err := parseDateField("end_date", req.EndDate)
		if err != nil {
			return models.Date{}, models.Date{}, err
		}
		end = parsed
	}
	if end.Before(start) {
		return models.Date{}, models.Date{}, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	if end.Sub(start.Time) > maxExportRange*24*time.Hour {
		return models.Date{}, models.Date{}, appErrors.Clone(appErrors.ErrValidation, "export range is limited to "+strconv.Itoa(maxExportRange)+" days")
	}
	return start, end, nil
}

func (s *ScheduleExportService) load(ctx context.Context, id string) (*models.ScheduleExport, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func (s *ScheduleExportService) markFailed(ctx context.Context, id, msg string) {
	failed := models.ExportStatusFailed
	progress := 100
	now := s.now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateScheduleExportParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export failed", zap.String("job_id", id), zap.Error(err))
	}
}

// ScheduleExportWorker renders queued exports.
type ScheduleExportWorker struct {
	svc          *ScheduleExportService
	reservations roomReservationReader
	metrics      *MetricsService
}

// NewScheduleExportWorker constructs a worker bound to the service's storage and renderers.
func NewScheduleExportWorker(svc *ScheduleExportService, reservations roomReservationReader, metrics *MetricsService) *ScheduleExportWorker {
	return &ScheduleExportWorker{svc: svc, reservations: reservations, metrics: metrics}
}

// Handle processes one queue job. A returned error makes the queue retry it.
func (w *ScheduleExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	started := time.Now()
	record, err := w.svc.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// job row vanished; nothing to retry
			return nil
		}
		return err
	}
	if record.Status == models.ExportStatusFinished || record.Status == models.ExportStatusFailed {
		return nil
	}

	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.svc.repo.Update(ctx, job.ID, repository.UpdateScheduleExportParams{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	relPath, token, err := w.render(ctx, record)
	if err != nil {
		msg := err.Error()
		queued := models.ExportStatusQueued
		reset := 0
		if updateErr := w.svc.repo.Update(ctx, job.ID, repository.UpdateScheduleExportParams{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.svc.logger.Warn("failed to requeue export", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := w.svc.now().UTC()
	url := fmt.Sprintf("%s/exports/download/%s", strings.TrimRight(w.svc.cfg.APIPrefix, "/"), token)
	noError := ""
	if err := w.svc.repo.Update(ctx, job.ID, repository.UpdateScheduleExportParams{
		Status:       &finished,
		Progress:     &progress,
		FilePath:     &relPath,
		ResultURL:    &url,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		return err
	}
	w.metrics.RecordExport("finished", time.Since(started))
	return nil
}

// Exhausted marks a job failed once the queue gives up on it.
func (w *ScheduleExportWorker) Exhausted(job jobs.Job, err error) {
	w.metrics.RecordExport("failed", 0)
	w.svc.markFailed(context.Background(), job.ID, err.Error())
}

func (w *ScheduleExportWorker) render(ctx context.Context, record *models.ScheduleExport) (relPath, token string, err error) {
	renderer, ok := w.svc.renderers[record.Params.Format]
	if !ok {
		return "", "", fmt.Errorf("unsupported format %q", record.Params.Format)
	}
	room, err := w.svc.rooms.FindByID(ctx, record.RoomID)
	if err != nil {
		return "", "", fmt.Errorf("load room: %w", err)
	}
	rows, err := w.reservations.ListForRoomRange(ctx, record.RoomID, record.Params.StartDate, record.Params.EndDate, !record.Params.IncludeInactive)
	if err != nil {
		return "", "", fmt.Errorf("load reservations: %w", err)
	}

	title := fmt.Sprintf("%s (%s) schedule %s to %s", room.Name, room.Number, record.Params.StartDate, record.Params.EndDate)
	payload, err := renderer.Render(scheduleDataset(rows), title)
	if err != nil {
		return "", "", err
	}
	filename := fmt.Sprintf("rooms/%s/schedule_%s_%s_%s.%s",
		record.RoomID,
		record.Params.StartDate.Format("20060102"),
		record.Params.EndDate.Format("20060102"),
		record.ID,
		record.Params.Format,
	)
	relPath, err = w.svc.storage.Save(filename, payload)
	if err != nil {
		return "", "", err
	}
	token, _, err = w.svc.signer.Generate(record.ID, relPath)
	if err != nil {
		return "", "", err
	}
	return relPath, token, nil
}

var scheduleHeaders = []string{"Date", "Start", "End", "Minutes", "Title", "Course", "Instructor", "Status", "Description"}

func scheduleDataset(rows []models.ReservationDetail) export.Dataset {
	data := export.Dataset{Headers: scheduleHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, r := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Date":        r.Date.String(),
			"Start":       r.StartTime.Short(),
			"End":         r.EndTime.Short(),
			"Minutes":     strconv.Itoa(booking.DurationMinutes(r.Reservation)),
			"Title":       r.Title,
			"Course":      r.CourseCode,
			"Instructor":  r.Instructor,
			"Status":      string(r.Status),
			"Description": r.Description,
		})
	}
	return data
}
