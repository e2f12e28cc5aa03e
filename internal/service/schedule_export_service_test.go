package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-scheduler-api/internal/dto"
	"github.com/noah-isme/room-scheduler-api/internal/models"
	"github.com/noah-isme/room-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
	"github.com/noah-isme/room-scheduler-api/pkg/jobs"
	"github.com/noah-isme/room-scheduler-api/pkg/storage"
)

type exportRepoStub struct {
	jobs    map[string]*models.ScheduleExport
	cleared []string
}

func newExportRepoStub() *exportRepoStub {
	return &exportRepoStub{jobs: map[string]*models.ScheduleExport{}}
}

func (s *exportRepoStub) Create(_ context.Context, job *models.ScheduleExport) error {
	job.ID = "job-1"
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *exportRepoStub) GetByID(_ context.Context, id string) (*models.ScheduleExport, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	stored := *job
	return &stored, nil
}

func (s *exportRepoStub) Update(_ context.Context, id string, params repository.UpdateScheduleExportParams) error {
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.FilePath != nil {
		job.FilePath = params.FilePath
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *exportRepoStub) ListQueued(context.Context, int) ([]models.ScheduleExport, error) {
	var out []models.ScheduleExport
	for _, job := range s.jobs {
		if job.Status == models.ExportStatusQueued || job.Status == models.ExportStatusProcessing {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *exportRepoStub) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ScheduleExport, error) {
	var out []models.ScheduleExport
	for _, job := range s.jobs {
		if job.Status == models.ExportStatusFinished && job.FilePath != nil && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *exportRepoStub) ClearFile(_ context.Context, id string) error {
	s.cleared = append(s.cleared, id)
	if job, ok := s.jobs[id]; ok {
		job.FilePath = nil
		job.ResultURL = nil
	}
	return nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(_ context.Context, job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type exportFixture struct {
	svc     *ScheduleExportService
	worker  *ScheduleExportWorker
	repo    *exportRepoStub
	queue   *queueStub
	res     *reservationRepoStub
	storage *storage.LocalStorage
	clock   *time.Time
}

func newExportFixture(t *testing.T) exportFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	rooms := &roomRepoStub{rooms: map[string]models.RoomDetail{
		"A": {Room: models.Room{ID: "A", Name: "Lab", Number: "101", IsActive: true}},
	}}
	res := newReservationRepoStub("A")
	repo := newExportRepoStub()
	queue := &queueStub{}
	clock := time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	svc := NewScheduleExportService(repo, rooms, queue, store, storage.NewSignedURLSigner("secret", time.Hour),
		ScheduleExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, nil, nil, now)
	worker := NewScheduleExportWorker(svc, res, NewMetricsService())
	return exportFixture{svc: svc, worker: worker, repo: repo, queue: queue, res: res, storage: store, clock: &clock}
}

func TestScheduleExportRequestQueuesJob(t *testing.T) {
	f := newExportFixture(t)

	resp, err := f.svc.Request(context.Background(), "A", dto.ScheduleExportRequest{Format: models.ExportFormatCSV}, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.ID)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, exportJobKind, f.queue.jobs[0].Kind)

	stored := f.repo.jobs["job-1"]
	assert.Equal(t, "2024-03-04", stored.Params.StartDate.String())
	assert.Equal(t, "2024-03-10", stored.Params.EndDate.String())
	require.NotNil(t, stored.RequestedBy)
}

func TestScheduleExportRequestValidation(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, "A", dto.ScheduleExportRequest{Format: "xlsx"}, "")
	assertCode(t, err, appErrors.ErrValidation.Code)

	_, err = f.svc.Request(ctx, "A", dto.ScheduleExportRequest{Format: "csv", StartDate: "2024-03-10", EndDate: "2024-03-01"}, "")
	assertCode(t, err, appErrors.ErrValidation.Code)

	_, err = f.svc.Request(ctx, "A", dto.ScheduleExportRequest{Format: "csv", StartDate: "2024-01-01", EndDate: "2024-12-31"}, "")
	assertCode(t, err, appErrors.ErrValidation.Code)

	_, err = f.svc.Request(ctx, "ghost", dto.ScheduleExportRequest{Format: "csv"}, "")
	assertCode(t, err, appErrors.ErrNotFound.Code)
	assert.Empty(t, f.queue.jobs)
}

func TestScheduleExportRequestQueueFailureMarksJobFailed(t *testing.T) {
	f := newExportFixture(t)
	f.queue.err = jobs.ErrQueueFull

	_, err := f.svc.Request(context.Background(), "A", dto.ScheduleExportRequest{Format: models.ExportFormatCSV}, "")
	assertCode(t, err, appErrors.ErrUnavailable.Code)
	assert.Equal(t, models.ExportStatusFailed, f.repo.jobs["job-1"].Status)
}

func TestScheduleExportWorkerRendersAndSignsDownload(t *testing.T) {
	f := newExportFixture(t)
	f.res.seed(seeded("s1", "A", "09:00", "10:30", models.StatusScheduled))
	f.res.seed(seeded("s2", "A", "11:00", "12:00", models.StatusCancelled))
	ctx := context.Background()

	_, err := f.svc.Request(ctx, "A", dto.ScheduleExportRequest{Format: models.ExportFormatCSV}, "")
	require.NoError(t, err)
	require.NoError(t, f.worker.Handle(ctx, f.queue.jobs[0]))

	status, err := f.svc.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Nil(t, status.Error)
	require.NotNil(t, status.ResultURL)
	assert.True(t, strings.HasPrefix(*status.ResultURL, "/api/v1/exports/download/"))

	token := strings.TrimPrefix(*status.ResultURL, "/api/v1/exports/download/")
	download, err := f.svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv; charset=utf-8", download.ContentType)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "Date,Start,End,Minutes,Title")
	assert.Contains(t, text, "2024-03-04,09:00,10:30,90,Class s1")
	assert.NotContains(t, text, "Class s2")
}

func TestScheduleExportWorkerSkipsFinishedAndMissingJobs(t *testing.T) {
	f := newExportFixture(t)
	f.repo.jobs["done"] = &models.ScheduleExport{ID: "done", RoomID: "A", Status: models.ExportStatusFinished}

	require.NoError(t, f.worker.Handle(context.Background(), jobs.Job{ID: "done"}))
	require.NoError(t, f.worker.Handle(context.Background(), jobs.Job{ID: "gone"}))
}

func TestScheduleExportWorkerFailureRequeuesThenExhausts(t *testing.T) {
	f := newExportFixture(t)
	f.res.listErr = errors.New("db down")
	ctx := context.Background()

	_, err := f.svc.Request(ctx, "A", dto.ScheduleExportRequest{Format: models.ExportFormatPDF}, "")
	require.NoError(t, err)
	err = f.worker.Handle(ctx, f.queue.jobs[0])
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusQueued, f.repo.jobs["job-1"].Status)

	f.worker.Exhausted(f.queue.jobs[0], err)
	status, err := f.svc.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "db down")
}

func TestScheduleExportResolveDownloadRejectsBadToken(t *testing.T) {
	f := newExportFixture(t)

	_, err := f.svc.ResolveDownload(context.Background(), "not-a-token")
	assertCode(t, err, appErrors.ErrForbidden.Code)
}

func TestScheduleExportRecoverPendingJobs(t *testing.T) {
	f := newExportFixture(t)
	f.repo.jobs["q"] = &models.ScheduleExport{ID: "q", Status: models.ExportStatusQueued}
	f.repo.jobs["p"] = &models.ScheduleExport{ID: "p", Status: models.ExportStatusProcessing}
	f.repo.jobs["f"] = &models.ScheduleExport{ID: "f", Status: models.ExportStatusFinished}

	f.svc.RecoverPendingJobs(context.Background())
	assert.Len(t, f.queue.jobs, 2)
}

func TestScheduleExportCleanupExpired(t *testing.T) {
	f := newExportFixture(t)
	rel, err := f.storage.Save("rooms/A/old.csv", []byte("x"))
	require.NoError(t, err)
	finished := f.clock.Add(-2 * time.Hour)
	f.repo.jobs["old"] = &models.ScheduleExport{ID: "old", Status: models.ExportStatusFinished, FilePath: &rel, FinishedAt: &finished}

	f.svc.CleanupExpired(context.Background())
	assert.Equal(t, []string{"old"}, f.repo.cleared)
	_, err = f.storage.Open(rel)
	assert.Error(t, err)
}
