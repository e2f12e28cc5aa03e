package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-scheduler-api/internal/models"
	"github.com/noah-isme/room-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
)

type reservationRepoStub struct {
	rooms   map[string]bool
	items   map[string]models.Reservation
	seq     int
	locks   int
	listErr error
}

func newReservationRepoStub(roomIDs ...string) *reservationRepoStub {
	rooms := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		rooms[id] = true
	}
	return &reservationRepoStub{rooms: rooms, items: map[string]models.Reservation{}}
}

func (s *reservationRepoStub) seed(r models.Reservation) {
	s.items[r.ID] = r
}

func (s *reservationRepoStub) detail(r models.Reservation) models.ReservationDetail {
	return models.ReservationDetail{Reservation: r, RoomName: "Room " + r.RoomID}
}

func (s *reservationRepoStub) sorted(filter func(models.Reservation) bool) []models.ReservationDetail {
	var out []models.ReservationDetail
	for _, r := range s.items {
		if filter(r) {
			out = append(out, s.detail(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *reservationRepoStub) List(_ context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, int, error) {
	out := s.sorted(func(r models.Reservation) bool {
		return (filter.RoomID == "" || r.RoomID == filter.RoomID) &&
			(filter.Status == "" || r.Status == models.ReservationStatus(filter.Status))
	})
	return out, len(out), nil
}

func (s *reservationRepoStub) FindByID(_ context.Context, id string) (*models.ReservationDetail, error) {
	r, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := s.detail(r)
	return &d, nil
}

func (s *reservationRepoStub) ListForRoomRange(_ context.Context, roomID string, start, end models.Date, activeOnly bool) ([]models.ReservationDetail, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.sorted(func(r models.Reservation) bool {
		return r.RoomID == roomID && !r.Date.Before(start) && !r.Date.After(end) && (!activeOnly || r.Status.Active())
	}), nil
}

func (s *reservationRepoStub) ListActiveOnDate(_ context.Context, date models.Date) ([]models.ReservationDetail, error) {
	return s.sorted(func(r models.Reservation) bool { return r.Date.Equal(date) && r.Status.Active() }), nil
}

func (s *reservationRepoStub) UpdateStatus(_ context.Context, id string, status models.ReservationStatus) error {
	r, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = status
	s.items[id] = r
	return nil
}

func (s *reservationRepoStub) UpdateStatusBulk(_ context.Context, ids []string, status models.ReservationStatus) ([]string, error) {
	var updated []string
	for _, id := range ids {
		if r, ok := s.items[id]; ok {
			r.Status = status
			s.items[id] = r
			updated = append(updated, id)
		}
	}
	return updated, nil
}

func (s *reservationRepoStub) Delete(_ context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

func (s *reservationRepoStub) RunLocked(_ context.Context, roomID string, fn func(repository.ReservationStore) error) error {
	if !s.rooms[roomID] {
		return sql.ErrNoRows
	}
	s.locks++
	return fn(s)
}

func (s *reservationRepoStub) ListActiveForRoomDate(_ context.Context, roomID string, date models.Date) ([]models.Reservation, error) {
	var out []models.Reservation
	for _, r := range s.items {
		if r.RoomID == roomID && r.Date.Equal(date) && r.Status.Active() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *reservationRepoStub) Create(_ context.Context, r *models.Reservation) error {
	s.seq++
	r.ID = fmt.Sprintf("new-%d", s.seq)
	s.items[r.ID] = *r
	return nil
}

func (s *reservationRepoStub) Update(_ context.Context, r *models.Reservation) error {
	if _, ok := s.items[r.ID]; !ok {
		return sql.ErrNoRows
	}
	s.items[r.ID] = *r
	return nil
}

var bookingDay = models.NewDate(2024, time.March, 4)

func seeded(id, room string, start, end string, status models.ReservationStatus) models.Reservation {
	s, _ := models.ParseTimeOfDay(start)
	e, _ := models.ParseTimeOfDay(end)
	return models.Reservation{ID: id, RoomID: room, Title: "Class " + id, Date: bookingDay, StartTime: s, EndTime: e, Status: status}
}

func newReservationServiceForTest(repo *reservationRepoStub) *ReservationService {
	now := func() time.Time { return time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC) }
	return NewReservationService(repo, nil, nil, nil, nil, now)
}

func bookingRequest(room, start, end, status string) ReservationRequest {
	return ReservationRequest{RoomID: room, Title: "Physics", Date: "2024-03-04", StartTime: start, EndTime: end, Status: status}
}

func assertCode(t *testing.T, err error, code string) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr), "expected *errors.Error, got %T", err)
	assert.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestReservationServiceCreateAcceptsFreeSlot(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	created, err := svc.Create(context.Background(), bookingRequest("A", "10:00", "11:00", ""), "actor-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, created.Status)
	assert.Equal(t, 60, created.DurationMinutes)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, "actor-1", *created.CreatedBy)
	assert.Len(t, repo.items, 2)
}

func TestReservationServiceCreateRejectsOverlap(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	_, err := svc.Create(context.Background(), bookingRequest("A", "09:30", "10:30", ""), "")
	apiErr := assertCode(t, err, appErrors.ErrOverlap.Code)
	assert.Contains(t, apiErr.Message, "Class s1 (09:00-10:00)")
	details, ok := apiErr.Details.(OverlapDetails)
	require.True(t, ok)
	assert.Equal(t, "s1", details.ScheduleID)
	assert.Len(t, repo.items, 1)
}

func TestReservationServiceCreateIgnoresCancelledAndOtherRooms(t *testing.T) {
	repo := newReservationRepoStub("A", "B")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusCancelled))
	repo.seed(seeded("s2", "B", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	_, err := svc.Create(context.Background(), bookingRequest("A", "09:00", "10:00", "scheduled"), "")
	require.NoError(t, err)
}

func TestReservationServiceCreateRejectsInvalidInterval(t *testing.T) {
	repo := newReservationRepoStub("A")
	svc := newReservationServiceForTest(repo)

	_, err := svc.Create(context.Background(), bookingRequest("A", "10:00", "10:00", ""), "")
	assertCode(t, err, appErrors.ErrInvalidInterval.Code)
	assert.Zero(t, repo.locks)
}

func TestReservationServiceIntervalCheckedBeforeStatus(t *testing.T) {
	svc := newReservationServiceForTest(newReservationRepoStub("A"))

	_, err := svc.Create(context.Background(), bookingRequest("A", "11:00", "10:00", "unknown_value"), "")
	assertCode(t, err, appErrors.ErrInvalidInterval.Code)

	_, err = svc.Create(context.Background(), bookingRequest("A", "10:00", "11:00", "unknown_value"), "")
	apiErr := assertCode(t, err, appErrors.ErrInvalidStatus.Code)
	assert.Contains(t, apiErr.Message, "scheduled, in_progress, completed, cancelled")
}

func TestReservationServiceCreateUnknownRoom(t *testing.T) {
	svc := newReservationServiceForTest(newReservationRepoStub())

	_, err := svc.Create(context.Background(), bookingRequest("ghost", "10:00", "11:00", ""), "")
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestReservationServiceCreateMalformedTime(t *testing.T) {
	svc := newReservationServiceForTest(newReservationRepoStub("A"))

	_, err := svc.Create(context.Background(), bookingRequest("A", "9am", "11:00", ""), "")
	apiErr := assertCode(t, err, appErrors.ErrValidation.Code)
	assert.Equal(t, map[string]string{"field": "start_time"}, apiErr.Details)
}

func TestReservationServiceUpdateExcludesItself(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	updated, err := svc.Update(context.Background(), "s1", bookingRequest("A", "09:30", "10:30", ""))
	require.NoError(t, err)
	assert.Equal(t, "09:30:00", updated.StartTime.String())
}

func TestReservationServicePatchRevalidatesOnTimeChange(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	repo.seed(seeded("s2", "A", "11:00", "12:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	end := "11:30"
	_, err := svc.Patch(context.Background(), "s1", PatchReservationRequest{EndTime: &end})
	assertCode(t, err, appErrors.ErrOverlap.Code)

	title := "Renamed"
	patched, err := svc.Patch(context.Background(), "s1", PatchReservationRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", patched.Title)
}

func TestReservationServicePatchRejectsUnknownStatus(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	bad := "unknown_value"
	_, err := svc.Patch(context.Background(), "s1", PatchReservationRequest{Status: &bad})
	assertCode(t, err, appErrors.ErrInvalidStatus.Code)
	assert.Equal(t, models.StatusScheduled, repo.items["s1"].Status)
}

func TestReservationServiceUpdateStatusLeavesRecordOnUnknownValue(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	_, err := svc.UpdateStatus(context.Background(), "s1", StatusUpdateRequest{Status: "unknown_value"})
	assertCode(t, err, appErrors.ErrInvalidStatus.Code)
	assert.Equal(t, models.StatusScheduled, repo.items["s1"].Status)

	_, err = svc.UpdateStatus(context.Background(), "s1", StatusUpdateRequest{})
	assertCode(t, err, appErrors.ErrInvalidStatus.Code)
}

func TestReservationServiceUpdateStatusReleasesSlot(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	updated, err := svc.UpdateStatus(context.Background(), "s1", StatusUpdateRequest{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)

	_, err = svc.Create(context.Background(), bookingRequest("A", "09:00", "10:00", ""), "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), "missing", StatusUpdateRequest{Status: "completed"})
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestReservationServiceBulkUpdateStatus(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	repo.seed(seeded("s2", "A", "10:00", "11:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	result, err := svc.BulkUpdateStatus(context.Background(), BulkStatusRequest{IDs: []string{"s1", "s2", "s1", "zz"}, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, result.Updated)
	assert.Equal(t, []string{"zz"}, result.Missing)
	assert.Equal(t, models.StatusCompleted, repo.items["s2"].Status)

	_, err = svc.BulkUpdateStatus(context.Background(), BulkStatusRequest{IDs: []string{"s1"}, Status: "done"})
	assertCode(t, err, appErrors.ErrInvalidStatus.Code)
}

func TestReservationServiceBlankStatusDoesNotRevive(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusCancelled))
	repo.seed(seeded("s2", "A", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	_, err := svc.UpdateStatus(context.Background(), "s1", StatusUpdateRequest{Status: "   "})
	assertCode(t, err, appErrors.ErrInvalidStatus.Code)
	assert.Equal(t, models.StatusCancelled, repo.items["s1"].Status)

	result, err := svc.BulkUpdateStatus(context.Background(), BulkStatusRequest{IDs: []string{"s1"}, Status: " "})
	assertCode(t, err, appErrors.ErrInvalidStatus.Code)
	assert.Nil(t, result)
	assert.Equal(t, models.StatusCancelled, repo.items["s1"].Status)
}

func TestReservationServiceTodayDecoratesCurrent(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "10:00", "11:00", models.StatusInProgress))
	repo.seed(seeded("s2", "A", "12:00", "13:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	today, err := svc.Today(context.Background())
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.True(t, today[0].IsCurrent)
	assert.False(t, today[1].IsCurrent)
}

func TestReservationServiceDelete(t *testing.T) {
	repo := newReservationRepoStub("A")
	repo.seed(seeded("s1", "A", "09:00", "10:00", models.StatusScheduled))
	svc := newReservationServiceForTest(repo)

	require.NoError(t, svc.Delete(context.Background(), "s1"))
	assert.Empty(t, repo.items)
	assertCode(t, svc.Delete(context.Background(), "s1"), appErrors.ErrNotFound.Code)
}
