package service

import (
	"errors"
	"strings"

	"github.com/noah-isme/room-scheduler-api/internal/booking"
	"github.com/noah-isme/room-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/room-scheduler-api/pkg/errors"
)

// OverlapDetails identifies the reservation a proposal collided with.
type OverlapDetails struct {
	ScheduleID string `json:"schedule_id"`
	Title      string `json:"title"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

var statusList = func() string {
	names := make([]string, 0, len(models.ReservationStatuses))
	for _, s := range models.ReservationStatuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}()

// translateBookingError maps ledger errors onto API errors, returning the metric reason too.
// ok is false for errors that did not come from the ledger.
func translateBookingError(err error) (apiErr *appErrors.Error, reason string, ok bool) {
	var overlap *booking.OverlapError
	switch {
	case errors.As(err, &overlap):
		c := overlap.Conflict
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrOverlap, overlap.Error()), OverlapDetails{
			ScheduleID: c.ID,
			Title:      c.Title,
			Date:       c.Date.String(),
			StartTime:  c.StartTime.String(),
			EndTime:    c.EndTime.String(),
		}), "overlap", true
	case errors.Is(err, booking.ErrInvalidInterval):
		return appErrors.Clone(appErrors.ErrInvalidInterval, ""), "interval", true
	case errors.Is(err, booking.ErrInvalidStatus):
		return invalidStatusError(), "status", true
	}
	return nil, "", false
}

func invalidStatusError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrInvalidStatus, "status must be one of: "+statusList)
}
