// Package booking holds the reservation rules for a single room's timeline:
// proposal validation, current/next resolution, durations and date grouping.
// Everything here is a pure function of its arguments.
package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/room-scheduler-api/internal/models"
)

var (
	// ErrInvalidInterval is returned when end_time is not after start_time.
	ErrInvalidInterval = errors.New("end time must be after start time")
	// ErrInvalidStatus is returned for a status outside the enumerated set.
	ErrInvalidStatus = errors.New("invalid status")
)

// OverlapError reports the existing reservation a proposal collides with.
type OverlapError struct {
	Conflict models.Reservation
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("this time slot overlaps with: %s (%s-%s)",
		e.Conflict.Title, e.Conflict.StartTime.Short(), e.Conflict.EndTime.Short())
}

// Proposal is a reservation about to be created or edited.
type Proposal struct {
	RoomID    string
	Date      models.Date
	StartTime models.TimeOfDay
	EndTime   models.TimeOfDay
	Status    models.ReservationStatus
	// ExcludeID skips the reservation being edited.
	ExcludeID string
}

// ParseStatus maps a raw value onto the status enum. Blank input is rejected;
// only new proposals default to scheduled.
func ParseStatus(raw string) (models.ReservationStatus, error) {
	status := models.ReservationStatus(strings.TrimSpace(raw))
	if status == "" || !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// ValidateProposal checks p against the room's existing reservations.
// Rows for other rooms, other dates, terminal statuses or p.ExcludeID are ignored,
// so callers may pass a superset.
func ValidateProposal(p Proposal, existing []models.Reservation) error {
	if p.EndTime <= p.StartTime {
		return ErrInvalidInterval
	}
	status := p.Status
	if status == "" {
		status = models.StatusScheduled
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	if !status.Active() {
		return nil
	}

	candidates := make([]models.Reservation, 0, len(existing))
	for _, r := range existing {
		if r.RoomID != p.RoomID || !r.Date.Equal(p.Date) || !r.Status.Active() {
			continue
		}
		if p.ExcludeID != "" && r.ID == p.ExcludeID {
			continue
		}
		candidates = append(candidates, r)
	}
	sortByStart(candidates)

	for _, r := range candidates {
		if p.StartTime < r.EndTime && r.StartTime < p.EndTime {
			return &OverlapError{Conflict: r}
		}
	}
	return nil
}

// ResolveCurrentAndNext finds what occupies the room at the given moment and what comes after.
// Current includes both bounds; next is the earliest active reservation starting strictly after at.
func ResolveCurrentAndNext(reservations []models.Reservation, date models.Date, at models.TimeOfDay) (current, next *models.Reservation) {
	day := make([]models.Reservation, 0, len(reservations))
	for _, r := range reservations {
		if r.Date.Equal(date) && r.Status.Active() {
			day = append(day, r)
		}
	}
	sortByStart(day)

	for i := range day {
		r := day[i]
		if current == nil && r.StartTime <= at && at <= r.EndTime {
			current = &r
			continue
		}
		if next == nil && r.StartTime > at {
			next = &r
		}
		if current != nil && next != nil {
			break
		}
	}
	return current, next
}

// DurationMinutes is the whole number of minutes between start and end on the reservation's date.
func DurationMinutes(r models.Reservation) int {
	start := r.Date.At(r.StartTime, time.UTC)
	end := r.Date.At(r.EndTime, time.UTC)
	minutes := int(end.Sub(start) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}

// GroupByDate buckets reservations within [start, end] by ISO date. Empty dates are omitted
// and each bucket is ordered by start time.
func GroupByDate(reservations []models.Reservation, start, end models.Date) map[string][]models.Reservation {
	grouped := make(map[string][]models.Reservation)
	for _, r := range reservations {
		if r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		key := r.Date.String()
		grouped[key] = append(grouped[key], r)
	}
	for key := range grouped {
		sortByStart(grouped[key])
	}
	return grouped
}

// IsCurrent reports whether r is in progress at now, evaluated in now's location.
func IsCurrent(r models.Reservation, now time.Time) bool {
	if r.Status != models.StatusInProgress || !r.Date.Equal(models.DateOf(now)) {
		return false
	}
	at := models.TimeOfDayOf(now)
	return r.StartTime <= at && at <= r.EndTime
}

func sortByStart(rs []models.Reservation) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].StartTime != rs[j].StartTime {
			return rs[i].StartTime < rs[j].StartTime
		}
		return rs[i].ID < rs[j].ID
	})
}
