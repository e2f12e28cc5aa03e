package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-scheduler-api/internal/models"
)

var day = models.NewDate(2024, 5, 6)

func hm(h, m int) models.TimeOfDay { return models.NewTimeOfDay(h, m, 0) }

func reservation(id string, start, end models.TimeOfDay, status models.ReservationStatus) models.Reservation {
	return models.Reservation{
		ID:        id,
		RoomID:    "room-r",
		Title:     "Class " + id,
		Date:      day,
		StartTime: start,
		EndTime:   end,
		Status:    status,
	}
}

func proposal(start, end models.TimeOfDay) Proposal {
	return Proposal{RoomID: "room-r", Date: day, StartTime: start, EndTime: end, Status: models.StatusScheduled}
}

func TestValidateProposalRejectsInvalidInterval(t *testing.T) {
	existing := []models.Reservation{reservation("a", hm(9, 0), hm(10, 0), models.StatusScheduled)}
	for _, p := range []Proposal{proposal(hm(10, 0), hm(10, 0)), proposal(hm(11, 0), hm(10, 0))} {
		assert.ErrorIs(t, ValidateProposal(p, nil), ErrInvalidInterval)
		assert.ErrorIs(t, ValidateProposal(p, existing), ErrInvalidInterval)
	}

	// interval is checked before status
	p := proposal(hm(11, 0), hm(10, 0))
	p.Status = "bogus"
	assert.ErrorIs(t, ValidateProposal(p, nil), ErrInvalidInterval)
}

func TestValidateProposalOverlapReferencesConflict(t *testing.T) {
	existing := []models.Reservation{reservation("a", hm(9, 0), hm(10, 30), models.StatusScheduled)}

	err := ValidateProposal(proposal(hm(10, 0), hm(11, 0)), existing)
	var overlap *OverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, "a", overlap.Conflict.ID)
	assert.Equal(t, "this time slot overlaps with: Class a (09:00-10:30)", overlap.Error())
}

func TestValidateProposalTouchingBoundaryAccepted(t *testing.T) {
	existing := []models.Reservation{reservation("a", hm(9, 0), hm(10, 30), models.StatusScheduled)}
	assert.NoError(t, ValidateProposal(proposal(hm(10, 30), hm(11, 30)), existing))
	assert.NoError(t, ValidateProposal(proposal(hm(8, 0), hm(9, 0)), existing))
}

func TestValidateProposalTerminalReservationsNeverBlock(t *testing.T) {
	for _, status := range []models.ReservationStatus{models.StatusCancelled, models.StatusCompleted} {
		existing := []models.Reservation{reservation("a", hm(9, 0), hm(10, 30), status)}
		assert.NoError(t, ValidateProposal(proposal(hm(9, 30), hm(10, 0)), existing))
		assert.NoError(t, ValidateProposal(proposal(hm(9, 0), hm(10, 30)), existing))
	}
}

func TestValidateProposalInProgressBlocks(t *testing.T) {
	existing := []models.Reservation{reservation("a", hm(9, 0), hm(10, 0), models.StatusInProgress)}
	var overlap *OverlapError
	assert.ErrorAs(t, ValidateProposal(proposal(hm(9, 59), hm(10, 30)), existing), &overlap)
}

func TestValidateProposalTerminalProposalSkipsOverlap(t *testing.T) {
	existing := []models.Reservation{reservation("a", hm(9, 0), hm(10, 0), models.StatusScheduled)}
	p := proposal(hm(9, 0), hm(10, 0))
	p.Status = models.StatusCancelled
	assert.NoError(t, ValidateProposal(p, existing))
}

func TestValidateProposalIgnoresOtherRoomsDatesAndExcluded(t *testing.T) {
	otherRoom := reservation("b", hm(9, 0), hm(10, 0), models.StatusScheduled)
	otherRoom.RoomID = "room-s"
	otherDay := reservation("c", hm(9, 0), hm(10, 0), models.StatusScheduled)
	otherDay.Date = day.AddDays(1)
	self := reservation("self", hm(9, 0), hm(10, 0), models.StatusScheduled)

	p := proposal(hm(9, 15), hm(9, 45))
	p.ExcludeID = "self"
	assert.NoError(t, ValidateProposal(p, []models.Reservation{otherRoom, otherDay, self}))

	p.ExcludeID = ""
	var overlap *OverlapError
	require.ErrorAs(t, ValidateProposal(p, []models.Reservation{otherRoom, otherDay, self}), &overlap)
	assert.Equal(t, "self", overlap.Conflict.ID)
}

func TestValidateProposalDeterministicConflict(t *testing.T) {
	late := reservation("z", hm(10, 0), hm(11, 0), models.StatusScheduled)
	early := reservation("y", hm(9, 0), hm(10, 0), models.StatusScheduled)
	tieA := reservation("a", hm(9, 0), hm(9, 30), models.StatusScheduled)

	p := proposal(hm(8, 0), hm(12, 0))
	var first, second *OverlapError
	require.ErrorAs(t, ValidateProposal(p, []models.Reservation{late, early, tieA}), &first)
	require.ErrorAs(t, ValidateProposal(p, []models.Reservation{tieA, early, late}), &second)
	assert.Equal(t, "a", first.Conflict.ID)
	assert.Equal(t, first.Conflict.ID, second.Conflict.ID)
}

func TestValidateProposalRejectsUnknownStatus(t *testing.T) {
	p := proposal(hm(9, 0), hm(10, 0))
	p.Status = "unknown_value"
	assert.ErrorIs(t, ValidateProposal(p, nil), ErrInvalidStatus)

	p.Status = ""
	assert.NoError(t, ValidateProposal(p, nil))
}

func TestValidateProposalOverlapProperty(t *testing.T) {
	// every pair of intervals on a half-hour grid between 08:00 and 12:00
	var slots []models.TimeOfDay
	for m := 8 * 60; m <= 12*60; m += 30 {
		slots = append(slots, hm(m/60, m%60))
	}
	for _, s1 := range slots {
		for _, e1 := range slots {
			if e1 <= s1 {
				continue
			}
			existing := []models.Reservation{reservation("a", s1, e1, models.StatusScheduled)}
			for _, s2 := range slots {
				for _, e2 := range slots {
					if e2 <= s2 {
						continue
					}
					err := ValidateProposal(proposal(s2, e2), existing)
					overlaps := s1 < e2 && s2 < e1
					if overlaps {
						assert.Error(t, err, "%s-%s vs %s-%s", s1, e1, s2, e2)
					} else {
						assert.NoError(t, err, "%s-%s vs %s-%s", s1, e1, s2, e2)
					}
				}
			}
		}
	}
}

func TestResolveCurrentAndNext(t *testing.T) {
	first := reservation("a", hm(9, 0), hm(10, 0), models.StatusScheduled)
	second := reservation("b", hm(11, 0), hm(12, 0), models.StatusScheduled)
	rs := []models.Reservation{second, first}

	current, next := ResolveCurrentAndNext(rs, day, hm(9, 30))
	require.NotNil(t, current)
	require.NotNil(t, next)
	assert.Equal(t, "a", current.ID)
	assert.Equal(t, "b", next.ID)

	current, next = ResolveCurrentAndNext(rs, day, hm(10, 30))
	assert.Nil(t, current)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)

	current, next = ResolveCurrentAndNext(rs, day, hm(12, 30))
	assert.Nil(t, current)
	assert.Nil(t, next)

	current, next = ResolveCurrentAndNext(nil, day, hm(9, 0))
	assert.Nil(t, current)
	assert.Nil(t, next)
}

func TestResolveCurrentIsBoundaryInclusive(t *testing.T) {
	r := reservation("a", hm(9, 0), hm(10, 0), models.StatusScheduled)
	later := reservation("b", hm(10, 0), hm(11, 0), models.StatusScheduled)

	current, next := ResolveCurrentAndNext([]models.Reservation{r}, day, hm(9, 0))
	require.NotNil(t, current)
	assert.Equal(t, "a", current.ID)
	assert.Nil(t, next)

	current, _ = ResolveCurrentAndNext([]models.Reservation{r}, day, hm(10, 0))
	require.NotNil(t, current)
	assert.Equal(t, "a", current.ID)

	// abutting: the earlier one is current at the shared instant and the later is not next
	current, next = ResolveCurrentAndNext([]models.Reservation{later, r}, day, hm(10, 0))
	require.NotNil(t, current)
	assert.Equal(t, "a", current.ID)
	assert.Nil(t, next)

	// next is strictly greater
	current, next = ResolveCurrentAndNext([]models.Reservation{later}, day, hm(9, 59))
	assert.Nil(t, current)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)
}

func TestResolveCurrentAndNextSkipsTerminalAndOtherDates(t *testing.T) {
	cancelled := reservation("a", hm(9, 0), hm(10, 0), models.StatusCancelled)
	tomorrow := reservation("b", hm(11, 0), hm(12, 0), models.StatusScheduled)
	tomorrow.Date = day.AddDays(1)
	running := reservation("c", hm(9, 0), hm(10, 0), models.StatusInProgress)

	current, next := ResolveCurrentAndNext([]models.Reservation{cancelled, tomorrow}, day, hm(9, 30))
	assert.Nil(t, current)
	assert.Nil(t, next)

	current, _ = ResolveCurrentAndNext([]models.Reservation{cancelled, running}, day, hm(9, 30))
	require.NotNil(t, current)
	assert.Equal(t, "c", current.ID)
}

func TestDurationMinutes(t *testing.T) {
	assert.Equal(t, 90, DurationMinutes(reservation("a", hm(9, 0), hm(10, 30), models.StatusScheduled)))
	assert.Equal(t, 1, DurationMinutes(reservation("a", models.NewTimeOfDay(9, 0, 0), models.NewTimeOfDay(9, 1, 59), models.StatusScheduled)))
	assert.Equal(t, 0, DurationMinutes(reservation("a", hm(10, 0), hm(9, 0), models.StatusScheduled)))
}

func TestGroupByDate(t *testing.T) {
	mon := day
	wed := day.AddDays(2)
	before := day.AddDays(-1)

	late := reservation("late", hm(14, 0), hm(15, 0), models.StatusScheduled)
	early := reservation("early", hm(8, 0), hm(9, 0), models.StatusScheduled)
	onWed := reservation("wed", hm(10, 0), hm(11, 0), models.StatusScheduled)
	onWed.Date = wed
	outside := reservation("out", hm(10, 0), hm(11, 0), models.StatusScheduled)
	outside.Date = before

	grouped := GroupByDate([]models.Reservation{late, onWed, early, outside}, mon, mon.AddDays(6))
	require.Len(t, grouped, 2)
	assert.NotContains(t, grouped, mon.AddDays(1).String())
	assert.NotContains(t, grouped, before.String())

	monday := grouped["2024-05-06"]
	require.Len(t, monday, 2)
	assert.Equal(t, "early", monday[0].ID)
	assert.Equal(t, "late", monday[1].ID)
	assert.Equal(t, "wed", grouped["2024-05-08"][0].ID)

	assert.Empty(t, GroupByDate(nil, mon, mon))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" completed ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, s)

	for _, raw := range []string{"unknown_value", "", "   ", "\t"} {
		_, err = ParseStatus(raw)
		assert.ErrorIs(t, err, ErrInvalidStatus, "raw %q", raw)
	}
}

func TestIsCurrent(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	r := reservation("a", hm(9, 0), hm(10, 0), models.StatusInProgress)

	assert.True(t, IsCurrent(r, time.Date(2024, 5, 6, 9, 30, 0, 0, loc)))
	assert.True(t, IsCurrent(r, time.Date(2024, 5, 6, 10, 0, 0, 0, loc)))
	assert.False(t, IsCurrent(r, time.Date(2024, 5, 7, 9, 30, 0, 0, loc)))

	r.Status = models.StatusScheduled
	assert.False(t, IsCurrent(r, time.Date(2024, 5, 6, 9, 30, 0, 0, loc)))
}
