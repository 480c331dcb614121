package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrConflict = errors.New("conflict")

// ConflictResult is the outcome of CheckConflicts. Reason is empty when
// HasConflict is false.
type ConflictResult struct {
	HasConflict bool
	Conflicts   []Appointment
	Reason      string
}

// Overlaps reports whether the half-open ranges [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// CheckConflicts returns every appointment in existing that belongs to
// providerID, is not cancelled, and overlaps [start,end). The appointment
// with id excludeID (if not uuid.Nil) is ignored.
func CheckConflicts(providerID string, start, end time.Time, existing []Appointment, excludeID uuid.UUID) ConflictResult {
	var conflicts []Appointment
	for _, a := range existing {
		if a.ProviderID != providerID {
			continue
		}
		if a.Status == StatusCancelled {
			continue
		}
		if excludeID != uuid.Nil && a.ID == excludeID {
			continue
		}
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			conflicts = append(conflicts, a)
		}
	}
	if len(conflicts) == 0 {
		return ConflictResult{}
	}
	return ConflictResult{
		HasConflict: true,
		Conflicts:   conflicts,
		Reason:      conflictReason(conflicts),
	}
}

func conflictReason(conflicts []Appointment) string {
	if len(conflicts) == 1 {
		c := conflicts[0]
		return fmt.Sprintf("overlaps an existing appointment from %s to %s",
			c.StartTime.UTC().Format(time.RFC3339), c.EndTime.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("overlaps %d existing appointments", len(conflicts))
}

// OccurrenceConflict pairs a generated occurrence with whatever it overlaps.
type OccurrenceConflict struct {
	Occurrence Appointment
	Conflicts  []Appointment
}

// CheckSeriesConflicts checks each occurrence against existing and against
// the other occurrences of the same series.
func CheckSeriesConflicts(occurrences, existing []Appointment) []OccurrenceConflict {
	var out []OccurrenceConflict
	for i, occ := range occurrences {
		res := CheckConflicts(occ.ProviderID, occ.StartTime, occ.EndTime, existing, occ.ID)
		conflicts := res.Conflicts
		for j, other := range occurrences {
			if i == j {
				continue
			}
			if Overlaps(occ.StartTime, occ.EndTime, other.StartTime, other.EndTime) {
				conflicts = append(conflicts, other)
			}
		}
		if len(conflicts) > 0 {
			out = append(out, OccurrenceConflict{Occurrence: occ, Conflicts: conflicts})
		}
	}
	return out
}

// ConflictError reports the appointments a candidate overlapped.
type ConflictError struct {
	Conflicts []Appointment
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return ErrConflict.Error()
	}
	return "conflict: " + conflictReason(e.Conflicts)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// SeriesConflictError reports every occurrence of a series that could not be
// booked.
type SeriesConflictError struct {
	Occurrences []OccurrenceConflict
}

func (e *SeriesConflictError) Error() string {
	starts := make([]string, 0, len(e.Occurrences))
	for _, o := range e.Occurrences {
		starts = append(starts, o.Occurrence.StartTime.UTC().Format(time.RFC3339))
	}
	sort.Strings(starts)
	return fmt.Sprintf("conflict: %d occurrences overlap existing appointments (%s)", len(starts), strings.Join(starts, ", "))
}

func (e *SeriesConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Conflicting flattens the distinct appointments the series collided with.
func (e *SeriesConflictError) Conflicting() []Appointment {
	seen := make(map[uuid.UUID]struct{})
	var out []Appointment
	for _, o := range e.Occurrences {
		for _, c := range o.Conflicts {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
