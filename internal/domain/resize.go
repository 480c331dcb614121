package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	SnapMinutes               = 15
	DefaultMinDurationMinutes = 15
	DefaultMaxDurationMinutes = 480

	// ImminentWindow blocks resizing appointments that are about to start.
	ImminentWindow = 30 * time.Minute
)

var commonDurations = []int{15, 30, 45, 60, 90, 120, 180, 240}

type ResizeDirection string

const (
	ResizeTop    ResizeDirection = "top"
	ResizeBottom ResizeDirection = "bottom"
)

func (d ResizeDirection) Valid() bool {
	return d == ResizeTop || d == ResizeBottom
}

// DurationViolation is returned when a requested duration falls outside the
// appointment's allowed range.
type DurationViolation struct {
	RequestedMinutes int
	MinMinutes       int
	MaxMinutes       int
}

func (v *DurationViolation) Error() string {
	if v.RequestedMinutes < v.MinMinutes {
		return fmt.Sprintf("duration of %d minutes is below the minimum of %d minutes", v.RequestedMinutes, v.MinMinutes)
	}
	return fmt.Sprintf("duration of %d minutes exceeds the maximum of %d minutes", v.RequestedMinutes, v.MaxMinutes)
}

// ResizeResult carries either the updated appointment, a duration violation,
// or the conflicts that blocked the change. Violation and Conflicts are never
// both set.
type ResizeResult struct {
	Success     bool
	Appointment Appointment
	Violation   *DurationViolation
	Conflicts   []Appointment
}

// Err converts a failed result into an error; it is nil on success.
func (r ResizeResult) Err() error {
	switch {
	case r.Success:
		return nil
	case r.Violation != nil:
		return r.Violation
	default:
		return &ConflictError{Conflicts: r.Conflicts}
	}
}

// Resizer applies drag and resize gestures to appointments. It keeps no state
// besides its clock.
type Resizer struct {
	now func() time.Time
}

func NewResizer(now func() time.Time) *Resizer {
	if now == nil {
		now = time.Now
	}
	return &Resizer{now: now}
}

// SnapDuration rounds minutes to the nearest multiple of SnapMinutes, never
// below one snap interval.
func SnapDuration(minutes int) int {
	snapped := int(math.Round(float64(minutes)/SnapMinutes)) * SnapMinutes
	if snapped < SnapMinutes {
		return SnapMinutes
	}
	return snapped
}

// SnapTime rounds t to the nearest SnapMinutes boundary.
func SnapTime(t time.Time) time.Time {
	return t.Round(SnapMinutes * time.Minute)
}

// CalculateResizedAppointment returns a copy of appt resized to the snapped
// duration. Resizing from the bottom keeps the start, from the top keeps the
// end.
func (r *Resizer) CalculateResizedAppointment(appt Appointment, direction ResizeDirection, newDurationMinutes int) Appointment {
	d := time.Duration(SnapDuration(newDurationMinutes)) * time.Minute
	out := appt.Clone()
	if direction == ResizeTop {
		out.StartTime = appt.EndTime.Add(-d)
	} else {
		out.EndTime = appt.StartTime.Add(d)
	}
	out.IsResizing = false
	return out
}

// ValidateResize checks the requested duration against the appointment's
// bounds and the candidate range against existing. providerID overrides the
// provider whose calendar is checked; empty means appt.ProviderID.
func (r *Resizer) ValidateResize(appt Appointment, direction ResizeDirection, newDurationMinutes int, existing []Appointment, providerID string) ResizeResult {
	minD, maxD := appt.MinDuration(), appt.MaxDuration()
	if newDurationMinutes < minD || newDurationMinutes > maxD {
		return ResizeResult{Violation: &DurationViolation{
			RequestedMinutes: newDurationMinutes,
			MinMinutes:       minD,
			MaxMinutes:       maxD,
		}}
	}

	candidate := r.CalculateResizedAppointment(appt, direction, snapWithin(newDurationMinutes, minD, maxD))
	if providerID == "" {
		providerID = appt.ProviderID
	}
	res := CheckConflicts(providerID, candidate.StartTime, candidate.EndTime, existing, appt.ID)
	if res.HasConflict {
		return ResizeResult{Conflicts: res.Conflicts}
	}
	return ResizeResult{Success: true, Appointment: candidate}
}

// snapWithin snaps minutes to the grid, stepping back inside [minD,maxD] when
// the rounding crossed a bound that is not itself on the grid.
func snapWithin(minutes, minD, maxD int) int {
	s := SnapDuration(minutes)
	if s < minD && s+SnapMinutes <= maxD {
		s += SnapMinutes
	}
	if s > maxD && s-SnapMinutes >= SnapMinutes {
		s -= SnapMinutes
	}
	return s
}

// CanResize reports whether appt may be resized right now. Appointments
// already in progress stay resizable; ones starting within ImminentWindow do
// not.
func (r *Resizer) CanResize(appt Appointment) bool {
	if !appt.IsResizable {
		return false
	}
	if appt.Status == StatusCompleted || appt.Status == StatusCancelled {
		return false
	}
	now := r.now()
	if appt.EndTime.Before(now) {
		return false
	}
	if appt.StartTime.After(now) && appt.StartTime.Sub(now) < ImminentWindow {
		return false
	}
	return true
}

// SuggestedDurations lists the common durations allowed for appt, plus its
// current duration, in ascending order.
func (r *Resizer) SuggestedDurations(appt Appointment) []int {
	minD, maxD := appt.MinDuration(), appt.MaxDuration()
	seen := make(map[int]struct{}, len(commonDurations)+1)
	out := make([]int, 0, len(commonDurations)+1)
	for _, d := range commonDurations {
		if d < minD || d > maxD {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	if current := appt.DurationMinutes(); current > 0 {
		if _, ok := seen[current]; !ok {
			out = append(out, current)
		}
	}
	sort.Ints(out)
	return out
}

// CanMove reports whether appt may be dragged to another slot.
func (r *Resizer) CanMove(appt Appointment) bool {
	if !appt.IsDraggable || appt.IsBlocked {
		return false
	}
	if appt.Status.Terminal() {
		return false
	}
	return !appt.EndTime.Before(r.now())
}

// ValidateMove shifts appt to start at newStart (snapped to the grid) keeping
// its duration, and checks the new range against existing. It reports through
// the same result shape as ValidateResize; Violation is never set.
func (r *Resizer) ValidateMove(appt Appointment, newStart time.Time, existing []Appointment) ResizeResult {
	start := SnapTime(newStart)
	candidate := appt.Clone()
	candidate.StartTime = start
	candidate.EndTime = start.Add(appt.Duration())
	candidate.IsDragging = false

	res := CheckConflicts(appt.ProviderID, candidate.StartTime, candidate.EndTime, existing, appt.ID)
	if res.HasConflict {
		return ResizeResult{Conflicts: res.Conflicts}
	}
	return ResizeResult{Success: true, Appointment: candidate}
}
