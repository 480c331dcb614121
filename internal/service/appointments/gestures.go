package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carecrm/backend/internal/domain"
)

// ResizeAppointment applies a drag-resize gesture. Duration bounds fail with
// *domain.DurationViolation, overlaps with *domain.ConflictError.
func (s *Service) ResizeAppointment(ctx context.Context, id uuid.UUID, direction domain.ResizeDirection, minutes int) (domain.Appointment, error) {
	if !direction.Valid() {
		return domain.Appointment{}, validationError(fmt.Sprintf("unknown resize direction %q", direction))
	}
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !s.resizer.CanResize(appt) {
		return domain.Appointment{}, validationError("appointment cannot be resized")
	}

	reach := time.Duration(appt.MaxDuration()) * time.Minute
	existing, err := s.repo.FindByProvider(ctx, appt.ProviderID, appt.EndTime.Add(-reach), appt.StartTime.Add(reach))
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("load provider schedule: %w", err)
	}

	res := s.resizer.ValidateResize(appt, direction, minutes, existing, "")
	if !res.Success {
		return domain.Appointment{}, res.Err()
	}
	updated := res.Appointment
	if updated.InSeries() {
		updated.IsException = true
	}
	return s.repo.Update(ctx, updated)
}

// MoveAppointment drags an appointment to a new start, keeping its length.
func (s *Service) MoveAppointment(ctx context.Context, id uuid.UUID, newStart time.Time) (domain.Appointment, error) {
	if newStart.IsZero() {
		return domain.Appointment{}, validationError("start_time is required")
	}
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !s.resizer.CanMove(appt) {
		return domain.Appointment{}, validationError("appointment cannot be moved")
	}

	start := domain.SnapTime(newStart.UTC())
	existing, err := s.repo.FindByProvider(ctx, appt.ProviderID, start, start.Add(appt.Duration()))
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("load provider schedule: %w", err)
	}

	res := s.resizer.ValidateMove(appt, start, existing)
	if !res.Success {
		return domain.Appointment{}, res.Err()
	}
	updated := res.Appointment
	if updated.InSeries() {
		updated.IsException = true
	}
	return s.repo.Update(ctx, updated)
}

// ResizeOptions is what a calendar needs before starting a resize gesture.
type ResizeOptions struct {
	CanResize          bool
	MinMinutes         int
	MaxMinutes         int
	SuggestedDurations []int
}

func (s *Service) ResizeOptions(ctx context.Context, id uuid.UUID) (ResizeOptions, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return ResizeOptions{}, err
	}
	return ResizeOptions{
		CanResize:          s.resizer.CanResize(appt),
		MinMinutes:         appt.MinDuration(),
		MaxMinutes:         appt.MaxDuration(),
		SuggestedDurations: s.resizer.SuggestedDurations(appt),
	}, nil
}
