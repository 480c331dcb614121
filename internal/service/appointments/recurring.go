package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carecrm/backend/internal/calendar"
	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/store"
)

// RecurringInput books Appointment as the first slot of a series. TimeZone is
// the IANA zone the pattern is expanded in; empty means the service default.
type RecurringInput struct {
	Appointment AppointmentInput
	Pattern     domain.RecurrencePattern
	TimeZone    string
}

type RecurringResult struct {
	Series       domain.RecurrenceSeries
	Appointments []domain.Appointment
}

// ScheduleRecurringAppointment expands the pattern and books every instance
// or none. Any instance overlapping an existing appointment, or another
// instance, fails the whole series with *domain.SeriesConflictError.
func (s *Service) ScheduleRecurringAppointment(ctx context.Context, in RecurringInput) (RecurringResult, error) {
	in.Appointment = s.withDefaultEnd(in.Appointment)
	problems := fieldProblems(in.Appointment, s.catalog)
	problems = append(problems, in.Pattern.Problems()...)

	loc := s.loc
	tz := strings.TrimSpace(in.TimeZone)
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid time_zone %q", tz))
		} else {
			loc = l
		}
	} else {
		tz = loc.String()
	}
	if len(problems) > 0 {
		return RecurringResult{}, validationError(problems...)
	}

	base := s.buildAppointment(in.Appointment)
	if key := strings.TrimSpace(in.Appointment.IdempotencyKey); key != "" {
		base.ID = idempotentID("schedule_recurring", base.ProviderID, key)
		if res, ok, err := s.replaySeries(ctx, base.ID); err != nil || ok {
			return res, err
		}
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return RecurringResult{}, err
		}
		base.ID = id
	}
	base.StartTime = base.StartTime.In(loc)
	base.EndTime = base.EndTime.In(loc)

	pattern := in.Pattern
	if pattern.EndDate != nil {
		e := pattern.EndDate.In(loc)
		pattern.EndDate = &e
	}

	occs, err := domain.GenerateOccurrences(base, pattern)
	if err != nil {
		return RecurringResult{}, validationError(err.Error())
	}
	if len(occs) == 0 {
		return RecurringResult{}, validationError("recurrence produces no occurrences")
	}
	for i := range occs {
		occs[i].StartTime = occs[i].StartTime.UTC()
		occs[i].EndTime = occs[i].EndTime.UTC()
	}

	existing, err := s.repo.FindByProvider(ctx, base.ProviderID, occs[0].StartTime, occs[len(occs)-1].EndTime)
	if err != nil {
		return RecurringResult{}, fmt.Errorf("load provider schedule: %w", err)
	}
	if conflicts := domain.CheckSeriesConflicts(occs, existing); len(conflicts) > 0 {
		return RecurringResult{}, &domain.SeriesConflictError{Occurrences: conflicts}
	}

	series := domain.NewRecurrenceSeries(base, pattern, tz)
	series.RRule = calendar.PatternRRule(pattern)

	created, err := s.repo.CreateRecurring(ctx, series, occs)
	if err != nil {
		return RecurringResult{}, err
	}
	return RecurringResult{Series: series, Appointments: created}, nil
}

// replaySeries returns the series already booked under groupID, if any.
func (s *Service) replaySeries(ctx context.Context, groupID uuid.UUID) (RecurringResult, bool, error) {
	series, err := s.repo.FindSeries(ctx, groupID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return RecurringResult{}, false, nil
	case err != nil:
		return RecurringResult{}, false, err
	}
	rows, err := s.repo.FindRecurring(ctx, groupID)
	if err != nil {
		return RecurringResult{}, false, err
	}
	return RecurringResult{Series: series, Appointments: rows}, true, nil
}

// CancelRecurringSequence deletes every instance of the recurrence group and
// its series record.
func (s *Service) CancelRecurringSequence(ctx context.Context, groupID uuid.UUID) (int, error) {
	if groupID == uuid.Nil {
		return 0, validationError("recurrence_group_id is required")
	}
	n, err := s.repo.DeleteRecurringSequence(ctx, groupID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, store.ErrNotFound
	}
	return n, nil
}

// SeriesAppointments returns the series record and its instances. Groups
// created before series records existed return a zero series.
func (s *Service) SeriesAppointments(ctx context.Context, groupID uuid.UUID) (domain.RecurrenceSeries, []domain.Appointment, error) {
	if groupID == uuid.Nil {
		return domain.RecurrenceSeries{}, nil, validationError("recurrence_group_id is required")
	}
	rows, err := s.repo.FindRecurring(ctx, groupID)
	if err != nil {
		return domain.RecurrenceSeries{}, nil, err
	}
	series, err := s.repo.FindSeries(ctx, groupID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.RecurrenceSeries{}, nil, err
	}
	if len(rows) == 0 && errors.Is(err, store.ErrNotFound) {
		return domain.RecurrenceSeries{}, nil, store.ErrNotFound
	}
	return series, rows, nil
}

// OccurrenceUpdate edits one instance. Nil fields are left alone.
type OccurrenceUpdate struct {
	StartTime *time.Time
	EndTime   *time.Time
	Notes     *string
}

// UpdateOccurrence edits a single appointment. Instances of a series are
// marked as exceptions so later series-wide reads can tell them apart.
func (s *Service) UpdateOccurrence(ctx context.Context, id uuid.UUID, upd OccurrenceUpdate) (domain.Appointment, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status.Terminal() {
		return domain.Appointment{}, validationError(fmt.Sprintf("cannot edit a %s appointment", appt.Status))
	}

	if upd.StartTime != nil {
		appt.StartTime = upd.StartTime.UTC()
	}
	if upd.EndTime != nil {
		appt.EndTime = upd.EndTime.UTC()
	}
	if upd.Notes != nil {
		appt.Notes = *upd.Notes
	}
	if !appt.EndTime.After(appt.StartTime) {
		return domain.Appointment{}, validationError(domain.ErrInvalidDuration.Error())
	}
	if appt.InSeries() {
		appt.IsException = true
	}
	return s.repo.Update(ctx, appt)
}
