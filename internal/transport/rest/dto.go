package rest

import (
	"time"

	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/service/appointments"
)

type appointmentJSON struct {
	ID                 string     `json:"id"`
	ProviderID         string     `json:"provider_id"`
	ClientID           string     `json:"client_id,omitempty"`
	ClientName         string     `json:"client_name,omitempty"`
	ServiceID          string     `json:"service_id,omitempty"`
	ServiceName        string     `json:"service_name,omitempty"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             string     `json:"status"`
	Notes              string     `json:"notes,omitempty"`
	Color              string     `json:"color,omitempty"`
	IsRecurring        bool       `json:"is_recurring"`
	IsBlocked          bool       `json:"is_blocked"`
	IsDraggable        bool       `json:"is_draggable"`
	IsResizable        bool       `json:"is_resizable"`
	RecurrenceGroupID  string     `json:"recurrence_group_id,omitempty"`
	IsException        bool       `json:"is_exception"`
	MinDurationMinutes int        `json:"min_duration_minutes"`
	MaxDurationMinutes int        `json:"max_duration_minutes"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

func toAppointmentJSON(a domain.Appointment) appointmentJSON {
	out := appointmentJSON{
		ID:                 a.ID.String(),
		ProviderID:         a.ProviderID,
		ClientID:           a.ClientID,
		ClientName:         a.ClientName,
		ServiceID:          a.ServiceID,
		ServiceName:        a.ServiceName,
		StartTime:          a.StartTime.UTC(),
		EndTime:            a.EndTime.UTC(),
		DurationMinutes:    a.DurationMinutes(),
		Status:             string(a.Status),
		Notes:              a.Notes,
		Color:              a.Color,
		IsRecurring:        a.IsRecurring,
		IsBlocked:          a.IsBlocked,
		IsDraggable:        a.IsDraggable,
		IsResizable:        a.IsResizable,
		IsException:        a.IsException,
		MinDurationMinutes: a.MinDuration(),
		MaxDurationMinutes: a.MaxDuration(),
		CancellationReason: a.CancellationReason,
		CancelledAt:        a.CancelledAt,
	}
	if a.RecurrenceGroupID != nil {
		out.RecurrenceGroupID = a.RecurrenceGroupID.String()
	}
	if !a.CreatedAt.IsZero() {
		t := a.CreatedAt.UTC()
		out.CreatedAt = &t
	}
	if !a.UpdatedAt.IsZero() {
		t := a.UpdatedAt.UTC()
		out.UpdatedAt = &t
	}
	return out
}

func toAppointmentsJSON(appts []domain.Appointment) []appointmentJSON {
	out := make([]appointmentJSON, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentJSON(a))
	}
	return out
}

type appointmentInputJSON struct {
	ProviderID         string    `json:"provider_id"`
	ClientID           string    `json:"client_id"`
	ClientName         string    `json:"client_name"`
	ServiceID          string    `json:"service_id"`
	ServiceName        string    `json:"service_name"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	Status             string    `json:"status"`
	Notes              string    `json:"notes"`
	Color              string    `json:"color"`
	IsBlocked          bool      `json:"is_blocked"`
	MinDurationMinutes *int      `json:"min_duration_minutes"`
	MaxDurationMinutes *int      `json:"max_duration_minutes"`
}

func (in appointmentInputJSON) toInput(idempotencyKey string) appointments.AppointmentInput {
	return appointments.AppointmentInput{
		ProviderID:         in.ProviderID,
		ClientID:           in.ClientID,
		ClientName:         in.ClientName,
		ServiceID:          in.ServiceID,
		ServiceName:        in.ServiceName,
		StartTime:          in.StartTime,
		EndTime:            in.EndTime,
		Status:             domain.Status(in.Status),
		Notes:              in.Notes,
		Color:              in.Color,
		IsBlocked:          in.IsBlocked,
		MinDurationMinutes: in.MinDurationMinutes,
		MaxDurationMinutes: in.MaxDurationMinutes,
		IdempotencyKey:     idempotencyKey,
	}
}

type patternJSON struct {
	Frequency   string     `json:"frequency"`
	Interval    int        `json:"interval"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Occurrences int        `json:"occurrences,omitempty"`
	DaysOfWeek  []int      `json:"days_of_week,omitempty"`
	DayOfMonth  int        `json:"day_of_month,omitempty"`
}

func (p patternJSON) toPattern() domain.RecurrencePattern {
	out := domain.RecurrencePattern{
		Frequency:   domain.Frequency(p.Frequency),
		Interval:    p.Interval,
		EndDate:     p.EndDate,
		Occurrences: p.Occurrences,
		DayOfMonth:  p.DayOfMonth,
	}
	for _, d := range p.DaysOfWeek {
		out.DaysOfWeek = append(out.DaysOfWeek, time.Weekday(d))
	}
	return out
}

type seriesJSON struct {
	ID       string      `json:"id"`
	Pattern  patternJSON `json:"pattern"`
	TimeZone string      `json:"time_zone,omitempty"`
	RRule    string      `json:"rrule,omitempty"`
}

func toSeriesJSON(s domain.RecurrenceSeries) seriesJSON {
	return seriesJSON{
		ID: s.ID.String(),
		Pattern: patternJSON{
			Frequency:   string(s.Frequency),
			Interval:    s.Interval,
			EndDate:     s.EndDate,
			Occurrences: s.Occurrences,
			DaysOfWeek:  s.DaysOfWeek,
			DayOfMonth:  s.DayOfMonth,
		},
		TimeZone: s.TimeZone,
		RRule:    s.RRule,
	}
}

type recurringRequest struct {
	Appointment appointmentInputJSON `json:"appointment"`
	Pattern     patternJSON          `json:"pattern"`
	TimeZone    string               `json:"time_zone"`
}

type validateRequest struct {
	Appointment          appointmentInputJSON `json:"appointment"`
	ExcludeAppointmentID string               `json:"exclude_appointment_id"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type resizeRequest struct {
	Direction          string `json:"direction"`
	NewDurationMinutes int    `json:"new_duration_minutes"`
}

type moveRequest struct {
	StartTime time.Time `json:"start_time"`
}

type occurrenceRequest struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Notes     *string    `json:"notes"`
}

type blockJSON struct {
	UID       string    `json:"uid"`
	Summary   string    `json:"summary,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}
