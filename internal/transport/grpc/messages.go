package grpc

import (
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/service/appointments"
)

// Messages of carecrm.v1.AppointmentsService. Timestamps travel as
// google.protobuf.Timestamp seconds/nanos pairs.

type Appointment struct {
	ID                 string                 `json:"id"`
	ProviderID         string                 `json:"provider_id"`
	ClientID           string                 `json:"client_id,omitempty"`
	ClientName         string                 `json:"client_name,omitempty"`
	ServiceID          string                 `json:"service_id,omitempty"`
	ServiceName        string                 `json:"service_name,omitempty"`
	StartTime          *timestamppb.Timestamp `json:"start_time"`
	EndTime            *timestamppb.Timestamp `json:"end_time"`
	Status             string                 `json:"status"`
	Notes              string                 `json:"notes,omitempty"`
	Color              string                 `json:"color,omitempty"`
	IsRecurring        bool                   `json:"is_recurring"`
	IsBlocked          bool                   `json:"is_blocked"`
	IsDraggable        bool                   `json:"is_draggable"`
	IsResizable        bool                   `json:"is_resizable"`
	RecurrenceGroupID  string                 `json:"recurrence_group_id,omitempty"`
	IsException        bool                   `json:"is_exception"`
	MinDurationMinutes int32                  `json:"min_duration_minutes"`
	MaxDurationMinutes int32                  `json:"max_duration_minutes"`
	CancellationReason string                 `json:"cancellation_reason,omitempty"`
	CancelledAt        *timestamppb.Timestamp `json:"cancelled_at,omitempty"`
	CreatedAt          *timestamppb.Timestamp `json:"created_at,omitempty"`
	UpdatedAt          *timestamppb.Timestamp `json:"updated_at,omitempty"`
}

type AppointmentInput struct {
	ProviderID         string                 `json:"provider_id"`
	ClientID           string                 `json:"client_id"`
	ClientName         string                 `json:"client_name,omitempty"`
	ServiceID          string                 `json:"service_id"`
	ServiceName        string                 `json:"service_name,omitempty"`
	StartTime          *timestamppb.Timestamp `json:"start_time"`
	EndTime            *timestamppb.Timestamp `json:"end_time"`
	Status             string                 `json:"status,omitempty"`
	Notes              string                 `json:"notes,omitempty"`
	Color              string                 `json:"color,omitempty"`
	IsBlocked          bool                   `json:"is_blocked,omitempty"`
	MinDurationMinutes *int32                 `json:"min_duration_minutes,omitempty"`
	MaxDurationMinutes *int32                 `json:"max_duration_minutes,omitempty"`
}

type RecurrencePattern struct {
	Frequency   string                 `json:"frequency"`
	Interval    int32                  `json:"interval"`
	EndDate     *timestamppb.Timestamp `json:"end_date,omitempty"`
	Occurrences int32                  `json:"occurrences,omitempty"`
	DaysOfWeek  []int32                `json:"days_of_week,omitempty"`
	DayOfMonth  int32                  `json:"day_of_month,omitempty"`
}

type RecurrenceSeries struct {
	ID       string             `json:"id"`
	Pattern  *RecurrencePattern `json:"pattern"`
	TimeZone string             `json:"time_zone"`
	RRule    string             `json:"rrule,omitempty"`
}

type ScheduleAppointmentRequest struct {
	Appointment *AppointmentInput `json:"appointment"`
}

type ScheduleAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type ValidateAppointmentRequest struct {
	Appointment *AppointmentInput `json:"appointment"`
	// ExcludeAppointmentID skips the appointment being edited in the
	// conflict check.
	ExcludeAppointmentID string `json:"exclude_appointment_id,omitempty"`
}

type ValidateAppointmentResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

type ScheduleRecurringAppointmentRequest struct {
	Appointment *AppointmentInput  `json:"appointment"`
	Pattern     *RecurrencePattern `json:"pattern"`
	TimeZone    string             `json:"time_zone,omitempty"`
}

type ScheduleRecurringAppointmentResponse struct {
	Series       *RecurrenceSeries `json:"series"`
	Appointments []*Appointment    `json:"appointments"`
}

type GetAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type GetAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type CancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason,omitempty"`
}

type CancelAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type CancelRecurringSequenceRequest struct {
	RecurrenceGroupID string `json:"recurrence_group_id"`
}

type CancelRecurringSequenceResponse struct {
	Deleted int32 `json:"deleted"`
}

type DeleteAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type DeleteAppointmentResponse struct{}

type UpdateStatusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

type UpdateStatusResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type ResizeAppointmentRequest struct {
	AppointmentID      string `json:"appointment_id"`
	Direction          string `json:"direction"`
	NewDurationMinutes int32  `json:"new_duration_minutes"`
}

type ResizeAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type MoveAppointmentRequest struct {
	AppointmentID string                 `json:"appointment_id"`
	NewStartTime  *timestamppb.Timestamp `json:"new_start_time"`
}

type MoveAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type ListProviderScheduleRequest struct {
	ProviderID  string                 `json:"provider_id"`
	WindowStart *timestamppb.Timestamp `json:"window_start"`
	WindowEnd   *timestamppb.Timestamp `json:"window_end"`
}

type ListClientAppointmentsRequest struct {
	ClientID    string                 `json:"client_id"`
	WindowStart *timestamppb.Timestamp `json:"window_start"`
	WindowEnd   *timestamppb.Timestamp `json:"window_end"`
}

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

func toProtoAppointment(a domain.Appointment) *Appointment {
	out := &Appointment{
		ID:                 a.ID.String(),
		ProviderID:         a.ProviderID,
		ClientID:           a.ClientID,
		ClientName:         a.ClientName,
		ServiceID:          a.ServiceID,
		ServiceName:        a.ServiceName,
		StartTime:          timestamppb.New(a.StartTime),
		EndTime:            timestamppb.New(a.EndTime),
		Status:             string(a.Status),
		Notes:              a.Notes,
		Color:              a.Color,
		IsRecurring:        a.IsRecurring,
		IsBlocked:          a.IsBlocked,
		IsDraggable:        a.IsDraggable,
		IsResizable:        a.IsResizable,
		IsException:        a.IsException,
		MinDurationMinutes: int32(a.MinDuration()),
		MaxDurationMinutes: int32(a.MaxDuration()),
		CancellationReason: a.CancellationReason,
		CancelledAt:        optionalTimestamp(a.CancelledAt),
	}
	if a.RecurrenceGroupID != nil {
		out.RecurrenceGroupID = a.RecurrenceGroupID.String()
	}
	if !a.CreatedAt.IsZero() {
		out.CreatedAt = timestamppb.New(a.CreatedAt)
	}
	if !a.UpdatedAt.IsZero() {
		out.UpdatedAt = timestamppb.New(a.UpdatedAt)
	}
	return out
}

func toProtoAppointments(appts []domain.Appointment) []*Appointment {
	out := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, toProtoAppointment(a))
	}
	return out
}

func toProtoSeries(s domain.RecurrenceSeries) *RecurrenceSeries {
	p := s.Pattern()
	days := make([]int32, 0, len(p.DaysOfWeek))
	for _, d := range p.DaysOfWeek {
		days = append(days, int32(d))
	}
	return &RecurrenceSeries{
		ID: s.ID.String(),
		Pattern: &RecurrencePattern{
			Frequency:   string(p.Frequency),
			Interval:    int32(p.Interval),
			EndDate:     optionalTimestamp(p.EndDate),
			Occurrences: int32(p.Occurrences),
			DaysOfWeek:  days,
			DayOfMonth:  int32(p.DayOfMonth),
		},
		TimeZone: s.TimeZone,
		RRule:    s.RRule,
	}
}

func optionalTimestamp(t *time.Time) *timestamppb.Timestamp {
	if t == nil {
		return nil
	}
	return timestamppb.New(*t)
}

func fromProtoTime(ts *timestamppb.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.AsTime()
}

func fromProtoInput(in *AppointmentInput, idempotencyKey string) appointments.AppointmentInput {
	if in == nil {
		return appointments.AppointmentInput{IdempotencyKey: idempotencyKey}
	}
	return appointments.AppointmentInput{
		ProviderID:         in.ProviderID,
		ClientID:           in.ClientID,
		ClientName:         in.ClientName,
		ServiceID:          in.ServiceID,
		ServiceName:        in.ServiceName,
		StartTime:          fromProtoTime(in.StartTime),
		EndTime:            fromProtoTime(in.EndTime),
		Status:             domain.Status(in.Status),
		Notes:              in.Notes,
		Color:              in.Color,
		IsBlocked:          in.IsBlocked,
		MinDurationMinutes: optionalInt(in.MinDurationMinutes),
		MaxDurationMinutes: optionalInt(in.MaxDurationMinutes),
		IdempotencyKey:     idempotencyKey,
	}
}

func fromProtoPattern(p *RecurrencePattern) domain.RecurrencePattern {
	if p == nil {
		return domain.RecurrencePattern{}
	}
	out := domain.RecurrencePattern{
		Frequency:   domain.Frequency(p.Frequency),
		Interval:    int(p.Interval),
		Occurrences: int(p.Occurrences),
		DayOfMonth:  int(p.DayOfMonth),
	}
	if p.EndDate != nil {
		e := p.EndDate.AsTime()
		out.EndDate = &e
	}
	for _, d := range p.DaysOfWeek {
		out.DaysOfWeek = append(out.DaysOfWeek, time.Weekday(d))
	}
	return out
}

func optionalInt(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
