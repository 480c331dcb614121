package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                 uuid.UUID  `bun:"id,pk,type:uuid"`
	ProviderID         string     `bun:"provider_id,notnull"`
	ClientID           string     `bun:"client_id"`
	ClientName         string     `bun:"client_name"`
	ServiceID          string     `bun:"service_id"`
	ServiceName        string     `bun:"service_name"`
	StartTime          time.Time  `bun:"start_time,notnull"`
	EndTime            time.Time  `bun:"end_time,notnull"`
	Status             Status     `bun:"status,notnull"`
	Notes              string     `bun:"notes"`
	Color              string     `bun:"color"`
	IsRecurring        bool       `bun:"is_recurring"`
	IsBlocked          bool       `bun:"is_blocked"`
	IsDraggable        bool       `bun:"is_draggable"`
	IsResizable        bool       `bun:"is_resizable"`
	RecurrenceGroupID  *uuid.UUID `bun:"recurrence_group_id,type:uuid"`
	IsException        bool       `bun:"is_exception"`
	MinDurationMinutes *int       `bun:"min_duration_minutes"`
	MaxDurationMinutes *int       `bun:"max_duration_minutes"`
	CancellationReason string     `bun:"cancellation_reason"`
	CancelledAt        *time.Time `bun:"cancelled_at"`
	CreatedAt          time.Time  `bun:"created_at,notnull"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull"`

	// Gesture state owned by the calendar UI; never persisted.
	IsDragging bool `bun:"-"`
	IsResizing bool `bun:"-"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Duration is the length of the appointment.
func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// DurationMinutes is Duration rounded down to whole minutes.
func (a Appointment) DurationMinutes() int {
	return int(a.Duration() / time.Minute)
}

// MinDuration returns the appointment's lower duration bound in minutes,
// falling back to DefaultMinDurationMinutes.
func (a Appointment) MinDuration() int {
	if a.MinDurationMinutes != nil && *a.MinDurationMinutes > 0 {
		return *a.MinDurationMinutes
	}
	return DefaultMinDurationMinutes
}

// MaxDuration returns the appointment's upper duration bound in minutes,
// falling back to DefaultMaxDurationMinutes.
func (a Appointment) MaxDuration() int {
	if a.MaxDurationMinutes != nil && *a.MaxDurationMinutes > 0 {
		return *a.MaxDurationMinutes
	}
	return DefaultMaxDurationMinutes
}

// InSeries reports whether the appointment belongs to a recurrence group.
func (a Appointment) InSeries() bool {
	return a.RecurrenceGroupID != nil && *a.RecurrenceGroupID != uuid.Nil
}

// Clone returns a copy that shares no pointers with a.
func (a Appointment) Clone() Appointment {
	out := a
	out.RecurrenceGroupID = cloneUUID(a.RecurrenceGroupID)
	out.MinDurationMinutes = cloneInt(a.MinDurationMinutes)
	out.MaxDurationMinutes = cloneInt(a.MaxDurationMinutes)
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		out.CancelledAt = &t
	}
	return out
}

func cloneUUID(p *uuid.UUID) *uuid.UUID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
