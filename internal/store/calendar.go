package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carecrm/backend/internal/domain"
)

// ProviderTx is the set of writes performed while a provider's calendar is
// locked.
type ProviderTx interface {
	ListAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	FindAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	InsertSeries(ctx context.Context, series domain.RecurrenceSeries) (domain.RecurrenceSeries, error)
}
