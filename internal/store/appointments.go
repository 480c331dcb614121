package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carecrm/backend/internal/domain"
)

// AppointmentRepository is the persistence boundary of the scheduling core.
// Create, CreateRecurring and Update re-check provider conflicts under a
// per-provider lock and fail with an error matching ErrConflict.
type AppointmentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	FindByProvider(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	FindByClient(ctx context.Context, clientID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	FindRecurring(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error)
	FindSeries(ctx context.Context, groupID uuid.UUID) (domain.RecurrenceSeries, error)

	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	CreateRecurring(ctx context.Context, series domain.RecurrenceSeries, occurrences []domain.Appointment) ([]domain.Appointment, error)
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteRecurringSequence(ctx context.Context, groupID uuid.UUID) (int, error)

	CheckConflicts(ctx context.Context, providerID string, start, end time.Time, excludeID uuid.UUID) (bool, error)

	// MarkNoShows flags scheduled appointments that ended before cutoff.
	MarkNoShows(ctx context.Context, cutoff time.Time) (int, error)
}
