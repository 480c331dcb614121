package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/store"
)

// Dialect holds the driver-specific pieces of the repository.
type Dialect struct {
	// LockProvider serializes writers for one provider inside tx. Nil when the
	// driver already serializes write transactions.
	LockProvider func(ctx context.Context, tx bun.Tx, providerID string) error
	// TranslateError maps driver errors onto store errors. Nil leaves them as is.
	TranslateError func(err error) error
}

type AppointmentRepo struct {
	db      *bun.DB
	dialect Dialect
}

func NewAppointmentRepo(db *bun.DB, dialect Dialect) *AppointmentRepo {
	return &AppointmentRepo{db: db, dialect: dialect}
}

type providerTx struct {
	tx        bun.Tx
	translate func(error) error
}

func (r *AppointmentRepo) translate(err error) error {
	if err == nil || r.dialect.TranslateError == nil {
		return err
	}
	return r.dialect.TranslateError(err)
}

func (r *AppointmentRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentRepo) FindByProvider(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listOverlapping(ctx, r.db, "provider_id", providerID, windowStart, windowEnd)
}

func (r *AppointmentRepo) FindByClient(ctx context.Context, clientID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listOverlapping(ctx, r.db, "client_id", clientID, windowStart, windowEnd)
}

func listOverlapping(ctx context.Context, db bun.IDB, column, value string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("? = ?", bun.Ident(column), value).
		Where("start_time < ?", windowEnd.UTC()).
		Where("end_time > ?", windowStart.UTC()).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) FindRecurring(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("recurrence_group_id = ?", groupID).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) FindSeries(ctx context.Context, groupID uuid.UUID) (domain.RecurrenceSeries, error) {
	var s domain.RecurrenceSeries
	err := r.db.NewSelect().
		Model(&s).
		Where("id = ?", groupID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RecurrenceSeries{}, store.ErrNotFound
		}
		return domain.RecurrenceSeries{}, err
	}
	return s, nil
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	appt = normalize(appt)

	var out domain.Appointment
	err := r.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		a, err := createAppointment(ctx, tx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) CreateRecurring(ctx context.Context, series domain.RecurrenceSeries, occurrences []domain.Appointment) ([]domain.Appointment, error) {
	if len(occurrences) == 0 {
		return nil, errors.New("recurring series has no occurrences")
	}
	normalized := make([]domain.Appointment, 0, len(occurrences))
	for _, o := range occurrences {
		normalized = append(normalized, normalize(o))
	}

	var out []domain.Appointment
	err := r.InProviderTransaction(ctx, series.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		if err := ensureNoSeriesConflicts(ctx, tx, normalized); err != nil {
			return err
		}
		if _, err := tx.InsertSeries(ctx, series); err != nil {
			return err
		}
		out = make([]domain.Appointment, 0, len(normalized))
		for _, o := range normalized {
			a, err := tx.InsertAppointment(ctx, o)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AppointmentRepo) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	appt = normalize(appt)

	var out domain.Appointment
	err := r.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		if _, err := tx.FindAppointment(ctx, appt.ID); err != nil {
			return err
		}
		if err := ensureNoConflicts(ctx, tx, appt); err != nil {
			return err
		}
		a, err := tx.UpdateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepo) DeleteRecurringSequence(ctx context.Context, groupID uuid.UUID) (int, error) {
	var deleted int64
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*domain.Appointment)(nil)).
			Where("recurrence_group_id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*domain.RecurrenceSeries)(nil)).
			Where("id = ?", groupID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

func (r *AppointmentRepo) CheckConflicts(ctx context.Context, providerID string, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	q := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("provider_id = ?", providerID).
		Where("status <> ?", domain.StatusCancelled).
		Where("start_time < ?", end.UTC()).
		Where("end_time > ?", start.UTC())
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	return q.Exists(ctx)
}

func (r *AppointmentRepo) MarkNoShows(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", domain.StatusNoShow).
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", domain.StatusScheduled).
		Where("is_blocked = ?", false).
		Where("end_time < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// InProviderTransaction runs fn in a transaction holding providerID's lock.
func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if r.dialect.LockProvider != nil {
			if err := r.dialect.LockProvider(ctx, tx, providerID); err != nil {
				return fmt.Errorf("lock provider calendar: %w", err)
			}
		}
		return fn(ctx, providerTx{tx: tx, translate: r.translate})
	})
}

func (p providerTx) ListAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listOverlapping(ctx, p.tx, "provider_id", providerID, windowStart, windowEnd)
}

func (p providerTx) FindAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := p.tx.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func (p providerTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt.Clone()
	if _, err := p.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, p.translate(err)
	}
	return m, nil
}

func (p providerTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt.Clone()
	res, err := p.tx.NewUpdate().
		Model(&m).
		WherePK().
		ExcludeColumn("created_at").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, p.translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (p providerTx) InsertSeries(ctx context.Context, series domain.RecurrenceSeries) (domain.RecurrenceSeries, error) {
	m := series
	if _, err := p.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.RecurrenceSeries{}, p.translate(err)
	}
	return m, nil
}

func createAppointment(ctx context.Context, tx store.ProviderTx, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID != uuid.Nil {
		existing, err := tx.FindAppointment(ctx, appt.ID)
		switch {
		case err == nil:
			if !sameBooking(existing, appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return domain.Appointment{}, err
		}
	}
	if err := ensureNoConflicts(ctx, tx, appt); err != nil {
		return domain.Appointment{}, err
	}
	return tx.InsertAppointment(ctx, appt)
}

func sameBooking(a, b domain.Appointment) bool {
	return a.ProviderID == b.ProviderID &&
		a.ClientID == b.ClientID &&
		a.ServiceID == b.ServiceID &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}

func ensureNoConflicts(ctx context.Context, tx store.ProviderTx, appt domain.Appointment) error {
	if appt.Status == domain.StatusCancelled {
		return nil
	}
	rows, err := tx.ListAppointments(ctx, appt.ProviderID, appt.StartTime, appt.EndTime)
	if err != nil {
		return err
	}
	res := domain.CheckConflicts(appt.ProviderID, appt.StartTime, appt.EndTime, rows, appt.ID)
	if res.HasConflict {
		return &domain.ConflictError{Conflicts: res.Conflicts}
	}
	return nil
}

func ensureNoSeriesConflicts(ctx context.Context, tx store.ProviderTx, occurrences []domain.Appointment) error {
	sorted := append([]domain.Appointment(nil), occurrences...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	windowStart := sorted[0].StartTime
	windowEnd := sorted[0].EndTime
	for _, o := range sorted {
		if o.EndTime.After(windowEnd) {
			windowEnd = o.EndTime
		}
	}

	rows, err := tx.ListAppointments(ctx, sorted[0].ProviderID, windowStart, windowEnd)
	if err != nil {
		return err
	}
	if conflicts := domain.CheckSeriesConflicts(sorted, rows); len(conflicts) > 0 {
		return &domain.SeriesConflictError{Occurrences: conflicts}
	}
	return nil
}

func normalize(a domain.Appointment) domain.Appointment {
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	return a
}
