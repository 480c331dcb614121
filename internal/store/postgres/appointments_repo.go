package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"carecrm/backend/internal/store"
	"carecrm/backend/internal/store/bunstore"
)

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"

	overlapConstraint = "appointments_no_overlap"
)

// NewAppointmentRepo returns the shared bun repository configured with
// PostgreSQL advisory locks and error translation.
func NewAppointmentRepo(db *bun.DB) *bunstore.AppointmentRepo {
	return bunstore.NewAppointmentRepo(db, Dialect())
}

func Dialect() bunstore.Dialect {
	return bunstore.Dialect{
		LockProvider:   lockProviderCalendar,
		TranslateError: translateError,
	}
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == codeExclusionViolation && pgErr.ConstraintName == overlapConstraint:
		return store.ErrConflict
	case pgErr.Code == codeUniqueViolation:
		return store.ErrIdempotencyConflict
	}
	return err
}
