// Package sqlite backs the appointment store with an embedded SQLite file for
// single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/store/bunstore"
)

// Open connects to the SQLite database at dsn. A single connection is kept so
// that write transactions are serialized, which stands in for the provider
// locks PostgreSQL takes.
func Open(dsn string) (*bun.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// EnsureSchema creates the tables and indexes when they are missing.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*domain.RecurrenceSeries)(nil),
		(*domain.Appointment)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		name    string
		columns []string
	}{
		{name: "appointments_provider_start_idx", columns: []string{"provider_id", "start_time"}},
		{name: "appointments_client_start_idx", columns: []string{"client_id", "start_time"}},
		{name: "appointments_group_idx", columns: []string{"recurrence_group_id"}},
		{name: "appointments_status_end_idx", columns: []string{"status", "end_time"}},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model((*domain.Appointment)(nil)).
			Index(idx.name).
			IfNotExists().
			Column(idx.columns...).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// NewAppointmentRepo returns the shared bun repository. No provider lock is
// needed because Open allows one connection.
func NewAppointmentRepo(db *bun.DB) *bunstore.AppointmentRepo {
	return bunstore.NewAppointmentRepo(db, bunstore.Dialect{})
}
