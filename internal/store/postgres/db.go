// Package postgres runs the appointment store on PostgreSQL through the pgx
// driver. Writes are serialized per provider with advisory locks and the
// migrations add an exclusion constraint as a second line.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const connectTimeout = 10 * time.Second

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SlowQuery logs statements that take at least this long. Zero disables
	// the hook.
	SlowQuery time.Duration
	Logger    *slog.Logger
}

func (p PoolConfig) apply(db *sql.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
	if p.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	}
}

func Open(databaseURL string, pool PoolConfig) (*bun.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("postgres: database url is empty")
	}
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	pool.apply(sqlDB)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if pool.SlowQuery > 0 {
		db.AddQueryHook(newSlowQueryHook(pool.Logger, pool.SlowQuery))
	}
	return db, nil
}

type slowQueryHook struct {
	log       *slog.Logger
	threshold time.Duration
	since     func(time.Time) time.Duration
}

func newSlowQueryHook(log *slog.Logger, threshold time.Duration) slowQueryHook {
	if log == nil {
		log = slog.Default()
	}
	return slowQueryHook{
		log:       log.With(slog.String("component", "store.postgres")),
		threshold: threshold,
		since:     time.Since,
	}
}

func (h slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery logs the operation and elapsed time only. Query text may carry
// patient names, so it is left out.
func (h slowQueryHook) AfterQuery(ctx context.Context, ev *bun.QueryEvent) {
	elapsed := h.since(ev.StartTime)
	if elapsed < h.threshold {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", ev.Operation()),
		slog.Duration("elapsed", elapsed),
	}
	if ev.Err != nil && !errors.Is(ev.Err, sql.ErrNoRows) {
		attrs = append(attrs, slog.Any("err", ev.Err))
	}
	h.log.LogAttrs(ctx, slog.LevelWarn, "slow query", attrs...)
}
