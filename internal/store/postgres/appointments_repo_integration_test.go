package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/store"
)

func TestPostgresIntegration_AppointmentLifecycle(t *testing.T) {
	db := openScratchSchema(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	applied, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("second Migrate applied %v, want nothing", applied)
	}

	repo := NewAppointmentRepo(db)

	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	a1, err := repo.Create(ctx, domain.Appointment{
		ID:         uuid.MustParse("00000000-0000-0000-0000-000000000901"),
		ProviderID: "p1",
		ClientID:   "c1",
		ServiceID:  "s1",
		StartTime:  start,
		EndTime:    end,
		Status:     domain.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	rows, err := repo.FindByProvider(ctx, "p1", start.Add(-time.Minute), end.Add(time.Minute))
	if err != nil {
		t.Fatalf("FindByProvider error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != a1.ID {
		t.Fatalf("rows = %v, want [%s]", rows, a1.ID)
	}

	_, err = repo.Create(ctx, domain.Appointment{
		ID:         uuid.MustParse("00000000-0000-0000-0000-000000000902"),
		ProviderID: "p1",
		StartTime:  start.Add(30 * time.Minute),
		EndTime:    end.Add(30 * time.Minute),
		Status:     domain.StatusScheduled,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want %v", err, store.ErrConflict)
	}

	if _, err := repo.Create(ctx, domain.Appointment{
		ProviderID: "p1",
		StartTime:  end,
		EndTime:    end.Add(time.Hour),
		Status:     domain.StatusScheduled,
	}); err != nil {
		t.Fatalf("adjacent Create error: %v", err)
	}

	again, err := repo.Create(ctx, domain.Appointment{
		ID:         a1.ID,
		ProviderID: "p1",
		ClientID:   "c1",
		ServiceID:  "s1",
		StartTime:  start,
		EndTime:    end,
		Status:     domain.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("idempotent Create error: %v", err)
	}
	if again.ID != a1.ID {
		t.Fatalf("idempotent id = %s, want %s", again.ID, a1.ID)
	}

	_, err = repo.Create(ctx, domain.Appointment{
		ID:         a1.ID,
		ProviderID: "p1",
		ClientID:   "other",
		StartTime:  start,
		EndTime:    end,
		Status:     domain.StatusScheduled,
	})
	if !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("idempotency err = %v, want %v", err, store.ErrIdempotencyConflict)
	}

	// The exclusion constraint still rejects overlaps written around the repository.
	raw := domain.Appointment{
		ProviderID: "p1",
		StartTime:  start.Add(15 * time.Minute),
		EndTime:    start.Add(45 * time.Minute),
		Status:     domain.StatusScheduled,
	}
	_, err = db.NewInsert().Model(&raw).Exec(ctx)
	if !errors.Is(translateError(err), store.ErrConflict) {
		t.Fatalf("raw overlap err = %v, want exclusion violation", err)
	}

	hit, err := repo.CheckConflicts(ctx, "p1", start.Add(10*time.Minute), start.Add(20*time.Minute), uuid.Nil)
	if err != nil || !hit {
		t.Fatalf("CheckConflicts = %v, %v; want true", hit, err)
	}
	hit, err = repo.CheckConflicts(ctx, "p1", start.Add(10*time.Minute), start.Add(20*time.Minute), a1.ID)
	if err != nil || hit {
		t.Fatalf("CheckConflicts excluding self = %v, %v; want false", hit, err)
	}
}

func TestPostgresIntegration_RecurringSeries(t *testing.T) {
	db := openScratchSchema(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	repo := NewAppointmentRepo(db)

	base := domain.Appointment{
		ID:         uuid.MustParse("00000000-0000-0000-0000-000000000911"),
		ProviderID: "p2",
		ClientID:   "c2",
		StartTime:  time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 2, 2, 9, 45, 0, 0, time.UTC),
		Status:     domain.StatusScheduled,
	}
	pattern := domain.RecurrencePattern{
		Frequency:   domain.FrequencyWeekly,
		Interval:    1,
		Occurrences: 4,
		DaysOfWeek:  []time.Weekday{time.Monday, time.Thursday},
	}
	occs, err := domain.GenerateOccurrences(base, pattern)
	if err != nil {
		t.Fatalf("GenerateOccurrences error: %v", err)
	}

	created, err := repo.CreateRecurring(ctx, domain.NewRecurrenceSeries(base, pattern, "UTC"), occs)
	if err != nil {
		t.Fatalf("CreateRecurring error: %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("len(created) = %d, want 4", len(created))
	}

	series, err := repo.FindSeries(ctx, base.ID)
	if err != nil {
		t.Fatalf("FindSeries error: %v", err)
	}
	if got := series.Pattern().DaysOfWeek; len(got) != 2 || got[1] != time.Thursday {
		t.Fatalf("stored days = %v", got)
	}

	clash := base
	clash.ID = uuid.MustParse("00000000-0000-0000-0000-000000000912")
	clash.StartTime = base.StartTime.Add(30 * time.Minute)
	clash.EndTime = base.EndTime.Add(30 * time.Minute)
	daily := domain.RecurrencePattern{Frequency: domain.FrequencyDaily, Interval: 1, Occurrences: 2}
	clashOccs, err := domain.GenerateOccurrences(clash, daily)
	if err != nil {
		t.Fatalf("GenerateOccurrences error: %v", err)
	}
	_, err = repo.CreateRecurring(ctx, domain.NewRecurrenceSeries(clash, daily, "UTC"), clashOccs)
	var seriesErr *domain.SeriesConflictError
	if !errors.As(err, &seriesErr) || !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlapping series err = %v, want series conflict", err)
	}
	if len(seriesErr.Occurrences) != 1 {
		t.Fatalf("conflicting occurrences = %d, want 1", len(seriesErr.Occurrences))
	}

	n, err := repo.MarkNoShows(ctx, occs[1].EndTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("MarkNoShows error: %v", err)
	}
	if n != 2 {
		t.Fatalf("MarkNoShows = %d, want 2", n)
	}

	deleted, err := repo.DeleteRecurringSequence(ctx, base.ID)
	if err != nil {
		t.Fatalf("DeleteRecurringSequence error: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("deleted = %d, want 4", deleted)
	}
	if _, err := repo.FindSeries(ctx, base.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindSeries after delete = %v, want ErrNotFound", err)
	}
}

// openScratchSchema connects to a fresh schema that is dropped when the test
// ends.
func openScratchSchema(t *testing.T) *bun.DB {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("CARECRM_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CARECRM_TEST_DATABASE_URL not set")
	}

	admin, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = admin.Close()
	})

	schema := "carecrm_test_" + randomHex(t, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	u, err := url.Parse(databaseURL)
	if err != nil {
		t.Fatalf("parse database url: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()

	db, err := Open(u.String(), PoolConfig{MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("Open scratch error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
