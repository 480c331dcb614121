package bunstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/store"
	"carecrm/backend/internal/store/bunstore"
	"carecrm/backend/internal/store/sqlite"
)

func newSQLiteRepo(t *testing.T) *bunstore.AppointmentRepo {
	t.Helper()
	db, err := sqlite.Open("file::memory:")
	if err != nil {
		t.Fatalf("sqlite.Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlite.Close(db)
	})
	if err := sqlite.EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	return sqlite.NewAppointmentRepo(db)
}

func TestSQLiteRepo_CreateFindUpdateDelete(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	a, err := repo.Create(ctx, domain.Appointment{
		ProviderID:  "p1",
		ClientID:    "c1",
		ClientName:  "Ada",
		ServiceID:   "s1",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      domain.StatusScheduled,
		IsResizable: true,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}

	got, err := repo.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if got.ClientName != "Ada" || !got.StartTime.Equal(start) {
		t.Fatalf("FindByID = %+v", got)
	}

	byClient, err := repo.FindByClient(ctx, "c1", start.Add(-time.Hour), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("FindByClient error: %v", err)
	}
	if len(byClient) != 1 {
		t.Fatalf("len(byClient) = %d, want 1", len(byClient))
	}

	got.EndTime = start.Add(90 * time.Minute)
	got.IsException = true
	if _, err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	reloaded, err := repo.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if reloaded.DurationMinutes() != 90 {
		t.Fatalf("duration = %d, want 90", reloaded.DurationMinutes())
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.FindByID(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindByID after delete = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepo_RejectsOverlapButAllowsAdjacentAndCancelled(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	first, err := repo.Create(ctx, domain.Appointment{
		ProviderID: "p1", StartTime: start, EndTime: start.Add(time.Hour), Status: domain.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err = repo.Create(ctx, domain.Appointment{
		ProviderID: "p1", StartTime: start.Add(30 * time.Minute), EndTime: start.Add(90 * time.Minute), Status: domain.StatusScheduled,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want ErrConflict", err)
	}

	if _, err := repo.Create(ctx, domain.Appointment{
		ProviderID: "p1", StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour), Status: domain.StatusScheduled,
	}); err != nil {
		t.Fatalf("adjacent Create error: %v", err)
	}

	if _, err := repo.Create(ctx, domain.Appointment{
		ProviderID: "p2", StartTime: start, EndTime: start.Add(time.Hour), Status: domain.StatusScheduled,
	}); err != nil {
		t.Fatalf("other provider Create error: %v", err)
	}

	first.Status = domain.StatusCancelled
	if _, err := repo.Update(ctx, first); err != nil {
		t.Fatalf("cancel Update error: %v", err)
	}
	if _, err := repo.Create(ctx, domain.Appointment{
		ProviderID: "p1", StartTime: start, EndTime: start.Add(time.Hour), Status: domain.StatusScheduled,
	}); err != nil {
		t.Fatalf("Create over cancelled error: %v", err)
	}

	hit, err := repo.CheckConflicts(ctx, "p1", start.Add(15*time.Minute), start.Add(30*time.Minute), uuid.Nil)
	if err != nil || !hit {
		t.Fatalf("CheckConflicts = %v, %v; want true", hit, err)
	}
}

func TestSQLiteRepo_RecurringSeriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	base := domain.Appointment{
		ID:         uuid.MustParse("00000000-0000-0000-0000-000000000401"),
		ProviderID: "p1",
		ClientID:   "c1",
		StartTime:  time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC),
		Status:     domain.StatusScheduled,
	}
	pattern := domain.RecurrencePattern{Frequency: domain.FrequencyMonthly, Interval: 1, Occurrences: 3}
	occs, err := domain.GenerateOccurrences(base, pattern)
	if err != nil {
		t.Fatalf("GenerateOccurrences error: %v", err)
	}

	if _, err := repo.CreateRecurring(ctx, domain.NewRecurrenceSeries(base, pattern, "UTC"), occs); err != nil {
		t.Fatalf("CreateRecurring error: %v", err)
	}

	rows, err := repo.FindRecurring(ctx, base.ID)
	if err != nil {
		t.Fatalf("FindRecurring error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	for i, r := range rows {
		if !r.StartTime.Equal(occs[i].StartTime) {
			t.Fatalf("rows[%d].StartTime = %v, want %v", i, r.StartTime, occs[i].StartTime)
		}
		if r.RecurrenceGroupID == nil || *r.RecurrenceGroupID != base.ID {
			t.Fatalf("rows[%d] group = %v, want %s", i, r.RecurrenceGroupID, base.ID)
		}
	}

	series, err := repo.FindSeries(ctx, base.ID)
	if err != nil {
		t.Fatalf("FindSeries error: %v", err)
	}
	if series.Frequency != domain.FrequencyMonthly || series.Occurrences != 3 {
		t.Fatalf("series = %+v", series)
	}

	n, err := repo.MarkNoShows(ctx, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))
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
	if deleted != 3 {
		t.Fatalf("deleted = %d, want 3", deleted)
	}
	if _, err := repo.FindSeries(ctx, base.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindSeries after delete = %v, want ErrNotFound", err)
	}
}
