package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"carecrm/backend/internal/calendar"
	"carecrm/backend/internal/domain"
	"carecrm/backend/internal/store"
)

// ImportResult reports what an iCalendar import did. Overlapping blocks are
// left out of the schedule and listed in Skipped; events the parser could
// not read are listed by UID in Unreadable.
type ImportResult struct {
	Created    []domain.Appointment
	Skipped    []calendar.Block
	Unreadable []string
}

// ImportBlockedTime stores the busy intervals of an iCalendar body, expanded
// within the window, as blocked time on the provider's calendar. Re-importing
// the same calendar is a no-op for blocks already stored.
func (s *Service) ImportBlockedTime(ctx context.Context, providerID string, body []byte, windowStart, windowEnd time.Time) (ImportResult, error) {
	if err := checkWindow("provider_id", providerID, windowStart, windowEnd); err != nil {
		return ImportResult{}, err
	}
	providerID = strings.TrimSpace(providerID)

	blocks, unreadable, err := calendar.ParseBlocks(body, calendar.ImportWindow{
		Start:    windowStart.UTC(),
		End:      windowEnd.UTC(),
		Location: s.loc,
	})
	if err != nil {
		return ImportResult{}, validationError(err.Error())
	}

	out := ImportResult{Unreadable: unreadable}
	for _, b := range blocks {
		appt := domain.Appointment{
			ID:         blockID(providerID, b),
			ProviderID: providerID,
			StartTime:  b.Start.UTC(),
			EndTime:    b.End.UTC(),
			Status:     domain.StatusScheduled,
			Notes:      b.Summary,
			IsBlocked:  true,
		}
		created, err := s.repo.Create(ctx, appt)
		switch {
		case err == nil:
			out.Created = append(out.Created, created)
		case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrIdempotencyConflict):
			out.Skipped = append(out.Skipped, b)
		default:
			return out, err
		}
	}
	return out, nil
}

func blockID(providerID string, b calendar.Block) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("carecrm:block:"+providerID+":"+b.UID+":"+b.Start.UTC().Format(time.RFC3339)))
}
