// Package calendar converts provider schedules to and from iCalendar.
package calendar

import (
	"io"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"carecrm/backend/internal/domain"
)

const productID = "-//carecrm//scheduling//EN"

// FeedOptions controls provider feed export.
type FeedOptions struct {
	// Name is the calendar display name (X-WR-CALNAME).
	Name string
	// TimeZone is advertised as X-WR-TIMEZONE. Event times are always UTC.
	TimeZone string
	// UIDDomain is appended to appointment ids to build event UIDs.
	UIDDomain string
	// Now stamps DTSTAMP on events that carry no update time.
	Now time.Time
}

// ProviderFeed renders appts as a PUBLISH calendar ordered by start time.
// Cancelled appointments are exported with STATUS:CANCELLED so subscribers
// drop them.
func ProviderFeed(appts []domain.Appointment, opts FeedOptions) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetName(opts.Name)
		cal.SetXWRCalName(opts.Name)
	}
	if opts.TimeZone != "" {
		cal.SetXWRTimezone(opts.TimeZone)
	}
	domainPart := opts.UIDDomain
	if domainPart == "" {
		domainPart = "carecrm"
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	sorted := append([]domain.Appointment(nil), appts...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	for _, a := range sorted {
		ev := cal.AddEvent(a.ID.String() + "@" + domainPart)
		stamp := a.UpdatedAt
		if stamp.IsZero() {
			stamp = now
		}
		ev.SetDtStampTime(stamp)
		if !a.CreatedAt.IsZero() {
			ev.SetCreatedTime(a.CreatedAt)
		}
		if !a.UpdatedAt.IsZero() {
			ev.SetModifiedAt(a.UpdatedAt)
		}
		ev.SetStartAt(a.StartTime)
		ev.SetEndAt(a.EndTime)
		ev.SetSummary(summary(a))
		if a.Notes != "" {
			ev.SetDescription(a.Notes)
		}
		ev.SetStatus(eventStatus(a.Status))
		if a.ServiceName != "" {
			ev.AddCategory(a.ServiceName)
		}
		if a.Color != "" {
			ev.SetColor(a.Color)
		}
	}
	return cal
}

// WriteProviderFeed serializes the provider feed to w.
func WriteProviderFeed(w io.Writer, appts []domain.Appointment, opts FeedOptions) error {
	return ProviderFeed(appts, opts).SerializeTo(w)
}

func summary(a domain.Appointment) string {
	if a.IsBlocked {
		if a.Notes != "" {
			return "Blocked: " + firstLine(a.Notes)
		}
		return "Blocked"
	}
	switch {
	case a.ClientName != "" && a.ServiceName != "":
		return a.ClientName + " (" + a.ServiceName + ")"
	case a.ClientName != "":
		return a.ClientName
	case a.ServiceName != "":
		return a.ServiceName
	}
	return "Appointment"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func eventStatus(s domain.Status) ical.ObjectStatus {
	switch s {
	case domain.StatusCancelled, domain.StatusNoShow:
		return ical.ObjectStatusCancelled
	case domain.StatusWaitlist:
		return ical.ObjectStatusTentative
	}
	return ical.ObjectStatusConfirmed
}
