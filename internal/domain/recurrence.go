package domain

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// MaxGeneratedOccurrences is the longest series a single pattern may expand
// to. Longer patterns are rejected, never truncated.
const MaxGeneratedOccurrences = 730

var (
	ErrInvalidDuration = errors.New("end_time must be after start_time")
	ErrUnboundedSeries = errors.New("recurrence requires an end_date or occurrences")
	ErrSeriesTooLong   = errors.New("recurrence expands to more than " + strconv.Itoa(MaxGeneratedOccurrences) + " occurrences")
)

// RecurrencePattern describes how a base appointment repeats. EndDate is
// inclusive. Interval of zero means 1; Occurrences of zero means no count
// limit; DayOfMonth of zero means the base appointment's own day.
type RecurrencePattern struct {
	Frequency   Frequency
	Interval    int
	EndDate     *time.Time
	Occurrences int
	DaysOfWeek  []time.Weekday
	DayOfMonth  int
}

// Problems lists every reason the pattern cannot be expanded.
func (p RecurrencePattern) Problems() []string {
	var out []string
	switch p.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	case "":
		out = append(out, "frequency is required")
	default:
		out = append(out, "unsupported frequency "+strconv.Quote(string(p.Frequency)))
	}
	if p.Interval < 0 {
		out = append(out, "interval must not be negative")
	}
	if p.Occurrences < 0 {
		out = append(out, "occurrences must not be negative")
	}
	if p.Occurrences > MaxGeneratedOccurrences {
		out = append(out, ErrSeriesTooLong.Error())
	}
	if p.EndDate == nil && p.Occurrences == 0 {
		out = append(out, ErrUnboundedSeries.Error())
	}
	for _, wd := range p.DaysOfWeek {
		if wd < time.Sunday || wd > time.Saturday {
			out = append(out, "days_of_week entries must be between 0 and 6")
			break
		}
	}
	if p.DayOfMonth < 0 || p.DayOfMonth > 31 {
		out = append(out, "day_of_month must be between 1 and 31")
	}
	return out
}

// Normalize fills the defaults an omitted field stands for.
func (p RecurrencePattern) Normalize() RecurrencePattern {
	if p.Interval == 0 {
		p.Interval = 1
	}
	return p
}

func (p RecurrencePattern) Validate() error {
	problems := p.Problems()
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

// RecurrenceSeries is the persisted pattern behind a recurrence group. Its ID
// is the group id carried by every generated instance.
type RecurrenceSeries struct {
	bun.BaseModel `bun:"table:recurrence_series"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid"`
	ProviderID  string     `bun:"provider_id,notnull"`
	ClientID    string     `bun:"client_id"`
	Frequency   Frequency  `bun:"frequency,notnull"`
	Interval    int        `bun:"interval,notnull"`
	EndDate     *time.Time `bun:"end_date"`
	Occurrences int        `bun:"occurrences"`
	DaysOfWeek  []int      `bun:"days_of_week"`
	DayOfMonth  int        `bun:"day_of_month"`
	TimeZone    string     `bun:"time_zone,notnull"`
	RRule       string     `bun:"rrule"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull"`
}

func (s *RecurrenceSeries) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// Pattern rebuilds the recurrence pattern stored on the series.
func (s RecurrenceSeries) Pattern() RecurrencePattern {
	days := make([]time.Weekday, 0, len(s.DaysOfWeek))
	for _, d := range s.DaysOfWeek {
		days = append(days, time.Weekday(d))
	}
	return RecurrencePattern{
		Frequency:   s.Frequency,
		Interval:    s.Interval,
		EndDate:     s.EndDate,
		Occurrences: s.Occurrences,
		DaysOfWeek:  days,
		DayOfMonth:  s.DayOfMonth,
	}
}

// NewRecurrenceSeries records pattern p for the group rooted at base.
func NewRecurrenceSeries(base Appointment, p RecurrencePattern, tz string) RecurrenceSeries {
	p = p.Normalize()
	days := make([]int, 0, len(p.DaysOfWeek))
	for _, d := range p.DaysOfWeek {
		days = append(days, int(d))
	}
	var end *time.Time
	if p.EndDate != nil {
		e := p.EndDate.UTC()
		end = &e
	}
	return RecurrenceSeries{
		ID:          base.ID,
		ProviderID:  base.ProviderID,
		ClientID:    base.ClientID,
		Frequency:   p.Frequency,
		Interval:    p.Interval,
		EndDate:     end,
		Occurrences: p.Occurrences,
		DaysOfWeek:  days,
		DayOfMonth:  p.DayOfMonth,
		TimeZone:    tz,
	}
}

// OccurrenceID derives the id of the index-th instance of a recurrence group.
func OccurrenceID(groupID uuid.UUID, index int) uuid.UUID {
	return uuid.NewSHA1(groupID, []byte("occurrence:"+strconv.Itoa(index)))
}

// GenerateOccurrences expands base into the concrete instances described by p.
// Instances are computed in base.StartTime's location, so a base expressed in
// a provider's zone keeps its wall-clock hour across DST changes. Every
// instance has the base duration and carries base.ID as its recurrence group.
//
// Weekly patterns with DaysOfWeek step one day at a time to the next selected
// weekday and ignore Interval.
func GenerateOccurrences(base Appointment, p RecurrencePattern) ([]Appointment, error) {
	if !base.EndTime.After(base.StartTime) {
		return nil, ErrInvalidDuration
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.Normalize()

	duration := base.Duration()
	starts := occurrenceStarts(base.StartTime, p)
	if len(starts) > MaxGeneratedOccurrences {
		return nil, ErrSeriesTooLong
	}

	group := base.ID
	out := make([]Appointment, 0, len(starts))
	for i, start := range starts {
		inst := base.Clone()
		inst.ID = OccurrenceID(group, i)
		inst.StartTime = start
		inst.EndTime = start.Add(duration)
		inst.IsRecurring = true
		g := group
		inst.RecurrenceGroupID = &g
		inst.IsException = false
		inst.CreatedAt = time.Time{}
		inst.UpdatedAt = time.Time{}
		out = append(out, inst)
	}
	return out, nil
}

func occurrenceStarts(start time.Time, p RecurrencePattern) []time.Time {
	// One past the maximum so an end date that runs too far is detectable.
	limit := MaxGeneratedOccurrences + 1
	if p.Occurrences > 0 {
		limit = p.Occurrences
	}
	within := func(t time.Time) bool {
		return p.EndDate == nil || !t.After(*p.EndDate)
	}

	out := make([]time.Time, 0, 16)

	switch {
	case p.Frequency == FrequencyMonthly:
		for k := 0; len(out) < limit; k++ {
			t := addMonths(start, k*p.Interval, p.DayOfMonth)
			if t.Before(start) {
				continue
			}
			if !within(t) {
				break
			}
			out = append(out, t)
		}

	case p.Frequency == FrequencyWeekly && len(p.DaysOfWeek) > 0:
		days := make(map[time.Weekday]struct{}, len(p.DaysOfWeek))
		for _, d := range p.DaysOfWeek {
			days[d] = struct{}{}
		}
		t := nextSelectedDay(start, days, true)
		for len(out) < limit && within(t) {
			out = append(out, t)
			t = nextSelectedDay(t, days, false)
		}

	default:
		stepDays := p.Interval
		if p.Frequency == FrequencyWeekly {
			stepDays = 7 * p.Interval
		}
		for t := start; len(out) < limit && within(t); t = t.AddDate(0, 0, stepDays) {
			out = append(out, t)
		}
	}

	return out
}

// nextSelectedDay scans forward one day at a time until it reaches a weekday
// in days. With inclusive set, t itself qualifies.
func nextSelectedDay(t time.Time, days map[time.Weekday]struct{}, inclusive bool) time.Time {
	if !inclusive {
		t = t.AddDate(0, 0, 1)
	}
	for i := 0; i < 7; i++ {
		if _, ok := days[t.Weekday()]; ok {
			return t
		}
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// addMonths moves t forward n months keeping its clock time. The day is the
// requested day (or t's own when day is zero) clamped to the month's length.
func addMonths(t time.Time, n, day int) time.Time {
	y, m, d := t.Date()
	if day > 0 {
		d = day
	}
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
