package calendar

import (
	"time"

	"github.com/teambition/rrule-go"

	"carecrm/backend/internal/domain"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// PatternRRule renders p as an RFC 5545 RRULE value (without DTSTART).
// Weekly patterns with explicit days are emitted with INTERVAL=1 because
// expansion visits every selected weekday.
func PatternRRule(p domain.RecurrencePattern) string {
	p = p.Normalize()
	opt := rrule.ROption{
		Interval: p.Interval,
		Count:    p.Occurrences,
	}
	switch p.Frequency {
	case domain.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case domain.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		if len(p.DaysOfWeek) > 0 {
			opt.Interval = 1
			for _, d := range p.DaysOfWeek {
				opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
			}
		}
	case domain.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		if p.DayOfMonth > 0 {
			opt.Bymonthday = []int{p.DayOfMonth}
		}
	default:
		return ""
	}
	if p.EndDate != nil {
		opt.Until = p.EndDate.UTC()
	}
	return opt.String()
}
