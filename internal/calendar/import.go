package calendar

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"carecrm/backend/internal/domain"
)

var ErrEmptyCalendar = errors.New("calendar body is empty")

// Block is one concrete busy interval read from an imported calendar.
type Block struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
}

// ImportWindow bounds recurrence expansion of imported events.
type ImportWindow struct {
	Start time.Time
	End   time.Time
	// Location is used for floating times. Nil means UTC.
	Location *time.Location
}

// ParseBlocks reads every VEVENT in body and returns the busy intervals that
// overlap the window, with RRULEs and EXDATEs applied. Each recurring event
// yields at most domain.MaxGeneratedOccurrences blocks. Events without a
// usable DTSTART/DTEND are skipped and reported in the returned skipped list.
func ParseBlocks(body []byte, window ImportWindow) (blocks []Block, skipped []string, err error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil, ErrEmptyCalendar
	}
	if !window.End.After(window.Start) {
		return nil, nil, errors.New("import window end must be after start")
	}
	loc := window.Location
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse calendar: %w", err)
	}

	for _, ev := range cal.Events() {
		uid := ev.Id()
		start, err := ev.GetStartAt()
		if err != nil {
			skipped = append(skipped, uid)
			continue
		}
		end, err := ev.GetEndAt()
		if err != nil || !end.After(start) {
			skipped = append(skipped, uid)
			continue
		}
		start, end = inLocation(start, loc), inLocation(end, loc)

		var title string
		if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
			title = p.Value
		}

		starts, err := occurrenceStarts(ev, start, window)
		if err != nil {
			skipped = append(skipped, uid)
			continue
		}
		d := end.Sub(start)
		for _, s := range starts {
			if !domain.Overlaps(s, s.Add(d), window.Start, window.End) {
				continue
			}
			blocks = append(blocks, Block{UID: uid, Summary: title, Start: s, End: s.Add(d)})
		}
	}

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Start.Before(blocks[j].Start)
	})
	return blocks, skipped, nil
}

func occurrenceStarts(ev *ical.VEvent, start time.Time, window ImportWindow) ([]time.Time, error) {
	rruleProp := ev.GetProperty(ical.ComponentPropertyRrule)
	if rruleProp == nil || strings.TrimSpace(rruleProp.Value) == "" {
		return []time.Time{start}, nil
	}

	r, err := rrule.StrToRRule(rruleProp.Value)
	if err != nil {
		return nil, err
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ev.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, ok := parseExDate(strings.TrimSpace(part), start.Location()); ok {
				set.ExDate(t)
			}
		}
	}

	// Pull the lower bound back so occurrences that started before the window
	// but still run into it are included.
	d, _ := eventDuration(ev)
	occ := set.Between(window.Start.Add(-d).In(start.Location()), window.End.In(start.Location()), true)
	if len(occ) > domain.MaxGeneratedOccurrences {
		occ = occ[:domain.MaxGeneratedOccurrences]
	}
	return occ, nil
}

func eventDuration(ev *ical.VEvent) (time.Duration, error) {
	s, err := ev.GetStartAt()
	if err != nil {
		return 0, err
	}
	e, err := ev.GetEndAt()
	if err != nil {
		return 0, err
	}
	return e.Sub(s), nil
}

func parseExDate(v string, loc *time.Location) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	layouts := []struct {
		layout string
		loc    *time.Location
	}{
		{"20060102T150405Z", time.UTC},
		{"20060102T150405", loc},
		{"20060102", loc},
	}
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l.layout, v, l.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// inLocation reinterprets floating times, which the parser returns in
// time.Local, as wall-clock times in loc.
func inLocation(t time.Time, loc *time.Location) time.Time {
	if t.Location() != time.Local || loc == time.Local {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
