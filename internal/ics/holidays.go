package ics

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
)

// maxOccurrencesPerEvent caps recurrence expansion of a single VEVENT.
const maxOccurrencesPerEvent = 5000

// Holiday is one closed day.
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// ParseHolidays lists the days covered by the feed's events between the
// ISO dates from and to. All-day events cover every day up to their
// exclusive DTEND; timed events cover their start day. RRULE and EXDATE are
// expanded. Broken VEVENTs are logged and skipped.
func ParseHolidays(body []byte, loc *time.Location, from, to string) ([]Holiday, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}
	rangeStart, err := model.ParseDate(from, loc)
	if err != nil {
		return nil, err
	}
	rangeEnd, err := model.ParseDate(to, loc)
	if err != nil {
		return nil, err
	}
	if rangeEnd.Before(rangeStart) {
		return nil, errors.New("holiday range ends before it starts")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []Holiday
	for _, ve := range cal.Events() {
		days, name, err := vEventDays(ve, loc, rangeStart, rangeEnd.Add(24*time.Hour-time.Second))
		if err != nil {
			appLog.Debug("ics holiday vevent skipped", "err", err)
			continue
		}
		for _, d := range days {
			if d < from || d > to || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, Holiday{Date: d, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func vEventDays(ve *ical.VEvent, loc *time.Location, rangeStart, rangeEnd time.Time) ([]string, string, error) {
	name := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		name = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return nil, name, errors.New("missing DTSTART")
	}
	allDay := !strings.Contains(dtStart.Value, "T")
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}

	var start time.Time
	var err error
	if allDay {
		start, err = parseDateValue(dtStart.Value, loc)
	} else {
		start, err = ve.GetStartAt()
	}
	if err != nil {
		return nil, name, err
	}

	span := 1
	if allDay {
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseDateValue(dtEnd.Value, loc); err == nil {
				if n := int(end.Sub(start).Hours()/24 + 0.5); n > 1 {
					span = n
				}
			}
		}
	}

	starts := []time.Time{start}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		r, err := rrule.StrToRRule(p.Value)
		if err != nil {
			return nil, name, err
		}
		r.DTStart(start)

		var set rrule.Set
		set.RRule(r)
		for _, ex := range ve.GetProperties(ical.ComponentPropertyExdate) {
			for _, part := range strings.Split(ex.Value, ",") {
				if t, err := parseICSTime(part, loc); err == nil {
					set.ExDate(t.In(start.Location()))
				}
			}
		}
		// Occurrences that begin before the range can still cover days in it.
		lookback := rangeStart.AddDate(0, 0, -span)
		starts = set.Between(lookback.In(start.Location()), rangeEnd.In(start.Location()), true)
		if len(starts) > maxOccurrencesPerEvent {
			starts = starts[:maxOccurrencesPerEvent]
		}
	}

	var days []string
	for _, s := range starts {
		s = s.In(loc)
		for i := 0; i < span; i++ {
			days = append(days, s.AddDate(0, 0, i).Format(model.DateLayout))
		}
	}
	return days, name, nil
}

func parseDateValue(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) >= 8 {
		v = v[:8]
	}
	return time.ParseInLocation("20060102", v, loc)
}

// parseICSTime parses a bare DATE or DATE-TIME value (UTC or floating).
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// Calendar keeps the closed days of one or more holiday feeds.
type Calendar struct {
	fetcher *Fetcher
	urls    []string
	loc     *time.Location

	mu   sync.RWMutex
	days map[string]string
}

// NewCalendar creates a Calendar over feed URLs.
func NewCalendar(fetcher *Fetcher, urls []string, loc *time.Location) *Calendar {
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{fetcher: fetcher, urls: urls, loc: loc, days: make(map[string]string)}
}

// Refresh reloads every feed for [from, to]. Days from feeds that fail
// are kept from the previous load.
func (c *Calendar) Refresh(ctx context.Context, from, to string) error {
	if len(c.urls) == 0 {
		return nil
	}

	var errs []error
	loaded := make(map[string]string)
	ok := 0
	for _, u := range c.urls {
		res, err := c.fetcher.Fetch(ctx, u)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("holiday feed fetch failed", err, "host", feedHost(u))
			continue
		}
		hs, err := ParseHolidays(res.Body, c.loc, from, to)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("holiday feed parse failed", err, "host", feedHost(u))
			continue
		}
		ok++
		for _, h := range hs {
			if _, dup := loaded[h.Date]; !dup {
				loaded[h.Date] = h.Name
			}
		}
	}

	if ok > 0 {
		c.mu.Lock()
		if len(errs) > 0 {
			for d, n := range c.days {
				if _, have := loaded[d]; !have {
					loaded[d] = n
				}
			}
		}
		c.days = loaded
		c.mu.Unlock()
		appLog.Info("holiday feeds loaded", "feeds", ok, "days", len(loaded))
	}
	return errors.Join(errs...)
}

// Between lists the closed days in [from, to].
func (c *Calendar) Between(from, to string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for d := range c.days {
		if d >= from && d <= to {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// Lookup returns the holiday name for a date.
func (c *Calendar) Lookup(date string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.days[date]
	return n, ok
}
