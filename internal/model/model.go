package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical, timezone-less calendar date format.
const DateLayout = "2006-01-02"

// RawRow is a single booking record exactly as returned by the spreadsheet
// API. The backend is loosely typed, so fields are kept open and only the
// documented ones are ever promoted into an Event.
type RawRow map[string]any

// Lookup returns the first present value among keys. An exact key match wins;
// otherwise keys are compared case-insensitively.
func (r RawRow) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
		for rk, v := range r {
			if v != nil && strings.EqualFold(strings.TrimSpace(rk), k) {
				return v, true
			}
		}
	}
	return nil, false
}

// String is Lookup rendered as trimmed text ("" when absent).
func (r RawRow) String(keys ...string) string {
	v, ok := r.Lookup(keys...)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		// JSON numbers decode as float64; student codes are often numeric.
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// Int is Lookup parsed as a non-negative integer. Absent or unparseable
// values yield 0 and false.
func (r RawRow) Int(keys ...string) (int, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return 0, false
	}
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if n < 0 {
		return 0, false
	}
	return int(n), true
}

// Event is a booking reduced to its canonical date and hour slot plus the
// display fields. Events are rebuilt on every fetch and never mutated.
type Event struct {
	DateISO  string // YYYY-MM-DD, wall-clock date in the business zone
	TimeSlot string // HH:00
	RawTime  string // backend time value, e.g. "13:00 - 14:00"

	StudentCode string
	StudentName string
	TeacherName string

	SessionsUsed  int
	SessionsTotal int

	// Source is the row the event was built from, kept for fields that are
	// not promoted (instrument, remaining-session hints).
	Source RawRow
}

// SlotKey joins a date and an hour slot into the key used by the slot index.
func SlotKey(dateISO, timeSlot string) string {
	return dateISO + "|" + timeSlot
}

// SlotKey returns the event's slot key.
func (e Event) SlotKey() string {
	return SlotKey(e.DateISO, e.TimeSlot)
}

// Tuple is the full identity of an event. Rows carry no stable IDs, so
// deduplication compares every promoted field.
func (e Event) Tuple() string {
	return strings.Join([]string{
		e.DateISO, e.TimeSlot, e.RawTime,
		e.StudentCode, e.StudentName, e.TeacherName,
		strconv.Itoa(e.SessionsUsed), strconv.Itoa(e.SessionsTotal),
	}, "\x1f")
}

// Hour is the numeric start hour of the slot.
func (e Event) Hour() int {
	h, _ := strconv.Atoi(strings.TrimSuffix(e.TimeSlot, ":00"))
	return h
}

// Start is the wall-clock start of the event in loc.
func (e Event) Start(loc *time.Location) (time.Time, error) {
	d, err := ParseDate(e.DateISO, loc)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(e.Hour()) * time.Hour), nil
}

// DateRange is an inclusive span of ISO dates. ISO dates order
// lexicographically, so comparisons are plain string comparisons.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool {
	return r.From == "" || r.To == ""
}

// Contains reports whether date falls inside the range.
func (r DateRange) Contains(date string) bool {
	if r.IsZero() {
		return false
	}
	return date >= r.From && date <= r.To
}

// Covers reports whether o lies entirely inside r.
func (r DateRange) Covers(o DateRange) bool {
	if r.IsZero() || o.IsZero() {
		return false
	}
	return o.From >= r.From && o.To <= r.To
}

// Union returns the smallest range spanning both r and o.
func (r DateRange) Union(o DateRange) DateRange {
	if r.IsZero() {
		return o
	}
	if o.IsZero() {
		return r
	}
	out := r
	if o.From < out.From {
		out.From = o.From
	}
	if o.To > out.To {
		out.To = o.To
	}
	return out
}

// WeekView is the visible week: a Monday anchor plus a fixed hour range.
type WeekView struct {
	Anchor    time.Time
	StartHour int
	EndHour   int
}

// NewWeekView returns the week containing t.
func NewWeekView(t time.Time, startHour, endHour int) WeekView {
	return WeekView{
		Anchor:    MondayOf(t),
		StartHour: startHour,
		EndHour:   endHour,
	}
}

// Days returns the seven dates of the week, Monday first.
func (w WeekView) Days() []time.Time {
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = w.Anchor.AddDate(0, 0, i)
	}
	return days
}

// Hours returns every slot hour from StartHour to EndHour inclusive.
func (w WeekView) Hours() []int {
	if w.EndHour < w.StartHour {
		return nil
	}
	hours := make([]int, 0, w.EndHour-w.StartHour+1)
	for h := w.StartHour; h <= w.EndHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// SlotCount is 7 × the number of hours.
func (w WeekView) SlotCount() int {
	return 7 * len(w.Hours())
}

// Range returns the Monday..Sunday date range of the week.
func (w WeekView) Range() DateRange {
	return DateRange{
		From: w.Anchor.Format(DateLayout),
		To:   w.Anchor.AddDate(0, 0, 6).Format(DateLayout),
	}
}

// Shift moves the anchor by n weeks.
func (w WeekView) Shift(n int) WeekView {
	w.Anchor = MondayOf(w.Anchor.AddDate(0, 0, 7*n))
	return w
}

// MondayOf returns midnight of the Monday of t's week, in t's location.
func MondayOf(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	diff := 1 - int(d.Weekday())
	if d.Weekday() == time.Sunday {
		diff = -6
	}
	return d.AddDate(0, 0, diff)
}

// HourSlot formats an hour as a canonical slot label.
func HourSlot(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

// ParseDate parses an ISO date as midnight in loc.
func ParseDate(dateISO string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, dateISO, loc)
}

// AddDays shifts an ISO date by n days. Invalid input is returned unchanged.
func AddDays(dateISO string, n int) string {
	d, err := time.Parse(DateLayout, dateISO)
	if err != nil {
		return dateISO
	}
	return d.AddDate(0, 0, n).Format(DateLayout)
}
