package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorcal/internal/model"
)

var bkk = time.FixedZone("ICT", 7*3600)

func TestExportRoundTrip(t *testing.T) {
	events := []model.Event{
		{DateISO: "2025-09-15", TimeSlot: "13:00", RawTime: "13:00 - 14:00", StudentCode: "S1", StudentName: "Ploy", TeacherName: "ครูโทน", SessionsUsed: 3, SessionsTotal: 10},
		{DateISO: "2025-09-16", TimeSlot: "18:00", RawTime: "18:00", StudentCode: "S2"},
		{DateISO: "not a date", TimeSlot: "18:00"},
	}
	body := Export(events, ExportOptions{Name: "Studio", Location: bkk, Stamp: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)})

	cal, err := ical.ParseCalendar(strings.NewReader(string(body)))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 2)

	first := cal.Events()[0]
	assert.Equal(t, "S1 Ploy · ครูโทน", first.GetProperty(ical.ComponentPropertySummary).Value)
	start, err := first.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2025, 9, 15, 13, 0, 0, 0, bkk)))
	end, err := first.GetEndAt()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, end.Sub(start))
	assert.Contains(t, string(body), "Sessions: 3/10")

	again := Export(events[:1], ExportOptions{Location: bkk})
	uid := first.GetProperty(ical.ComponentPropertyUniqueId).Value
	assert.Contains(t, string(again), uid)
}

const holidayFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//holidays//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:songkran@test\r\n" +
	"SUMMARY:Songkran\r\n" +
	"DTSTART;VALUE=DATE:20260413\r\n" +
	"DTEND;VALUE=DATE:20260416\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:newyear@test\r\n" +
	"SUMMARY:New Year\r\n" +
	"DTSTART;VALUE=DATE:20250101\r\n" +
	"DTEND;VALUE=DATE:20250102\r\n" +
	"RRULE:FREQ=YEARLY\r\n" +
	"EXDATE;VALUE=DATE:20270101\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:broken@test\r\n" +
	"SUMMARY:No start\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseHolidays(t *testing.T) {
	hs, err := ParseHolidays([]byte(holidayFeed), bkk, "2025-12-01", "2027-06-30")
	require.NoError(t, err)

	var dates []string
	for _, h := range hs {
		dates = append(dates, h.Date)
	}
	assert.Equal(t, []string{"2026-01-01", "2026-04-13", "2026-04-14", "2026-04-15"}, dates)
	assert.Equal(t, "Songkran", hs[1].Name)
}

func TestParseHolidaysRejectsEmptyBody(t *testing.T) {
	_, err := ParseHolidays(nil, bkk, "2025-01-01", "2025-12-31")
	assert.Error(t, err)
}

func TestFetcherConditionalRequests(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(holidayFeed))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	res, err := f.Fetch(context.Background(), srv.URL+"/private.ics?token=x")
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	res, err = f.Fetch(context.Background(), srv.URL+"/private.ics?token=x")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, holidayFeed, string(res.Body))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), notModified.Load())
}

func TestFetcherFallsBackToLastGoodBody(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(holidayFeed))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	_, err = NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestCalendarRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(holidayFeed))
	}))
	defer srv.Close()

	c := NewCalendar(NewFetcher(srv.Client()), []string{srv.URL}, bkk)
	require.NoError(t, c.Refresh(context.Background(), "2026-01-01", "2026-12-31"))

	assert.Equal(t, []string{"2026-04-13", "2026-04-14", "2026-04-15"}, c.Between("2026-04-01", "2026-04-30"))
	name, ok := c.Lookup("2026-01-01")
	assert.True(t, ok)
	assert.Equal(t, "New Year", name)

	assert.Equal(t, "(redacted)", feedHost("::not a url"))
}
