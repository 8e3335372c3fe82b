// Package ics exports cached bookings as an iCalendar feed and imports
// holiday calendars that recurring courses skip.
package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
)

// uidSpace namespaces the deterministic booking UIDs.
var uidSpace = uuid.MustParse("6f0d1f3e-7f7c-4c53-9d0a-0b1e2c3d4e5f")

// sessionLength is the length of one slot.
const sessionLength = time.Hour

// ExportOptions tunes Export.
type ExportOptions struct {
	Name     string
	Location *time.Location
	// Stamp is written as DTSTAMP; zero means time.Now.
	Stamp time.Time
}

// Export renders events as a PUBLISH calendar of one-hour events. UIDs are
// derived from the booking tuple, so re-exporting the same booking keeps
// its UID stable across refreshes.
func Export(events []model.Event, opts ExportOptions) []byte {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//tutorcal//schedule//EN")
	if opts.Name != "" {
		cal.SetName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	written := 0
	for _, ev := range events {
		start, err := ev.Start(loc)
		if err != nil {
			appLog.Debug("ics export: skipping event", "date", ev.DateISO, "err", err)
			continue
		}
		uid := uuid.NewSHA1(uidSpace, []byte(ev.Tuple())).String() + "@tutorcal"

		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(start)
		ve.SetEndAt(start.Add(sessionLength))
		ve.SetSummary(summaryOf(ev))
		ve.SetDescription(descriptionOf(ev))
		written++
	}

	appLog.Debug("ics export completed", "event_count", written)
	return []byte(cal.Serialize())
}

func summaryOf(ev model.Event) string {
	who := strings.TrimSpace(ev.StudentCode + " " + ev.StudentName)
	if who == "" {
		who = "Booking"
	}
	if ev.TeacherName != "" {
		return who + " · " + ev.TeacherName
	}
	return who
}

func descriptionOf(ev model.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Time: %s", ev.RawTime)
	if ev.SessionsTotal > 0 {
		fmt.Fprintf(&b, "\nSessions: %d/%d", ev.SessionsUsed, ev.SessionsTotal)
	}
	return b.String()
}
