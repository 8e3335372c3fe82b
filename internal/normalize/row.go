package normalize

import (
	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
)

// Documented backend field names. Lookups are case-insensitive.
var (
	DateKeys        = []string{"Date", "วันที่"}
	TimeKeys        = []string{"Time", "เวลา"}
	StudentCodeKeys = []string{"StudentCode", "Code", "รหัส"}
	StudentNameKeys = []string{"StudentName", "Name", "ชื่อ"}
	TeacherKeys     = []string{"Teacher", "TeacherName", "ครู"}
	UsedKeys        = []string{"Used", "UsedSessions", "SessionsUsed", "CourseUsed"}
	TotalKeys       = []string{"Total", "TotalSessions", "SessionsTotal", "CourseTotal", "CourseHours"}
	RemainingKeys   = []string{"Remaining", "RemainingSessions", "Left", "คงเหลือ"}

	// InstrumentKeys is the priority order for the free-text course label.
	InstrumentKeys = []string{"Instrument", "Course", "CourseName", "Subject", "Class", "เครื่องดนตรี", "คอร์ส", "วิชา"}
)

// Row converts one backend row into an Event. names maps student codes to
// names from the students sheet and is used when the row carries no name.
// Rows whose date or time cannot be parsed are dropped (ok=false).
func Row(raw model.RawRow, names map[string]string) (model.Event, bool) {
	dateVal, _ := raw.Lookup(DateKeys...)
	dateISO, ok := Date(dateVal)
	if !ok {
		appLog.Debug("schedule row dropped: bad date", "value", dateVal)
		return model.Event{}, false
	}

	timeVal, _ := raw.Lookup(TimeKeys...)
	slot, ok := Time(timeVal)
	if !ok {
		appLog.Debug("schedule row dropped: bad time", "value", timeVal, "date", dateISO)
		return model.Event{}, false
	}

	ev := model.Event{
		DateISO:     dateISO,
		TimeSlot:    slot,
		RawTime:     RawTime(timeVal),
		StudentCode: raw.String(StudentCodeKeys...),
		StudentName: raw.String(StudentNameKeys...),
		TeacherName: raw.String(TeacherKeys...),
		Source:      raw,
	}
	if ev.StudentName == "" && ev.StudentCode != "" {
		ev.StudentName = names[ev.StudentCode]
	}
	ev.SessionsUsed, _ = raw.Int(UsedKeys...)
	ev.SessionsTotal, _ = raw.Int(TotalKeys...)

	return ev, true
}

// Rows normalizes a whole fetch, dropping unparseable rows.
func Rows(raws []model.RawRow, names map[string]string) []model.Event {
	events := make([]model.Event, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		ev, ok := Row(raw, names)
		if !ok {
			dropped++
			continue
		}
		events = append(events, ev)
	}
	if dropped > 0 {
		appLog.Info("schedule rows dropped", "dropped", dropped, "kept", len(events))
	}
	return events
}
