package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorcal/internal/config"
	"tutorcal/internal/model"
)

func TestDateFormatsAgree(t *testing.T) {
	bkk := time.FixedZone("ICT", 7*3600)
	inputs := []any{
		"2025-09-15",
		"2025-09-15T17:30:00.000Z",
		"2025-09-15 08:00:00",
		"2025/09/15",
		"2025/9/15",
		"15/09/2025",
		"15/09/2568",
		"Mon Sep 15 2025 13:00:00 GMT+0700 (Indochina Time)",
		"Sep 15, 2025",
		time.Date(2025, 9, 15, 13, 0, 0, 0, bkk),
	}
	for _, in := range inputs {
		got, ok := Date(in)
		require.True(t, ok, "input %v", in)
		assert.Equal(t, "2025-09-15", got, "input %v", in)
	}
}

func TestDateRejectsInvalid(t *testing.T) {
	inputs := []any{
		nil,
		"",
		"tomorrow",
		"2025-02-30",
		"2025-13-01",
		"31/04/2025",
		"15-09",
		42.0,
		time.Time{},
		(*time.Time)(nil),
	}
	for _, in := range inputs {
		_, ok := Date(in)
		assert.False(t, ok, "input %v", in)
	}
}

func TestTimeExtractsStartHour(t *testing.T) {
	cases := map[string]string{
		"13:00 - 14:00":   "13:00",
		"13:45":           "13:00",
		"9:30":            "09:00",
		"14.30 น.":        "14:00",
		"15 : 00 นาฬิกา":  "15:00",
		"1630":            "16:00",
		"930":             "09:00",
		"เวลา 18:15 โมง":  "18:00",
		"27:00":           "23:00",
		"at 07:05 hrs":    "07:00",
		"13:00":           "13:00",
		" 20:00-21:00 ":   "20:00",
		"1899-12-30T13:00": "13:00",
		"13h30":            "13:00",
		"13 h":             "13:00",
		"9h":               "09:00",
		"18 โมง":           "18:00",
	}
	for in, want := range cases {
		got, ok := Time(in)
		require.True(t, ok, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestTimeNativeAndInvalid(t *testing.T) {
	got, ok := Time(time.Date(2025, 9, 15, 17, 59, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "17:00", got)

	for _, in := range []any{nil, "", "afternoon", "13", "น.", "h", 0.5416667, float64(1300), 13} {
		_, ok := Time(in)
		assert.False(t, ok, "input %v", in)
	}
}

func TestCanonicalPairIsIdempotent(t *testing.T) {
	d, ok := Date("2025-09-15")
	require.True(t, ok)
	h, ok := Time("13:00")
	require.True(t, ok)

	d2, _ := Date(d)
	h2, _ := Time(h)
	assert.Equal(t, d, d2)
	assert.Equal(t, h, h2)
}

func TestRowScenario(t *testing.T) {
	raw := model.RawRow{
		"Date":        "2025-09-15",
		"Time":        "13:00 - 14:00",
		"StudentCode": "S1",
		"Teacher":     "ครูโทน",
	}
	ev, ok := Row(raw, map[string]string{"S1": "น้องมิว"})
	require.True(t, ok)
	assert.Equal(t, "2025-09-15", ev.DateISO)
	assert.Equal(t, "13:00", ev.TimeSlot)
	assert.Equal(t, "13:00 - 14:00", ev.RawTime)
	assert.Equal(t, "น้องมิว", ev.StudentName)
	assert.Equal(t, "ครูโทน", ev.TeacherName)
	assert.Equal(t, 0, ev.SessionsUsed)
}

func TestRowCountersAndCaseInsensitiveKeys(t *testing.T) {
	raw := model.RawRow{
		"date":        "15/09/2025",
		"TIME":        "16:00",
		"studentcode": 1024.0,
		"Used":        "3",
		"Total":       10.0,
		"instrument":  "Piano",
	}
	ev, ok := Row(raw, nil)
	require.True(t, ok)
	assert.Equal(t, "1024", ev.StudentCode)
	assert.Equal(t, 3, ev.SessionsUsed)
	assert.Equal(t, 10, ev.SessionsTotal)
	assert.Equal(t, "Piano", ev.Source.String(InstrumentKeys...))
}

func TestRowsDropsCorruptRows(t *testing.T) {
	raws := []model.RawRow{
		{"Date": "2025-09-15", "Time": "13:00"},
		{"Date": "not a date", "Time": "13:00"},
		{"Date": "2025-09-16", "Time": "soon"},
		{"Time": "13:00"},
	}
	events := Rows(raws, nil)
	require.Len(t, events, 1)
	assert.Equal(t, "2025-09-15", events[0].DateISO)
}

func TestTeachersCanonical(t *testing.T) {
	teachers := NewTeachers([]config.TeacherConfig{
		{Label: "ครูโทน", Match: []string{"โทน", "tone"}},
		{Label: "ครูแพร", Match: []string{"แพร"}},
	}, "Others")

	assert.Equal(t, "ครูโทน", teachers.Canonical("ครูโทน"))
	assert.Equal(t, "ครูโทน", teachers.Canonical("ครู โทน (กีตาร์)"))
	assert.Equal(t, "ครูโทน", teachers.Canonical("Teacher TONE"))
	assert.Equal(t, "ครูแพร", teachers.Canonical("แพร"))
	assert.Equal(t, "Others", teachers.Canonical("Mr. Smith"))
	assert.Equal(t, "Others", teachers.Canonical("  "))
	assert.Equal(t, []string{"ครูโทน", "ครูแพร", "Others"}, teachers.Labels())
}
