package summary

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tutorcal/internal/config"
	"tutorcal/internal/model"
	"tutorcal/internal/normalize"
)

var bkk = time.FixedZone("ICT", 7*3600)

var now = time.Date(2025, 9, 17, 12, 0, 0, 0, bkk)

func event(date, slot, code, teacher string, raw model.RawRow) model.Event {
	ev := model.Event{DateISO: date, TimeSlot: slot, StudentCode: code, StudentName: "n-" + code, TeacherName: teacher, Source: raw}
	ev.SessionsUsed, _ = raw.Int(normalize.UsedKeys...)
	ev.SessionsTotal, _ = raw.Int(normalize.TotalKeys...)
	return ev
}

func byCode(t *testing.T, list []StudentSummary, code string) StudentSummary {
	t.Helper()
	for _, s := range list {
		if s.Code == code {
			return s
		}
	}
	require.FailNow(t, "student not found", code)
	return StudentSummary{}
}

func TestStudentsExplicitTotal(t *testing.T) {
	events := []model.Event{
		event("2025-09-20", "13:00", "S1", "ครูโทน", model.RawRow{"Used": 3, "Total": 10}),
	}
	s := byCode(t, Students(events, now, bkk), "S1")

	assert.Equal(t, 10, s.Total)
	assert.Equal(t, 3, s.Completed)
	assert.Equal(t, 7, s.Remaining)
	assert.Empty(t, s.CompletedAt)
	assert.Equal(t, 1, s.Upcoming)
}

func TestStudentsRemainingHintPlusCompleted(t *testing.T) {
	hint := model.RawRow{"Remaining": "4"}
	events := []model.Event{
		event("2025-09-10", "13:00", "S2", "ครูแพร", hint),
		event("2025-09-15", "14:00", "S2", "ครูแพร", hint),
		event("2025-09-22", "14:00", "S2", "ครูโทน", hint),
	}
	s := byCode(t, Students(events, now, bkk), "S2")

	assert.Equal(t, 6, s.Total)
	assert.Len(t, s.CompletedAt, 2)
	assert.Equal(t, 4, s.Remaining)
	assert.Equal(t, []string{"ครูแพร", "ครูโทน"}, s.Teachers)
	require.NotNil(t, s.Next)
	assert.Equal(t, "2025-09-22", s.Next.Format(model.DateLayout))
}

func TestStudentsUsedPlusHint(t *testing.T) {
	events := []model.Event{
		event("2025-09-01", "13:00", "S3", "ครูโทน", model.RawRow{"Used": 5, "Left": 3}),
	}
	s := byCode(t, Students(events, now, bkk), "S3")
	assert.Equal(t, 8, s.Total)
	assert.Equal(t, 5, s.Completed)
	assert.Equal(t, 3, s.Remaining)
}

func TestStudentsRemainingNeverNegative(t *testing.T) {
	events := []model.Event{
		event("2025-09-01", "13:00", "S4", "ครูโทน", model.RawRow{"Total": 1}),
		event("2025-09-08", "13:00", "S4", "ครูโทน", model.RawRow{"Total": 1}),
	}
	s := byCode(t, Students(events, now, bkk), "S4")
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 0, s.Remaining)
}

func TestStudentsGroupByNameWithoutCode(t *testing.T) {
	a := model.Event{DateISO: "2025-09-01", TimeSlot: "13:00", StudentName: "Ploy"}
	b := model.Event{DateISO: "2025-09-02", TimeSlot: "13:00", StudentName: "Ploy"}
	skip := model.Event{DateISO: "2025-09-02", TimeSlot: "14:00"}

	list := Students([]model.Event{a, b, skip}, now, bkk)
	require.Len(t, list, 1)
	assert.Equal(t, "Ploy", list[0].Name)
	assert.Len(t, list[0].CompletedAt, 2)
}

func teachers() *normalize.Teachers {
	return normalize.NewTeachers([]config.TeacherConfig{
		{Label: "ครูโทน", Match: []string{"โทน", "tone"}},
		{Label: "ครูแพร", Match: []string{"แพร", "prae"}},
	}, "Others")
}

func TestTeacherMonth(t *testing.T) {
	events := []model.Event{
		event("2025-09-01", "13:00", "S1", "Tone", model.RawRow{"Instrument": "Piano"}),
		event("2025-09-08", "13:00", "S1", "ครูโทน", model.RawRow{"Course": "Piano"}),
		event("2025-09-09", "15:00", "S2", "ครู โทน", model.RawRow{"วิชา": "Guitar"}),
		event("2025-09-10", "16:00", "S3", "แพร", nil),
		event("2025-09-11", "16:00", "S5", "somebody", nil),
		event("2025-10-01", "13:00", "S1", "ครูโทน", nil),
	}
	loads := TeacherMonth(events, 2025, time.September, teachers())

	require.Len(t, loads, 3)
	assert.Equal(t, "ครูโทน", loads[0].Teacher)
	assert.Equal(t, 3, loads[0].Sessions)
	assert.Equal(t, []string{"Guitar", "Piano"}, loads[0].Instruments)
	require.Len(t, loads[0].Students, 2)
	assert.Equal(t, "S1", loads[0].Students[0].Code)
	assert.Equal(t, 2, loads[0].Students[0].Sessions)
	assert.Equal(t, []string{"Piano"}, loads[0].Students[0].Instruments)

	assert.Equal(t, "ครูแพร", loads[1].Teacher)
	assert.Equal(t, 1, loads[1].Sessions)
	assert.Equal(t, "Others", loads[2].Teacher)
}

func TestWriteTeacherXLSX(t *testing.T) {
	loads := []TeacherLoad{{
		Teacher:     "ครูโทน",
		Sessions:    3,
		Instruments: []string{"Piano"},
		Students: []StudentLoad{
			{Code: "S1", Name: "Ploy", Sessions: 2, Instruments: []string{"Piano"}},
			{Code: "S2", Name: "Mint", Sessions: 1},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteTeacherXLSX(&buf, loads, 2025, time.September))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetTeachers, sheetStudents}, f.GetSheetList())

	rows, err := f.GetRows(sheetTeachers)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Month", "2025-09"}, rows[0])
	assert.Equal(t, []string{"ครูโทน", "3", "2", "Piano"}, rows[2])

	rows, err = f.GetRows(sheetStudents)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ครูโทน", "S1", "Ploy", "2", "Piano"}, rows[1])
}
