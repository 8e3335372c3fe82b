package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorcal/internal/model"
)

var bkk = time.FixedZone("ICT", 7*3600)

func week(t *testing.T, date string) model.WeekView {
	t.Helper()
	d, err := model.ParseDate(date, bkk)
	require.NoError(t, err)
	return model.NewWeekView(d, 13, 20)
}

func booking(date, slot, code string) model.Event {
	return model.Event{DateISO: date, TimeSlot: slot, RawTime: slot, StudentCode: code, TeacherName: "ครูโทน"}
}

func TestNewBoardShape(t *testing.T) {
	b := NewBoard(week(t, "2025-09-17"), "2025-09-17")

	require.Len(t, b.Days, 7)
	assert.Equal(t, "2025-09-15", b.Days[0].ISO)
	assert.Equal(t, "2025-09-21", b.Days[6].ISO)
	assert.True(t, b.Days[2].Today)
	assert.Equal(t, []string{"13:00", "14:00", "15:00", "16:00", "17:00", "18:00", "19:00", "20:00"}, b.Hours)
	assert.Len(t, b.Grid, 8)
	assert.Len(t, b.Stack, 7)
	assert.Equal(t, 56, b.Index().Len())
	assert.Len(t, b.Index().Containers("2025-09-15|13:00"), 2)
	assert.Equal(t, "จ. 15 ก.ย. 2568", b.Days[0].Label)
}

func TestRenderPlacesScenarioRowInMondaySlot(t *testing.T) {
	ev := booking("2025-09-15", "13:00", "S1")
	ev.RawTime = "13:00 - 14:00"
	b := Render(week(t, "2025-09-15"), []model.Event{ev}, "")

	cell := b.Cell("2025-09-15", "13:00")
	require.NotNil(t, cell)
	require.Len(t, cell.Items, 1)
	assert.Equal(t, "S1", cell.Items[0].Event.StudentCode)
	assert.Len(t, b.Stack[0][0].Items, 1)
	assert.Equal(t, 1, b.Count())
}

func TestRepaintSkipsOtherWeeksAndHours(t *testing.T) {
	events := []model.Event{
		booking("2025-09-16", "14:00", "A"),
		booking("2025-09-22", "14:00", "next week"),
		booking("2025-09-16", "09:00", "morning"),
	}
	b := Render(week(t, "2025-09-15"), events, "")
	assert.Equal(t, 1, b.Count())

	b.Repaint(nil)
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, 56, b.Index().Len())
}

func TestIndexPlaceRemove(t *testing.T) {
	b := NewBoard(week(t, "2025-09-15"), "")
	ix := b.Index()
	ev := booking("2025-09-19", "18:00", "S9")

	assert.True(t, ix.Place(ev))
	assert.True(t, ix.Place(ev))
	assert.Len(t, b.Cell("2025-09-19", "18:00").Items, 1)
	assert.True(t, ix.Contains(ev))

	assert.True(t, ix.Remove(ev))
	assert.False(t, ix.Contains(ev))
	assert.False(t, ix.Remove(ev))

	assert.False(t, ix.Place(booking("2025-10-01", "18:00", "S9")))
}

func TestViewIsDetached(t *testing.T) {
	b := Render(week(t, "2025-09-15"), []model.Event{booking("2025-09-15", "13:00", "S1")}, "")
	v := b.View()
	b.Repaint(nil)

	assert.Equal(t, "2025-09-15", v.Anchor)
	assert.Equal(t, 1, v.EventCount)
	require.Len(t, v.Rows[0].Cells[0].Bookings, 1)
	assert.Equal(t, "S1", v.Rows[0].Cells[0].Bookings[0].StudentCode)
	assert.Equal(t, "15 ก.ย. – 21 ก.ย. 2568", v.Title)
}

func TestWeekNavigationNormalizesToMonday(t *testing.T) {
	w := week(t, "2025-09-21") // Sunday
	assert.Equal(t, "2025-09-15", w.Range().From)
	assert.Equal(t, "2025-09-22", w.Shift(1).Range().From)
	assert.Equal(t, "2025-09-08", w.Shift(-1).Range().From)
	assert.Equal(t, 56, w.SlotCount())
}
