// Package grid lays a week of normalized events out onto a fixed 7-day ×
// N-hour board. The board carries two layouts of the same slots (a wide
// hour-by-day grid and a stacked per-day list for narrow screens) and an
// Index that places events into both at once.
package grid

import (
	"time"

	"tutorcal/internal/model"
)

// Layout names a rendering of the slots.
type Layout string

const (
	LayoutGrid  Layout = "grid"
	LayoutStack Layout = "stack"
)

// Day is one column of the board.
type Day struct {
	Date  time.Time
	ISO   string
	Label string // Thai Buddhist-era label, e.g. "จ. 15 ก.ย. 2568"
	Short string // e.g. "Mon 15 Sep"
	Today bool
}

// Board is the rendered structure for one WeekView.
type Board struct {
	Week  model.WeekView
	Days  []Day
	Hours []string

	// Grid is indexed [hour][day]; Stack is indexed [day][hour].
	Grid  [][]*Container
	Stack [][]*Container

	index *Index
}

// NewBoard builds the empty slot structure for week and indexes it. today
// is the current ISO date, used only for highlighting.
func NewBoard(week model.WeekView, today string) *Board {
	b := &Board{Week: week}

	for _, d := range week.Days() {
		iso := d.Format(model.DateLayout)
		b.Days = append(b.Days, Day{
			Date:  d,
			ISO:   iso,
			Label: ThaiDayLabel(d),
			Short: d.Format("Mon 2 Jan"),
			Today: iso == today,
		})
	}
	for _, h := range week.Hours() {
		b.Hours = append(b.Hours, model.HourSlot(h))
	}

	b.Grid = make([][]*Container, len(b.Hours))
	for hi, slot := range b.Hours {
		b.Grid[hi] = make([]*Container, len(b.Days))
		for di, day := range b.Days {
			b.Grid[hi][di] = &Container{Layout: LayoutGrid, DateISO: day.ISO, TimeSlot: slot}
		}
	}
	b.Stack = make([][]*Container, len(b.Days))
	for di, day := range b.Days {
		b.Stack[di] = make([]*Container, len(b.Hours))
		for hi, slot := range b.Hours {
			b.Stack[di][hi] = &Container{Layout: LayoutStack, DateISO: day.ISO, TimeSlot: slot}
		}
	}

	b.index = BuildIndex(b)
	return b
}

// Render builds a board for week and places every event of that week.
func Render(week model.WeekView, events []model.Event, today string) *Board {
	b := NewBoard(week, today)
	b.Repaint(events)
	return b
}

// Index returns the board's slot index.
func (b *Board) Index() *Index {
	return b.index
}

// Repaint clears every container and places the events that fall inside the
// visible week. Events outside the hour range are skipped.
func (b *Board) Repaint(events []model.Event) {
	b.index.Clear()
	r := b.Week.Range()
	for _, ev := range events {
		if !r.Contains(ev.DateISO) {
			continue
		}
		b.index.Place(ev)
	}
}

// Count is the number of bookings placed on the grid layout.
func (b *Board) Count() int {
	n := 0
	for _, row := range b.Grid {
		for _, c := range row {
			n += len(c.Items)
		}
	}
	return n
}

// Cell returns the grid container for a slot, or nil.
func (b *Board) Cell(dateISO, timeSlot string) *Container {
	for _, c := range b.index.Containers(model.SlotKey(dateISO, timeSlot)) {
		if c.Layout == LayoutGrid {
			return c
		}
	}
	return nil
}
