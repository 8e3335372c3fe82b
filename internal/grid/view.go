package grid

import (
	"tutorcal/internal/model"
)

// View is a JSON-friendly copy of a board. It shares no memory with the
// board, so it can be handed to HTTP handlers while the board keeps changing.
type View struct {
	Anchor     string          `json:"anchor"`
	Range      model.DateRange `json:"range"`
	Title      string          `json:"title"`
	Days       []DayView       `json:"days"`
	Hours      []string        `json:"hours"`
	Rows       []RowView       `json:"rows"`
	Stack      []StackView     `json:"stack"`
	EventCount int             `json:"event_count"`
}

type DayView struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Short string `json:"short"`
	Today bool   `json:"today"`
}

// RowView is one hour across the seven days.
type RowView struct {
	Time  string     `json:"time"`
	Cells []CellView `json:"cells"`
}

// StackView is one day with its hours, for narrow screens.
type StackView struct {
	Date  string     `json:"date"`
	Label string     `json:"label"`
	Cells []CellView `json:"cells"`
}

type CellView struct {
	Date     string        `json:"date"`
	Time     string        `json:"time"`
	Bookings []BookingView `json:"bookings"`
}

type BookingView struct {
	StudentCode string `json:"student_code"`
	StudentName string `json:"student_name"`
	Teacher     string `json:"teacher"`
	RawTime     string `json:"raw_time"`
	Tentative   bool   `json:"tentative,omitempty"`
}

// View snapshots the board.
func (b *Board) View() View {
	v := View{
		Anchor:     b.Week.Anchor.Format(model.DateLayout),
		Range:      b.Week.Range(),
		Hours:      append([]string(nil), b.Hours...),
		EventCount: b.Count(),
	}
	if len(b.Days) == 7 {
		v.Title = WeekTitle(b.Days[0].Date, b.Days[6].Date)
	}
	for _, d := range b.Days {
		v.Days = append(v.Days, DayView{Date: d.ISO, Label: d.Label, Short: d.Short, Today: d.Today})
	}
	for hi, row := range b.Grid {
		rv := RowView{Time: b.Hours[hi]}
		for _, c := range row {
			rv.Cells = append(rv.Cells, cellView(c))
		}
		v.Rows = append(v.Rows, rv)
	}
	for di, day := range b.Stack {
		sv := StackView{Date: b.Days[di].ISO, Label: b.Days[di].Label}
		for _, c := range day {
			sv.Cells = append(sv.Cells, cellView(c))
		}
		v.Stack = append(v.Stack, sv)
	}
	return v
}

func cellView(c *Container) CellView {
	cv := CellView{Date: c.DateISO, Time: c.TimeSlot, Bookings: make([]BookingView, 0, len(c.Items))}
	for _, it := range c.Items {
		cv.Bookings = append(cv.Bookings, BookingView{
			StudentCode: it.Event.StudentCode,
			StudentName: it.Event.StudentName,
			Teacher:     it.Event.TeacherName,
			RawTime:     it.Event.RawTime,
			Tentative:   it.Tentative,
		})
	}
	return cv
}
