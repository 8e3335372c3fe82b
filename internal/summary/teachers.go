package summary

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tutorcal/internal/model"
	"tutorcal/internal/normalize"
)

// TeacherLoad is one teacher's sessions in a calendar month.
type TeacherLoad struct {
	Teacher     string        `json:"teacher"`
	Sessions    int           `json:"sessions"`
	Students    []StudentLoad `json:"students"`
	Instruments []string      `json:"instruments"`
}

// StudentLoad is one student's sessions with a teacher.
type StudentLoad struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Sessions    int      `json:"sessions"`
	Instruments []string `json:"instruments"`
}

// TeacherMonth counts the sessions of year/month per canonical teacher and,
// nested, per student. Teachers come out in configured label order; teachers
// without sessions are left out.
func TeacherMonth(events []model.Event, year int, month time.Month, teachers *normalize.Teachers) []TeacherLoad {
	if teachers == nil {
		teachers = normalize.NewTeachers(nil, "")
	}
	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))

	type studentAcc struct {
		load  StudentLoad
		instr map[string]bool
	}
	type teacherAcc struct {
		load     TeacherLoad
		students map[string]*studentAcc
		instr    map[string]bool
	}
	acc := make(map[string]*teacherAcc)

	for _, ev := range events {
		if !strings.HasPrefix(ev.DateISO, prefix) {
			continue
		}
		label := teachers.Canonical(ev.TeacherName)
		t, ok := acc[label]
		if !ok {
			t = &teacherAcc{
				load:     TeacherLoad{Teacher: label},
				students: make(map[string]*studentAcc),
				instr:    make(map[string]bool),
			}
			acc[label] = t
		}
		t.load.Sessions++

		key := ev.StudentCode
		if key == "" {
			key = ev.StudentName
		}
		s, ok := t.students[key]
		if !ok {
			s = &studentAcc{load: StudentLoad{Code: ev.StudentCode}, instr: make(map[string]bool)}
			t.students[key] = s
		}
		if s.load.Name == "" {
			s.load.Name = ev.StudentName
		}
		s.load.Sessions++

		if instrument := ev.Source.String(normalize.InstrumentKeys...); instrument != "" {
			s.instr[instrument] = true
			t.instr[instrument] = true
		}
	}

	out := make([]TeacherLoad, 0, len(acc))
	for _, label := range teachers.Labels() {
		t, ok := acc[label]
		if !ok {
			continue
		}
		for _, s := range t.students {
			s.load.Instruments = sortedKeys(s.instr)
			t.load.Students = append(t.load.Students, s.load)
		}
		sort.Slice(t.load.Students, func(i, j int) bool {
			a, b := t.load.Students[i], t.load.Students[j]
			if a.Sessions != b.Sessions {
				return a.Sessions > b.Sessions
			}
			return a.Code+a.Name < b.Code+b.Name
		})
		t.load.Instruments = sortedKeys(t.instr)
		out = append(out, t.load)
	}
	return out
}

const (
	sheetTeachers = "Teachers"
	sheetStudents = "Students"
)

// WriteTeacherXLSX writes the monthly loads as a workbook with a per-teacher
// sheet and a per-student breakdown.
func WriteTeacherXLSX(w io.Writer, loads []TeacherLoad, year int, month time.Month) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetTeachers); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetStudents); err != nil {
		return err
	}

	title := fmt.Sprintf("%04d-%02d", year, int(month))
	if err := f.SetSheetRow(sheetTeachers, "A1", &[]any{"Month", title}); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetTeachers, "A2", &[]any{"Teacher", "Sessions", "Students", "Instruments"}); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetStudents, "A1", &[]any{"Teacher", "Student code", "Student name", "Sessions", "Instruments"}); err != nil {
		return err
	}

	tRow, sRow := 3, 2
	for _, t := range loads {
		cell, err := excelize.CoordinatesToCellName(1, tRow)
		if err != nil {
			return err
		}
		row := []any{t.Teacher, t.Sessions, len(t.Students), strings.Join(t.Instruments, ", ")}
		if err := f.SetSheetRow(sheetTeachers, cell, &row); err != nil {
			return err
		}
		tRow++

		for _, s := range t.Students {
			cell, err := excelize.CoordinatesToCellName(1, sRow)
			if err != nil {
				return err
			}
			row := []any{t.Teacher, s.Code, s.Name, s.Sessions, strings.Join(s.Instruments, ", ")}
			if err := f.SetSheetRow(sheetStudents, cell, &row); err != nil {
				return err
			}
			sRow++
		}
	}

	if err := f.SetColWidth(sheetTeachers, "A", "A", 18); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetStudents, "A", "C", 18); err != nil {
		return err
	}
	return f.Write(w)
}
