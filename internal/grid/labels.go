package grid

import (
	"fmt"
	"time"
)

const buddhistEraOffset = 543

var thaiWeekdayShort = []string{"อา.", "จ.", "อ.", "พ.", "พฤ.", "ศ.", "ส."}

var thaiMonthShort = []string{
	"ม.ค.", "ก.พ.", "มี.ค.", "เม.ย.", "พ.ค.", "มิ.ย.",
	"ก.ค.", "ส.ค.", "ก.ย.", "ต.ค.", "พ.ย.", "ธ.ค.",
}

// ThaiDayLabel formats a date the way the front desk reads it:
// weekday, day, month and Buddhist-era year.
func ThaiDayLabel(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d",
		thaiWeekdayShort[t.Weekday()], t.Day(), thaiMonthShort[t.Month()-1], t.Year()+buddhistEraOffset)
}

// ThaiDate formats a date as DD/MM/YYYY in the Buddhist era.
func ThaiDate(t time.Time) string {
	return fmt.Sprintf("%02d/%02d/%d", t.Day(), int(t.Month()), t.Year()+buddhistEraOffset)
}

// WeekTitle is "15 ก.ย. – 21 ก.ย. 2568".
func WeekTitle(start, end time.Time) string {
	return fmt.Sprintf("%d %s – %d %s %d",
		start.Day(), thaiMonthShort[start.Month()-1],
		end.Day(), thaiMonthShort[end.Month()-1], end.Year()+buddhistEraOffset)
}
