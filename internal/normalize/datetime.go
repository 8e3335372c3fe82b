// Package normalize turns loosely typed spreadsheet values into canonical
// dates (YYYY-MM-DD) and hour slots (HH:00). Every function here is total:
// unrecognized input yields ok=false, never a panic and never a default slot.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tutorcal/internal/model"
)

// buddhistEraOffset converts Thai Buddhist-era years (e.g. 2568) to
// Gregorian ones.
const buddhistEraOffset = 543

var (
	reISODate     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reISODateTime = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ]\d`)
	reYMDSlash    = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	reDMYSlash    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

	reClock    = regexp.MustCompile(`(\d{1,2})[:.](\d{2})`)
	reBareHHMM = regexp.MustCompile(`(?:^|\D)(\d{3,4})(?:\D|$)`)
	reBareHour = regexp.MustCompile(`^(\d{1,2})$`)

	// reJSZoneName strips the "(Indochina Time)" tail of Date.toString().
	reJSZoneName = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
)

// fallbackLayouts are tried in order once the structured forms fail.
var fallbackLayouts = []string{
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon, 2 Jan 2006",
}

// timeSuffixes are unit annotations operators type after an hour. Longer
// forms come first so "hrs" is not left as "rs".
var timeSuffixes = []string{"นาฬิกา", "น.", "โมง", "hrs", "hr", "h"}

// Date normalizes a date value to YYYY-MM-DD.
func Date(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return x.Format(model.DateLayout), true
	case *time.Time:
		if x == nil {
			return "", false
		}
		return Date(*x)
	case string:
		return dateFromString(x)
	case fmt.Stringer:
		return dateFromString(x.String())
	default:
		return "", false
	}
}

func dateFromString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	if m := reISODate.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3])
	}
	if m := reISODateTime.FindStringSubmatch(s); m != nil {
		// Date portion only; the time of day is discarded.
		return makeDate(m[1], m[2], m[3])
	}
	if m := reYMDSlash.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3])
	}
	if m := reDMYSlash.FindStringSubmatch(s); m != nil {
		return makeDate(m[3], m[2], m[1])
	}

	generic := reJSZoneName.ReplaceAllString(s, "")
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, generic); err == nil {
			return makeDate(strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month())), strconv.Itoa(t.Day()))
		}
	}
	return "", false
}

// makeDate validates the components and formats them. Month/day overflow
// (e.g. 2025-02-30) is rejected rather than rolled over.
func makeDate(ys, ms, ds string) (string, bool) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	if y >= 2400 {
		y -= buddhistEraOffset
	}
	if y < 1 || y > 9999 || m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", false
	}
	return t.Format(model.DateLayout), true
}

// Time normalizes a time value to the HH:00 slot it starts in. Minutes are
// discarded and hours above 23 are clamped.
func Time(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return model.HourSlot(x.Hour()), true
	case *time.Time:
		if x == nil {
			return "", false
		}
		return Time(*x)
	case string:
		return timeFromString(x)
	case float64, float32, int, int64, int32, uint, uint64, uint32:
		// Sheet day fractions (0.5416667) and bare numbers carry no
		// reliable hour; a wrong slot is worse than a dropped row.
		return "", false
	default:
		return timeFromString(fmt.Sprint(x))
	}
}

func timeFromString(s string) (string, bool) {
	s = strings.ToLower(s)
	unit := false
	for _, suf := range timeSuffixes {
		if strings.Contains(s, suf) {
			unit = true
			s = strings.ReplaceAll(s, suf, " ")
		}
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return "", false
	}

	var hourText string
	if m := reClock.FindStringSubmatch(s); m != nil {
		hourText = m[1]
	} else if m := reBareHHMM.FindStringSubmatch(s); m != nil {
		hourText = m[1][:len(m[1])-2]
	} else if m := reBareHour.FindStringSubmatch(s); m != nil && unit {
		// "13 h", "18 โมง": a lone hour counts only with a unit.
		hourText = m[1]
	} else {
		return "", false
	}

	h, err := strconv.Atoi(hourText)
	if err != nil {
		return "", false
	}
	if h > 23 {
		h = 23
	}
	return model.HourSlot(h), true
}

// RawTime renders a backend time value as text for round-tripping on
// mutations. Native times become HH:MM.
func RawTime(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.Format("15:04")
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format("15:04")
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
