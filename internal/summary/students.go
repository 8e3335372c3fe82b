// Package summary derives per-student and per-teacher views from a snapshot
// of cached events. Nothing here is incremental: every call folds over the
// events it is given.
package summary

import (
	"sort"
	"time"

	"tutorcal/internal/model"
	"tutorcal/internal/normalize"
)

// StudentSummary is the course progress of one student.
type StudentSummary struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Teachers []string `json:"teachers"`

	Used      int `json:"used"`
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Remaining int `json:"remaining"`

	CompletedAt []time.Time `json:"completed_at"`
	Upcoming    int         `json:"upcoming"`
	Next        *time.Time  `json:"next,omitempty"`
}

type studentAcc struct {
	sum      StudentSummary
	teachers map[string]bool
	hasUsed  bool
	hint     int
	hasHint  bool
}

// Students groups events by student code (name when the code is missing).
// An event at or before now counts as a completed session. The course total
// comes from the explicit total, else used+remaining hint, else remaining
// hint+completed sessions; remaining is total minus completed, never negative.
func Students(events []model.Event, now time.Time, loc *time.Location) []StudentSummary {
	if loc == nil {
		loc = time.Local
	}
	acc := make(map[string]*studentAcc)
	var order []string

	for _, ev := range events {
		key := ev.StudentCode
		if key == "" {
			key = ev.StudentName
		}
		if key == "" {
			continue
		}
		a, ok := acc[key]
		if !ok {
			a = &studentAcc{teachers: make(map[string]bool)}
			a.sum.Code = ev.StudentCode
			acc[key] = a
			order = append(order, key)
		}
		if a.sum.Name == "" {
			a.sum.Name = ev.StudentName
		}
		if ev.TeacherName != "" {
			a.teachers[ev.TeacherName] = true
		}
		if _, ok := ev.Source.Int(normalize.UsedKeys...); ok {
			a.hasUsed = true
		}
		a.sum.Used = max(a.sum.Used, ev.SessionsUsed)
		a.sum.Total = max(a.sum.Total, ev.SessionsTotal)
		if hint, ok := ev.Source.Int(normalize.RemainingKeys...); ok {
			a.hasHint = true
			a.hint = max(a.hint, hint)
		}

		start, err := ev.Start(loc)
		if err != nil {
			continue
		}
		if !start.After(now) {
			a.sum.CompletedAt = append(a.sum.CompletedAt, start)
			continue
		}
		a.sum.Upcoming++
		if a.sum.Next == nil || start.Before(*a.sum.Next) {
			next := start
			a.sum.Next = &next
		}
	}

	out := make([]StudentSummary, 0, len(order))
	for _, key := range order {
		a := acc[key]
		s := a.sum
		sort.Slice(s.CompletedAt, func(i, j int) bool { return s.CompletedAt[i].Before(s.CompletedAt[j]) })

		// Counters from the sheet may run ahead of the dated rows we can see.
		s.Completed = max(s.Used, len(s.CompletedAt))

		switch {
		case s.Total > 0:
		case a.hasHint && a.hasUsed:
			s.Total = s.Used + a.hint
		case a.hasHint:
			s.Total = a.hint + len(s.CompletedAt)
		}
		s.Remaining = max(s.Total-s.Completed, 0)

		s.Teachers = sortedKeys(a.teachers)
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
