package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"tutorcal/internal/config"
)

// Teachers maps free-text teacher names onto the closed set of labels the
// backend accepts.
type Teachers struct {
	entries []teacherEntry
	others  string
}

type teacherEntry struct {
	label   string
	needles []string
}

// NewTeachers builds a canonicalizer. others is returned for unmatched names.
func NewTeachers(list []config.TeacherConfig, others string) *Teachers {
	t := &Teachers{others: others}
	if t.others == "" {
		t.others = "Others"
	}
	for _, tc := range list {
		if strings.TrimSpace(tc.Label) == "" {
			continue
		}
		e := teacherEntry{label: tc.Label}
		for _, s := range append([]string{tc.Label}, tc.Match...) {
			if f := fold(s); f != "" {
				e.needles = append(e.needles, f)
			}
		}
		t.entries = append(t.entries, e)
	}
	return t
}

// Canonical returns the label whose label or match substrings occur in name.
// Labels are tried before aliases so a full label always wins.
func (t *Teachers) Canonical(name string) string {
	f := fold(name)
	if f == "" {
		return t.others
	}
	for _, e := range t.entries {
		if strings.Contains(f, e.needles[0]) {
			return e.label
		}
	}
	for _, e := range t.entries {
		for _, n := range e.needles[1:] {
			if strings.Contains(f, n) {
				return e.label
			}
		}
	}
	return t.others
}

// Labels returns the known labels followed by the fallback label.
func (t *Teachers) Labels() []string {
	out := make([]string, 0, len(t.entries)+1)
	for _, e := range t.entries {
		out = append(out, e.label)
	}
	return append(out, t.others)
}

// Others is the fallback label.
func (t *Teachers) Others() string {
	return t.others
}

// fold composes Thai combining marks, lowercases Latin text and drops
// whitespace so "ครู โทน" and "ครูโทน" compare equal.
func fold(s string) string {
	s = norm.NFC.String(strings.ToLower(s))
	return strings.Join(strings.Fields(s), "")
}
