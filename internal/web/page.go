package web

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	appLog "tutorcal/internal/log"
	"tutorcal/internal/schedule"
)

//go:embed templates/week.html
var templatesFS embed.FS

var weekTmpl = template.Must(template.ParseFS(templatesFS, "templates/week.html"))

// weekPage is the data handed to templates/week.html.
type weekPage struct {
	weekResponse
	HolidayNames map[string]string
	Note         string
}

// handleWeekPage renders the board server-side. It is also what the
// snapshot job captures, so it never depends on client-side scripts.
func (s *Server) handleWeekPage(w http.ResponseWriter, r *http.Request) {
	err := s.showWeek(r.Context(), r)
	if err != nil && !errors.Is(err, schedule.ErrSuperseded) && !errors.Is(err, errBadQuery) {
		appLog.Error("week fetch failed, rendering cache", err)
	}
	if errors.Is(err, errBadQuery) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state := s.weekState(err)
	page := weekPage{weekResponse: state, HolidayNames: make(map[string]string, len(state.Holidays))}
	for _, h := range state.Holidays {
		page.HolidayNames[h.Date] = h.Name
	}
	if s.notes != nil {
		if text, err := s.notes.Load(); err == nil {
			page.Note = text
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := weekTmpl.Execute(w, page); err != nil {
		appLog.Error("week page render failed", err)
	}
}
