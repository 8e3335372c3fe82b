package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tutorcal/internal/booking"
	"tutorcal/internal/grid"
	"tutorcal/internal/ics"
	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
	"tutorcal/internal/normalize"
	"tutorcal/internal/schedule"
	"tutorcal/internal/summary"
)

// weekResponse is the JSON shape of /api/week.
type weekResponse struct {
	grid.View
	Holidays  []ics.Holiday      `json:"holidays"`
	Covered   model.DateRange    `json:"covered"`
	FetchedAt *time.Time         `json:"fetched_at,omitempty"`
	Pending   []booking.Mutation `json:"pending"`
	Stale     bool               `json:"stale,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// showWeek moves the board according to the date / nav query parameters.
// A bad parameter is reported as errBadQuery; fetch failures are returned
// as-is and leave the cached board in place.
func (s *Server) showWeek(ctx context.Context, r *http.Request) error {
	q := r.URL.Query()
	if d := strings.TrimSpace(q.Get("date")); d != "" {
		iso, ok := normalize.Date(d)
		if !ok {
			return fmt.Errorf("%w: date %q", errBadQuery, d)
		}
		t, err := model.ParseDate(iso, s.location())
		if err != nil {
			return fmt.Errorf("%w: %v", errBadQuery, err)
		}
		return s.sched.GoTo(ctx, t)
	}
	switch nav := q.Get("nav"); nav {
	case "":
		return s.sched.Show(ctx)
	case "prev":
		return s.sched.Previous(ctx)
	case "next":
		return s.sched.Next(ctx)
	case "today":
		return s.sched.Today(ctx)
	default:
		return fmt.Errorf("%w: nav %q", errBadQuery, nav)
	}
}

var errBadQuery = errors.New("bad query")

func (s *Server) weekState(fetchErr error) weekResponse {
	v := s.sched.View()
	resp := weekResponse{
		View:     v,
		Holidays: s.holidaysIn(v.Range),
		Covered:  s.sched.Cache().Covered(),
		Pending:  []booking.Mutation{},
	}
	if s.mut != nil {
		resp.Pending = s.mut.Pending()
	}
	if at := s.sched.Cache().FetchedAt(); !at.IsZero() {
		resp.FetchedAt = &at
	}
	if fetchErr != nil && !errors.Is(fetchErr, schedule.ErrSuperseded) {
		resp.Stale = true
		resp.Error = fetchErr.Error()
	}
	return resp
}

func (s *Server) holidaysIn(r model.DateRange) []ics.Holiday {
	out := []ics.Holiday{}
	if s.holidays == nil || r.IsZero() {
		return out
	}
	for _, d := range s.holidays.Between(r.From, r.To) {
		name, _ := s.holidays.Lookup(d)
		out = append(out, ics.Holiday{Date: d, Name: name})
	}
	return out
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	err := s.showWeek(r.Context(), r)
	if errors.Is(err, errBadQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil && !errors.Is(err, schedule.ErrSuperseded) {
		appLog.Error("week fetch failed, serving cache", err)
	}
	writeJSON(w, http.StatusOK, s.weekState(err))
}

func (s *Server) handleStudents(w http.ResponseWriter, _ *http.Request) {
	list := summary.Students(s.sched.Cache().All(), s.sched.Now(), s.location())
	if list == nil {
		list = []summary.StudentSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// monthParam parses ?month=YYYY-MM, defaulting to the current month.
func (s *Server) monthParam(r *http.Request) (int, time.Month, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		now := s.sched.Now().In(s.location())
		return now.Year(), now.Month(), nil
	}
	t, err := time.ParseInLocation("2006-01", v, s.location())
	if err != nil {
		return 0, 0, fmt.Errorf("month must be YYYY-MM: %q", v)
	}
	return t.Year(), t.Month(), nil
}

func (s *Server) handleTeachers(w http.ResponseWriter, r *http.Request) {
	year, month, err := s.monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary.TeacherMonth(s.sched.Cache().All(), year, month, s.teachers))
}

func (s *Server) handleTeachersXLSX(w http.ResponseWriter, r *http.Request) {
	year, month, err := s.monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	loads := summary.TeacherMonth(s.sched.Cache().All(), year, month, s.teachers)

	var buf bytes.Buffer
	if err := summary.WriteTeacherXLSX(&buf, loads, year, month); err != nil {
		appLog.Error("xlsx export failed", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="teachers-%04d-%02d.xlsx"`, year, int(month)))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleMutations(w http.ResponseWriter, _ *http.Request) {
	pending := []booking.Mutation{}
	if s.mut != nil {
		pending = s.mut.Pending()
	}
	writeJSON(w, http.StatusOK, pending)
}

// mutationResponse is returned by every booking endpoint, on success and
// on failure, together with the board after reconcile or rollback.
type mutationResponse struct {
	Mutations []*booking.Mutation `json:"mutations"`
	Week      weekResponse        `json:"week"`
	Error     string              `json:"error,omitempty"`
}

// writeMutation maps a mutator result to a response. Validation errors are
// 400; anything the backend rejected is 502.
func (s *Server) writeMutation(w http.ResponseWriter, muts []*booking.Mutation, err error) {
	resp := mutationResponse{Mutations: muts, Week: s.weekState(nil)}
	if resp.Mutations == nil {
		resp.Mutations = []*booking.Mutation{}
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusBadGateway
		if errors.Is(err, booking.ErrInvalidRequest) {
			status = http.StatusBadRequest
		} else {
			appLog.Error("booking mutation failed", err)
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) mutator(w http.ResponseWriter) bool {
	if s.mut == nil {
		writeError(w, http.StatusServiceUnavailable, "bookings are read-only")
		return false
	}
	return true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.mutator(w) {
		return
	}
	var req booking.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The backend write must finish even if the browser goes away.
	mut, err := s.mut.Create(context.WithoutCancel(r.Context()), req)
	s.writeMutation(w, single(mut), err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.mutator(w) {
		return
	}
	var req booking.CancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mut, err := s.mut.Cancel(context.WithoutCancel(r.Context()), req)
	s.writeMutation(w, single(mut), err)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	if !s.mutator(w) {
		return
	}
	var req booking.MoveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mut, err := s.mut.Move(context.WithoutCancel(r.Context()), req)
	s.writeMutation(w, single(mut), err)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if !s.mutator(w) {
		return
	}
	var req booking.SeriesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	muts, err := s.mut.CreateSeries(context.WithoutCancel(r.Context()), req)
	s.writeMutation(w, muts, err)
}

func single(m *booking.Mutation) []*booking.Mutation {
	if m == nil {
		return nil
	}
	return []*booking.Mutation{m}
}

type noteBody struct {
	Note string `json:"note"`
}

func (s *Server) handleNoteGet(w http.ResponseWriter, _ *http.Request) {
	text, err := s.notes.Load()
	if err != nil {
		appLog.Error("note load failed", err)
		writeError(w, http.StatusInternalServerError, "note unavailable")
		return
	}
	writeJSON(w, http.StatusOK, noteBody{Note: text})
}

func (s *Server) handleNotePut(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.notes.Save(body.Note); err != nil {
		appLog.Error("note save failed", err)
		writeError(w, http.StatusInternalServerError, "note not saved")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// handleICS exports every cached booking.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.sched.Cache().All(), ics.ExportOptions{
		Name:     "tutorcal",
		Location: s.location(),
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="tutorcal.ics"`)
	_, _ = w.Write(body)
}
