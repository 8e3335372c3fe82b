// Package web serves the week board as an HTML page and a JSON API, and
// forwards booking writes to the mutator.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"tutorcal/internal/booking"
	"tutorcal/internal/config"
	"tutorcal/internal/ics"
	appLog "tutorcal/internal/log"
	"tutorcal/internal/normalize"
	"tutorcal/internal/note"
	"tutorcal/internal/schedule"
)

// PreviewFile is the snapshot written by the capture job, inside StateDir.
const PreviewFile = "preview.png"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Deps are the components the server exposes. Holidays and Mutator may be
// nil; Teachers and Notes default from Config.
type Deps struct {
	Config   *config.Config
	Schedule *schedule.Scheduler
	Mutator  *booking.Mutator
	Teachers *normalize.Teachers
	Notes    *note.Store
	Holidays *ics.Calendar
}

// Server provides the Web UI and API.
type Server struct {
	cfg      *config.Config
	sched    *schedule.Scheduler
	mut      *booking.Mutator
	teachers *normalize.Teachers
	notes    *note.Store
	holidays *ics.Calendar
	mux      *http.ServeMux
}

// NewServer constructs a Server and registers its routes.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		sched:    d.Schedule,
		mut:      d.Mutator,
		teachers: d.Teachers,
		notes:    d.Notes,
		holidays: d.Holidays,
		mux:      http.NewServeMux(),
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.teachers == nil {
		s.teachers = normalize.NewTeachers(s.cfg.Teachers, s.cfg.OthersLabel)
	}
	if s.notes == nil {
		s.notes = note.NewStore(s.cfg.StateDir)
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/students", s.handleStudents)
	s.mux.HandleFunc("GET /api/teachers", s.handleTeachers)
	s.mux.HandleFunc("GET /api/teachers.xlsx", s.handleTeachersXLSX)
	s.mux.HandleFunc("GET /api/mutations", s.handleMutations)
	s.mux.HandleFunc("POST /api/bookings", s.handleCreate)
	s.mux.HandleFunc("POST /api/bookings/leave", s.handleCancel)
	s.mux.HandleFunc("POST /api/bookings/move", s.handleMove)
	s.mux.HandleFunc("POST /api/bookings/series", s.handleSeries)
	s.mux.HandleFunc("GET /api/note", s.handleNoteGet)
	s.mux.HandleFunc("PUT /api/note", s.handleNotePut)

	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
	s.mux.HandleFunc("GET /week", s.handleWeekPage)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/week", http.StatusFound)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tutorcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG from the state directory.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.cfg.StateDir, PreviewFile))
}

func (s *Server) location() *time.Location {
	return s.sched.Location()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errors.New("content type must be application/json")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
