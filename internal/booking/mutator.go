// Package booking performs writes against the spreadsheet API. Every write
// shows an optimistic change on the board first, then either confirms it
// (and refetches the authoritative schedule) or rolls it back.
package booking

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
	"tutorcal/internal/normalize"
	"tutorcal/internal/schedule"
)

// Operation names as shown to the user.
const (
	OpCreate = "Add booking"
	OpCancel = "Leave"
	OpMove   = "Move booking"
	OpSeries = "Add course"
)

// Backend form actions.
const (
	actionAdd   = "addBooking"
	actionLeave = "leave"
	actionMove  = "moveBooking"
)

// maxSeriesWeeks bounds a recurring course.
const maxSeriesWeeks = 52

// Poster sends one form-encoded write.
type Poster interface {
	Post(ctx context.Context, form url.Values) error
}

// Board is the view state a mutation reconciles with. *schedule.Scheduler
// implements it.
type Board interface {
	ApplyTentative(id string, o schedule.Overlay)
	DropTentative(id string)
	Invalidate()
	Refresh(ctx context.Context, week model.WeekView) error
	Week() model.WeekView
	Events() []model.Event
}

// Holidays lists closed days; recurring courses skip them.
type Holidays interface {
	Between(from, to string) []string
}

// CreateRequest books one session.
type CreateRequest struct {
	StudentCode   string `json:"student_code"`
	StudentName   string `json:"student_name"`
	Teacher       string `json:"teacher"`
	TotalSessions int    `json:"total_sessions"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

// CancelRequest removes a student from a slot ("leave").
type CancelRequest struct {
	Date        string `json:"date"`
	RawTime     string `json:"raw_time"`
	Teacher     string `json:"teacher"`
	StudentCode string `json:"student_code"`
}

// MoveRequest moves a booking to another hour of the same day.
type MoveRequest struct {
	Date        string `json:"date"`
	RawTime     string `json:"raw_time"`
	NewTime     string `json:"new_time"`
	Teacher     string `json:"teacher"`
	StudentCode string `json:"student_code"`
}

// SeriesRequest books Weeks weekly sessions starting at the first booking,
// skipping the listed dates (holidays).
type SeriesRequest struct {
	CreateRequest
	Weeks int      `json:"weeks"`
	Skip  []string `json:"skip,omitempty"`
}

// Mutator runs booking writes. Writes are independent: they are neither
// queued nor coalesced, and reconcile through cache invalidation.
type Mutator struct {
	poster   Poster
	board    Board
	teachers *normalize.Teachers
	holidays Holidays
	loc      *time.Location
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*Mutation
}

// New creates a Mutator.
func New(poster Poster, board Board, teachers *normalize.Teachers, loc *time.Location) *Mutator {
	if loc == nil {
		loc = time.Local
	}
	if teachers == nil {
		teachers = normalize.NewTeachers(nil, "")
	}
	return &Mutator{
		poster:   poster,
		board:    board,
		teachers: teachers,
		loc:      loc,
		now:      time.Now,
		pending:  make(map[string]*Mutation),
	}
}

// UseHolidays makes CreateSeries skip the closed days of h.
func (m *Mutator) UseHolidays(h Holidays) {
	m.holidays = h
}

// Pending lists the mutations still waiting for the backend, oldest first.
func (m *Mutator) Pending() []Mutation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Mutation, 0, len(m.pending))
	for _, mut := range m.pending {
		out = append(out, *mut)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Create books a single session.
func (m *Mutator) Create(ctx context.Context, req CreateRequest) (*Mutation, error) {
	ev, form, err := m.createForm(req)
	if err != nil {
		return nil, &OpError{Op: OpCreate, Err: err}
	}
	mut := m.begin(OpCreate, actionAdd, ev, schedule.Overlay{Add: []model.Event{ev}})
	if err := m.send(ctx, mut, form); err != nil {
		return mut, &OpError{Op: OpCreate, Err: err}
	}
	m.reconcile(ctx, mut.ID)
	return mut, nil
}

// Cancel removes a booking. The matching bookings disappear from the board
// at once and come back if the backend rejects the request.
func (m *Mutator) Cancel(ctx context.Context, req CancelRequest) (*Mutation, error) {
	dateISO, dok := normalize.Date(req.Date)
	slot, tok := normalize.Time(req.RawTime)
	code := strings.TrimSpace(req.StudentCode)
	if !dok || !tok || code == "" {
		return nil, &OpError{Op: OpCancel, Err: ErrInvalidRequest}
	}
	teacher := m.teachers.Canonical(req.Teacher)

	form := url.Values{
		"action":      {actionLeave},
		"date":        {dateISO},
		"time":        {strings.TrimSpace(req.RawTime)},
		"teacher":     {teacher},
		"studentCode": {code},
	}
	target := model.Event{DateISO: dateISO, TimeSlot: slot, StudentCode: code, TeacherName: teacher}
	mut := m.begin(OpCancel, actionLeave, target, schedule.Overlay{Remove: m.matching(dateISO, slot, code)})
	if err := m.send(ctx, mut, form); err != nil {
		return mut, &OpError{Op: OpCancel, Err: err}
	}
	m.reconcile(ctx, mut.ID)
	return mut, nil
}

// Move shifts a booking to NewTime on the same date.
func (m *Mutator) Move(ctx context.Context, req MoveRequest) (*Mutation, error) {
	dateISO, dok := normalize.Date(req.Date)
	slot, tok := normalize.Time(req.RawTime)
	newSlot, nok := normalize.Time(req.NewTime)
	code := strings.TrimSpace(req.StudentCode)
	if !dok || !tok || !nok || code == "" {
		return nil, &OpError{Op: OpMove, Err: ErrInvalidRequest}
	}
	if newSlot == slot {
		return nil, &OpError{Op: OpMove, Err: fmt.Errorf("%w: booking is already at %s", ErrInvalidRequest, slot)}
	}
	teacher := m.teachers.Canonical(req.Teacher)

	form := url.Values{
		"action":      {actionMove},
		"date":        {dateISO},
		"time":        {strings.TrimSpace(req.RawTime)},
		"newTime":     {newSlot},
		"teacher":     {teacher},
		"studentCode": {code},
	}

	var o schedule.Overlay
	o.Remove = m.matching(dateISO, slot, code)
	for _, ev := range o.Remove {
		moved := ev
		moved.TimeSlot = newSlot
		moved.RawTime = newSlot
		moved.Source = nil
		o.Add = append(o.Add, moved)
	}
	target := model.Event{DateISO: dateISO, TimeSlot: newSlot, StudentCode: code, TeacherName: teacher}
	mut := m.begin(OpMove, actionMove, target, o)
	if err := m.send(ctx, mut, form); err != nil {
		return mut, &OpError{Op: OpMove, Err: err}
	}
	m.reconcile(ctx, mut.ID)
	return mut, nil
}

// CreateSeries books a weekly course, skipping requested dates and known
// holidays. All occurrences are shown tentatively, then posted one by one;
// the first failure rolls back that occurrence and every later one, while
// earlier ones stay confirmed.
func (m *Mutator) CreateSeries(ctx context.Context, req SeriesRequest) ([]*Mutation, error) {
	if req.Weeks < 1 || req.Weeks > maxSeriesWeeks {
		return nil, &OpError{Op: OpSeries, Err: fmt.Errorf("%w: weeks must be 1..%d", ErrInvalidRequest, maxSeriesWeeks)}
	}
	first, _, err := m.createForm(req.CreateRequest)
	if err != nil {
		return nil, &OpError{Op: OpSeries, Err: err}
	}
	skip := req.Skip
	if m.holidays != nil {
		skip = append(append([]string(nil), skip...),
			m.holidays.Between(first.DateISO, model.AddDays(first.DateISO, 7*req.Weeks))...)
	}
	dates, err := m.occurrences(first, req.Weeks, skip)
	if err != nil {
		return nil, &OpError{Op: OpSeries, Err: err}
	}

	events := make([]model.Event, 0, len(dates))
	forms := make([]url.Values, 0, len(dates))
	for _, d := range dates {
		one := req.CreateRequest
		one.Date = d
		ev, form, err := m.createForm(one)
		if err != nil {
			return nil, &OpError{Op: OpSeries, Err: err}
		}
		events = append(events, ev)
		forms = append(forms, form)
	}
	muts := make([]*Mutation, 0, len(events))
	for _, ev := range events {
		muts = append(muts, m.begin(OpSeries, actionAdd, ev, schedule.Overlay{Add: []model.Event{ev}}))
	}

	var failed error
	confirmed := make([]string, 0, len(muts))
	for i, mut := range muts {
		if failed != nil {
			m.abandon(mut, failed)
			continue
		}
		if err := m.send(ctx, mut, forms[i]); err != nil {
			failed = fmt.Errorf("%s: %w", mut.DateISO, err)
			continue
		}
		confirmed = append(confirmed, mut.ID)
	}
	if len(confirmed) > 0 {
		m.reconcile(ctx, confirmed...)
	}
	if failed != nil {
		return muts, &OpError{Op: OpSeries, Err: failed}
	}
	return muts, nil
}

// occurrences expands the weekly rule from the first booking's start.
func (m *Mutator) occurrences(first model.Event, weeks int, skip []string) ([]string, error) {
	start, err := first.Start(m.loc)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Count:   weeks,
		Dtstart: start,
	})
	if err != nil {
		return nil, fmt.Errorf("weekly rule: %w", err)
	}

	var set rrule.Set
	set.RRule(r)
	for _, s := range skip {
		iso, ok := normalize.Date(s)
		if !ok {
			return nil, fmt.Errorf("%w: bad skip date %q", ErrInvalidRequest, s)
		}
		d, err := model.ParseDate(iso, m.loc)
		if err != nil {
			return nil, err
		}
		set.ExDate(d.Add(time.Duration(first.Hour()) * time.Hour))
	}

	var out []string
	for _, t := range set.All() {
		out = append(out, t.In(m.loc).Format(model.DateLayout))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: every week was skipped", ErrInvalidRequest)
	}
	return out, nil
}

func (m *Mutator) createForm(req CreateRequest) (model.Event, url.Values, error) {
	code := strings.TrimSpace(req.StudentCode)
	name := strings.TrimSpace(req.StudentName)
	teacherIn := strings.TrimSpace(req.Teacher)
	dateISO, dok := normalize.Date(req.Date)
	slot, tok := normalize.Time(req.Time)
	if code == "" || name == "" || teacherIn == "" || req.TotalSessions <= 0 || !dok || !tok {
		return model.Event{}, nil, ErrInvalidRequest
	}
	teacher := m.teachers.Canonical(teacherIn)

	form := url.Values{
		"action":      {actionAdd},
		"studentCode": {code},
		"studentName": {name},
		"teacher":     {teacher},
		"courseHours": {strconv.Itoa(req.TotalSessions)},
		"date":        {dateISO},
		"time":        {slot},
	}
	ev := model.Event{
		DateISO:       dateISO,
		TimeSlot:      slot,
		RawTime:       slot,
		StudentCode:   code,
		StudentName:   name,
		TeacherName:   teacher,
		SessionsTotal: req.TotalSessions,
	}
	return ev, form, nil
}

// matching returns the cached bookings a leave or move applies to.
func (m *Mutator) matching(dateISO, slot, code string) []model.Event {
	var out []model.Event
	for _, ev := range m.board.Events() {
		if ev.DateISO == dateISO && ev.TimeSlot == slot && ev.StudentCode == code {
			out = append(out, ev)
		}
	}
	return out
}

func (m *Mutator) begin(op, action string, target model.Event, o schedule.Overlay) *Mutation {
	mut := &Mutation{
		ID:          uuid.NewString(),
		Op:          op,
		Action:      action,
		DateISO:     target.DateISO,
		TimeSlot:    target.TimeSlot,
		StudentCode: target.StudentCode,
		Teacher:     target.TeacherName,
		State:       Pending,
		Started:     m.now(),
	}
	m.mu.Lock()
	m.pending[mut.ID] = mut
	m.mu.Unlock()

	m.board.ApplyTentative(mut.ID, o)
	appLog.Debug("mutation pending", "id", mut.ID, "op", op, "date", mut.DateISO, "time", mut.TimeSlot)
	return mut
}

// send posts the form and settles the mutation. On failure the optimistic
// change is dropped right away.
func (m *Mutator) send(ctx context.Context, mut *Mutation, form url.Values) error {
	err := m.poster.Post(ctx, form)
	if err != nil {
		m.abandon(mut, err)
		appLog.Error("mutation rolled back", err, "id", mut.ID, "op", mut.Op)
		return err
	}

	m.mu.Lock()
	mut.confirm()
	delete(m.pending, mut.ID)
	m.mu.Unlock()
	appLog.Info("mutation confirmed", "id", mut.ID, "op", mut.Op, "date", mut.DateISO, "time", mut.TimeSlot)
	return nil
}

func (m *Mutator) abandon(mut *Mutation, err error) {
	m.mu.Lock()
	mut.rollback(err)
	delete(m.pending, mut.ID)
	m.mu.Unlock()
	m.board.DropTentative(mut.ID)
}

// reconcile marks the cache dirty, refetches the visible week and only then
// drops the confirmed overlays, so the board never flashes the old state.
func (m *Mutator) reconcile(ctx context.Context, ids ...string) {
	m.board.Invalidate()
	err := m.board.Refresh(ctx, m.board.Week())
	if err != nil && !errors.Is(err, schedule.ErrSuperseded) {
		appLog.Error("refetch after mutation failed", err)
	}
	for _, id := range ids {
		m.board.DropTentative(id)
	}
}
