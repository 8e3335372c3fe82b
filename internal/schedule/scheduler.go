// Package schedule owns the process-wide booking cache and the visible week:
// it decides when to fetch, applies only the latest fetch, paints the board
// from the cache and layers optimistic changes on top of it.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"tutorcal/internal/grid"
	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
	"tutorcal/internal/normalize"
)

// ErrSuperseded is returned by a fetch whose result was discarded because a
// newer fetch was issued or its context was cancelled. It is not a failure.
var ErrSuperseded = errors.New("schedule fetch superseded")

// Source loads raw schedule rows plus the student name lookup for a range.
type Source interface {
	FetchScheduleWithStudents(ctx context.Context, r model.DateRange) ([]model.RawRow, map[string]string, error)
}

// Presenter receives a fresh view after every paint. It is called with the
// scheduler lock held and must not call back into the Scheduler.
type Presenter interface {
	Present(grid.View)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(grid.View)

func (f PresenterFunc) Present(v grid.View) { f(v) }

// Overlay is a tentative change layered over the cached events until the
// backend confirms or rejects it.
type Overlay struct {
	Add    []model.Event
	Remove []model.Event
}

// Options configures a Scheduler.
type Options struct {
	Source   Source
	Location *time.Location

	StartHour int
	EndHour   int

	// PrefetchBefore / PrefetchAfter pad each fetch window, in days.
	PrefetchBefore int
	PrefetchAfter  int

	Presenter Presenter

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	// Context parents background refreshes; defaults to context.Background.
	Context context.Context
}

// Scheduler is the single owner of the cache, the visible week and the
// in-flight fetch.
type Scheduler struct {
	src       Source
	loc       *time.Location
	startHour int
	endHour   int
	before    int
	after     int
	presenter Presenter
	now       func() time.Time
	baseCtx   context.Context

	cache *Cache

	mu         sync.Mutex
	week       model.WeekView
	board      *grid.Board
	gen        uint64
	cancel     context.CancelFunc
	autoJumped bool
	overlays   map[string]Overlay
	order      []string

	bg sync.WaitGroup
}

// New creates a Scheduler anchored on the current week.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		src:       opts.Source,
		loc:       opts.Location,
		startHour: opts.StartHour,
		endHour:   opts.EndHour,
		before:    opts.PrefetchBefore,
		after:     opts.PrefetchAfter,
		presenter: opts.Presenter,
		now:       opts.Now,
		baseCtx:   opts.Context,
		cache:     NewCache(),
		overlays:  make(map[string]Overlay),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}
	if s.endHour < s.startHour {
		s.startHour, s.endHour = s.endHour, s.startHour
	}
	s.week = model.NewWeekView(s.now().In(s.loc), s.startHour, s.endHour)
	return s
}

// Reset drops all session state: cached events, in-flight fetch, tentative
// overlays and the auto-jump flag. The anchor returns to the current week.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cache.Reset()
	s.overlays = make(map[string]Overlay)
	s.order = nil
	s.autoJumped = false
	s.board = nil
	s.week = model.NewWeekView(s.now().In(s.loc), s.startHour, s.endHour)
}

// Cache exposes the underlying cache (read-mostly).
func (s *Scheduler) Cache() *Cache {
	return s.cache
}

// Location is the business time zone.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Now is the scheduler's clock in the business time zone.
func (s *Scheduler) Now() time.Time {
	return s.now().In(s.loc)
}

// Week returns the visible week.
func (s *Scheduler) Week() model.WeekView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.week
}

// View returns a snapshot of the current board, painting it from the cache
// first if nothing was painted yet.
func (s *Scheduler) View() grid.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil || !s.board.Week.Anchor.Equal(s.week.Anchor) {
		s.paintLocked()
	}
	return s.board.View()
}

// Events returns a snapshot of every cached event.
func (s *Scheduler) Events() []model.Event {
	return s.cache.All()
}

// Show paints the visible week. A covered, clean week is painted from cache
// at once, with a background refresh only when the prefetch window would
// extend coverage. A covered but dirty week is painted from cache and then
// refetched. An uncovered week blocks on a fetch before it is painted.
func (s *Scheduler) Show(ctx context.Context) error {
	s.mu.Lock()
	week := s.week
	covered := s.cache.Covers(week.Range())
	dirty := s.cache.Dirty()
	extends := !s.cache.Covers(s.window(week))
	if covered {
		s.paintLocked()
	}
	s.mu.Unlock()

	if covered && !dirty {
		if extends {
			s.background(week)
		}
		return nil
	}

	err := s.Refresh(ctx, week)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// Next moves the anchor one week forward and shows it.
func (s *Scheduler) Next(ctx context.Context) error {
	return s.navigate(ctx, func(w model.WeekView) model.WeekView { return w.Shift(1) })
}

// Previous moves the anchor one week back and shows it.
func (s *Scheduler) Previous(ctx context.Context) error {
	return s.navigate(ctx, func(w model.WeekView) model.WeekView { return w.Shift(-1) })
}

// Today moves the anchor to the current week and shows it.
func (s *Scheduler) Today(ctx context.Context) error {
	return s.navigate(ctx, func(model.WeekView) model.WeekView {
		return model.NewWeekView(s.now().In(s.loc), s.startHour, s.endHour)
	})
}

// GoTo moves the anchor to the week containing t and shows it.
func (s *Scheduler) GoTo(ctx context.Context, t time.Time) error {
	return s.navigate(ctx, func(model.WeekView) model.WeekView {
		return model.NewWeekView(t.In(s.loc), s.startHour, s.endHour)
	})
}

func (s *Scheduler) navigate(ctx context.Context, move func(model.WeekView) model.WeekView) error {
	s.mu.Lock()
	s.week = move(s.week)
	s.board = nil
	s.mu.Unlock()
	return s.Show(ctx)
}

// Invalidate marks the cache dirty after a local mutation.
func (s *Scheduler) Invalidate() {
	s.cache.Invalidate()
}

// Refresh fetches the padded window around week and merges it. Only the most
// recently issued fetch may apply: starting a fetch cancels the previous one,
// and a fetch that is no longer the latest returns ErrSuperseded without
// touching the cache or the board. A failed fetch is logged and the cached
// content stays on screen.
func (s *Scheduler) Refresh(ctx context.Context, week model.WeekView) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	window := s.window(week)
	s.mu.Unlock()
	defer cancel()

	appLog.Debug("schedule refresh start", "from", window.From, "to", window.To, "gen", gen)
	rows, names, err := s.src.FetchScheduleWithStudents(fctx, window)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || fctx.Err() != nil {
		appLog.Debug("schedule refresh discarded", "gen", gen)
		return ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		appLog.Error("schedule fetch failed; keeping cached schedule", err, "from", window.From, "to", window.To)
		s.paintLocked()
		return err
	}

	events := normalize.Rows(rows, names)
	s.cache.Merge(events, window, s.now())
	if len(events) > 0 {
		s.autoJumpLocked()
	}
	s.paintLocked()
	return nil
}

// Wait blocks until every background refresh has finished.
func (s *Scheduler) Wait() {
	s.bg.Wait()
}

// ApplyTentative layers an optimistic change over the board and repaints.
func (s *Scheduler) ApplyTentative(id string, o Overlay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overlays[id]; !ok {
		s.order = append(s.order, id)
	}
	s.overlays[id] = o
	s.paintLocked()
}

// DropTentative removes an optimistic change and repaints from the cache.
func (s *Scheduler) DropTentative(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overlays[id]; !ok {
		return
	}
	delete(s.overlays, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.paintLocked()
}

func (s *Scheduler) background(week model.WeekView) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		err := s.Refresh(s.baseCtx, week)
		if err != nil && !errors.Is(err, ErrSuperseded) {
			appLog.Debug("background refresh failed", "err", err)
		}
	}()
}

// window pads the week by the prefetch days, biased toward upcoming dates.
func (s *Scheduler) window(w model.WeekView) model.DateRange {
	r := w.Range()
	return model.DateRange{
		From: model.AddDays(r.From, -s.before),
		To:   model.AddDays(r.To, s.after),
	}
}

// autoJumpLocked moves an empty visible week to the nearest upcoming booking
// (or the earliest known one), once per session.
func (s *Scheduler) autoJumpLocked() {
	if s.autoJumped {
		return
	}
	if len(s.cache.Visible(s.week.Range())) > 0 {
		return
	}
	all := s.cache.All()
	if len(all) == 0 {
		return
	}

	today := s.now().In(s.loc).Format(model.DateLayout)
	target := all[0].DateISO
	for _, ev := range all {
		if ev.DateISO >= today {
			target = ev.DateISO
			break
		}
	}
	d, err := model.ParseDate(target, s.loc)
	if err != nil {
		return
	}

	s.autoJumped = true
	s.week = model.NewWeekView(d, s.startHour, s.endHour)
	s.board = nil
	appLog.Info("schedule auto-jump", "anchor", s.week.Anchor.Format(model.DateLayout), "target", target)

	if !s.cache.Covers(s.week.Range()) {
		s.background(s.week)
	}
}

// paintLocked rebuilds the board when the week changed, then repaints it
// from the cache and the tentative overlays.
func (s *Scheduler) paintLocked() {
	today := s.now().In(s.loc).Format(model.DateLayout)
	if s.board == nil || !s.board.Week.Anchor.Equal(s.week.Anchor) {
		s.board = grid.NewBoard(s.week, today)
	}
	s.board.Repaint(s.cache.Visible(s.week.Range()))

	ix := s.board.Index()
	for _, id := range s.order {
		o := s.overlays[id]
		for _, ev := range o.Remove {
			ix.Remove(ev)
		}
		for _, ev := range o.Add {
			ix.PlaceItem(grid.Item{Event: ev, Tentative: true})
		}
	}

	if s.presenter != nil {
		s.presenter.Present(s.board.View())
	}
}
