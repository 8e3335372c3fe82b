package schedule

import (
	"sort"
	"sync"
	"time"

	"tutorcal/internal/model"
)

// Cache holds the last fetched normalized bookings and the date range known
// to be fully fetched.
type Cache struct {
	mu        sync.RWMutex
	events    []model.Event
	covered   model.DateRange
	fetchedAt time.Time
	dirty     bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Visible returns the cached events dated inside r, ordered by date and slot.
func (c *Cache) Visible(r model.DateRange) []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Event, 0)
	for _, ev := range c.events {
		if r.Contains(ev.DateISO) {
			out = append(out, ev)
		}
	}
	return out
}

// All returns every cached event.
func (c *Cache) All() []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Event(nil), c.events...)
}

// Len is the number of cached events.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Merge applies one fetch result. Cached events dated inside fetched are
// replaced wholesale by events, even when the new fetch returned fewer rows
// for that window. Rows outside the window (a backend that ignores the range
// parameters) are deduplicated against the cache by full tuple. The covered
// range becomes the union of the old and fetched ranges, and the cache is
// clean again.
func (c *Cache) Merge(events []model.Event, fetched model.DateRange, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Event, 0, len(c.events)+len(events))
	pos := make(map[string]int, len(c.events)+len(events))
	for _, ev := range c.events {
		if fetched.Contains(ev.DateISO) {
			continue
		}
		t := ev.Tuple()
		if _, dup := pos[t]; dup {
			continue
		}
		pos[t] = len(out)
		out = append(out, ev)
	}
	for _, ev := range events {
		t := ev.Tuple()
		if i, dup := pos[t]; dup {
			out[i] = ev
			continue
		}
		pos[t] = len(out)
		out = append(out, ev)
	}
	sortEvents(out)

	c.events = out
	c.covered = c.covered.Union(fetched)
	c.fetchedAt = at
	c.dirty = false
}

// Invalidate forces the next request to refetch even for covered ranges.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// Dirty reports whether a local mutation has happened since the last merge.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Covered returns the covered date range (zero when nothing was fetched).
func (c *Cache) Covered() model.DateRange {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.covered
}

// Covers reports whether r lies inside the covered range.
func (c *Cache) Covers(r model.DateRange) bool {
	return c.Covered().Covers(r)
}

// FetchedAt is the time of the last successful merge.
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.events = nil
	c.covered = model.DateRange{}
	c.fetchedAt = time.Time{}
	c.dirty = false
	c.mu.Unlock()
}

func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.DateISO != b.DateISO {
			return a.DateISO < b.DateISO
		}
		if a.TimeSlot != b.TimeSlot {
			return a.TimeSlot < b.TimeSlot
		}
		return a.StudentCode < b.StudentCode
	})
}
