package grid

import (
	"tutorcal/internal/model"
)

// Item is one booking rendered inside a container.
type Item struct {
	Event model.Event
	// Tentative marks an optimistic insert that the backend has not confirmed.
	Tentative bool
}

// Container is a rendered cell for one slot in one layout.
type Container struct {
	Layout   Layout
	DateISO  string
	TimeSlot string
	Items    []Item
}

// Index maps "dateIso|timeSlot" to every container currently rendered for
// that slot. It is rebuilt whenever the board structure is rebuilt and never
// patched incrementally.
type Index struct {
	slots map[string][]*Container
}

// BuildIndex registers every container of every layout of b.
func BuildIndex(b *Board) *Index {
	ix := &Index{slots: make(map[string][]*Container, 2*b.Week.SlotCount())}
	for _, row := range b.Grid {
		for _, c := range row {
			ix.add(c)
		}
	}
	for _, day := range b.Stack {
		for _, c := range day {
			ix.add(c)
		}
	}
	return ix
}

func (ix *Index) add(c *Container) {
	key := model.SlotKey(c.DateISO, c.TimeSlot)
	ix.slots[key] = append(ix.slots[key], c)
}

// Containers returns the containers registered for a slot key.
func (ix *Index) Containers(key string) []*Container {
	return ix.slots[key]
}

// Len is the number of indexed slot keys.
func (ix *Index) Len() int {
	return len(ix.slots)
}

// Clear empties every indexed container, keeping the containers themselves.
func (ix *Index) Clear() {
	for _, cs := range ix.slots {
		for _, c := range cs {
			c.Items = c.Items[:0]
		}
	}
}

// Place appends ev to every container registered for its slot. It reports
// false when the slot is not on the board.
func (ix *Index) Place(ev model.Event) bool {
	return ix.PlaceItem(Item{Event: ev})
}

// PlaceItem is Place for an item carrying render state. An identical booking
// already present in a container is not added twice.
func (ix *Index) PlaceItem(it Item) bool {
	cs := ix.slots[it.Event.SlotKey()]
	if len(cs) == 0 {
		return false
	}
	tuple := it.Event.Tuple()
	for _, c := range cs {
		if indexOf(c.Items, tuple) >= 0 {
			continue
		}
		c.Items = append(c.Items, it)
	}
	return true
}

// Remove takes ev out of every container for its slot and reports whether
// anything was removed.
func (ix *Index) Remove(ev model.Event) bool {
	removed := false
	tuple := ev.Tuple()
	for _, c := range ix.slots[ev.SlotKey()] {
		if i := indexOf(c.Items, tuple); i >= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			removed = true
		}
	}
	return removed
}

// Contains reports whether ev is rendered in any container.
func (ix *Index) Contains(ev model.Event) bool {
	tuple := ev.Tuple()
	for _, c := range ix.slots[ev.SlotKey()] {
		if indexOf(c.Items, tuple) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(items []Item, tuple string) int {
	for i, it := range items {
		if it.Event.Tuple() == tuple {
			return i
		}
	}
	return -1
}
