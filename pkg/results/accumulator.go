// Package results collects resolved identifiers per title.
package results

import "sync"

// Entry is one resolved title with its identifiers.
type Entry struct {
	Title string   `json:"title"`
	IDs   []string `json:"ids"`
}

// Accumulator maps titles to identifier lists. It is safe for concurrent
// use. Only titles with at least one identifier are stored; a later write
// for the same title replaces the earlier one.
type Accumulator struct {
	mu    sync.RWMutex
	ids   map[string][]string
	order []string // first-write order of keys
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{ids: make(map[string][]string)}
}

// Record stores ids for title if ids is non-empty. It reports whether an
// entry was written.
func (a *Accumulator) Record(title string, ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	cp := make([]string, len(ids))
	copy(cp, ids)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.ids[title]; !exists {
		a.order = append(a.order, title)
	}
	a.ids[title] = cp
	return true
}

// Get returns a copy of the identifiers recorded for title.
func (a *Accumulator) Get(title string) ([]string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids, ok := a.ids[title]
	if !ok {
		return nil, false
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	return cp, true
}

// Len returns the number of recorded titles.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ids)
}

// Entries returns all entries in first-write order.
func (a *Accumulator) Entries() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Entry, 0, len(a.order))
	for _, title := range a.order {
		out = append(out, a.entryLocked(title))
	}
	return out
}

// Ordered returns entries ordered by each title's first occurrence in
// titles, which makes output independent of completion order. Recorded
// titles missing from titles follow in first-write order.
func (a *Accumulator) Ordered(titles []string) []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Entry, 0, len(a.ids))
	seen := make(map[string]struct{}, len(a.ids))
	for _, title := range titles {
		if _, done := seen[title]; done {
			continue
		}
		if _, ok := a.ids[title]; !ok {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, a.entryLocked(title))
	}
	for _, title := range a.order {
		if _, done := seen[title]; !done {
			out = append(out, a.entryLocked(title))
		}
	}
	return out
}

func (a *Accumulator) entryLocked(title string) Entry {
	ids := a.ids[title]
	cp := make([]string, len(ids))
	copy(cp, ids)
	return Entry{Title: title, IDs: cp}
}
