package deck

import (
	"encoding/json"
	"fmt"
	"sort"
)

// CurrentTaskKey is the reserved attribute key naming the active deck.
const CurrentTaskKey = "currentTaskId"

// SlideState is the replicated position of one deck.
//
// Snapshot carries renderer-specific detail (animation step, etc.) that the
// coordinator stores and restores without interpreting.
type SlideState struct {
	TaskID       string          `json:"taskId"`
	ContentURL   string          `json:"url"`
	CurrentIndex int             `json:"currentSlideIndex"`
	PageCount    int             `json:"slideCount,omitempty"`
	Snapshot     json.RawMessage `json:"snapshot,omitempty"`
}

// NewSlideState returns the initial state of a freshly created deck: page 1.
func NewSlideState(taskID, contentURL string, pageCount int) SlideState {
	return SlideState{
		TaskID:       taskID,
		ContentURL:   contentURL,
		CurrentIndex: 1,
		PageCount:    pageCount,
	}
}

// Validate checks the structural invariants of a state read from the table.
func (s SlideState) Validate() error {
	if s.TaskID == "" {
		return fmt.Errorf("slide state: task id is required")
	}
	if s.TaskID == CurrentTaskKey {
		return fmt.Errorf("slide state: task id %q is reserved", s.TaskID)
	}
	if s.CurrentIndex < 1 {
		return fmt.Errorf("slide state %s: index %d must be >= 1", s.TaskID, s.CurrentIndex)
	}
	if s.PageCount > 0 && s.CurrentIndex > s.PageCount {
		return fmt.Errorf("slide state %s: index %d exceeds page count %d", s.TaskID, s.CurrentIndex, s.PageCount)
	}
	return nil
}

// ScenePath returns the scene address of the state's current page.
func (s SlideState) ScenePath() ScenePath {
	return ScenePath{TaskID: s.TaskID, Index: s.CurrentIndex}
}

// At returns a copy of the state positioned at index.
func (s SlideState) At(index int) SlideState {
	s.CurrentIndex = index
	return s
}

// Clamp resolves a requested page index against the deck's bounds.
// Values <= 0 resolve to 1 and values above a known page count resolve to
// the last page. The boolean reports whether the request was adjusted.
func (s SlideState) Clamp(index int) (int, bool) {
	if index < 1 {
		return 1, true
	}
	if s.PageCount > 0 && index > s.PageCount {
		return s.PageCount, true
	}
	return index, false
}

// Same reports whether two states address the same deck and page.
// Snapshot detail is ignored.
func (s SlideState) Same(other SlideState) bool {
	return s.TaskID == other.TaskID && s.CurrentIndex == other.CurrentIndex
}

// Table is a read-only view of the room's attribute table.
type Table struct {
	Current string
	Decks   map[string]SlideState
}

// Active returns the state of the deck named by currentTaskId.
// ok is false when no deck is current or its entry has not replicated yet.
func (t Table) Active() (SlideState, bool) {
	if t.Current == "" {
		return SlideState{}, false
	}
	st, ok := t.Decks[t.Current]
	return st, ok
}

// Deck returns the entry for taskID.
func (t Table) Deck(taskID string) (SlideState, bool) {
	st, ok := t.Decks[taskID]
	return st, ok
}

// TaskIDs returns every deck key in sorted order, excluding the reserved key.
func (t Table) TaskIDs() []string {
	ids := make([]string, 0, len(t.Decks))
	for id := range t.Decks {
		if id == CurrentTaskKey {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy safe to hand to another goroutine.
func (t Table) Clone() Table {
	out := Table{Current: t.Current, Decks: make(map[string]SlideState, len(t.Decks))}
	for id, st := range t.Decks {
		if st.Snapshot != nil {
			st.Snapshot = append(json.RawMessage(nil), st.Snapshot...)
		}
		out.Decks[id] = st
	}
	return out
}

// Patch is a partial write to the attribute table. Keys are written
// independently; a remote peer may observe them separately.
type Patch struct {
	// Decks maps task ids to new states. A nil value deletes the key.
	Decks map[string]*SlideState `json:"decks,omitempty"`

	// Current, when non-nil, replaces currentTaskId. An empty string clears it.
	Current *string `json:"currentTaskId,omitempty"`
}

// SetDeck adds a deck write to the patch.
func (p Patch) SetDeck(st SlideState) Patch {
	if p.Decks == nil {
		p.Decks = make(map[string]*SlideState)
	}
	p.Decks[st.TaskID] = &st
	return p
}

// DeleteDeck adds a deck deletion to the patch.
func (p Patch) DeleteDeck(taskID string) Patch {
	if p.Decks == nil {
		p.Decks = make(map[string]*SlideState)
	}
	p.Decks[taskID] = nil
	return p
}

// SetCurrent points currentTaskId at taskID.
func (p Patch) SetCurrent(taskID string) Patch {
	p.Current = &taskID
	return p
}

// ClearCurrent unsets currentTaskId.
func (p Patch) ClearCurrent() Patch {
	empty := ""
	p.Current = &empty
	return p
}

// Empty reports whether the patch writes nothing.
func (p Patch) Empty() bool {
	return len(p.Decks) == 0 && p.Current == nil
}

// Apply returns the table that results from writing p over t.
// t is not modified.
func (p Patch) Apply(t Table) Table {
	out := t.Clone()
	for id, st := range p.Decks {
		if st == nil {
			delete(out.Decks, id)
			continue
		}
		out.Decks[id] = *st
	}
	if p.Current != nil {
		out.Current = *p.Current
	}
	return out
}
