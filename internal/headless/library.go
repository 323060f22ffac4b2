// Package headless is a renderer that keeps deck position in memory and
// paints nothing. It backs the simulator, the replay player and tests.
package headless

import (
	"context"
	"fmt"
	"sync"
)

// Deck describes one deck's content.
type Deck struct {
	Pages  int     `json:"pages" yaml:"pages"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`

	// Steps holds the animation step count per page, 1-based pages at
	// index page-1. Missing entries mean a single step.
	Steps []int `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// StepsOn returns the number of animation steps on page.
func (d Deck) StepsOn(page int) int {
	if page >= 1 && page <= len(d.Steps) && d.Steps[page-1] > 0 {
		return d.Steps[page-1]
	}
	return 1
}

// Library resolves deck content.
type Library interface {
	Lookup(ctx context.Context, taskID, contentPrefix string) (Deck, error)
}

// MapLibrary is a Library keyed by task id. Safe for concurrent use once
// built; use Put while no renderer is reading.
type MapLibrary struct {
	mu    sync.RWMutex
	decks map[string]Deck
}

// NewMapLibrary returns a library holding decks.
func NewMapLibrary(decks map[string]Deck) *MapLibrary {
	m := &MapLibrary{decks: map[string]Deck{}}
	for id, d := range decks {
		m.decks[id] = d
	}
	return m
}

// Put adds or replaces a deck.
func (m *MapLibrary) Put(taskID string, d Deck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decks[taskID] = d
}

// Lookup returns the deck for taskID. The prefix is not consulted.
func (m *MapLibrary) Lookup(_ context.Context, taskID, _ string) (Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decks[taskID]
	if !ok {
		return Deck{}, fmt.Errorf("deck %q not found", taskID)
	}
	return d, nil
}
