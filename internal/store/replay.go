package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/room/memroom"
)

// State is a room folded from its recording up to Seq.
type State struct {
	RoomID     string              `json:"room_id"`
	Seq        int64               `json:"seq"`
	Table      deck.Table          `json:"table"`
	ScenePath  string              `json:"scene_path"`
	Scenes     map[string][]string `json:"scenes"`
	Broadcasts int                 `json:"broadcasts"`
}

// NewState returns the state of a room before its first event.
func NewState(roomID string) *State {
	return &State{
		RoomID:    roomID,
		Table:     deck.Table{Decks: map[string]deck.SlideState{}},
		ScenePath: memroom.DefaultScenePath,
		Scenes:    map[string][]string{},
	}
}

// Apply folds one record into the state. Records must be applied in seq
// order.
func (st *State) Apply(rec Record) error {
	if rec.Seq <= st.Seq {
		return fmt.Errorf("apply seq %d: state already at %d", rec.Seq, st.Seq)
	}

	switch rec.Kind {
	case KindAttributes:
		p, err := rec.Patch()
		if err != nil {
			return err
		}
		st.Table = p.Apply(st.Table)
	case KindScenePath:
		path, err := rec.ScenePath()
		if err != nil {
			return err
		}
		st.ScenePath = path
	case KindScenes:
		dir, names, err := rec.Scenes()
		if err != nil {
			return err
		}
		existing := st.Scenes[dir]
		for _, n := range names {
			if !slices.Contains(existing, n) {
				existing = append(existing, n)
			}
		}
		st.Scenes[dir] = existing
	case KindScenesRemoved:
		dir, _, err := rec.Scenes()
		if err != nil {
			return err
		}
		for d := range st.Scenes {
			if d == dir || strings.HasPrefix(d, dir+"/") {
				delete(st.Scenes, d)
			}
		}
	case KindBroadcast:
		st.Broadcasts++
	default:
		return fmt.Errorf("apply seq %d: unknown kind %q", rec.Seq, rec.Kind)
	}

	st.Seq = rec.Seq
	return nil
}

// Snapshot folds a room's recording up to and including seq. A seq <= 0
// folds the whole recording.
func (s *Store) Snapshot(ctx context.Context, roomID string, seq int64) (*State, error) {
	var (
		recs []Record
		err  error
	)
	if seq > 0 {
		recs, err = s.ReadEventsUntil(ctx, roomID, seq)
	} else {
		recs, err = s.ReadEvents(ctx, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", roomID, err)
	}

	st := NewState(roomID)
	for _, rec := range recs {
		if err := st.Apply(rec); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", roomID, err)
		}
	}
	return st, nil
}
