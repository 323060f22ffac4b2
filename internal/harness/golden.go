package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/projector/internal/deck"
)

// Snapshot is the golden view of a scenario run: step outcomes, the
// committed room and every peer's local view.
type Snapshot struct {
	ScenarioName string
	Steps        []StepResult
	Room         RoomState
	Peers        []PeerState
}

// toCanonicalMap converts the snapshot for deck.MarshalCanonical, which only
// accepts plain maps, slices and scalars.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		m := map[string]any{
			"index": st.Index,
			"op":    st.Op,
		}
		if st.Peer != "" {
			m["peer"] = st.Peer
		}
		if st.Error != "" {
			m["error"] = st.Error
		}
		if st.Deleted != nil {
			m["deleted"] = *st.Deleted
		}
		steps[i] = m
	}

	decks := map[string]any{}
	for id, index := range s.Room.Decks {
		decks[id] = index
	}
	scenes := map[string]any{}
	for id, n := range s.Room.Scenes {
		scenes[id] = n
	}

	peers := make([]any, len(s.Peers))
	for i, p := range s.Peers {
		m := map[string]any{
			"name":       p.Name,
			"live":       p.Live,
			"created":    p.Created,
			"clickable":  p.Clickable,
			"scene_path": p.ScenePath,
		}
		if p.Task != "" {
			m["task"] = p.Task
			m["page"] = p.Page
			m["step"] = p.Step
		}
		if len(p.Errors) > 0 {
			m["errors"] = p.Errors
		}
		peers[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"room": map[string]any{
			"current":    s.Room.Current,
			"decks":      decks,
			"scene_path": s.Room.ScenePath,
			"scenes":     scenes,
		},
		"peers": peers,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass as well.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
		Room:         result.Room,
		Peers:        result.Peers,
	}
	data, err := deck.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
