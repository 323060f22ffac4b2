package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/projector/internal/store"
)

func TestSimulateTestdataScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSimulateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenariosDir})

	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "✓ late_joiner")
	assert.Contains(t, buf.String(), "0 failed")
	assert.Contains(t, buf.String(), "✓ All scenarios passed")
}

func TestSimulateFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSimulateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenariosDir, "--filter", "late_*"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string         `json:"status"`
		Data   SimulateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total, "late_joiner and late_anchor")
	for _, sr := range resp.Data.Scenarios {
		assert.True(t, sr.Pass, sr.Errors)
		assert.NotNil(t, sr.Room)
	}
}

func TestSimulateFailingAssertion(t *testing.T) {
	path := writeFile(t, "wrong.yaml", `
name: wrong_current
description: asserts the wrong current deck
decks:
  A: {pages: 2}
peers:
  - name: alice
steps:
  - {op: create, peer: alice, task: A}
assertions:
  - {type: current_task, task: B}
`)

	buf := &bytes.Buffer{}
	cmd := NewSimulateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ wrong_current")
	assert.Contains(t, buf.String(), "Assertion failed: current_task")
	assert.Contains(t, buf.String(), "1 failed")
}

func TestSimulateLoadErrorCountsAsFailure(t *testing.T) {
	path := writeFile(t, "bad.yaml", "name: [unterminated")

	buf := &bytes.Buffer{}
	cmd := NewSimulateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "failed to load scenario")
}

func TestSimulateRecordsRooms(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rooms.db")

	buf := &bytes.Buffer{}
	cmd := NewSimulateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(scenariosDir, "late_joiner.yaml"), "--db", dbPath})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data SimulateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	sr := resp.Data.Scenarios[0]
	require.NotEmpty(t, sr.RoomID)
	assert.Positive(t, sr.Events)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	rooms, err := st.Rooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, sr.RoomID, rooms[0].ID)
	assert.Equal(t, sr.Events, rooms[0].LastSeq)

	state, err := st.Snapshot(context.Background(), sr.RoomID, 0)
	require.NoError(t, err)
	assert.Equal(t, "A", state.Table.Current)
	assert.Equal(t, 3, state.Table.Decks["A"].CurrentIndex)
	assert.Equal(t, "/projector-plugin/A/3", state.ScenePath)
}
