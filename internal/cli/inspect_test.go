package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/projector/internal/store"
)

func TestInspectListsRooms(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", recordedRoom(t)})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "1 room(s)")
	assert.Contains(t, buf.String(), "r  6 event(s), last seq 6")
}

func TestInspectEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No rooms recorded.")
}

func TestInspectRoomAtSeq(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", recordedRoom(t), "--room", "r", "--seq", "3", "--events"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "Room r at seq 3")
	assert.Contains(t, out, "Current: A")
	assert.Contains(t, out, "Scene: /projector-plugin/A/1")
	assert.Contains(t, out, "A page 1/3")
	assert.Contains(t, out, "/projector-plugin/A (3)")
	assert.Contains(t, out, "[3] scene_path by alice")
	assert.NotContains(t, out, "[4]")
}

func TestInspectRoomJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", recordedRoom(t), "--room", "r"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string      `json:"status"`
		Data   InspectRoom `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(6), resp.Data.Seq)
	require.Len(t, resp.Data.Decks, 1)
	assert.Equal(t, 2, resp.Data.Decks[0].Page)
	assert.Equal(t, 1, resp.Data.Broadcasts)
	assert.Empty(t, resp.Data.Events)
}

func TestInspectUnknownRoom(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", recordedRoom(t), "--room", "nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}
