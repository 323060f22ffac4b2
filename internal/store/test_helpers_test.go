package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/projector/internal/deck"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// mustRecord unwraps a record constructor result, failing the test on error.
func mustRecord(t *testing.T) func(Record, error) Record {
	return func(rec Record, err error) Record {
		t.Helper()
		require.NoError(t, err)
		return rec
	}
}

// createDeckRecords returns a create sequence for deck A: provision, write,
// navigate.
func createDeckRecords(t *testing.T, roomID string) []Record {
	t.Helper()
	st := deck.NewSlideState("A", "https://cdn/a", 3)
	return []Record{
		mustRecord(t)(ScenesRecord(roomID, 1, "alice", deck.SceneDir("A"), deck.PageScenes(3))),
		mustRecord(t)(AttributesRecord(roomID, 2, "alice", deck.Patch{}.SetDeck(st).SetCurrent("A"))),
		mustRecord(t)(ScenePathRecord(roomID, 3, "alice", st.ScenePath().String())),
	}
}
