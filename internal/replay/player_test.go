package replay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/engine"
	"github.com/roach88/projector/internal/headless"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/store"
	"github.com/roach88/projector/internal/viewport"
)

func must(t *testing.T) func(store.Record, error) store.Record {
	return func(rec store.Record, err error) store.Record {
		t.Helper()
		require.NoError(t, err)
		return rec
	}
}

// recording: alice creates deck A (3 pages) and turns to page 2.
func recording(t *testing.T) []store.Record {
	t.Helper()
	st := deck.NewSlideState("A", "https://cdn/a", 3)
	return []store.Record{
		must(t)(store.ScenesRecord("r", 1, "alice", deck.SceneDir("A"), deck.PageScenes(3))),
		must(t)(store.AttributesRecord("r", 2, "alice", deck.Patch{}.SetDeck(st).SetCurrent("A"))),
		must(t)(store.ScenePathRecord("r", 3, "alice", st.ScenePath().String())),
		must(t)(store.AttributesRecord("r", 4, "alice", deck.Patch{}.SetDeck(st.At(2)))),
		must(t)(store.ScenePathRecord("r", 5, "alice", st.At(2).ScenePath().String())),
		must(t)(store.BroadcastRecord("r", 6, "alice", room.BroadcastEvent{Kind: "other", Payload: []byte("x")})),
	}
}

func TestPlayer_StepNotifies(t *testing.T) {
	p, err := NewPlayer(recording(t))
	require.NoError(t, err)

	var tables []deck.Table
	var paths []string
	var events int
	p.Attributes().OnChange(func(tbl deck.Table) { tables = append(tables, tbl) })
	p.OnStateChanged(func(ch room.StateChange) {
		if ch.ScenePath != nil {
			paths = append(paths, *ch.ScenePath)
		}
	})
	p.AddBroadcastListener("other", func(room.BroadcastEvent) { events++ })
	cancel := p.AddBroadcastListener(engine.SyncEventKind, func(room.BroadcastEvent) { t.Fatal("wrong kind delivered") })
	defer cancel()

	for !p.Done() {
		_, ok, err := p.Step()
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, ok, err := p.Step()
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, tables, 2)
	assert.Equal(t, "A", tables[0].Current)
	assert.Equal(t, 2, tables[1].Decks["A"].CurrentIndex)
	assert.Equal(t, []string{"/projector-plugin/A/1", "/projector-plugin/A/2"}, paths)
	assert.Equal(t, 1, events)
	assert.Equal(t, int64(6), p.Position())
}

func TestPlayer_SeekTo(t *testing.T) {
	p, err := NewPlayer(recording(t))
	require.NoError(t, err)

	require.NoError(t, p.SeekTo(3))
	assert.Equal(t, int64(3), p.Position())
	assert.Equal(t, "/projector-plugin/A/1", p.CurrentScenePath())
	assert.Equal(t, 1, p.State().Table.Decks["A"].CurrentIndex)

	assert.Error(t, p.SeekTo(1), "cannot seek backwards")

	require.NoError(t, p.SeekTo(100))
	assert.True(t, p.Done())
}

func TestPlayer_RejectsWrites(t *testing.T) {
	p, err := NewPlayer(recording(t))
	require.NoError(t, err)

	err = p.Attributes().Write(deck.Patch{}.ClearCurrent())
	assert.True(t, deck.IsStatusError(err))
	assert.Equal(t, deck.ErrCodeReadOnly, deck.CodeOf(err))
}

func TestNewPlayer_Validation(t *testing.T) {
	recs := recording(t)

	_, err := NewPlayer([]store.Record{recs[1], recs[0]})
	assert.Error(t, err)

	other := must(t)(store.ScenePathRecord("other-room", 9, "bob", "/x"))
	_, err = NewPlayer([]store.Record{recs[0], other})
	assert.Error(t, err)

	p, err := NewPlayer(nil)
	require.NoError(t, err)
	assert.True(t, p.Done())
}

func TestLibrary_FromProvisioning(t *testing.T) {
	lib := Library(recording(t))

	d, err := lib.Lookup(context.Background(), "A", "")
	require.NoError(t, err)
	assert.Equal(t, 3, d.Pages)
	assert.Equal(t, float64(DefaultDeckWidth), d.Width)

	_, err = lib.Lookup(context.Background(), "B", "")
	assert.Error(t, err)
}

// A coordinator driven by a player follows the recording without writing.
func TestPlayer_DrivesCoordinator(t *testing.T) {
	recs := recording(t)
	p, err := NewPlayer(recs)
	require.NoError(t, err)

	anchor := overlay.NewAnchor()
	anchor.Mount("replay", viewport.Point{})
	pool := headless.NewPool(Library(recs))
	var reported []error
	coord := engine.New(room.ReadOnly(p), anchor, pool.Factory(),
		engine.WithClock(clock.Fake(time.Unix(0, 0))),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithErrorCallback(func(err error) { reported = append(reported, err) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	settle := func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		require.NoError(t, coord.Settle(sctx))
	}
	settle()

	for !p.Done() {
		_, _, err := p.Step()
		require.NoError(t, err)
		settle()
	}

	active, ok := coord.Active()
	require.True(t, ok)
	assert.Equal(t, "A", active.TaskID)
	assert.Equal(t, 2, active.Index)
	assert.Equal(t, 2, pool.Current().Page())
	assert.Empty(t, reported)

	err = coord.CreateSlide(context.Background(), "B", "")
	assert.Equal(t, deck.ErrCodeReadOnly, deck.CodeOf(err))
}
