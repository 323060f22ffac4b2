package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/codec"
	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/headless"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/session"
	"github.com/roach88/projector/internal/viewport"
)

type recorder struct {
	mu         sync.Mutex
	writes     []deck.SlideState
	navs       []string
	broadcasts [][]byte
	errs       []error
}

func (r *recorder) WriteDeck(st deck.SlideState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, st)
	return nil
}

func (r *recorder) Navigate(p deck.ScenePath) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navs = append(r.navs, p.String())
	return nil
}

func (r *recorder) Broadcast(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, payload)
	return nil
}

func testLibrary() *headless.MapLibrary {
	return headless.NewMapLibrary(map[string]headless.Deck{
		"A": {Pages: 5, Width: 1600, Height: 900, Steps: []int{2}},
	})
}

func newSession(t *testing.T, rec *recorder, pool *headless.Pool, id string) (*session.Session, *overlay.Anchor) {
	t.Helper()
	anchor := overlay.NewAnchor()
	s := session.New(session.Config{
		ID:          id,
		Anchor:      anchor,
		Camera:      func() viewport.Camera { return viewport.Camera{Scale: 1} },
		Writer:      rec,
		Navigator:   rec,
		Broadcaster: rec,
		OnError:     func(err error) { rec.errs = append(rec.errs, err) },
	}, pool.Factory())
	return s, anchor
}

func boundSession(t *testing.T, rec *recorder, pool *headless.Pool, id string) *session.Session {
	t.Helper()
	s, anchor := newSession(t, rec, pool, id)
	anchor.Mount("frame", viewport.Point{})
	ctx := context.Background()
	_, err := s.Init(ctx)
	require.NoError(t, err)
	require.NoError(t, s.BindResource(ctx, "A", "https://cdn/a"))
	return s
}

func TestSession_BindRecordsSizeOnAnchor(t *testing.T) {
	pool := headless.NewPool(testLibrary())
	s, anchor := newSession(t, &recorder{}, pool, "s1")
	anchor.Mount("frame", viewport.Point{})

	h, err := s.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, overlay.Handle("frame"), h)
	require.NoError(t, s.BindResource(context.Background(), "A", "https://cdn/a"))

	assert.Equal(t, viewport.Size{Width: 1600, Height: 900}, anchor.View().Size)
	assert.Equal(t, "A", s.TaskID())
	n, err := s.PageCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, overlay.Handle("frame"), pool.Current().Anchor())
}

func TestSession_InitTimesOutAsResourceError(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	pool := headless.NewPool(testLibrary())
	s := session.New(session.Config{
		Anchor:        overlay.NewAnchor(),
		Clock:         fake,
		AnchorTimeout: 3 * time.Second,
	}, pool.Factory())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Init(context.Background())
		errc <- err
	}()
	require.Eventually(t, func() bool { return fake.Pending() == 1 }, time.Second, time.Millisecond)
	fake.Advance(3 * time.Second)

	err := <-errc
	require.Error(t, err)
	assert.True(t, deck.IsResourceError(err))
	assert.Equal(t, deck.ErrCodeAnchorTimeout, deck.CodeOf(err))
	assert.Zero(t, pool.Created(), "no renderer constructed")
}

func TestSession_TeardownBeforeInit(t *testing.T) {
	pool := headless.NewPool(testLibrary())
	s, _ := newSession(t, &recorder{}, pool, "s1")

	s.Teardown()
	s.Teardown()
	assert.True(t, s.Destroyed())

	err := s.RenderPage(1)
	assert.Equal(t, deck.ErrCodeNoSession, deck.CodeOf(err))
}

func TestSession_TeardownDuringInitWait(t *testing.T) {
	pool := headless.NewPool(testLibrary())
	s, anchor := newSession(t, &recorder{}, pool, "s1")

	errc := make(chan error, 1)
	go func() {
		_, err := s.Init(context.Background())
		errc <- err
	}()
	s.Teardown()
	anchor.Mount("frame", viewport.Point{})

	err := <-errc
	require.Error(t, err)
	assert.Empty(t, pool.Live(), "renderer built after teardown is destroyed")
}

func TestSession_RenderEchoIsDropped(t *testing.T) {
	rec := &recorder{}
	pool := headless.NewPool(testLibrary())
	s := boundSession(t, rec, pool, "s1")

	require.NoError(t, s.RenderPage(3))
	assert.Equal(t, 3, s.CurrentIndex())
	assert.Empty(t, rec.writes, "render of the requested page is not a local change")
	assert.Empty(t, rec.navs)
}

func TestSession_LocalPageChangeWritesThenNavigates(t *testing.T) {
	rec := &recorder{}
	pool := headless.NewPool(testLibrary())
	s := boundSession(t, rec, pool, "s1")
	require.NoError(t, s.RenderPage(2))

	require.NoError(t, s.NextStep())

	require.Len(t, rec.writes, 1)
	assert.Equal(t, "A", rec.writes[0].TaskID)
	assert.Equal(t, 3, rec.writes[0].CurrentIndex)
	assert.Equal(t, "https://cdn/a", rec.writes[0].ContentURL)
	assert.Equal(t, []string{"/projector-plugin/A/3"}, rec.navs)
}

func TestSession_SyncDispatchIsEnveloped(t *testing.T) {
	rec := &recorder{}
	pool := headless.NewPool(testLibrary())
	s := boundSession(t, rec, pool, "s1")
	require.NoError(t, s.RenderPage(1))

	require.NoError(t, s.NextStep())
	require.Len(t, rec.broadcasts, 1)
	env, err := codec.DecodeEnvelope(rec.broadcasts[0])
	require.NoError(t, err)
	assert.Equal(t, "s1", env.Sender)
	assert.Equal(t, "A", env.TaskID)
	assert.Empty(t, rec.writes, "animation step does not change the page")

	// Own echo is ignored; a peer's envelope is applied.
	s.Receive(rec.broadcasts[0])
	assert.Equal(t, 1, pool.Current().Step())

	otherPool := headless.NewPool(testLibrary())
	other := boundSession(t, &recorder{}, otherPool, "s2")
	require.NoError(t, other.RenderPage(1))
	other.Receive(rec.broadcasts[0])
	assert.Equal(t, 1, otherPool.Current().Step())
}

func TestSession_ReceiveFromPeer(t *testing.T) {
	pool := headless.NewPool(testLibrary())
	s := boundSession(t, &recorder{}, pool, "s1")
	require.NoError(t, s.RenderPage(1))

	data, err := codec.EncodeEnvelope(codec.Envelope{Kind: "syncDispatch", Sender: "peer", TaskID: "A", Payload: []byte(`{"page":1,"step":1}`)})
	require.NoError(t, err)
	s.Receive(data)
	assert.Equal(t, 1, pool.Current().Step())

	data, err = codec.EncodeEnvelope(codec.Envelope{Kind: "syncDispatch", Sender: "peer", TaskID: "B", Payload: []byte(`{"page":1,"step":0}`)})
	require.NoError(t, err)
	s.Receive(data)
	assert.Equal(t, 1, pool.Current().Step(), "other deck ignored")
}

func TestSession_ApplyStateRestoresPosition(t *testing.T) {
	rec := &recorder{}
	pool := headless.NewPool(testLibrary())
	s := boundSession(t, rec, pool, "s1")

	st := deck.NewSlideState("A", "https://cdn/a", 5).At(4)
	require.NoError(t, s.ApplyState(st))
	assert.Equal(t, 4, pool.Current().Page())
	assert.Equal(t, 4, s.CurrentIndex())
	assert.Empty(t, rec.writes)

	captured, err := s.CaptureState()
	require.NoError(t, err)
	assert.Equal(t, 4, captured.CurrentIndex)
	assert.Equal(t, "A", captured.TaskID)

	err = s.ApplyState(deck.NewSlideState("B", "", 1))
	assert.True(t, deck.IsRuntimeError(err))
}

func TestSession_AlignsBeforePaint(t *testing.T) {
	pool := headless.NewPool(testLibrary())
	anchor := overlay.NewAnchor()
	cam := viewport.Camera{CenterX: 10, Scale: 2}
	s := session.New(session.Config{
		Anchor: anchor,
		Camera: func() viewport.Camera { return cam },
	}, pool.Factory())
	anchor.Mount("frame", viewport.Point{})
	_, err := s.Init(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.BindResource(context.Background(), "A", ""))

	require.NoError(t, s.RenderPage(1))
	want := viewport.ComputeTransform(cam, viewport.Size{Width: 1600, Height: 900}, viewport.Point{})
	assert.Equal(t, want, anchor.View().Transform)
}

func TestSession_RenderCompleteCallback(t *testing.T) {
	pool := headless.NewPool(testLibrary())
	anchor := overlay.NewAnchor()
	var settled []int
	s := session.New(session.Config{
		Anchor:           anchor,
		OnRenderComplete: func(_ string, i int) { settled = append(settled, i) },
	}, pool.Factory())
	anchor.Mount("frame", viewport.Point{})
	_, err := s.Init(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.BindResource(context.Background(), "A", ""))

	require.NoError(t, s.RenderPage(2))
	assert.Equal(t, []int{2}, settled)
}

func TestSession_PageCountFailureIsResourceError(t *testing.T) {
	pool := headless.NewPool(headless.NewMapLibrary(nil))
	s, anchor := newSession(t, &recorder{}, pool, "s1")
	anchor.Mount("frame", viewport.Point{})
	_, err := s.Init(context.Background())
	require.NoError(t, err)

	err = s.BindResource(context.Background(), "missing", "")
	require.Error(t, err)
	assert.True(t, deck.IsResourceError(err))
	var de *deck.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "missing", de.TaskID)
}

func TestSequenceGenerator(t *testing.T) {
	g := session.NewSequenceGenerator("peer-a")
	assert.Equal(t, "peer-a-1", g.Generate())
	assert.Equal(t, "peer-a-2", g.Generate())
	assert.Len(t, session.UUIDv7Generator{}.Generate(), 36)
}
