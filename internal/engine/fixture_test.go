package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/headless"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/room/memroom"
	"github.com/roach88/projector/internal/session"
	"github.com/roach88/projector/internal/viewport"
)

// authorLog counts committed room mutations per peer.
type authorLog struct {
	mu     sync.Mutex
	attrs  map[string][]deck.Patch
	paths  map[string][]string
	puts   map[string]int
	events int
}

func newAuthorLog() *authorLog {
	return &authorLog{attrs: map[string][]deck.Patch{}, paths: map[string][]string{}, puts: map[string]int{}}
}

func (l *authorLog) RecordAttributes(author string, p deck.Patch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attrs[author] = append(l.attrs[author], p)
}

func (l *authorLog) RecordScenePath(author, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths[author] = append(l.paths[author], path)
}

func (l *authorLog) RecordScenes(author, _ string, _ []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.puts[author]++
}

func (l *authorLog) RecordScenesRemoved(string, string) {}

func (l *authorLog) RecordBroadcast(string, room.BroadcastEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events++
}

func (l *authorLog) attrWrites(author string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attrs[author])
}

func (l *authorLog) pathWrites(author string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths[author]...)
}

func (l *authorLog) sceneProvisions(author string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.puts[author]
}

// errSink collects reported errors.
type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errSink) add(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *errSink) codes() []deck.ErrorCode {
	var out []deck.ErrorCode
	for _, err := range s.all() {
		out = append(out, deck.CodeOf(err))
	}
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testPeer struct {
	name   string
	room   *memroom.Peer
	anchor *overlay.Anchor
	pool   *headless.Pool
	coord  *Coordinator
	errs   *errSink
	logs   *syncBuffer
}

// renderer returns the peer's live renderer, failing if there is none.
func (p *testPeer) renderer(t *testing.T) *headless.Renderer {
	t.Helper()
	r := p.pool.Current()
	require.NotNil(t, r, "peer %s has no live renderer", p.name)
	return r
}

type fixture struct {
	t     *testing.T
	hub   *memroom.Hub
	clock *clock.FakeClock
	lib   *headless.MapLibrary
	log   *authorLog
	peers []*testPeer
}

func testDecks() map[string]headless.Deck {
	return map[string]headless.Deck{
		"A": {Pages: 5, Width: 1600, Height: 900},
		"B": {Pages: 3, Width: 1024, Height: 768, Steps: []int{2, 1, 1}},
		"C": {Pages: 2, Width: 800, Height: 600},
	}
}

func newFixture(t *testing.T, hubOpts ...memroom.HubOption) *fixture {
	t.Helper()
	log := newAuthorLog()
	return &fixture{
		t:     t,
		hub:   memroom.NewHub(append([]memroom.HubOption{memroom.WithRecorder(log)}, hubOpts...)...),
		clock: clock.Fake(time.Unix(0, 0)),
		lib:   headless.NewMapLibrary(testDecks()),
		log:   log,
	}
}

type peerConfig struct {
	writable bool
	unmount  bool
	opts     []Option
}

type peerOption func(*peerConfig)

func readOnly() peerOption {
	return func(c *peerConfig) { c.writable = false }
}

func anchorUnmounted() peerOption {
	return func(c *peerConfig) { c.unmount = true }
}

func withOpts(o ...Option) peerOption {
	return func(c *peerConfig) { c.opts = append(c.opts, o...) }
}

func (f *fixture) join(name string, popts ...peerOption) *testPeer {
	f.t.Helper()
	cfg := peerConfig{writable: true}
	for _, o := range popts {
		o(&cfg)
	}

	rp := f.hub.Join(name, cfg.writable)
	rp.SetViewport(1600, 900)
	anchor := overlay.NewAnchor()
	if !cfg.unmount {
		anchor.Mount(overlay.Handle(name+"-frame"), viewport.Point{})
	}
	pool := headless.NewPool(f.lib)
	errs := &errSink{}
	logs := &syncBuffer{}

	opts := append([]Option{
		WithClock(f.clock),
		WithLogger(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithErrorCallback(errs.add),
		WithSessionIDs(session.NewSequenceGenerator(name)),
	}, cfg.opts...)
	p := &testPeer{
		name:   name,
		room:   rp,
		anchor: anchor,
		pool:   pool,
		coord:  New(room.Writable(rp), anchor, pool.Factory(), opts...),
		errs:   errs,
		logs:   logs,
	}
	f.start(p.coord)
	f.peers = append(f.peers, p)
	return p
}

func (f *fixture) start(c *Coordinator) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	f.t.Cleanup(func() {
		cancel()
		<-done
	})
}

// settle processes events on every peer until all queues are empty.
func (f *fixture) settle() {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for range 100 {
		for _, p := range f.peers {
			require.NoError(f.t, p.coord.Settle(ctx))
		}
		idle := true
		for _, p := range f.peers {
			if !p.coord.Idle() {
				idle = false
			}
		}
		if idle {
			return
		}
	}
	f.t.Fatal("peers did not settle")
}

// advance moves the fake clock and settles.
func (f *fixture) advance(d time.Duration) {
	f.t.Helper()
	f.clock.Advance(d)
	f.settle()
}

// flush delivers every pending room notification and settles, repeatedly.
func (f *fixture) flush() {
	f.t.Helper()
	for range 20 {
		f.hub.Flush()
		f.settle()
		pending := false
		for _, p := range f.peers {
			a, s, e := p.room.Pending()
			if a+s+e > 0 {
				pending = true
			}
		}
		if !pending {
			return
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPoolFor(f *fixture) *headless.Pool {
	return headless.NewPool(f.lib)
}
