package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/engine"
	"github.com/roach88/projector/internal/headless"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/room/memroom"
	"github.com/roach88/projector/internal/session"
	"github.com/roach88/projector/internal/viewport"
)

const (
	// settleTimeout bounds one settle pass over every peer.
	settleTimeout = 5 * time.Second

	// blockedSettle is how long a peer still waiting for its anchor gets to
	// drain its queue before the harness moves on.
	blockedSettle = 50 * time.Millisecond

	// asyncTimeout bounds how long an async create may take to reach the
	// anchor wait, and how long an await step waits for its outcome.
	asyncTimeout = 5 * time.Second

	maxSettleRounds = 100
	maxFlushRounds  = 20

	defaultViewportWidth  = 1600
	defaultViewportHeight = 900
)

// Option configures a scenario run.
type Option func(*Harness)

// WithRecorder logs every committed room mutation to r.
func WithRecorder(r memroom.Recorder) Option {
	return func(h *Harness) { h.recorder = r }
}

// WithLogger sets the logger handed to every coordinator. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Harness runs one scenario: a fresh hub, a fake clock, a deck library and
// one coordinator per joined peer.
type Harness struct {
	scenario *Scenario
	hub      *memroom.Hub
	clock    *clock.FakeClock
	lib      *headless.MapLibrary
	logger   *slog.Logger
	recorder memroom.Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	peers  map[string]*peer
	joined []*peer
}

type peer struct {
	spec   PeerSpec
	room   *memroom.Peer
	anchor *overlay.Anchor
	pool   *headless.Pool
	coord  *engine.Coordinator
	errs   *errorLog
	async  *asyncOp
}

type asyncOp struct {
	step int
	done chan error
}

// errorLog collects errors a coordinator reports through its callback.
type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) add(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

func (l *errorLog) since(n int) []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n >= len(l.errs) {
		return nil
	}
	return append([]error(nil), l.errs[n:]...)
}

func (l *errorLog) labels() []string {
	var out []string
	for _, err := range l.since(0) {
		out = append(out, errorLabel(err))
	}
	return out
}

// errorLabel names err by its code, falling back to the message.
func errorLabel(err error) string {
	if err == nil {
		return ""
	}
	if code := deck.CodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}

// Run executes a scenario and returns the result. Step failures and
// assertion failures are reported in the result; the error is for runs that
// could not complete at all.
//
// Each run uses its own hub and fake clock starting at the Unix epoch, and
// session ids are "<peer>-<n>", so runs are reproducible.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		clock:    clock.Fake(time.Unix(0, 0)),
		lib:      headless.NewMapLibrary(scenario.Decks),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		peers:    map[string]*peer{},
	}
	for _, opt := range opts {
		opt(h)
	}

	hubOpts := []memroom.HubOption{}
	if scenario.Delivery == DeliveryManual {
		hubOpts = append(hubOpts, memroom.WithManualDelivery())
	}
	if h.recorder != nil {
		hubOpts = append(hubOpts, memroom.WithRecorder(h.recorder))
	}
	h.hub = memroom.NewHub(hubOpts...)
	h.ctx, h.cancel = context.WithCancel(context.Background())
	defer h.close()

	for _, spec := range scenario.Peers {
		if !spec.Late {
			if err := h.join(spec); err != nil {
				return nil, err
			}
		}
	}
	if err := h.settle(); err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr := StepResult{Index: i, Op: step.Op, Peer: step.Peer}
		result.Steps = append(result.Steps, sr)
		if err := h.execute(i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}

	for _, p := range h.joined {
		if p.async != nil {
			result.AddError(fmt.Sprintf("steps[%d] (create): async create was never awaited", p.async.step))
		}
	}

	result.Room = h.roomState()
	for _, p := range h.joined {
		result.Peers = append(result.Peers, h.peerState(p))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) close() {
	h.cancel()
	for _, p := range h.joined {
		p.coord.Stop()
	}
	h.wg.Wait()
}

func (h *Harness) join(spec PeerSpec) error {
	rp := h.hub.Join(spec.Name, !spec.ReadOnly)
	rp.SetViewport(defaultViewportWidth, defaultViewportHeight)
	if spec.Appliance != "" {
		rp.SetAppliance(spec.Appliance)
	}

	anchor := overlay.NewAnchor()
	if !spec.AnchorDeferred {
		anchor.Mount(frameHandle(spec.Name), viewport.Point{})
	}

	opts := []engine.Option{
		engine.WithClock(h.clock),
		engine.WithLogger(h.logger.With("peer", spec.Name)),
		engine.WithSessionIDs(session.NewSequenceGenerator(spec.Name)),
	}
	if h.scenario.Debounce != "" {
		d, err := time.ParseDuration(h.scenario.Debounce)
		if err != nil {
			return fmt.Errorf("debounce: %w", err)
		}
		opts = append(opts, engine.WithRestoreDebounce(d))
	}

	p := &peer{
		spec:   spec,
		room:   rp,
		anchor: anchor,
		pool:   headless.NewPool(h.lib),
		errs:   &errorLog{},
	}
	opts = append(opts, engine.WithErrorCallback(p.errs.add))
	p.coord = engine.New(room.Writable(rp), anchor, p.pool.Factory(), opts...)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = p.coord.Run(h.ctx)
	}()

	h.peers[spec.Name] = p
	h.joined = append(h.joined, p)
	return nil
}

func frameHandle(name string) overlay.Handle {
	return overlay.Handle(name + "-frame")
}

// execute runs one step and settles every peer. The returned error aborts
// the run; expected and unexpected operation failures land in result.
func (h *Harness) execute(index int, step Step, result *Result) error {
	sr := &result.Steps[index]
	p := h.peers[step.Peer]

	var opErr error
	switch step.Op {
	case OpJoin:
		if err := h.join(declaredPeer(h.scenario, step.Peer)); err != nil {
			return err
		}

	case OpCreate:
		if step.Async {
			return h.startAsync(p, index, step)
		}
		opErr = p.coord.CreateSlide(h.ctx, step.Task, step.URL)

	case OpChange:
		var opts []engine.ChangeOption
		if step.Page != nil {
			opts = append(opts, engine.AtPage(*step.Page))
		}
		opErr = p.coord.ChangeSlide(h.ctx, step.Task, opts...)

	case OpNext, OpPrev:
		before := p.errs.len()
		if step.Op == OpNext {
			p.coord.NextStep()
		} else {
			p.coord.PrevStep()
		}
		if err := h.settle(); err != nil {
			return err
		}
		if reported := p.errs.since(before); len(reported) > 0 {
			opErr = reported[0]
		}

	case OpDelete:
		deleted, err := p.coord.DeleteSlide(h.ctx, step.Task)
		sr.Deleted = &deleted
		opErr = err

	case OpClean:
		opErr = p.coord.CleanAttributes(h.ctx)

	case OpExit:
		path := step.Path
		if path == "" {
			path = memroom.DefaultScenePath
		}
		opErr = p.room.SetScenePath(path)

	case OpNavigate:
		opErr = p.room.SetScenePath(step.Path)

	case OpFlush:
		if err := h.flush(p); err != nil {
			return err
		}

	case OpFlushAttributes:
		if p != nil {
			p.room.FlushAttributes()
		} else {
			h.hub.FlushAttributes()
		}

	case OpFlushScenes:
		if p != nil {
			p.room.FlushScenes()
		} else {
			h.hub.FlushScenes()
		}

	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		h.clock.Advance(d)

	case OpAppliance:
		p.room.SetAppliance(step.Name)

	case OpCamera:
		p.room.MoveCamera(viewport.Camera{CenterX: step.X, CenterY: step.Y, Scale: step.Scale})

	case OpMount:
		p.anchor.Mount(frameHandle(p.spec.Name), viewport.Point{})

	case OpAwait:
		if err := h.await(p, result); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown op")
	}

	sr.Error = errorLabel(opErr)
	checkStepError(result, index, step, opErr)
	return h.settle()
}

// declaredPeer finds a peer declaration by name.
func declaredPeer(s *Scenario, name string) PeerSpec {
	for _, spec := range s.Peers {
		if spec.Name == name {
			return spec
		}
	}
	return PeerSpec{Name: name}
}

func checkStepError(result *Result, index int, step Step, err error) {
	got := errorLabel(err)
	switch {
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] (%s): unexpected error: %v", index, step.Op, err))
	case step.ExpectError != "" && got != step.ExpectError:
		if got == "" {
			got = "no error"
		}
		result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got %s", index, step.Op, step.ExpectError, got))
	}
}

// startAsync begins a create on its own goroutine and returns once the
// create is parked on the anchor wait (or already finished).
func (h *Harness) startAsync(p *peer, index int, step Step) error {
	if p.async != nil {
		return fmt.Errorf("peer %s already has an async create in flight", p.spec.Name)
	}
	op := &asyncOp{step: index, done: make(chan error, 1)}
	p.async = op

	before := h.clock.Pending()
	go func() {
		op.done <- p.coord.CreateSlide(h.ctx, step.Task, step.URL)
	}()

	deadline := time.Now().Add(asyncTimeout)
	for h.clock.Pending() <= before && len(op.done) == 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("async create on %s did not reach the anchor wait", p.spec.Name)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// await collects the outcome of the peer's async create into that create's
// step result.
func (h *Harness) await(p *peer, result *Result) error {
	op := p.async
	if op == nil {
		return fmt.Errorf("peer %s has no async create in flight", p.spec.Name)
	}
	select {
	case err := <-op.done:
		p.async = nil
		result.Steps[op.step].Error = errorLabel(err)
		checkStepError(result, op.step, h.scenario.Steps[op.step], err)
		return nil
	case <-time.After(asyncTimeout):
		return fmt.Errorf("async create on %s did not finish", p.spec.Name)
	}
}

// flush delivers every pending notification and settles, repeatedly, until
// nothing is pending. With a peer only that peer's queues are drained, once.
func (h *Harness) flush(p *peer) error {
	if p != nil {
		p.room.FlushAttributes()
		p.room.FlushScenes()
		p.room.FlushBroadcasts()
		return nil
	}
	for range maxFlushRounds {
		h.hub.Flush()
		if err := h.settle(); err != nil {
			return err
		}
		pending := false
		for _, q := range h.joined {
			if a, s, e := q.room.Pending(); a+s+e > 0 {
				pending = true
			}
		}
		if !pending {
			return nil
		}
	}
	return fmt.Errorf("room did not quiesce after %d flushes", maxFlushRounds)
}

// settle processes events on every peer until all queues are empty. A peer
// whose anchor has not mounted may be parked on the anchor wait; it gets a
// short grace period and is otherwise left alone.
func (h *Harness) settle() error {
	ctx, cancel := context.WithTimeout(h.ctx, settleTimeout)
	defer cancel()

	for range maxSettleRounds {
		idle := true
		for _, p := range h.joined {
			if !p.anchor.View().Mounted {
				bctx, bcancel := context.WithTimeout(ctx, blockedSettle)
				_ = p.coord.Settle(bctx)
				bcancel()
				continue
			}
			if err := p.coord.Settle(ctx); err != nil {
				return fmt.Errorf("peer %s did not settle: %w", p.spec.Name, err)
			}
		}
		for _, p := range h.joined {
			if p.anchor.View().Mounted && !p.coord.Idle() {
				idle = false
			}
		}
		if idle {
			return nil
		}
	}
	return fmt.Errorf("peers did not settle after %d rounds", maxSettleRounds)
}

func (h *Harness) roomState() RoomState {
	tbl := h.hub.Table()
	st := RoomState{
		Current:   tbl.Current,
		Decks:     map[string]int{},
		ScenePath: h.hub.ScenePath(),
		Scenes:    map[string]int{},
	}

	tasks := map[string]bool{}
	for id, s := range tbl.Decks {
		st.Decks[id] = s.CurrentIndex
		tasks[id] = true
	}
	for id := range h.scenario.Decks {
		tasks[id] = true
	}
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if n := len(h.hub.Scenes(deck.SceneDir(id))); n > 0 {
			st.Scenes[id] = n
		}
	}
	return st
}

func (h *Harness) peerState(p *peer) PeerState {
	view := p.anchor.View()
	ps := PeerState{
		Name:      p.spec.Name,
		Live:      len(p.pool.Live()),
		Created:   p.pool.Created(),
		Clickable: view.Clickable,
		ScenePath: p.room.CurrentScenePath(),
		Errors:    p.errs.labels(),
	}
	if r := p.pool.Current(); r != nil {
		ps.Task = r.TaskID()
		ps.Page = r.Page()
		ps.Step = r.Step()
	}
	return ps
}
