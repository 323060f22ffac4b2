// Package session owns the one live renderer of a deck and isolates the
// coordinator from its lifecycle.
//
// A Session is created unbound. Init waits for the overlay anchor and
// constructs the renderer, BindResource attaches a deck, and RenderPage
// paints pages. Renderer events flow upward through the narrow capabilities
// in Config; the session never holds a reference to its coordinator.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/codec"
	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/viewport"
)

// DefaultAnchorTimeout bounds Init's wait for the overlay anchor.
const DefaultAnchorTimeout = 10 * time.Second

// Config wires a session to its collaborators.
type Config struct {
	// ID tags broadcast envelopes. Generated when empty.
	ID string

	Anchor        *overlay.Anchor
	Clock         clock.Clock
	AnchorTimeout time.Duration
	Logger        *slog.Logger

	// Camera reports the current whiteboard camera for alignment.
	Camera func() viewport.Camera

	Writer      AttributeWriter
	Navigator   Navigator
	Broadcaster Broadcaster

	// OnError receives failures from renderer event handlers, which have no
	// caller to return to.
	OnError func(error)

	// OnRenderComplete is an optional page-settled notification.
	OnRenderComplete func(taskID string, index int)
}

type phase int

const (
	phaseCreated phase = iota
	phaseInitialized
	phaseBound
	phaseDestroyed
)

// Session is the single owner of a Renderer. Safe for concurrent use; no
// lock is held while the renderer runs, because renderers emit events
// synchronously.
type Session struct {
	cfg     Config
	factory Factory

	mu         sync.Mutex
	phase      phase
	renderer   Renderer
	taskID     string
	contentURL string
	index      int
	pageCount  int
	size       viewport.Size
	rendered   bool
}

// New creates an unbound session. No renderer exists until Init.
func New(cfg Config, factory Factory) *Session {
	if cfg.ID == "" {
		cfg.ID = UUIDv7Generator{}.Generate()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.AnchorTimeout <= 0 {
		cfg.AnchorTimeout = DefaultAnchorTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "session", "session_id", cfg.ID)
	return &Session{cfg: cfg, factory: factory}
}

// ID returns the session id.
func (s *Session) ID() string { return s.cfg.ID }

// TaskID returns the bound deck, or "" before BindResource.
func (s *Session) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// CurrentIndex returns the last page the session rendered or recorded.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Size returns the deck's intrinsic pixel size.
func (s *Session) Size() viewport.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Destroyed reports whether Teardown ran.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phaseDestroyed
}

// Init waits for the anchor and constructs the renderer bound to it.
// Past the anchor timeout it fails with a ResourceError and no renderer is
// constructed.
func (s *Session) Init(ctx context.Context) (overlay.Handle, error) {
	s.mu.Lock()
	if s.phase != phaseCreated {
		s.mu.Unlock()
		return "", deck.NewStatusError(deck.ErrCodeInvalidArgument, "session already initialized")
	}
	s.mu.Unlock()

	handle, err := s.cfg.Anchor.Wait(ctx, s.cfg.Clock, s.cfg.AnchorTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", deck.NewResourceError(deck.ErrCodeAnchorTimeout, "overlay anchor never became ready", err)
	}

	r := s.factory()

	s.mu.Lock()
	if s.phase == phaseDestroyed {
		s.mu.Unlock()
		r.Destroy()
		return "", deck.NewStatusError(deck.ErrCodeNoSession, "session torn down during init")
	}
	s.renderer = r
	s.phase = phaseInitialized
	s.mu.Unlock()

	r.On(EventStateChanged, s.handleStateChanged)
	r.On(EventSyncDispatch, s.handleSyncDispatch)
	r.On(EventRenderEnd, s.handleRenderEnd)

	if err := r.BindAnchor(handle); err != nil {
		return "", deck.NewResourceError(deck.ErrCodeRenderFailed, "bind anchor", err)
	}
	s.cfg.Logger.Debug("session initialized", "anchor", string(handle))
	return handle, nil
}

// BindResource attaches the renderer to a deck and records its intrinsic
// pixel size on the anchor.
func (s *Session) BindResource(ctx context.Context, taskID, contentPrefix string) error {
	r, err := s.live(phaseInitialized)
	if err != nil {
		return err
	}
	if err := r.SetResource(taskID, contentPrefix); err != nil {
		return deck.NewResourceError(deck.ErrCodeContentUnavailable, "set resource", err).WithTask(taskID)
	}
	size, err := r.IntrinsicSize(ctx)
	if err != nil {
		return deck.NewResourceError(deck.ErrCodeContentUnavailable, "intrinsic size", err).WithTask(taskID)
	}

	s.mu.Lock()
	s.taskID = taskID
	s.contentURL = contentPrefix
	s.size = size
	if s.phase == phaseInitialized {
		s.phase = phaseBound
	}
	s.mu.Unlock()

	s.cfg.Anchor.SetSize(size)
	s.cfg.Logger.Debug("resource bound", "task_id", taskID, "width", size.Width, "height", size.Height)
	return nil
}

// PageCount returns the bound deck's page count.
func (s *Session) PageCount(ctx context.Context) (int, error) {
	r, err := s.live(phaseBound)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	cached := s.pageCount
	taskID := s.taskID
	s.mu.Unlock()
	if cached > 0 {
		return cached, nil
	}

	n, err := r.PageCount(ctx)
	if err != nil {
		return 0, deck.NewResourceError(deck.ErrCodeContentUnavailable, "page count", err).WithTask(taskID)
	}
	if n < 1 {
		return 0, deck.NewResourceError(deck.ErrCodeContentUnavailable, fmt.Sprintf("deck has %d pages", n), nil).WithTask(taskID)
	}

	s.mu.Lock()
	s.pageCount = n
	s.mu.Unlock()
	return n, nil
}

// RenderPage aligns the overlay to the current camera, then paints index.
func (s *Session) RenderPage(index int) error {
	r, err := s.live(phaseBound)
	if err != nil {
		return err
	}
	if index < 1 {
		return deck.NewRuntimeError(deck.ErrCodeInvalidArgument, fmt.Sprintf("page index %d", index))
	}

	s.mu.Lock()
	first := !s.rendered
	s.rendered = true
	s.index = index
	taskID := s.taskID
	s.mu.Unlock()

	s.alignCurrent()
	if err := r.RenderPage(index, first); err != nil {
		return deck.NewResourceError(deck.ErrCodeRenderFailed, fmt.Sprintf("render page %d", index), err).WithTask(taskID)
	}
	return nil
}

// CaptureState returns the renderer's exact position.
func (s *Session) CaptureState() (deck.SlideState, error) {
	r, err := s.live(phaseBound)
	if err != nil {
		return deck.SlideState{}, err
	}
	st := r.State()

	s.mu.Lock()
	defer s.mu.Unlock()
	st.TaskID = s.taskID
	st.ContentURL = s.contentURL
	if st.PageCount == 0 {
		st.PageCount = s.pageCount
	}
	return st, nil
}

// ApplyState restores the renderer to st. Alignment precedes the repaint.
func (s *Session) ApplyState(st deck.SlideState) error {
	r, err := s.live(phaseBound)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if st.TaskID != s.taskID {
		bound := s.taskID
		s.mu.Unlock()
		return deck.NewRuntimeError(deck.ErrCodeInvalidArgument,
			fmt.Sprintf("state for %q applied to session bound to %q", st.TaskID, bound))
	}
	s.index = st.CurrentIndex
	s.rendered = true
	if st.PageCount > 0 {
		s.pageCount = st.PageCount
	}
	s.mu.Unlock()

	s.alignCurrent()
	if err := r.SetState(st); err != nil {
		return deck.NewResourceError(deck.ErrCodeRenderFailed, "apply state", err).WithTask(st.TaskID)
	}
	return nil
}

// NextStep advances the renderer by one animation step or page.
func (s *Session) NextStep() error {
	r, err := s.live(phaseBound)
	if err != nil {
		return err
	}
	return r.NextStep()
}

// PrevStep goes back one animation step or page.
func (s *Session) PrevStep() error {
	r, err := s.live(phaseBound)
	if err != nil {
		return err
	}
	return r.PrevStep()
}

// SetInteractive toggles pointer interaction inside the renderer.
func (s *Session) SetInteractive(on bool) {
	if r, err := s.live(phaseInitialized); err == nil {
		r.SetInteractive(on)
	}
}

// Align applies the transform for cam to the anchor.
func (s *Session) Align(cam viewport.Camera) {
	size := s.Size()
	s.cfg.Anchor.Apply(viewport.ComputeTransform(cam, size, s.cfg.Anchor.Origin()))
}

// Receive routes a broadcast envelope into the renderer. Envelopes sent by
// this session, or for another deck, are dropped.
func (s *Session) Receive(data []byte) {
	env, err := codec.DecodeEnvelope(data)
	if err != nil {
		s.cfg.Logger.Warn("dropping malformed sync envelope", "error", err)
		return
	}
	if env.Sender == s.cfg.ID {
		return
	}
	r, err := s.live(phaseBound)
	if err != nil {
		return
	}
	if env.TaskID != s.TaskID() {
		s.cfg.Logger.Debug("dropping sync envelope for other deck", "envelope_task", env.TaskID)
		return
	}
	if err := r.SyncReceive(env.Payload); err != nil {
		s.report(fmt.Errorf("sync receive: %w", err))
	}
}

// Teardown releases the renderer. Safe to call at any point, including
// before Init completes, and more than once.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.phase == phaseDestroyed {
		s.mu.Unlock()
		return
	}
	r := s.renderer
	s.renderer = nil
	s.phase = phaseDestroyed
	taskID := s.taskID
	s.mu.Unlock()

	if r != nil {
		r.Destroy()
	}
	s.cfg.Logger.Debug("session torn down", "task_id", taskID)
}

func (s *Session) live(min phase) (Renderer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phaseDestroyed || s.renderer == nil {
		return nil, deck.NewRuntimeError(deck.ErrCodeNoSession, "no live renderer")
	}
	if s.phase < min {
		return nil, deck.NewRuntimeError(deck.ErrCodeNoSession, "renderer not bound to a deck")
	}
	return s.renderer, nil
}

func (s *Session) alignCurrent() {
	if s.cfg.Camera == nil {
		return
	}
	s.Align(s.cfg.Camera())
}

func (s *Session) handleStateChanged(ev RendererEvent) {
	st := ev.State

	s.mu.Lock()
	if s.phase != phaseBound {
		s.mu.Unlock()
		return
	}
	if st.CurrentIndex == s.index {
		s.mu.Unlock()
		return
	}
	s.index = st.CurrentIndex
	st.TaskID = s.taskID
	st.ContentURL = s.contentURL
	if st.PageCount == 0 {
		st.PageCount = s.pageCount
	}
	s.mu.Unlock()

	s.cfg.Logger.Info("local page change", "task_id", st.TaskID, "index", st.CurrentIndex)
	if s.cfg.Writer != nil {
		if err := s.cfg.Writer.WriteDeck(st); err != nil {
			s.report(fmt.Errorf("write deck state: %w", err))
			return
		}
	}
	if s.cfg.Navigator != nil {
		if err := s.cfg.Navigator.Navigate(st.ScenePath()); err != nil {
			s.report(fmt.Errorf("navigate: %w", err))
		}
	}
}

func (s *Session) handleSyncDispatch(ev RendererEvent) {
	if s.cfg.Broadcaster == nil {
		return
	}
	data, err := codec.EncodeEnvelope(codec.Envelope{
		Kind:    string(EventSyncDispatch),
		Sender:  s.cfg.ID,
		TaskID:  s.TaskID(),
		Payload: ev.Payload,
	})
	if err != nil {
		s.report(err)
		return
	}
	if err := s.cfg.Broadcaster.Broadcast(data); err != nil {
		s.report(fmt.Errorf("broadcast: %w", err))
	}
}

func (s *Session) handleRenderEnd(ev RendererEvent) {
	if s.cfg.OnRenderComplete != nil {
		s.cfg.OnRenderComplete(s.TaskID(), ev.Index)
	}
}

func (s *Session) report(err error) {
	s.cfg.Logger.Error("session event failed", "error", err)
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}
