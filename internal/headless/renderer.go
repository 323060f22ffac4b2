package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/session"
	"github.com/roach88/projector/internal/viewport"
)

// ErrDestroyed is returned by every call on a destroyed renderer.
var ErrDestroyed = errors.New("headless: renderer destroyed")

// ErrNoResource is returned when a deck operation precedes SetResource.
var ErrNoResource = errors.New("headless: no resource bound")

type snapshot struct {
	Step int `json:"step"`
}

type syncMessage struct {
	Page int `json:"page"`
	Step int `json:"step"`
}

// Renderer implements session.Renderer. Events are emitted synchronously,
// after the renderer's lock is released.
type Renderer struct {
	lib Library

	mu          sync.Mutex
	anchor      overlay.Handle
	taskID      string
	prefix      string
	deck        Deck
	loaded      bool
	page        int
	step        int
	interactive bool
	destroyed   bool
	renders     []string
	handlers    map[session.EventKind][]func(session.RendererEvent)
}

var _ session.Renderer = (*Renderer)(nil)

// New returns an unbound renderer resolving content from lib.
func New(lib Library) *Renderer {
	return &Renderer{
		lib:      lib,
		handlers: map[session.EventKind][]func(session.RendererEvent){},
	}
}

func (r *Renderer) BindAnchor(h overlay.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	r.anchor = h
	return nil
}

func (r *Renderer) SetResource(taskID, contentPrefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	r.taskID = taskID
	r.prefix = contentPrefix
	r.loaded = false
	r.page = 0
	r.step = 0
	return nil
}

func (r *Renderer) load(ctx context.Context) (Deck, error) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return Deck{}, ErrDestroyed
	}
	if r.taskID == "" {
		r.mu.Unlock()
		return Deck{}, ErrNoResource
	}
	if r.loaded {
		d := r.deck
		r.mu.Unlock()
		return d, nil
	}
	taskID, prefix := r.taskID, r.prefix
	r.mu.Unlock()

	d, err := r.lib.Lookup(ctx, taskID, prefix)
	if err != nil {
		return Deck{}, err
	}

	r.mu.Lock()
	r.deck = d
	r.loaded = true
	r.mu.Unlock()
	return d, nil
}

func (r *Renderer) PageCount(ctx context.Context) (int, error) {
	d, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	return d.Pages, nil
}

func (r *Renderer) IntrinsicSize(ctx context.Context) (viewport.Size, error) {
	d, err := r.load(ctx)
	if err != nil {
		return viewport.Size{}, err
	}
	return viewport.Size{Width: d.Width, Height: d.Height}, nil
}

func (r *Renderer) RenderPage(index int, _ bool) error {
	r.mu.Lock()
	if err := r.checkPage(index); err != nil {
		r.mu.Unlock()
		return err
	}
	r.page = index
	r.step = 0
	r.record()
	st := r.stateLocked()
	r.mu.Unlock()

	r.emit(session.RendererEvent{Kind: session.EventStateChanged, State: st})
	r.emit(session.RendererEvent{Kind: session.EventRenderEnd, Index: index})
	return nil
}

func (r *Renderer) State() deck.SlideState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Renderer) SetState(st deck.SlideState) error {
	var snap snapshot
	if len(st.Snapshot) > 0 {
		if err := json.Unmarshal(st.Snapshot, &snap); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
	}

	r.mu.Lock()
	if err := r.checkPage(st.CurrentIndex); err != nil {
		r.mu.Unlock()
		return err
	}
	r.page = st.CurrentIndex
	r.step = min(max(snap.Step, 0), r.deck.StepsOn(r.page)-1)
	r.record()
	out := r.stateLocked()
	r.mu.Unlock()

	r.emit(session.RendererEvent{Kind: session.EventStateChanged, State: out})
	r.emit(session.RendererEvent{Kind: session.EventRenderEnd, Index: out.CurrentIndex})
	return nil
}

// NextStep plays the next animation step, or turns to the next page after
// the last step. A no-op on the final step of the final page.
func (r *Renderer) NextStep() error {
	r.mu.Lock()
	if err := r.checkPage(r.page); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.step+1 < r.deck.StepsOn(r.page) {
		r.step++
		msg := syncMessage{Page: r.page, Step: r.step}
		r.mu.Unlock()
		return r.dispatch(msg)
	}
	if r.page >= r.deck.Pages {
		r.mu.Unlock()
		return nil
	}
	r.page++
	r.step = 0
	r.record()
	st := r.stateLocked()
	r.mu.Unlock()

	r.emit(session.RendererEvent{Kind: session.EventStateChanged, State: st})
	r.emit(session.RendererEvent{Kind: session.EventRenderEnd, Index: st.CurrentIndex})
	return nil
}

// PrevStep reverses one animation step, or turns to the previous page.
func (r *Renderer) PrevStep() error {
	r.mu.Lock()
	if err := r.checkPage(r.page); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.step > 0 {
		r.step--
		msg := syncMessage{Page: r.page, Step: r.step}
		r.mu.Unlock()
		return r.dispatch(msg)
	}
	if r.page <= 1 {
		r.mu.Unlock()
		return nil
	}
	r.page--
	r.step = 0
	r.record()
	st := r.stateLocked()
	r.mu.Unlock()

	r.emit(session.RendererEvent{Kind: session.EventStateChanged, State: st})
	r.emit(session.RendererEvent{Kind: session.EventRenderEnd, Index: st.CurrentIndex})
	return nil
}

// SyncReceive applies a peer's animation step. Messages for another page
// are ignored; page changes travel through scene navigation.
func (r *Renderer) SyncReceive(payload []byte) error {
	var msg syncMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode sync payload: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	if msg.Page != r.page || !r.loaded {
		return nil
	}
	r.step = min(max(msg.Step, 0), r.deck.StepsOn(r.page)-1)
	return nil
}

func (r *Renderer) SetInteractive(on bool) {
	r.mu.Lock()
	r.interactive = on
	r.mu.Unlock()
}

func (r *Renderer) On(kind session.EventKind, fn func(session.RendererEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], fn)
}

func (r *Renderer) Destroy() {
	r.mu.Lock()
	r.destroyed = true
	r.handlers = map[session.EventKind][]func(session.RendererEvent){}
	r.mu.Unlock()
}

// TaskID returns the bound deck.
func (r *Renderer) TaskID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.taskID
}

// Page returns the displayed page, 0 before the first render.
func (r *Renderer) Page() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page
}

// Step returns the animation step on the displayed page.
func (r *Renderer) Step() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

// Interactive reports the interaction toggle.
func (r *Renderer) Interactive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interactive
}

// Destroyed reports whether Destroy ran.
func (r *Renderer) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// Anchor returns the bound anchor handle.
func (r *Renderer) Anchor() overlay.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.anchor
}

// Renders returns every painted page as "<task>/<index>", in order.
func (r *Renderer) Renders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.renders...)
}

func (r *Renderer) checkPage(index int) error {
	if r.destroyed {
		return ErrDestroyed
	}
	if !r.loaded {
		return ErrNoResource
	}
	if index < 1 || index > r.deck.Pages {
		return fmt.Errorf("page %d out of range 1..%d", index, r.deck.Pages)
	}
	return nil
}

func (r *Renderer) record() {
	r.renders = append(r.renders, fmt.Sprintf("%s/%d", r.taskID, r.page))
}

func (r *Renderer) stateLocked() deck.SlideState {
	snap, _ := json.Marshal(snapshot{Step: r.step})
	return deck.SlideState{
		TaskID:       r.taskID,
		ContentURL:   r.prefix,
		CurrentIndex: r.page,
		PageCount:    r.deck.Pages,
		Snapshot:     snap,
	}
}

func (r *Renderer) dispatch(msg syncMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.emit(session.RendererEvent{Kind: session.EventSyncDispatch, Payload: payload})
	return nil
}

func (r *Renderer) emit(ev session.RendererEvent) {
	r.mu.Lock()
	fns := append([]func(session.RendererEvent){}, r.handlers[ev.Kind]...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
