// Package overlay holds the host-side anchor the slide renderer paints into.
//
// The anchor may mount after the coordinator starts, because mount ordering
// between the whiteboard's UI tree and the overlay is not guaranteed. Mount
// resolves a one-shot readiness signal exactly once; waiters select on
// Ready() with an explicit timeout rather than polling.
package overlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/viewport"
)

// Handle identifies the host element the renderer binds to.
type Handle string

// View is the presentation state the host applies to the overlay element.
type View struct {
	Mounted   bool
	Handle    Handle
	Size      viewport.Size
	Transform viewport.Transform

	// Clickable is the pointer-events capability: true only while the local
	// user holds the page-turn tool.
	Clickable bool
}

// Anchor is the overlay element shared by the coordinator and its session.
// Safe for concurrent use.
type Anchor struct {
	mu        sync.Mutex
	once      sync.Once
	ready     chan struct{}
	handle    Handle
	origin    viewport.Point
	size      viewport.Size
	transform viewport.Transform
	clickable bool
	onMount   []func()
}

// NewAnchor returns an unmounted anchor.
func NewAnchor() *Anchor {
	return &Anchor{
		ready:     make(chan struct{}),
		transform: viewport.Identity(),
	}
}

// Mount records the host element and resolves the readiness signal.
// Only the first call has any effect.
func (a *Anchor) Mount(h Handle, origin viewport.Point) {
	a.once.Do(func() {
		a.mu.Lock()
		a.handle = h
		a.origin = origin
		listeners := a.onMount
		a.onMount = nil
		a.mu.Unlock()

		close(a.ready)
		for _, fn := range listeners {
			fn()
		}
	})
}

// OnMount registers fn to run once the anchor mounts. If it already has,
// fn runs immediately.
func (a *Anchor) OnMount(fn func()) {
	a.mu.Lock()
	select {
	case <-a.ready:
		a.mu.Unlock()
		fn()
		return
	default:
	}
	a.onMount = append(a.onMount, fn)
	a.mu.Unlock()
}

// Ready is closed once the anchor has mounted.
func (a *Anchor) Ready() <-chan struct{} {
	return a.ready
}

// Wait blocks until the anchor mounts, ctx ends, or timeout elapses on clk.
func (a *Anchor) Wait(ctx context.Context, clk clock.Clock, timeout time.Duration) (Handle, error) {
	select {
	case <-a.ready:
		return a.Handle(), nil
	default:
	}

	select {
	case <-a.ready:
		return a.Handle(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-clk.After(timeout):
		return "", fmt.Errorf("anchor not mounted after %s", timeout)
	}
}

// Handle returns the mounted element, or "" before Mount.
func (a *Anchor) Handle() Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

// Origin returns the overlay box's offset inside the viewport.
func (a *Anchor) Origin() viewport.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.origin
}

// SetSize sets the overlay box to the deck's intrinsic pixel size.
func (a *Anchor) SetSize(s viewport.Size) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.size = s
}

// Apply sets the overlay transform.
func (a *Anchor) Apply(t viewport.Transform) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transform = t
}

// SetClickable toggles the pointer-events capability.
func (a *Anchor) SetClickable(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clickable = on
}

// Reset clears deck-specific presentation after a session is torn down.
func (a *Anchor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.size = viewport.Size{}
	a.transform = viewport.Identity()
}

// View returns a snapshot of the presentation state.
func (a *Anchor) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()

	mounted := false
	select {
	case <-a.ready:
		mounted = true
	default:
	}
	return View{
		Mounted:   mounted,
		Handle:    a.handle,
		Size:      a.size,
		Transform: a.transform,
		Clickable: a.clickable,
	}
}
