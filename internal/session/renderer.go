package session

import (
	"context"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/viewport"
)

// EventKind names a renderer event.
type EventKind string

const (
	// EventStateChanged fires after local navigation or an animation settles.
	EventStateChanged EventKind = "stateChanged"

	// EventSyncDispatch carries a fine-grained interaction payload that must
	// reach every peer's renderer.
	EventSyncDispatch EventKind = "syncDispatch"

	// EventRenderEnd fires when a page is visibly settled.
	EventRenderEnd EventKind = "renderEnd"
)

// RendererEvent is one event emitted by a Renderer. Which fields are set
// depends on Kind.
type RendererEvent struct {
	Kind    EventKind
	State   deck.SlideState
	Payload []byte
	Index   int
}

// Renderer is the slide decode/paint engine. Implementations may emit events
// synchronously from inside any method call, so handlers must not block on
// the caller.
type Renderer interface {
	BindAnchor(h overlay.Handle) error
	SetResource(taskID, contentPrefix string) error
	PageCount(ctx context.Context) (int, error)
	IntrinsicSize(ctx context.Context) (viewport.Size, error)
	RenderPage(index int, first bool) error

	State() deck.SlideState
	SetState(st deck.SlideState) error

	NextStep() error
	PrevStep() error
	SyncReceive(payload []byte) error
	SetInteractive(on bool)

	On(kind EventKind, fn func(RendererEvent))
	Destroy()
}

// Factory constructs a fresh, unbound renderer.
type Factory func() Renderer

// AttributeWriter persists a deck's state to the attribute table.
type AttributeWriter interface {
	WriteDeck(st deck.SlideState) error
}

// Navigator requests room-wide scene navigation.
type Navigator interface {
	Navigate(p deck.ScenePath) error
}

// Broadcaster sends a payload on the room's sync channel.
type Broadcaster interface {
	Broadcast(payload []byte) error
}
