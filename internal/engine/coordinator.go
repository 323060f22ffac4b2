package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/projector/internal/clock"
	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/overlay"
	"github.com/roach88/projector/internal/preview"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/session"
	"github.com/roach88/projector/internal/viewport"
)

// SyncEventKind is the broadcast kind carrying renderer sync envelopes.
const SyncEventKind = "projector-plugin:syncDispatch"

const tracerName = "github.com/roach88/projector/internal/engine"

// Coordinator is the single authority for which deck is active in one room
// connection. It bridges room notifications to the lifecycle of the one live
// Session.
//
// Notifications are enqueued by room callbacks and processed in FIFO order
// by Run on exactly one goroutine. Public operations may be called from any
// goroutine; construction of a session on either path is serialized by the
// ReconciliationLock, and a request that finds the lock held is dropped.
//
// Thread-safety model:
//   - Public operations, Settle, Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Coordinator struct {
	handle   room.Handle
	disp     room.Displayer
	anchor   *overlay.Anchor
	renderer session.Factory

	logger           *slog.Logger
	onError          func(error)
	clock            clock.Clock
	debounce         time.Duration
	restoreRetries   int
	anchorTimeout    time.Duration
	clicker          string
	ids              session.IDGenerator
	previews         *preview.Lister
	onRenderComplete func(string, int)
	tracerProvider   trace.TracerProvider
	tracer           trace.Tracer

	queue     *eventQueue
	lock      ReconciliationLock
	debouncer *Debouncer

	mu             sync.Mutex
	session        *session.Session
	lastPath       string
	pending        map[string]ownWrite
	exited         string
	restoreAttempt int
	interactive    bool
	cancels        []func()
}

// New creates a coordinator for one room connection. Nothing is subscribed
// until Run.
func New(h room.Handle, anchor *overlay.Anchor, renderer session.Factory, opts ...Option) *Coordinator {
	c := &Coordinator{
		handle:         h,
		disp:           h.Displayer(),
		anchor:         anchor,
		renderer:       renderer,
		logger:         slog.Default(),
		clock:          clock.Real(),
		debounce:       DefaultRestoreDebounce,
		restoreRetries: DefaultRestoreRetries,
		anchorTimeout:  session.DefaultAnchorTimeout,
		clicker:        DefaultClickerAppliance,
		ids:            session.UUIDv7Generator{},
		queue:          newEventQueue(),
		pending:        make(map[string]ownWrite),
		interactive:    true,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.tracerProvider == nil {
		c.tracerProvider = otel.GetTracerProvider()
	}
	c.tracer = c.tracerProvider.Tracer(tracerName)
	c.debouncer = NewDebouncer(c.clock, c.debounce)
	return c
}

// Enqueue submits an event for processing by the Run loop.
// Returns false once the coordinator has stopped.
func (c *Coordinator) Enqueue(ev Event) bool {
	return c.queue.Enqueue(ev)
}

// Run subscribes to the room, seeds the queue with the current room state
// (so a late joiner attaches to the deck already on screen) and processes
// events until ctx is cancelled or Stop is called. On return the live
// session is torn down and every subscription is released.
//
// ERROR HANDLING: a failed event is logged and reported; processing
// continues with the next event.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator starting", "replay", c.handle.IsReplay(), "writable", c.handle.CanWrite())
	c.subscribe()
	c.seed()
	defer c.shutdown()

	for {
		event, ok := c.queue.TryDequeue()
		if ok {
			if err := c.processEvent(ctx, event); err != nil {
				c.logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()

		case <-c.queue.Wait():
			if c.queue.Len() == 0 && c.queue.Closed() {
				c.logger.Info("coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue, which makes Run return.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

// Settle blocks until every event enqueued before the call has been
// processed.
func (c *Coordinator) Settle(ctx context.Context) error {
	done := make(chan struct{})
	if !c.queue.Enqueue(Event{Type: EventBarrier, done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Idle reports whether no events are waiting.
func (c *Coordinator) Idle() bool {
	return c.queue.Len() == 0
}

// RestorePending reports whether a debounced restore is armed.
func (c *Coordinator) RestorePending() bool {
	return c.debouncer.Pending()
}

// ActiveState describes the live session.
type ActiveState struct {
	SessionID string
	TaskID    string
	Index     int
}

// Active returns the live session's deck and page.
func (c *Coordinator) Active() (ActiveState, bool) {
	sess := c.current()
	if sess == nil {
		return ActiveState{}, false
	}
	return ActiveState{SessionID: sess.ID(), TaskID: sess.TaskID(), Index: sess.CurrentIndex()}, true
}

func (c *Coordinator) subscribe() {
	cancels := []func(){
		c.disp.OnStateChanged(func(ch room.StateChange) {
			if ch.ScenePath != nil {
				c.queue.Enqueue(Event{Type: EventScenePath, Path: *ch.ScenePath, Local: ch.Local})
			}
			if ch.Member != nil {
				c.queue.Enqueue(Event{Type: EventMember, Member: *ch.Member})
			}
			if ch.Camera != nil {
				c.queue.Enqueue(Event{Type: EventCamera, Camera: *ch.Camera})
			}
		}),
		c.disp.Attributes().OnChange(func(t deck.Table) {
			c.queue.Enqueue(Event{Type: EventAttributes, Table: t})
		}),
		c.disp.AddBroadcastListener(SyncEventKind, func(ev room.BroadcastEvent) {
			c.queue.Enqueue(Event{Type: EventBroadcast, Payload: ev.Payload})
		}),
	}
	c.anchor.OnMount(func() {
		c.queue.Enqueue(Event{Type: EventAnchorMounted})
	})

	c.mu.Lock()
	c.cancels = cancels
	c.mu.Unlock()
}

func (c *Coordinator) seed() {
	c.queue.Enqueue(Event{Type: EventMember, Member: c.disp.Member()})
	c.queue.Enqueue(Event{Type: EventAttributes, Table: c.disp.Attributes().Read()})
	c.queue.Enqueue(Event{Type: EventScenePath, Path: c.disp.CurrentScenePath()})
}

func (c *Coordinator) shutdown() {
	c.debouncer.Cancel()

	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if sess != nil {
		sess.Teardown()
	}

	// Release anyone blocked in Settle.
	for {
		ev, ok := c.queue.TryDequeue()
		if !ok {
			break
		}
		if ev.done != nil {
			close(ev.done)
		}
	}
	c.logger.Info("coordinator stopped")
}

// processEvent routes an event to its handler.
// Called only from the Run goroutine.
func (c *Coordinator) processEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventScenePath:
		return c.onScenePath(ctx, ev.Path, ev.Local)
	case EventAttributes:
		return c.onAttributes(ctx, ev.Table)
	case EventMember:
		c.onMember(ev.Member)
		return nil
	case EventCamera:
		c.onCamera(ev.Camera)
		return nil
	case EventBroadcast:
		if sess := c.current(); sess != nil {
			sess.Receive(ev.Payload)
		}
		return nil
	case EventAnchorMounted:
		c.logger.Debug("overlay anchor mounted", "anchor", string(c.anchor.Handle()))
		c.onMember(c.disp.Member())
		return nil
	case EventRestore:
		return c.restore(ctx)
	case EventBarrier:
		close(ev.done)
		return nil
	default:
		return deck.NewRuntimeError(deck.ErrCodeInvalidArgument, "unknown event type "+ev.Type.String())
	}
}

func (c *Coordinator) current() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// newSession builds an unbound session wired to this coordinator's narrow
// capabilities.
func (c *Coordinator) newSession() *session.Session {
	id := c.ids.Generate()
	return session.New(session.Config{
		ID:               id,
		Anchor:           c.anchor,
		Clock:            c.clock,
		AnchorTimeout:    c.anchorTimeout,
		Logger:           c.logger,
		Camera:           c.disp.Camera,
		Writer:           attributeWriter{c},
		Navigator:        navigator{c},
		Broadcaster:      broadcaster{c},
		OnError:          func(err error) { c.report("session", err) },
		OnRenderComplete: c.onRenderComplete,
	}, c.renderer)
}

// open constructs a session bound to taskID: anchor wait, resource bind,
// camera alignment. These are the suspension points; c.mu is not held.
func (c *Coordinator) open(ctx context.Context, taskID, contentURL string) (*session.Session, error) {
	sess := c.newSession()
	if _, err := sess.Init(ctx); err != nil {
		sess.Teardown()
		return nil, err
	}
	if err := sess.BindResource(ctx, taskID, contentURL); err != nil {
		sess.Teardown()
		return nil, err
	}
	c.alignWhiteboard(sess.Size())

	c.mu.Lock()
	interactive := c.interactive
	c.mu.Unlock()
	sess.SetInteractive(interactive)
	return sess, nil
}

// install makes sess the live session.
func (c *Coordinator) install(sess *session.Session) {
	c.mu.Lock()
	old := c.session
	c.session = sess
	c.mu.Unlock()
	if old != nil && old != sess {
		old.Teardown()
	}
	c.logger.Info("session active", "task_id", sess.TaskID(), "session_id", sess.ID())
}

// destroy tears down the live session, if any.
func (c *Coordinator) destroy() {
	c.mu.Lock()
	old := c.session
	c.session = nil
	c.mu.Unlock()
	if old != nil {
		old.Teardown()
		c.logger.Info("session destroyed", "task_id", old.TaskID(), "session_id", old.ID())
	}
}

// alignWhiteboard resets the camera, then fits the deck rectangle, so the
// drawing layer and the overlay share an origin.
func (c *Coordinator) alignWhiteboard(size viewport.Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	cam := c.disp.Camera()
	c.disp.MoveCamera(viewport.Camera{Scale: 1, Width: cam.Width, Height: cam.Height})
	c.disp.MoveCameraToContain(viewport.Rect{Width: size.Width, Height: size.Height})
	cam = c.disp.Camera()
	c.disp.MoveCamera(viewport.Camera{Scale: cam.Scale, Width: cam.Width, Height: cam.Height})
}
