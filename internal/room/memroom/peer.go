package memroom

import (
	"errors"
	"math"
	"slices"
	"sync"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/viewport"
)

// ErrNotWritable is returned when a read-only peer tries to mutate the room.
var ErrNotWritable = errors.New("memroom: peer is not writable")

// Peer is one member's connection to the hub. It implements room.Room.
type Peer struct {
	hub  *Hub
	name string

	mu        sync.Mutex
	writable  bool
	replica   deck.Table
	scenePath string
	camera    viewport.Camera
	member    room.MemberState

	pendingAttrs  []deck.Patch
	pendingScenes []sceneDelivery
	pendingEvents []room.BroadcastEvent

	nextID     int
	stateFns   map[int]func(room.StateChange)
	attrFns    map[int]func(deck.Table)
	eventFns   map[int]eventListener
	attributes *attributeStore
}

type eventListener struct {
	kind string
	fn   func(room.BroadcastEvent)
}

var _ room.Room = (*Peer)(nil)

func newPeer(h *Hub, name string, writable bool, replica deck.Table, scenePath string) *Peer {
	p := &Peer{
		hub:       h,
		name:      name,
		writable:  writable,
		replica:   replica,
		scenePath: scenePath,
		camera:    viewport.Camera{Scale: 1},
		stateFns:  map[int]func(room.StateChange){},
		attrFns:   map[int]func(deck.Table){},
		eventFns:  map[int]eventListener{},
	}
	p.attributes = &attributeStore{peer: p}
	return p
}

// Name returns the peer's member name.
func (p *Peer) Name() string { return p.name }

// IsWritable reports whether the peer may mutate the room.
func (p *Peer) IsWritable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writable
}

// SetWritable toggles write access.
func (p *Peer) SetWritable(w bool) {
	p.mu.Lock()
	p.writable = w
	p.mu.Unlock()
}

// CurrentScenePath returns the peer's view of the current scene.
func (p *Peer) CurrentScenePath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scenePath
}

// Camera returns the peer's local camera.
func (p *Peer) Camera() viewport.Camera {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.camera
}

// Member returns the peer's member state.
func (p *Peer) Member() room.MemberState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.member
}

// SetAppliance changes the member's tool and notifies local listeners.
func (p *Peer) SetAppliance(name string) {
	p.mu.Lock()
	p.member.CurrentApplianceName = name
	m := p.member
	p.mu.Unlock()
	p.emitState(room.StateChange{Member: &m})
}

// SetViewport sets the visible viewport size without notifying.
func (p *Peer) SetViewport(width, height float64) {
	p.mu.Lock()
	p.camera.Width = width
	p.camera.Height = height
	p.mu.Unlock()
}

// MoveCamera updates position and scale. The viewport size is kept.
func (p *Peer) MoveCamera(cam viewport.Camera) {
	p.mu.Lock()
	p.camera.CenterX = cam.CenterX
	p.camera.CenterY = cam.CenterY
	if cam.Scale > 0 {
		p.camera.Scale = cam.Scale
	}
	c := p.camera
	p.mu.Unlock()
	p.emitState(room.StateChange{Camera: &c})
}

// MoveCameraToContain centers r and scales it to fit the viewport. With an
// unknown viewport size only the center moves.
func (p *Peer) MoveCameraToContain(r viewport.Rect) {
	p.mu.Lock()
	p.camera.CenterX = r.OriginX + r.Width/2
	p.camera.CenterY = r.OriginY + r.Height/2
	if p.camera.Width > 0 && p.camera.Height > 0 && r.Width > 0 && r.Height > 0 {
		p.camera.Scale = math.Min(p.camera.Width/r.Width, p.camera.Height/r.Height)
	}
	c := p.camera
	p.mu.Unlock()
	p.emitState(room.StateChange{Camera: &c})
}

// Attributes returns the peer's replicated attribute store.
func (p *Peer) Attributes() room.AttributeStore { return p.attributes }

// AddBroadcastListener registers fn for events of kind.
func (p *Peer) AddBroadcastListener(kind string, fn func(room.BroadcastEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.eventFns[id] = eventListener{kind: kind, fn: fn}
	return func() {
		p.mu.Lock()
		delete(p.eventFns, id)
		p.mu.Unlock()
	}
}

// OnStateChanged registers fn for displayer state changes.
func (p *Peer) OnStateChanged(fn func(room.StateChange)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.stateFns[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.stateFns, id)
		p.mu.Unlock()
	}
}

// SetScenePath navigates the room. Paths inside the deck namespace must name
// an existing scene.
func (p *Peer) SetScenePath(path string) error {
	if !p.IsWritable() {
		return ErrNotWritable
	}
	return p.hub.commitScenePath(p, path)
}

// PutScenes adds scenes under dir. Existing names are kept.
func (p *Peer) PutScenes(dir string, names []string) error {
	if !p.IsWritable() {
		return ErrNotWritable
	}
	p.hub.commitPutScenes(p, dir, names)
	return nil
}

// RemoveScenes deletes dir and everything below it.
func (p *Peer) RemoveScenes(dir string) error {
	if !p.IsWritable() {
		return ErrNotWritable
	}
	p.hub.commitRemoveScenes(p, dir)
	return nil
}

// Scenes lists scene names under dir. The scene tree is read from the hub.
func (p *Peer) Scenes(dir string) []string {
	return p.hub.Scenes(dir)
}

// DispatchBroadcastEvent sends an event to every peer, the sender included.
func (p *Peer) DispatchBroadcastEvent(kind string, payload []byte) error {
	if !p.IsWritable() {
		return ErrNotWritable
	}
	p.hub.commitBroadcast(p, room.BroadcastEvent{Kind: kind, Payload: slices.Clone(payload)})
	return nil
}

// Pending reports how many deliveries are queued per channel.
func (p *Peer) Pending() (attrs, scenes, events int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingAttrs), len(p.pendingScenes), len(p.pendingEvents)
}

// FlushAttributes applies queued patches to the replica, notifying once per
// patch.
func (p *Peer) FlushAttributes() bool {
	delivered := false
	for {
		p.mu.Lock()
		if len(p.pendingAttrs) == 0 {
			p.mu.Unlock()
			return delivered
		}
		patch := p.pendingAttrs[0]
		p.pendingAttrs = p.pendingAttrs[1:]
		p.replica = patch.Apply(p.replica)
		snapshot := p.replica.Clone()
		fns := attrListeners(p.attrFns)
		p.mu.Unlock()

		delivered = true
		for _, fn := range fns {
			fn(snapshot)
		}
	}
}

// FlushScenes applies queued scene notifications.
func (p *Peer) FlushScenes() bool {
	delivered := false
	for {
		p.mu.Lock()
		if len(p.pendingScenes) == 0 {
			p.mu.Unlock()
			return delivered
		}
		d := p.pendingScenes[0]
		p.pendingScenes = p.pendingScenes[1:]
		p.scenePath = d.path
		p.mu.Unlock()

		delivered = true
		p.emitState(room.StateChange{ScenePath: &d.path, Local: d.local})
	}
}

// FlushBroadcasts delivers queued broadcast events.
func (p *Peer) FlushBroadcasts() bool {
	delivered := false
	for {
		p.mu.Lock()
		if len(p.pendingEvents) == 0 {
			p.mu.Unlock()
			return delivered
		}
		ev := p.pendingEvents[0]
		p.pendingEvents = p.pendingEvents[1:]
		var fns []func(room.BroadcastEvent)
		for _, id := range sortedKeys(p.eventFns) {
			if l := p.eventFns[id]; l.kind == ev.Kind {
				fns = append(fns, l.fn)
			}
		}
		p.mu.Unlock()

		delivered = true
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// flushAll drains attributes before scenes before broadcasts.
func (p *Peer) flushAll() bool {
	a := p.FlushAttributes()
	s := p.FlushScenes()
	b := p.FlushBroadcasts()
	return a || s || b
}

func (p *Peer) queueAttributes(patch deck.Patch) {
	p.mu.Lock()
	p.pendingAttrs = append(p.pendingAttrs, patch)
	p.mu.Unlock()
}

// sceneDelivery is a queued scene notification; local marks the copy
// delivered back to the peer that navigated.
type sceneDelivery struct {
	path  string
	local bool
}

func (p *Peer) queueScene(path string, local bool) {
	p.mu.Lock()
	p.pendingScenes = append(p.pendingScenes, sceneDelivery{path: path, local: local})
	p.mu.Unlock()
}

func (p *Peer) queueBroadcast(ev room.BroadcastEvent) {
	p.mu.Lock()
	p.pendingEvents = append(p.pendingEvents, ev)
	p.mu.Unlock()
}

func (p *Peer) emitState(change room.StateChange) {
	p.mu.Lock()
	fns := make([]func(room.StateChange), 0, len(p.stateFns))
	for _, id := range sortedKeys(p.stateFns) {
		fns = append(fns, p.stateFns[id])
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}

func attrListeners(m map[int]func(deck.Table)) []func(deck.Table) {
	fns := make([]func(deck.Table), 0, len(m))
	for _, id := range sortedKeys(m) {
		fns = append(fns, m[id])
	}
	return fns
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type attributeStore struct {
	peer *Peer
}

func (s *attributeStore) Read() deck.Table {
	s.peer.mu.Lock()
	defer s.peer.mu.Unlock()
	return s.peer.replica.Clone()
}

func (s *attributeStore) Write(patch deck.Patch) error {
	if !s.peer.IsWritable() {
		return ErrNotWritable
	}
	if patch.Empty() {
		return nil
	}
	s.peer.hub.commitAttributes(s.peer, patch)
	return nil
}

func (s *attributeStore) OnChange(fn func(deck.Table)) func() {
	p := s.peer
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.attrFns[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.attrFns, id)
		p.mu.Unlock()
	}
}
