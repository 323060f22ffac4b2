// Package replay drives a read-only room from a recording.
//
// A Player satisfies room.Replay: the coordinator subscribes to it exactly as
// it would to a live room, and every recorded mutation is delivered as the
// matching notification when the player steps over it. Mutating operations
// are not part of the replay surface; attribute writes are rejected.
package replay

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/headless"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/store"
	"github.com/roach88/projector/internal/viewport"
)

// Default intrinsic size for decks reconstructed from a recording.
const (
	DefaultDeckWidth  = 1920
	DefaultDeckHeight = 1080
)

// Player steps through recorded events for one room.
type Player struct {
	recs []store.Record

	mu     sync.Mutex
	next   int
	state  *store.State
	camera viewport.Camera
	member room.MemberState

	nextID    int
	attrFns   map[int]func(deck.Table)
	stateFns  map[int]func(room.StateChange)
	eventFns  map[int]broadcastListener
	attribute attributes
}

type broadcastListener struct {
	kind string
	fn   func(room.BroadcastEvent)
}

// NewPlayer returns a player positioned before the first record. Records
// must belong to one room and be in seq order.
func NewPlayer(recs []store.Record) (*Player, error) {
	roomID := ""
	for i, rec := range recs {
		if i == 0 {
			roomID = rec.RoomID
		}
		if rec.RoomID != roomID {
			return nil, fmt.Errorf("replay: record %d belongs to room %s, not %s", rec.Seq, rec.RoomID, roomID)
		}
		if i > 0 && rec.Seq <= recs[i-1].Seq {
			return nil, fmt.Errorf("replay: record seq %d out of order", rec.Seq)
		}
	}
	p := &Player{
		recs:     slices.Clone(recs),
		state:    store.NewState(roomID),
		camera:   viewport.Camera{Scale: 1, Width: DefaultDeckWidth, Height: DefaultDeckHeight},
		attrFns:  map[int]func(deck.Table){},
		stateFns: map[int]func(room.StateChange){},
		eventFns: map[int]broadcastListener{},
	}
	p.attribute = attributes{p}
	return p, nil
}

// Len returns the number of records in the recording.
func (p *Player) Len() int { return len(p.recs) }

// Done reports whether every record has been applied.
func (p *Player) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next >= len(p.recs)
}

// Position returns the seq of the last applied record, or 0.
func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Seq
}

// State returns a copy of the folded room state.
func (p *Player) State() store.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := *p.state
	st.Table = st.Table.Clone()
	st.Scenes = make(map[string][]string, len(p.state.Scenes))
	for dir, names := range p.state.Scenes {
		st.Scenes[dir] = slices.Clone(names)
	}
	return st
}

// Step applies the next record and notifies listeners. It returns the
// applied record, or false when the recording is exhausted.
func (p *Player) Step() (store.Record, bool, error) {
	p.mu.Lock()
	if p.next >= len(p.recs) {
		p.mu.Unlock()
		return store.Record{}, false, nil
	}
	rec := p.recs[p.next]
	if err := p.state.Apply(rec); err != nil {
		p.mu.Unlock()
		return rec, false, err
	}
	p.next++
	notify := p.notificationsLocked(rec)
	p.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return rec, true, nil
}

// SeekTo steps forward until Position reaches seq or the recording ends.
// Seeking backwards is not supported.
func (p *Player) SeekTo(seq int64) error {
	if seq < p.Position() {
		return fmt.Errorf("replay: cannot seek back from %d to %d", p.Position(), seq)
	}
	for p.Position() < seq {
		_, ok, err := p.Step()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// notificationsLocked builds the listener calls for an applied record. The
// calls run after the lock is released.
func (p *Player) notificationsLocked(rec store.Record) []func() {
	var out []func()
	switch rec.Kind {
	case store.KindAttributes:
		tbl := p.state.Table.Clone()
		for _, id := range sortedIDs(p.attrFns) {
			fn := p.attrFns[id]
			out = append(out, func() { fn(tbl) })
		}
	case store.KindScenePath:
		path := p.state.ScenePath
		for _, id := range sortedIDs(p.stateFns) {
			fn := p.stateFns[id]
			out = append(out, func() { fn(room.StateChange{ScenePath: &path}) })
		}
	case store.KindBroadcast:
		ev, err := rec.Broadcast()
		if err != nil {
			return nil
		}
		for _, id := range sortedIDs(p.eventFns) {
			l := p.eventFns[id]
			if l.kind != ev.Kind {
				continue
			}
			out = append(out, func() { l.fn(ev) })
		}
	}
	return out
}

func (p *Player) CurrentScenePath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.ScenePath
}

func (p *Player) Camera() viewport.Camera {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.camera
}

func (p *Player) Member() room.MemberState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.member
}

// MoveCamera moves the viewer's local camera. Cameras are not replicated,
// so this is allowed during replay.
func (p *Player) MoveCamera(cam viewport.Camera) {
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

// MoveCameraToContain centers r and fits it into the viewport.
func (p *Player) MoveCameraToContain(r viewport.Rect) {
	p.mu.Lock()
	p.camera.CenterX = r.OriginX + r.Width/2
	p.camera.CenterY = r.OriginY + r.Height/2
	if p.camera.Width > 0 && p.camera.Height > 0 && r.Width > 0 && r.Height > 0 {
		p.camera.Scale = min(p.camera.Width/r.Width, p.camera.Height/r.Height)
	}
	c := p.camera
	p.mu.Unlock()
	p.emitState(room.StateChange{Camera: &c})
}

func (p *Player) Attributes() room.AttributeStore { return p.attribute }

func (p *Player) AddBroadcastListener(kind string, fn func(room.BroadcastEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.eventFns[id] = broadcastListener{kind: kind, fn: fn}
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.eventFns, id)
		p.mu.Unlock()
	}
}

func (p *Player) OnStateChanged(fn func(room.StateChange)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.stateFns[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.stateFns, id)
		p.mu.Unlock()
	}
}

func (p *Player) emitState(change room.StateChange) {
	p.mu.Lock()
	var fns []func(room.StateChange)
	for _, id := range sortedIDs(p.stateFns) {
		fns = append(fns, p.stateFns[id])
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}

// attributes is the read-only attribute view of a replay.
type attributes struct {
	p *Player
}

func (a attributes) Read() deck.Table {
	a.p.mu.Lock()
	defer a.p.mu.Unlock()
	return a.p.state.Table.Clone()
}

func (a attributes) Write(deck.Patch) error {
	return deck.NewStatusError(deck.ErrCodeReadOnly, "attributes are read-only in replay")
}

func (a attributes) OnChange(fn func(deck.Table)) func() {
	p := a.p
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.attrFns[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.attrFns, id)
		p.mu.Unlock()
	}
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Library reconstructs the deck library of a recording from its scene
// provisioning events: one page per provisioned scene.
func Library(recs []store.Record) *headless.MapLibrary {
	decks := map[string]headless.Deck{}
	prefix := deck.SceneDir("")
	for _, rec := range recs {
		if rec.Kind != store.KindScenes {
			continue
		}
		dir, names, err := rec.Scenes()
		if err != nil || !strings.HasPrefix(dir, prefix) {
			continue
		}
		taskID := strings.TrimPrefix(dir, prefix)
		if taskID == "" || strings.Contains(taskID, "/") {
			continue
		}
		d := decks[taskID]
		d.Width, d.Height = DefaultDeckWidth, DefaultDeckHeight
		d.Pages = max(d.Pages, len(names))
		decks[taskID] = d
	}
	return headless.NewMapLibrary(decks)
}
