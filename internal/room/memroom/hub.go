// Package memroom is an in-memory whiteboard room shared by several peers.
//
// The hub holds the committed room state (attribute table, scene tree,
// current scene). Each peer holds a local replica that only changes when
// pending deliveries are flushed. Attribute patches, scene notifications and
// broadcasts travel on independent per-peer queues, so tests can deliver
// them in any interleaving.
//
// With automatic delivery (the default) every mutation is delivered to every
// peer before the mutating call returns.
package memroom

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/room"
)

// DefaultScenePath is the room's scene before anyone navigates.
const DefaultScenePath = "/init"

// Recorder receives every committed room mutation in commit order.
type Recorder interface {
	RecordAttributes(author string, p deck.Patch)
	RecordScenePath(author, path string)
	RecordScenes(author, dir string, names []string)
	RecordScenesRemoved(author, dir string)
	RecordBroadcast(author string, ev room.BroadcastEvent)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithManualDelivery queues deliveries until a Flush call.
func WithManualDelivery() HubOption {
	return func(h *Hub) { h.manual = true }
}

// WithRecorder logs committed mutations to r.
func WithRecorder(r Recorder) HubOption {
	return func(h *Hub) { h.recorder = r }
}

// WithScenePath sets the room's initial scene.
func WithScenePath(path string) HubOption {
	return func(h *Hub) { h.scenePath = path }
}

// Hub is the shared room. Safe for concurrent use.
type Hub struct {
	mu        sync.Mutex
	manual    bool
	recorder  Recorder
	table     deck.Table
	scenePath string
	scenes    map[string][]string
	peers     []*Peer
}

// NewHub creates an empty room.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		table:     deck.Table{Decks: map[string]deck.SlideState{}},
		scenePath: DefaultScenePath,
		scenes:    map[string][]string{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join adds a peer that starts from the committed room state.
func (h *Hub) Join(name string, writable bool) *Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := newPeer(h, name, writable, h.table.Clone(), h.scenePath)
	h.peers = append(h.peers, p)
	return p
}

// Leave detaches a peer. Pending deliveries to it are discarded.
func (h *Hub) Leave(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers = slices.DeleteFunc(h.peers, func(q *Peer) bool { return q == p })
}

// Peers returns the joined peers in join order.
func (h *Hub) Peers() []*Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.peers)
}

// Table returns the committed attribute table.
func (h *Hub) Table() deck.Table {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.Clone()
}

// ScenePath returns the committed current scene.
func (h *Hub) ScenePath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scenePath
}

// Scenes returns the committed scene names under dir.
func (h *Hub) Scenes(dir string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.scenes[dir])
}

// Flush delivers every pending notification to every peer, repeatedly, until
// no peer has anything pending. Deliveries may trigger further mutations
// (e.g. a restore rewriting the scene path); those are flushed too.
func (h *Hub) Flush() {
	for {
		delivered := false
		for _, p := range h.Peers() {
			if p.flushAll() {
				delivered = true
			}
		}
		if !delivered {
			return
		}
	}
}

// FlushAttributes delivers pending attribute patches to every peer.
func (h *Hub) FlushAttributes() {
	for _, p := range h.Peers() {
		p.FlushAttributes()
	}
}

// FlushScenes delivers pending scene notifications to every peer.
func (h *Hub) FlushScenes() {
	for _, p := range h.Peers() {
		p.FlushScenes()
	}
}

// FlushBroadcasts delivers pending broadcast events to every peer.
func (h *Hub) FlushBroadcasts() {
	for _, p := range h.Peers() {
		p.FlushBroadcasts()
	}
}

// Commits record and queue under h.mu so every replica and the recorder see
// mutations in the order the hub applied them. Lock order is h.mu, then p.mu.

func (h *Hub) commitAttributes(author *Peer, patch deck.Patch) {
	h.mu.Lock()
	h.table = patch.Apply(h.table)
	if h.recorder != nil {
		h.recorder.RecordAttributes(author.name, patch)
	}
	for _, p := range h.peers {
		p.queueAttributes(patch)
	}
	h.mu.Unlock()

	h.autoDeliver()
}

func (h *Hub) commitScenePath(author *Peer, path string) error {
	h.mu.Lock()
	if sp, ok := deck.ParseScenePath(path); ok {
		if !slices.Contains(h.scenes[deck.SceneDir(sp.TaskID)], fmt.Sprint(sp.Index)) {
			h.mu.Unlock()
			return fmt.Errorf("scene %s does not exist", path)
		}
	}
	h.scenePath = path
	if h.recorder != nil {
		h.recorder.RecordScenePath(author.name, path)
	}
	for _, p := range h.peers {
		p.queueScene(path, p == author)
	}
	h.mu.Unlock()

	h.autoDeliver()
	return nil
}

func (h *Hub) commitPutScenes(author *Peer, dir string, names []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	existing := h.scenes[dir]
	for _, n := range names {
		if !slices.Contains(existing, n) {
			existing = append(existing, n)
		}
	}
	h.scenes[dir] = existing
	if h.recorder != nil {
		h.recorder.RecordScenes(author.name, dir, names)
	}
}

func (h *Hub) commitRemoveScenes(author *Peer, dir string) {
	h.mu.Lock()
	delete(h.scenes, dir)
	moved := h.scenePath == dir || strings.HasPrefix(h.scenePath, dir+"/")
	if h.recorder != nil {
		h.recorder.RecordScenesRemoved(author.name, dir)
	}
	h.mu.Unlock()

	if moved {
		// The whiteboard falls back to its root scene when the current one
		// disappears.
		_ = h.commitScenePath(author, DefaultScenePath)
	}
}

func (h *Hub) commitBroadcast(author *Peer, ev room.BroadcastEvent) {
	h.mu.Lock()
	if h.recorder != nil {
		h.recorder.RecordBroadcast(author.name, ev)
	}
	for _, p := range h.peers {
		p.queueBroadcast(ev)
	}
	h.mu.Unlock()

	h.autoDeliver()
}

func (h *Hub) autoDeliver() {
	if h.manual {
		return
	}
	for _, p := range h.Peers() {
		p.flushAll()
	}
}
