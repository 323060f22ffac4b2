// Package room defines the boundary to the host whiteboard: the displayer
// capability set, the replicated attribute store and the tagged
// writable/read-only variant the coordinator gates operations on.
//
// Implementations live elsewhere (memroom for simulation and tests, replay
// for recordings, or an adapter over a real whiteboard SDK).
package room

import (
	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/viewport"
)

// MemberState is the local member's tool selection.
type MemberState struct {
	CurrentApplianceName string
}

// StateChange is a partial displayer state notification. Nil fields did not
// change.
type StateChange struct {
	// ScenePath is set when the room's current scene changed. Delivered to
	// every peer, including the one that navigated.
	ScenePath *string
	// Local is set on the scene notification delivered to the peer whose
	// own navigation caused it.
	Local bool

	Camera *viewport.Camera
	Member *MemberState
}

// BroadcastEvent is one message on the room's broadcast channel.
type BroadcastEvent struct {
	Kind    string
	Payload []byte
}

// AttributeStore is the replicated attribute table. Reads are synchronous
// against the local replica; writes are asynchronous, last writer wins per
// key, and are eventually observed by every peer including the writer.
type AttributeStore interface {
	Read() deck.Table

	// Write submits a patch. A returned error means the write was rejected
	// locally; nil does not mean it has replicated.
	Write(p deck.Patch) error

	// OnChange registers fn for every change applied to the local replica.
	// The returned func unregisters it.
	OnChange(fn func(deck.Table)) (cancel func())
}

// Displayer is the capability set shared by live rooms and replays.
type Displayer interface {
	CurrentScenePath() string
	Camera() viewport.Camera
	Member() MemberState

	MoveCamera(cam viewport.Camera)
	MoveCameraToContain(r viewport.Rect)

	Attributes() AttributeStore

	AddBroadcastListener(kind string, fn func(BroadcastEvent)) (cancel func())
	OnStateChanged(fn func(StateChange)) (cancel func())
}

// Room is a live, potentially writable room.
type Room interface {
	Displayer

	// IsWritable reports whether the local member may mutate the room.
	IsWritable() bool

	SetScenePath(path string) error
	PutScenes(dir string, names []string) error
	RemoveScenes(dir string) error

	// Scenes lists scene names under dir.
	Scenes(dir string) []string

	DispatchBroadcastEvent(kind string, payload []byte) error
}

// Replay is a read-only displayer driven by a recording.
type Replay interface {
	Displayer

	// Position returns the sequence number of the last applied event.
	Position() int64
}
