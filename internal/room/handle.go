package room

import "github.com/roach88/projector/internal/deck"

// Handle is the tagged displayer variant: exactly one of a writable Room or
// a read-only Replay. Operations are gated on the variant, never on probing
// the runtime type.
type Handle struct {
	room   Room
	replay Replay
}

// Writable wraps a live room.
func Writable(r Room) Handle {
	return Handle{room: r}
}

// ReadOnly wraps a replay.
func ReadOnly(r Replay) Handle {
	return Handle{replay: r}
}

// Displayer returns the shared capability set of either variant.
func (h Handle) Displayer() Displayer {
	if h.room != nil {
		return h.room
	}
	return h.replay
}

// Room returns the live room, or false for a replay.
func (h Handle) Room() (Room, bool) {
	return h.room, h.room != nil
}

// IsReplay reports whether the handle wraps a recording.
func (h Handle) IsReplay() bool {
	return h.replay != nil
}

// CanWrite reports whether mutating operations are currently allowed.
func (h Handle) CanWrite() bool {
	return h.room != nil && h.room.IsWritable()
}

// Writer returns the live room if the local member may mutate it.
//
// Replays fail with a StatusError; live rooms without write permission fail
// with a RuntimeError.
func (h Handle) Writer() (Room, error) {
	if h.room == nil {
		return nil, deck.NewStatusError(deck.ErrCodeReadOnly, "operation not available in replay")
	}
	if !h.room.IsWritable() {
		return nil, deck.NewRuntimeError(deck.ErrCodeNotWritable, "room is not writable")
	}
	return h.room, nil
}
