package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/room"
)

// NewRoomID returns a fresh, time-sortable room ID for a recording.
func NewRoomID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Recorder appends committed room mutations to a store. It satisfies the
// memroom hub's recorder hook, so a simulated room can be recorded and
// replayed later.
//
// Recording never blocks the room on failure: the first write error is kept
// and returned by Err, and later events are still attempted.
type Recorder struct {
	store  *Store
	roomID string
	logger *slog.Logger

	mu  sync.Mutex
	seq *Seq
	err error
}

// NewRecorder records into roomID, resuming after its last recorded seq.
func NewRecorder(ctx context.Context, s *Store, roomID string, logger *slog.Logger) (*Recorder, error) {
	last, err := s.LastSeq(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, roomID: roomID, logger: logger, seq: NewSeqAt(last)}, nil
}

// RoomID returns the room being recorded.
func (r *Recorder) RoomID() string { return r.roomID }

// Seq returns the last issued sequence number.
func (r *Recorder) Seq() int64 { return r.seq.Current() }

// Err returns the first recording failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) RecordAttributes(author string, p deck.Patch) {
	r.record(func(seq int64) (Record, error) { return AttributesRecord(r.roomID, seq, author, p) })
}

func (r *Recorder) RecordScenePath(author, path string) {
	r.record(func(seq int64) (Record, error) { return ScenePathRecord(r.roomID, seq, author, path) })
}

func (r *Recorder) RecordScenes(author, dir string, names []string) {
	r.record(func(seq int64) (Record, error) { return ScenesRecord(r.roomID, seq, author, dir, names) })
}

func (r *Recorder) RecordScenesRemoved(author, dir string) {
	r.record(func(seq int64) (Record, error) { return ScenesRemovedRecord(r.roomID, seq, author, dir) })
}

func (r *Recorder) RecordBroadcast(author string, ev room.BroadcastEvent) {
	r.record(func(seq int64) (Record, error) { return BroadcastRecord(r.roomID, seq, author, ev) })
}

// record serializes seq assignment and the write so seq order is call order.
func (r *Recorder) record(build func(seq int64) (Record, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := build(r.seq.Next())
	if err == nil {
		_, err = r.store.WriteEvent(context.Background(), rec)
	}
	if err != nil {
		r.logger.Error("recording failed", "room_id", r.roomID, "seq", rec.Seq, "kind", string(rec.Kind), "error", err)
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.logger.Debug("event recorded", "room_id", r.roomID, "seq", rec.Seq, "kind", string(rec.Kind), "author", rec.Author)
}
