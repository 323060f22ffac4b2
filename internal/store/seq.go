package store

import "sync/atomic"

// Seq is a monotonic logical clock for ordering recorded events.
//
// Recordings are ordered by seq, never by wall time, so a replay applies
// events in exactly the order they were committed.
//
// Thread-safety: Seq is safe for concurrent use.
type Seq struct {
	n atomic.Int64
}

// NewSeq creates a clock starting at 0.
func NewSeq() *Seq {
	return &Seq{}
}

// NewSeqAt creates a clock that resumes after start. Used when appending to
// an existing recording.
func NewSeqAt(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Seq) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last issued sequence number without advancing.
func (s *Seq) Current() int64 {
	return s.n.Load()
}
