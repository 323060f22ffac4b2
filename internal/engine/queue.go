package engine

import (
	"sync"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/room"
	"github.com/roach88/projector/internal/viewport"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventScenePath is a room scene-path notification.
	EventScenePath EventType = iota + 1
	// EventAttributes is an attribute table change on the local replica.
	EventAttributes
	// EventMember is a member (tool selection) change.
	EventMember
	// EventCamera is a local camera change.
	EventCamera
	// EventBroadcast is a sync envelope from the broadcast channel.
	EventBroadcast
	// EventAnchorMounted fires once when the overlay anchor mounts.
	EventAnchorMounted
	// EventRestore is a debounced restore firing.
	EventRestore
	// EventBarrier is processed only after everything enqueued before it.
	EventBarrier
)

func (t EventType) String() string {
	switch t {
	case EventScenePath:
		return "scene_path"
	case EventAttributes:
		return "attributes"
	case EventMember:
		return "member"
	case EventCamera:
		return "camera"
	case EventBroadcast:
		return "broadcast"
	case EventAnchorMounted:
		return "anchor_mounted"
	case EventRestore:
		return "restore"
	case EventBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}

// Event is one inbound notification. Which payload field is set depends on
// Type.
type Event struct {
	Type    EventType
	Path    string
	Local   bool
	Table   deck.Table
	Camera  viewport.Camera
	Member  room.MemberState
	Payload []byte

	done chan struct{}
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded: room callbacks enqueue from arbitrary goroutines
// and must never block on the Run loop.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking; the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil the slot so the backing array does not retain payloads.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued and wakes waiters.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close ran.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
