// Package engine implements the deck sync coordinator.
//
// A Coordinator owns the mapping between three independently updated
// signals: the live session's renderer state, the replicated attribute
// table, and the room's scene path, which every peer (the originator
// included) is notified of on navigation. None of these are ordered with
// respect to each other.
//
// ARCHITECTURE:
//
// Single-Consumer Event Loop:
// Room callbacks only enqueue. Run dequeues one event at a time and runs its
// handler to completion. The anchor wait and content queries inside session
// construction are the only suspension points.
//
// Attribute Table Authority:
// When the scene path and the table disagree, a debounced restore brings
// the session and the scene back to the table. Restore never writes the
// table. Agreement is the idempotent rest state, so a peer that hears its
// own navigation echo does nothing.
//
// Exclusive Session:
// At most one session exists per coordinator. Construction (create, attach,
// switch, restore) takes the ReconciliationLock; a request that finds it
// held is dropped, not queued, so a stale deck can never win after the
// lock releases.
//
// Read-Only Rooms:
// Operations are gated on the room.Handle variant. A replay never mutates
// the room; restores still realign the local session.
package engine
