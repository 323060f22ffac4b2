// Package deck defines the replicated data model shared by every peer in a
// projector room.
//
// Three representations of "which page is showing" exist at once:
//
//   - SlideState: the durable position of one deck, stored in the room's
//     attribute table under the deck's task id.
//   - Table: the whole attribute table, plus the reserved currentTaskId key
//     naming the active deck.
//   - ScenePath: the whiteboard address /projector-plugin/<taskId>/<index>,
//     derived from the table and broadcast to every peer on navigation.
//
// The table is the tie-break authority. A scene path that disagrees with the
// table is rewritten to match it, never the reverse.
//
// The package also carries the error taxonomy (StatusError, ResourceError,
// RuntimeError) and the canonical JSON encoding used for content-addressed
// recording IDs.
package deck
