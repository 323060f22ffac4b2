// Package store provides SQLite-backed recordings of room history.
//
// Every committed room mutation (attribute patch, scene navigation, scene
// provisioning, broadcast) is appended as one event row. A recording can be
// inspected, folded into a point-in-time Snapshot, or replayed through the
// coordinator as a read-only room.
//
// # Ordering and identity
//
//   - Events are ordered by seq (logical clock), never by timestamps
//   - Queries order by seq ASC, id ASC COLLATE BINARY
//   - Event IDs are content-addressed (deck.RecordID: canonical JSON and
//     SHA-256), so writing the same event twice is a no-op
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
