package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReadEvents returns every record of a room.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the room has no records.
func (s *Store) ReadEvents(ctx context.Context, roomID string) ([]Record, error) {
	return s.readEvents(ctx, `
		SELECT id, room_id, seq, kind, author, body
		FROM events
		WHERE room_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, roomID)
}

// ReadEventsUntil returns the records of a room with seq <= until.
func (s *Store) ReadEventsUntil(ctx context.Context, roomID string, until int64) ([]Record, error) {
	return s.readEvents(ctx, `
		SELECT id, room_id, seq, kind, author, body
		FROM events
		WHERE room_id = ? AND seq <= ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, roomID, until)
}

func (s *Store) readEvents(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return recs, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec  Record
		kind string
		body string
	)
	if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.Seq, &kind, &rec.Author, &body); err != nil {
		return Record{}, fmt.Errorf("scan event: %w", err)
	}
	rec.Kind = Kind(kind)
	rec.Body = []byte(body)
	return rec, nil
}

// LastSeq returns the highest seq recorded for a room, or 0.
func (s *Store) LastSeq(ctx context.Context, roomID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE room_id = ?`, roomID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// RoomSummary describes one recorded room.
type RoomSummary struct {
	ID      string `json:"room_id"`
	Events  int    `json:"events"`
	LastSeq int64  `json:"last_seq"`
}

// Rooms lists every recorded room ordered by ID.
func (s *Store) Rooms(ctx context.Context) ([]RoomSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, COUNT(*), MAX(seq)
		FROM events
		GROUP BY room_id
		ORDER BY room_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := []RoomSummary{}
	for rows.Next() {
		var r RoomSummary
		if err := rows.Scan(&r.ID, &r.Events, &r.LastSeq); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}
