package store

import (
	"context"
	"fmt"
)

// WriteEvent appends a record to the store and reports whether a new row
// was inserted.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: the ID is content
// addressed, so re-writing the same event is silently ignored. A different
// event claiming an occupied (room_id, seq) slot is an error.
func (s *Store) WriteEvent(ctx context.Context, rec Record) (bool, error) {
	if rec.ID == "" || rec.RoomID == "" {
		return false, fmt.Errorf("write event: id and room are required")
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, room_id, seq, kind, author, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.RoomID,
		rec.Seq,
		string(rec.Kind),
		rec.Author,
		string(rec.Body),
	)
	if err != nil {
		return false, fmt.Errorf("write event: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write event: rows affected: %w", err)
	}
	return n > 0, nil
}

// WriteEvents appends records in one transaction. Either every new record is
// stored or none is.
func (s *Store) WriteEvents(ctx context.Context, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(id, room_id, seq, kind, author, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.RoomID, rec.Seq, string(rec.Kind), rec.Author, string(rec.Body)); err != nil {
			return fmt.Errorf("write events: seq %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}
