package deck

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for an algorithm change.
const (
	DomainRecord = "projector/record/v1"
	DomainState  = "projector/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordID computes the content-addressed ID of one recorded room event.
// The same room, seq, kind, author and body always yield the same ID, which
// makes re-recording a log idempotent.
func RecordID(roomID string, seq int64, kind, author string, body map[string]any) (string, error) {
	obj := map[string]any{
		"room":   roomID,
		"seq":    seq,
		"kind":   kind,
		"author": author,
		"body":   body,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("record id: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// StateHash fingerprints a slide state, snapshot included.
func StateHash(s SlideState) (string, error) {
	canonical, err := MarshalCanonical(StateObject(s))
	if err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}
