package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/roach88/projector/internal/deck"
	"github.com/roach88/projector/internal/room"
)

// Kind names the room mutation a record carries.
type Kind string

const (
	KindAttributes    Kind = "attributes"
	KindScenePath     Kind = "scene_path"
	KindScenes        Kind = "scenes"
	KindScenesRemoved Kind = "scenes_removed"
	KindBroadcast     Kind = "broadcast"
)

// Record is one committed room mutation. Body is canonical JSON.
type Record struct {
	ID     string
	RoomID string
	Seq    int64
	Kind   Kind
	Author string
	Body   json.RawMessage
}

func newRecord(roomID string, seq int64, kind Kind, author string, body map[string]any) (Record, error) {
	id, err := deck.RecordID(roomID, seq, string(kind), author, body)
	if err != nil {
		return Record{}, err
	}
	data, err := deck.MarshalCanonical(body)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s body: %w", kind, err)
	}
	return Record{ID: id, RoomID: roomID, Seq: seq, Kind: kind, Author: author, Body: data}, nil
}

// AttributesRecord records an attribute patch.
func AttributesRecord(roomID string, seq int64, author string, p deck.Patch) (Record, error) {
	return newRecord(roomID, seq, KindAttributes, author, deck.PatchObject(p))
}

// ScenePathRecord records a navigation.
func ScenePathRecord(roomID string, seq int64, author, path string) (Record, error) {
	return newRecord(roomID, seq, KindScenePath, author, map[string]any{"path": path})
}

// ScenesRecord records scene provisioning under dir.
func ScenesRecord(roomID string, seq int64, author, dir string, names []string) (Record, error) {
	return newRecord(roomID, seq, KindScenes, author, map[string]any{"dir": dir, "names": names})
}

// ScenesRemovedRecord records the removal of dir.
func ScenesRemovedRecord(roomID string, seq int64, author, dir string) (Record, error) {
	return newRecord(roomID, seq, KindScenesRemoved, author, map[string]any{"dir": dir})
}

// BroadcastRecord records a broadcast event. The payload is base64 encoded.
func BroadcastRecord(roomID string, seq int64, author string, ev room.BroadcastEvent) (Record, error) {
	return newRecord(roomID, seq, KindBroadcast, author, map[string]any{
		"kind":    ev.Kind,
		"payload": base64.StdEncoding.EncodeToString(ev.Payload),
	})
}

type stateBody struct {
	TaskID   string `json:"taskId"`
	URL      string `json:"url"`
	Index    int    `json:"currentSlideIndex"`
	Pages    int    `json:"slideCount"`
	Snapshot string `json:"snapshot"`
}

type patchBody struct {
	Decks   map[string]json.RawMessage `json:"decks"`
	Current *string                    `json:"currentTaskId"`
}

// Patch decodes an attributes record.
func (r Record) Patch() (deck.Patch, error) {
	if r.Kind != KindAttributes {
		return deck.Patch{}, fmt.Errorf("record %d is %s, not %s", r.Seq, r.Kind, KindAttributes)
	}
	var body patchBody
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return deck.Patch{}, fmt.Errorf("decode patch: %w", err)
	}

	var p deck.Patch
	for id, raw := range body.Decks {
		if bytes.Equal(raw, []byte("false")) {
			p = p.DeleteDeck(id)
			continue
		}
		var st stateBody
		if err := json.Unmarshal(raw, &st); err != nil {
			return deck.Patch{}, fmt.Errorf("decode deck %s: %w", id, err)
		}
		state := deck.SlideState{
			TaskID:       st.TaskID,
			ContentURL:   st.URL,
			CurrentIndex: st.Index,
			PageCount:    st.Pages,
		}
		if st.Snapshot != "" {
			state.Snapshot = json.RawMessage(st.Snapshot)
		}
		p = p.SetDeck(state)
	}
	if body.Current != nil {
		p.Current = body.Current
	}
	return p, nil
}

// ScenePath decodes a scene_path record.
func (r Record) ScenePath() (string, error) {
	var body struct {
		Path string `json:"path"`
	}
	if err := r.decode(KindScenePath, &body); err != nil {
		return "", err
	}
	return body.Path, nil
}

// Scenes decodes a scenes or scenes_removed record. names is nil for a
// removal.
func (r Record) Scenes() (dir string, names []string, err error) {
	var body struct {
		Dir   string   `json:"dir"`
		Names []string `json:"names"`
	}
	switch r.Kind {
	case KindScenes, KindScenesRemoved:
	default:
		return "", nil, fmt.Errorf("record %d is %s, not a scene record", r.Seq, r.Kind)
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return "", nil, fmt.Errorf("decode scenes: %w", err)
	}
	return body.Dir, body.Names, nil
}

// Broadcast decodes a broadcast record.
func (r Record) Broadcast() (room.BroadcastEvent, error) {
	var body struct {
		Kind    string `json:"kind"`
		Payload string `json:"payload"`
	}
	if err := r.decode(KindBroadcast, &body); err != nil {
		return room.BroadcastEvent{}, err
	}
	payload, err := base64.StdEncoding.DecodeString(body.Payload)
	if err != nil {
		return room.BroadcastEvent{}, fmt.Errorf("decode broadcast payload: %w", err)
	}
	return room.BroadcastEvent{Kind: body.Kind, Payload: payload}, nil
}

func (r Record) decode(want Kind, v any) error {
	if r.Kind != want {
		return fmt.Errorf("record %d is %s, not %s", r.Seq, r.Kind, want)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", want, err)
	}
	return nil
}
