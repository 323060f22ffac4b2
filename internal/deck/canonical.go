package deck

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for hashing: object keys sorted by
// UTF-16 code units, no HTML escaping, NFC-normalized strings, no floats and
// no nulls. It is the only encoding used for content-addressed identity.
//
// Accepted inputs are string, bool, int, int64, []any, []string and
// map[string]any (recursively).
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return writeCanonicalString(buf, val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		fmt.Fprintf(buf, "%d", val)
	case int64:
		fmt.Fprintf(buf, "%d", val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return writeCanonical(buf, items)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUTF16)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// compareUTF16 orders keys by UTF-16 code units as RFC 8785 requires.
func compareUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return len(ua) - len(ub)
}

// StateObject converts a SlideState into the canonical value space.
// The snapshot is carried as its compact JSON text.
func StateObject(s SlideState) map[string]any {
	obj := map[string]any{
		"taskId":            s.TaskID,
		"url":               s.ContentURL,
		"currentSlideIndex": s.CurrentIndex,
	}
	if s.PageCount > 0 {
		obj["slideCount"] = s.PageCount
	}
	if len(s.Snapshot) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, s.Snapshot); err == nil {
			obj["snapshot"] = compact.String()
		} else {
			obj["snapshot"] = strings.TrimSpace(string(s.Snapshot))
		}
	}
	return obj
}

// PatchObject converts a Patch into the canonical value space. Deleted decks
// are encoded as false since null is not representable.
func PatchObject(p Patch) map[string]any {
	obj := map[string]any{}
	if len(p.Decks) > 0 {
		decks := make(map[string]any, len(p.Decks))
		for id, st := range p.Decks {
			if st == nil {
				decks[id] = false
				continue
			}
			decks[id] = StateObject(*st)
		}
		obj["decks"] = decks
	}
	if p.Current != nil {
		obj[CurrentTaskKey] = *p.Current
	}
	return obj
}
