// Package codec encodes broadcast envelopes exchanged between sessions.
//
// Envelopes use CBOR with Core Deterministic Encoding so the same logical
// message always produces identical bytes, which keeps recorded traces
// stable.
package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Snapshot payloads decode into any; keep them JSON-compatible.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose returns CBOR diagnostic notation for data. Used by inspect output.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

// Envelope wraps a renderer sync message with the sending session's id so
// receivers can drop their own echoes.
type Envelope struct {
	Kind    string `cbor:"kind"`
	Sender  string `cbor:"sender"`
	TaskID  string `cbor:"task"`
	Payload []byte `cbor:"payload"`
}

// ErrMalformedEnvelope is returned for payloads that are not envelopes.
var ErrMalformedEnvelope = errors.New("codec: malformed envelope")

// EncodeEnvelope validates and encodes env.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	if env.Kind == "" || env.Sender == "" {
		return nil, fmt.Errorf("%w: kind and sender are required", ErrMalformedEnvelope)
	}
	return Marshal(env)
}

// DecodeEnvelope decodes data produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Kind == "" || env.Sender == "" {
		return Envelope{}, fmt.Errorf("%w: kind and sender are required", ErrMalformedEnvelope)
	}
	return env, nil
}
