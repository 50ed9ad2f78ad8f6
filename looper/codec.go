package looper

import (
	"encoding/json"
	"fmt"
)

// Codec decodes a Message's opaque Obj/Data payload into a Go value.
// Adapted from the teacher's Binder/JSONBinder payload-deserialization
// interface: there it decoded a broker message body, here it decodes
// whatever non-primitive value a Handler stashed in Message.Obj.
type Codec interface {
	Decode(obj any, v any) error
}

// JSONCodec round-trips obj through encoding/json: it marshals obj (typically
// a []byte or a map[string]any bundle) and unmarshals into v.
type JSONCodec struct{}

func (JSONCodec) Decode(obj any, v any) error {
	var raw []byte
	switch o := obj.(type) {
	case []byte:
		raw = o
	case string:
		raw = []byte(o)
	default:
		b, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("looper: encode payload: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("looper: decode payload: %w", err)
	}
	return nil
}
