package connect

import (
	"bytes"
	"encoding/json"
)

// jsonCodec encodes plain Go messages as JSON. It is registered under
// connect's "json" name, replacing the protobuf JSON codec.
type jsonCodec struct {
	strict bool // Reject unknown fields
}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (c jsonCodec) Unmarshal(data []byte, message any) error {
	// Empty requests carry no body
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(message)
}
