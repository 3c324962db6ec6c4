package serialization

import (
	"encoding/json"
	"io"
)

// Json wraps the standard JSON stream codec. Behind an interface, numbers decode as
// json.Number and structs decode as map[string]any.
type Json struct {
	dec *json.Decoder
	enc *json.Encoder
}

func (j *Json) Decode(v any) error {
	return j.dec.Decode(v)
}

func (j *Json) Encode(v any) error {
	return j.enc.Encode(v)
}

func JsonDecoder(r io.Reader) Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Json{dec: dec}
}

func JsonEncoder(w io.Writer) Encoder {
	return &Json{enc: json.NewEncoder(w)}
}
