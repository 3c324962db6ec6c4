// Package serialization provides the codecs used when cache entries leave process memory.
package serialization

import (
	"bytes"
	"io"
)

const (
	// JSONType represents the serialization type for JSON format.
	JSONType = "json"

	// GobType represents the serialization type for Gob format.
	GobType = "gob"
)

// Decoder reads one value from a stream.
type Decoder interface {
	Decode(v any) error
}

// Encoder writes one value to a stream.
type Encoder interface {
	Encode(v any) error
}

// Marshal encodes v into a byte slice with the given encoder constructor.
func Marshal(newEncoder func(io.Writer) Encoder, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := newEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data into v with the given decoder constructor.
func Unmarshal(newDecoder func(io.Reader) Decoder, data []byte, v any) error {
	return newDecoder(bytes.NewReader(data)).Decode(v)
}
