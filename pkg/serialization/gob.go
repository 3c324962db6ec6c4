package serialization

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

// Gob is a type that wraps gob.Decoder and gob.Encoder to provide encoding and decoding functionalities.
type Gob struct {
	dec *gob.Decoder
	enc *gob.Encoder
}

// Decode decodes a value from the underlying gob.Decoder into the provided variable v.
func (g *Gob) Decode(v any) error {
	return g.dec.Decode(v)
}

// Encode serializes the input value v using gob encoding and returns an error if the encoding process fails.
func (g *Gob) Encode(v any) error {
	return g.enc.Encode(v)
}

// GobDecoder returns a Decoder that reads and decodes GOB-encoded data from the provided io.Reader.
func GobDecoder(r io.Reader) Decoder {
	return &Gob{dec: gob.NewDecoder(r)}
}

// GobEncoder returns an Encoder that writes and encodes data into GOB format using the provided io.Writer.
func GobEncoder(w io.Writer) Encoder {
	return &Gob{enc: gob.NewEncoder(w)}
}

// RegisterGobTypes registers the concrete types of values with gob, so they can be
// encoded behind an interface such as a cache entry's value. Registering a type twice
// is harmless; a name clash between two different types is returned as an error.
func RegisterGobTypes(values ...any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gob register: %v", r)
		}
	}()
	for _, v := range values {
		if v == nil {
			return errors.New("gob register: nil value")
		}
		gob.Register(v)
	}
	return nil
}
