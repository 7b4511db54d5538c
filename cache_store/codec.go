package cache_store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"
)

// lz4FrameMagic opens every lz4 frame, little-endian 0x184D2204
var lz4FrameMagic = []byte{0x04, 0x22, 0x4D, 0x18}

// Codec turns a cache payload into bytes and back
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// BinaryCodec is gob compressed with an lz4 frame
type BinaryCodec struct{}

// Name implements Codec
func (BinaryCodec) Name() string { return "binary" }

// Encode implements Codec
func (BinaryCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode cache payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress cache payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec
func (BinaryCodec) Decode(data []byte, v any) error {
	zr := lz4.NewReader(bytes.NewReader(data))
	if err := gob.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("failed to decode cache payload: %w", err)
	}
	return nil
}

// YAMLCodec is the human-readable encoding, handy when inspecting a cache by hand
type YAMLCodec struct{}

// Name implements Codec
func (YAMLCodec) Name() string { return "yaml" }

// Encode implements Codec
func (YAMLCodec) Encode(v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache payload: %w", err)
	}
	return data, nil
}

// Decode implements Codec
func (YAMLCodec) Decode(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode cache payload: %w", err)
	}
	return nil
}

// CodecByName returns the codec for a cache.encoding setting
func CodecByName(name string) Codec {
	if name == "yaml" {
		return YAMLCodec{}
	}
	return BinaryCodec{}
}

// DecodeAny picks the codec from the payload itself, so switching the
// encoding setting keeps older caches readable
func DecodeAny(data []byte, v any) error {
	if bytes.HasPrefix(data, lz4FrameMagic) {
		return BinaryCodec{}.Decode(data, v)
	}
	return YAMLCodec{}.Decode(data, v)
}
