// Package codec serializes frames into self-describing byte documents.
//
// Two codecs are provided. Arrow writes an Arrow IPC stream holding the
// schema and a single record batch; it is the primary payload format.
// JSON writes a column-oriented document and serves as the fallback when
// Arrow encoding fails. Both preserve column order, names, storage kinds
// and decoded values, NaN included.
package codec

import (
	"fmt"

	"github.com/ajitpratap0/econdash/pkg/frame"
)

// Codec converts frames to bytes and back.
type Codec interface {
	Name() string
	Encode(f *frame.Frame) ([]byte, error)
	Decode(data []byte) (*frame.Frame, error)
}

const (
	// ArrowName selects the Arrow IPC codec.
	ArrowName = "arrow"
	// JSONName selects the JSON codec.
	JSONName = "json"
)

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case ArrowName:
		return Arrow(nil), nil
	case JSONName:
		return JSON(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
