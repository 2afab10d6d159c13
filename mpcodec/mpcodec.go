// Package mpcodec stores volumes as a single msgpack record behind a
// short text header.
package mpcodec

import (
	"bufio"
	"fmt"
	"io"

	"github.com/t7a/ai4ar"
	"github.com/vmihailenco/msgpack"
)

// Ext is the file extension conventionally used for this format.
const Ext = ".mpv"

const header = "ai4ar-volume-1\n"

type record struct {
	Shape     []int     `msgpack:"shape"`
	Voxels    []float64 `msgpack:"voxels"`
	Spacing   []float64 `msgpack:"spacing,omitempty"`
	Origin    []float64 `msgpack:"origin,omitempty"`
	Direction []float64 `msgpack:"direction,omitempty"`
	Spatial   bool      `msgpack:"has_spatial"`
}

// Codec implements ai4ar.Codec.  The zero value is ready to use.
type Codec struct{}

func (Codec) Encode(w io.Writer, vol *ai4ar.Volume, sp *ai4ar.Spatial) error {
	rec := record{Shape: vol.Shape, Voxels: vol.Voxels}
	if sp != nil {
		rec.Spatial = true
		rec.Spacing, rec.Origin, rec.Direction = sp.Spacing, sp.Origin, sp.Direction
	}
	_, err := io.WriteString(w, header)
	if err != nil {
		return err
	}
	return msgpack.NewEncoder(w).Encode(&rec)
}

func (Codec) Decode(r io.Reader) (*ai4ar.Volume, *ai4ar.Spatial, error) {
	br := bufio.NewReader(r)
	buf := make([]byte, len(header))
	_, err := io.ReadFull(br, buf)
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if string(buf) != header {
		return nil, nil, fmt.Errorf("malformed header: %q", string(buf))
	}
	var rec record
	err = msgpack.NewDecoder(br).Decode(&rec)
	if err != nil {
		return nil, nil, err
	}
	vol := &ai4ar.Volume{Shape: rec.Shape, Voxels: rec.Voxels}
	if !rec.Spatial {
		return vol, nil, nil
	}
	return vol, &ai4ar.Spatial{Spacing: rec.Spacing, Origin: rec.Origin, Direction: rec.Direction}, nil
}
