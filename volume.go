package ai4ar

import (
	"fmt"
	"io"
)

// Volume is a dense voxel buffer stored in row-major order with the
// leading axis first (slice, row, column for 3D scans).
type Volume struct {
	Shape  []int
	Voxels []float64
}

// NewVolume allocates a zeroed volume.
func NewVolume(shape ...int) *Volume {
	return &Volume{Shape: append([]int(nil), shape...), Voxels: make([]float64, size(shape))}
}

func size(shape []int) (n int) {
	if len(shape) == 0 {
		return 0
	}
	n = 1
	for _, d := range shape {
		n *= d
	}
	return
}

// Len returns the number of voxels the shape describes.
func (v *Volume) Len() int {
	return size(v.Shape)
}

// Check verifies that the voxel slice agrees with the shape.
func (v *Volume) Check() error {
	for _, d := range v.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in shape %v", ErrInvalidArgument, v.Shape)
		}
	}
	if len(v.Voxels) != v.Len() {
		return fmt.Errorf("%w: shape %v wants %d voxels, have %d", ErrInvalidArgument, v.Shape, v.Len(), len(v.Voxels))
	}
	return nil
}

// SameShape reports whether v and o have identical shapes.
func (v *Volume) SameShape(o *Volume) bool {
	if len(v.Shape) != len(o.Shape) {
		return false
	}
	for i := range v.Shape {
		if v.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Foreground counts nonzero voxels.
func (v *Volume) Foreground() (n int) {
	for _, x := range v.Voxels {
		if x != 0 {
			n++
		}
	}
	return
}

// SelectSlice returns the index along the leading axis holding the
// most foreground voxels.  The first such slice wins ties; an empty
// volume yields 0.
func (v *Volume) SelectSlice() (best int) {
	if len(v.Shape) == 0 || v.Shape[0] == 0 {
		return 0
	}
	stride := v.Len() / v.Shape[0]
	max := 0
	for i := 0; i < v.Shape[0]; i++ {
		n := 0
		for _, x := range v.Voxels[i*stride : (i+1)*stride] {
			if x != 0 {
				n++
			}
		}
		if n > max {
			max = n
			best = i
		}
	}
	return
}

// Spatial is the physical-space metadata that travels with a volume.
// Direction is the flattened direction cosine matrix.
type Spatial struct {
	Spacing   []float64
	Origin    []float64
	Direction []float64
}

// Copy returns a deep copy of sp; a nil receiver copies to nil.
func (sp *Spatial) Copy() *Spatial {
	if sp == nil {
		return nil
	}
	return &Spatial{
		Spacing:   append([]float64(nil), sp.Spacing...),
		Origin:    append([]float64(nil), sp.Origin...),
		Direction: append([]float64(nil), sp.Direction...),
	}
}

// Codec decodes and encodes volumes in some on-disk pixel format.
// Implementations must be safe for concurrent use.
type Codec interface {
	Decode(r io.Reader) (*Volume, *Spatial, error)
	Encode(w io.Writer, vol *Volume, sp *Spatial) error
}
