package ai4ar

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Counts holds, per voxel, how many sources marked it.
type Counts struct {
	Shape   []int
	Data    []int
	Sources int
}

// Policy turns agreement counts into a binary mask.
type Policy func(c Counts) *Volume

// RequiredAgreement marks a voxel when at least n sources marked it.
// n outside 1..Sources yields an all-one or all-zero mask.
func RequiredAgreement(n int) Policy {
	return func(c Counts) *Volume {
		mask := NewVolume(c.Shape...)
		for i, k := range c.Data {
			if k >= n {
				mask.Voxels[i] = 1
			}
		}
		return mask
	}
}

// Majority marks a voxel when at least half of the sources, rounded
// up, marked it.
func Majority() Policy {
	return func(c Counts) *Volume {
		return RequiredAgreement((c.Sources + 1) / 2)(c)
	}
}

// DefaultPolicy is the logical OR across raters.
var DefaultPolicy = RequiredAgreement(1)

// Count materializes every leaf matching pattern and counts, per voxel,
// the sources with a nonzero value there.  It also returns the first
// matched image, which combined results take their spatial metadata
// from.
func Count(t *Tree, pattern KeyPath) (counts Counts, first *Image, err error) {
	entries := t.Match(pattern)
	if len(entries) == 0 {
		return counts, nil, &KeyError{Op: "combine", Path: pattern, Err: ErrNoSourceImages}
	}
	var ref *Volume
	for _, e := range entries {
		vol, err := e.Image.Materialize()
		if err != nil {
			return counts, nil, err
		}
		if ref == nil {
			ref = vol
			counts.Shape = append([]int(nil), vol.Shape...)
			counts.Data = make([]int, vol.Len())
		} else if !vol.SameShape(ref) {
			return counts, nil, &KeyError{
				Op:   "combine",
				Path: e.Path,
				Err:  fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, vol.Shape, ref.Shape),
			}
		}
		for i, x := range vol.Voxels {
			if x != 0 {
				counts.Data[i]++
			}
		}
		counts.Sources++
	}
	log.Debugf("counted %d sources for %s", counts.Sources, pattern)
	return counts, entries[0].Image, nil
}

// Combine builds an in-memory consensus image of the leaves matching
// pattern.
func Combine(t *Tree, pattern KeyPath, policy Policy, codec Codec) (*Image, error) {
	if policy == nil {
		policy = DefaultPolicy
	}
	counts, first, err := Count(t, pattern)
	if err != nil {
		return nil, err
	}
	mask := policy(counts)
	if mask == nil {
		return nil, fmt.Errorf("%w: policy returned no mask", ErrInvalidArgument)
	}
	return ImageOpts{Volume: mask, Template: first}.New(codec)
}
