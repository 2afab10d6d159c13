package ai4ar

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// raterTree holds three raters' masks under lesion1/adc.
func raterTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree()
	for rater, vol := range map[string]*Volume{
		"r1": row(1, 0, 0),
		"r2": row(1, 1, 0),
		"r3": row(0, 0, 0),
	} {
		err := tree.Insert(Join(LesionLabels, "lesion1", "adc", rater), mkimage(t, vol))
		tassert(t, err == nil, "insert: %v", err)
	}
	return tree
}

const raterPattern = KeyPath("lesion_labels/lesion1/adc/*")

func TestCount(t *testing.T) {
	counts, first, err := Count(raterTree(t), raterPattern)
	tassert(t, err == nil, "count: %v", err)
	want := Counts{Shape: []int{1, 3}, Data: []int{2, 1, 0}, Sources: 3}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	vol, _ := first.Materialize()
	tassert(t, vol.Voxels[0] == 1 && vol.Voxels[1] == 0, "first source is not r1: %v", vol.Voxels)
}

func TestCombineThresholds(t *testing.T) {
	tree := raterTree(t)
	cases := []struct {
		n    int
		want []float64
	}{
		{0, []float64{1, 1, 1}},
		{1, []float64{1, 1, 0}},
		{2, []float64{1, 0, 0}},
		{3, []float64{0, 0, 0}},
		{4, []float64{0, 0, 0}},
	}
	var prev *Volume
	for _, c := range cases {
		img, err := Combine(tree, raterPattern, RequiredAgreement(c.n), &countingCodec{})
		tassert(t, err == nil, "n=%d: %v", c.n, err)
		tassert(t, img.Kind() == InMemory, "n=%d: kind %v", c.n, img.Kind())
		vol, _ := img.Materialize()
		if diff := cmp.Diff(c.want, vol.Voxels); diff != "" {
			t.Fatalf("n=%d mask mismatch (-want +got):\n%s", c.n, diff)
		}
		// raising the threshold never adds voxels
		if prev != nil {
			for i := range vol.Voxels {
				tassert(t, vol.Voxels[i] <= prev.Voxels[i], "n=%d voxel %d grew", c.n, i)
			}
		}
		prev = vol
	}
}

func TestCombineDefaultsToUnion(t *testing.T) {
	img, err := Combine(raterTree(t), raterPattern, nil, &countingCodec{})
	tassert(t, err == nil, "%v", err)
	vol, _ := img.Materialize()
	if diff := cmp.Diff([]float64{1, 1, 0}, vol.Voxels); diff != "" {
		t.Fatalf("mask mismatch (-want +got):\n%s", diff)
	}
}

func TestMajority(t *testing.T) {
	img, err := Combine(raterTree(t), raterPattern, Majority(), &countingCodec{})
	tassert(t, err == nil, "%v", err)
	vol, _ := img.Materialize()
	if diff := cmp.Diff([]float64{1, 0, 0}, vol.Voxels); diff != "" {
		t.Fatalf("mask mismatch (-want +got):\n%s", diff)
	}
}

func TestCombineInheritsSpatial(t *testing.T) {
	dir := setup(t)
	tree := NewTree()
	for _, rater := range []string{"r1", "r2"} {
		fn := filepath.Join(dir, rater)
		writeVolume(t, fn, row(1, 0))
		img, err := ImageOpts{File: fn}.New(&countingCodec{})
		tassert(t, err == nil, "%v", err)
		err = tree.Insert(Join("m", rater), img)
		tassert(t, err == nil, "%v", err)
	}
	img, err := Combine(tree, "m/*", nil, &countingCodec{})
	tassert(t, err == nil, "%v", err)
	sp, err := img.Spatial()
	tassert(t, err == nil, "%v", err)
	if diff := cmp.Diff(testSpatial, sp); diff != "" {
		t.Fatalf("spatial mismatch (-want +got):\n%s", diff)
	}
}

func TestCombineErrors(t *testing.T) {
	tree := raterTree(t)
	_, err := Combine(tree, "lesion_labels/lesion9/adc/*", nil, &countingCodec{})
	tassert(t, errors.Is(err, ErrNoSourceImages), "no sources: %v", err)
	var kerr *KeyError
	tassert(t, errors.As(err, &kerr) && kerr.Path == "lesion_labels/lesion9/adc/*", "KeyError: %#v", err)

	err = tree.Insert(Join(LesionLabels, "lesion1", "adc", "r4"), mkimage(t, row(1, 0)))
	tassert(t, err == nil, "%v", err)
	_, err = Combine(tree, raterPattern, nil, &countingCodec{})
	tassert(t, errors.Is(err, ErrShapeMismatch), "shape mismatch: %v", err)

	_, err = Combine(raterTree(t), raterPattern, func(Counts) *Volume { return nil }, &countingCodec{})
	tassert(t, errors.Is(err, ErrInvalidArgument), "nil mask: %v", err)
}
