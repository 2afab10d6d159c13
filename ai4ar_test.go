package ai4ar

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	. "github.com/stevegt/goadapt"
	"github.com/vmihailenco/msgpack"
)

const testDirPrefix = "ai4ar"

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

// setup returns a scratch dir, kept for inspection when DEBUG=1.
func setup(t *testing.T) (dir string) {
	var err error
	if os.Getenv("DEBUG") == "1" {
		dir, err = ioutil.TempDir("", testDirPrefix)
		Ck(err)
		fmt.Println(dir)
		// no cleanup
	} else {
		dir = t.TempDir()
		// automatically cleaned up
	}
	return
}

type testRecord struct {
	Shape   []int
	Voxels  []float64
	Spatial *Spatial
}

// countingCodec is a msgpack codec that counts its calls.
type countingCodec struct {
	decodes int64
	encodes int64
}

func (c *countingCodec) Decode(r io.Reader) (*Volume, *Spatial, error) {
	atomic.AddInt64(&c.decodes, 1)
	var rec testRecord
	err := msgpack.NewDecoder(r).Decode(&rec)
	if err != nil {
		return nil, nil, err
	}
	return &Volume{Shape: rec.Shape, Voxels: rec.Voxels}, rec.Spatial, nil
}

func (c *countingCodec) Encode(w io.Writer, vol *Volume, sp *Spatial) error {
	atomic.AddInt64(&c.encodes, 1)
	return encodeRecord(w, vol, sp)
}

func (c *countingCodec) Decodes() int64 { return atomic.LoadInt64(&c.decodes) }
func (c *countingCodec) Encodes() int64 { return atomic.LoadInt64(&c.encodes) }

func encodeRecord(w io.Writer, vol *Volume, sp *Spatial) error {
	return msgpack.NewEncoder(w).Encode(&testRecord{Shape: vol.Shape, Voxels: vol.Voxels, Spatial: sp})
}

// mkvol builds a volume of the given shape from voxel values.
func mkvol(shape []int, voxels ...float64) *Volume {
	return &Volume{Shape: shape, Voxels: voxels}
}

func row(voxels ...float64) *Volume {
	return mkvol([]int{1, len(voxels)}, voxels...)
}

var testSpatial = &Spatial{
	Spacing:   []float64{0.5, 0.5, 3},
	Origin:    []float64{-10, -20, 5},
	Direction: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
}

// writeVolume puts a fixture file on disk without going through any
// codec under test.
func writeVolume(t *testing.T, path string, vol *Volume) {
	t.Helper()
	err := os.MkdirAll(filepath.Dir(path), 0755)
	tassert(t, err == nil, "mkdir: %v", err)
	fh, err := os.Create(path)
	tassert(t, err == nil, "create: %v", err)
	defer fh.Close()
	err = encodeRecord(fh, vol, testSpatial)
	tassert(t, err == nil, "encode: %v", err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	err := os.MkdirAll(filepath.Dir(path), 0755)
	tassert(t, err == nil, "mkdir: %v", err)
	err = ioutil.WriteFile(path, []byte(content), 0644)
	tassert(t, err == nil, "write: %v", err)
}

// mkfixture lays out two cases in the default layout:
//
//	001: data adc and t2w, every anatomical label except afs, lesion1
//	     annotated on adc by r1, r2, r3 and on t2w by r1
//	002: data t2w only, no lesion dir
//
// plus clinical and radiological tables keyed by int-normalized ids.
func mkfixture(t *testing.T) (dataDir, cacheDir string) {
	t.Helper()
	dir := setup(t)
	dataDir = filepath.Join(dir, "data")
	cacheDir = filepath.Join(dir, "cache")

	writeVolume(t, filepath.Join(dataDir, "Data", "001", "1_adc.mha"), row(3, 4, 5))
	writeVolume(t, filepath.Join(dataDir, "Data", "001", "1_t2w.mha"), row(6, 7, 8))
	for _, label := range []string{"cz", "pg", "pz", "sv_l", "sv_r", "tz"} {
		writeVolume(t, filepath.Join(dataDir, "Anatomical_Labels", "001", "1_"+label+"_t2w.nii.gz"), row(0, 1, 0))
	}
	lesion := filepath.Join(dataDir, "Lesion_labels", "001", "lesion1")
	writeVolume(t, filepath.Join(lesion, "adc", "1_adc_r1.nii.gz"), row(1, 0, 0))
	writeVolume(t, filepath.Join(lesion, "adc", "1_adc_r2.nii.gz"), row(1, 1, 0))
	writeVolume(t, filepath.Join(lesion, "adc", "1_adc_r3.nii.gz"), row(0, 0, 0))
	writeVolume(t, filepath.Join(lesion, "t2w", "1_t2w_r1.nii.gz"), row(0, 1, 1))

	writeVolume(t, filepath.Join(dataDir, "Data", "002", "2_t2w.mha"), row(1, 1, 1))

	writeFile(t, filepath.Join(dataDir, "clinical.csv"), "case_id,age\n1,64\n2,70\n")
	writeFile(t, filepath.Join(dataDir, "radiological.csv"),
		"case_id,lesion_id,rater_id,pirads\n1,1,r1,4\n1,1,r2,5\n1,1,r3,3\n1,2,r1,2\n2,1,r1,3\n")
	return
}
