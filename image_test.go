package ai4ar

import (
	"bytes"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hlubek/readercomp"
)

func TestImageNew(t *testing.T) {
	codec := &countingCodec{}
	_, err := ImageOpts{}.New(codec)
	tassert(t, errors.Is(err, ErrInvalidArgument), "neither: %v", err)
	_, err = ImageOpts{File: "x", Volume: row(1)}.New(codec)
	tassert(t, errors.Is(err, ErrInvalidArgument), "both: %v", err)
	tmpl := mkimage(t, row(1))
	_, err = ImageOpts{File: "x", Template: tmpl}.New(codec)
	tassert(t, errors.Is(err, ErrInvalidArgument), "file with template: %v", err)
	_, err = ImageOpts{Volume: mkvol([]int{2, 2}, 1, 2, 3)}.New(codec)
	tassert(t, errors.Is(err, ErrInvalidArgument), "bad shape: %v", err)
	_, err = ImageOpts{File: "x"}.New(nil)
	tassert(t, errors.Is(err, ErrInvalidArgument), "nil codec: %v", err)

	img, err := ImageOpts{File: "x"}.New(codec)
	tassert(t, err == nil && img.Kind() == FileBacked, "file: %v %v", err, img)
	tassert(t, !img.Materialized(), "file image materialized before use")
	img, err = ImageOpts{Volume: row(1), Template: tmpl}.New(codec)
	tassert(t, err == nil && img.Kind() == InMemory, "memory: %v %v", err, img)
	tassert(t, img.Materialized(), "in-memory image not materialized")
}

func TestImageMaterialize(t *testing.T) {
	dir := setup(t)
	fn := filepath.Join(dir, "vol")
	writeVolume(t, fn, row(1, 2, 3))
	codec := &countingCodec{}
	img, err := ImageOpts{File: fn}.New(codec)
	tassert(t, err == nil, "%v", err)

	vol, err := img.Materialize()
	tassert(t, err == nil, "materialize: %v", err)
	if diff := cmp.Diff(row(1, 2, 3), vol); diff != "" {
		t.Fatalf("volume mismatch (-want +got):\n%s", diff)
	}
	again, err := img.Materialize()
	tassert(t, err == nil && again == vol, "second materialize: %v", err)
	tassert(t, codec.Decodes() == 1, "decodes %d", codec.Decodes())

	sp, err := img.Spatial()
	tassert(t, err == nil, "spatial: %v", err)
	if diff := cmp.Diff(testSpatial, sp); diff != "" {
		t.Fatalf("spatial mismatch (-want +got):\n%s", diff)
	}

	img.Release()
	tassert(t, !img.Materialized(), "released image still materialized")
	_, err = img.Materialize()
	tassert(t, err == nil, "re-materialize: %v", err)
	tassert(t, codec.Decodes() == 2, "decodes after release %d", codec.Decodes())
}

func TestImageMissingFile(t *testing.T) {
	img, err := ImageOpts{File: filepath.Join(setup(t), "nope")}.New(&countingCodec{})
	tassert(t, err == nil, "%v", err)
	_, err = img.Materialize()
	tassert(t, errors.Is(err, os.ErrNotExist), "expected not-exist, got %v", err)
}

func TestImageReleaseInMemory(t *testing.T) {
	img := mkimage(t, row(4, 5))
	img.Release()
	tassert(t, img.Materialized(), "in-memory image dropped its only copy")
	vol, err := img.Materialize()
	tassert(t, err == nil && vol.Voxels[1] == 5, "materialize: %v %v", err, vol)
}

func TestImageTemplate(t *testing.T) {
	dir := setup(t)
	fn := filepath.Join(dir, "src")
	writeVolume(t, fn, row(1, 0))
	src, err := ImageOpts{File: fn}.New(&countingCodec{})
	tassert(t, err == nil, "%v", err)
	img, err := ImageOpts{Volume: row(0, 1), Template: src}.New(&countingCodec{})
	tassert(t, err == nil, "%v", err)

	sp, err := img.Spatial()
	tassert(t, err == nil, "spatial: %v", err)
	if diff := cmp.Diff(testSpatial, sp); diff != "" {
		t.Fatalf("spatial mismatch (-want +got):\n%s", diff)
	}
	srcsp, _ := src.Spatial()
	tassert(t, &sp.Origin[0] != &srcsp.Origin[0], "template metadata shared, not copied")

	plain := mkimage(t, row(1))
	sp, err = plain.Spatial()
	tassert(t, err == nil && sp == nil, "untemplated spatial: %v %v", err, sp)
}

func TestImagePersist(t *testing.T) {
	dir := setup(t)
	codec := &countingCodec{}
	img, err := ImageOpts{Volume: mkvol([]int{2, 2}, 0, 1, 1, 0)}.New(codec)
	tassert(t, err == nil, "%v", err)

	target := filepath.Join(dir, "deep", "er", "mask")
	err = img.Persist(target)
	tassert(t, err == nil, "persist: %v", err)

	info, err := os.Stat(target)
	tassert(t, err == nil, "stat: %v", err)
	tassert(t, info.Mode().Perm() == READ, "mode %v", info.Mode())
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(target), ".*"))
	tassert(t, len(leftovers) == 0, "temp files left: %v", leftovers)

	// bytes on disk are exactly what the codec emits
	var want bytes.Buffer
	vol, _ := img.Materialize()
	err = encodeRecord(&want, vol, nil)
	tassert(t, err == nil, "%v", err)
	fh, err := os.Open(target)
	tassert(t, err == nil, "%v", err)
	defer fh.Close()
	ok, err := readercomp.Equal(&want, fh, 7)
	tassert(t, err == nil && ok, "persisted bytes differ: %v", err)

	loaded, err := ImageOpts{File: target}.New(codec)
	tassert(t, err == nil, "%v", err)
	got, err := loaded.Materialize()
	tassert(t, err == nil, "reload: %v", err)
	if diff := cmp.Diff(vol, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	err = img.Persist(target)
	tassert(t, errors.Is(err, ErrAlreadyExists), "second persist: %v", err)
	var xerr *ExistsError
	tassert(t, errors.As(err, &xerr) && xerr.Path == target, "ExistsError: %#v", err)
	tassert(t, codec.Encodes() == 1, "encodes %d", codec.Encodes())
}

func TestWriteOnceLosesRace(t *testing.T) {
	dir := setup(t)
	target := filepath.Join(dir, "x")
	err := writeOnce(target, func(w io.Writer) error {
		// another writer publishes while we are still encoding
		writeFile(t, target, "winner")
		_, err := w.Write([]byte("loser"))
		return err
	})
	tassert(t, errors.Is(err, ErrAlreadyExists), "expected ErrAlreadyExists, got %v", err)
	buf, err := ioutil.ReadFile(target)
	tassert(t, err == nil && string(buf) == "winner", "target clobbered: %q %v", buf, err)
	entries, _ := os.ReadDir(dir)
	tassert(t, len(entries) == 1, "temp file left behind: %d entries", len(entries))
}

func TestImageAccessors(t *testing.T) {
	fileImg, err := ImageOpts{File: "x"}.New(&countingCodec{})
	tassert(t, err == nil, "%v", err)
	tassert(t, fileImg.File() == "x" && fileImg.Template() == nil, "file image %q %v", fileImg.File(), fileImg.Template())

	img, err := ImageOpts{Volume: row(1), Template: fileImg}.New(&countingCodec{})
	tassert(t, err == nil, "%v", err)
	tassert(t, img.File() == "" && img.Template() == fileImg, "memory image %q %v", img.File(), img.Template())
	tassert(t, img.Kind() == InMemory && fileImg.Kind() == FileBacked, "kinds %v %v", img.Kind(), fileImg.Kind())
}
