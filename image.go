package ai4ar

import (
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Kind tags what backs an Image.  It is fixed when the Image is built.
type Kind int

const (
	FileBacked Kind = iota + 1
	InMemory
	Combined
)

func (k Kind) String() string {
	switch k {
	case FileBacked:
		return "file"
	case InMemory:
		return "memory"
	case Combined:
		return "combined"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// cell holds the materialized pixel data of an Image.
type cell struct {
	vol     *Volume
	spatial *Spatial
	full    bool
}

func (c *cell) fill(vol *Volume, sp *Spatial) {
	c.vol, c.spatial, c.full = vol, sp, true
}

func (c *cell) clear() {
	*c = cell{}
}

// ImageOpts describes an Image to build.  Set exactly one of File or
// Volume; a Template, whose spatial metadata the volume inherits, only
// goes with a Volume.
type ImageOpts struct {
	File     string
	Volume   *Volume
	Template *Image
}

// Image is a lazily loaded volume.  Its backing is fixed by New and
// cannot be changed afterwards.
type Image struct {
	file     string
	template *Image

	kind      Kind
	codec     Codec
	source    KeyPath // pattern a combined image was built from
	cacheFile string

	state *state
}

type state struct {
	mu   sync.Mutex
	cell cell
}

func (o ImageOpts) New(codec Codec) (*Image, error) {
	switch {
	case o.File != "" && o.Volume != nil:
		return nil, fmt.Errorf("%w: image needs a file or a volume, not both", ErrInvalidArgument)
	case o.File == "" && o.Volume == nil:
		return nil, fmt.Errorf("%w: image needs a file or a volume", ErrInvalidArgument)
	case o.File != "" && o.Template != nil:
		return nil, fmt.Errorf("%w: template only applies to in-memory images", ErrInvalidArgument)
	case codec == nil:
		return nil, fmt.Errorf("%w: nil codec", ErrInvalidArgument)
	}
	img := &Image{file: o.File, template: o.Template, codec: codec, state: &state{}}
	if o.File != "" {
		img.kind = FileBacked
		return img, nil
	}
	err := o.Volume.Check()
	if err != nil {
		return nil, err
	}
	img.kind = InMemory
	img.state.cell.fill(o.Volume, nil)
	return img, nil
}

// newCombined tags img as the consensus of source.  file is the cache
// file the result is, or will be, persisted to; it becomes the
// image's backing file so the cell may be released.
func newCombined(img *Image, source KeyPath, file string) *Image {
	out := &Image{
		file:      file,
		template:  img.template,
		kind:      Combined,
		codec:     img.codec,
		source:    source,
		cacheFile: file,
		state:     &state{},
	}
	img.state.mu.Lock()
	out.state.cell = img.state.cell
	img.state.mu.Unlock()
	return out
}

func (img *Image) Kind() Kind { return img.kind }

// File returns the backing file, or "" for images held only in memory.
func (img *Image) File() string { return img.file }

// Template returns the image spatial metadata is inherited from.
func (img *Image) Template() *Image { return img.template }

// Source returns the pattern a combined image was built from.
func (img *Image) Source() KeyPath { return img.source }

// CacheFile returns where a combined image is persisted.
func (img *Image) CacheFile() string { return img.cacheFile }

// Materialized reports whether pixel data is currently held.
func (img *Image) Materialized() bool {
	img.state.mu.Lock()
	defer img.state.mu.Unlock()
	return img.state.cell.full
}

// Materialize returns the pixel data, decoding the backing file on
// first use.  The returned volume is shared; do not modify it.
func (img *Image) Materialize() (*Volume, error) {
	img.state.mu.Lock()
	defer img.state.mu.Unlock()
	err := img.load()
	if err != nil {
		return nil, err
	}
	return img.state.cell.vol, nil
}

// Spatial returns the image's spatial metadata, which may be nil.
func (img *Image) Spatial() (*Spatial, error) {
	img.state.mu.Lock()
	err := img.load()
	sp, tmpl := img.state.cell.spatial, img.template
	img.state.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if sp == nil && tmpl != nil {
		return tmpl.copyMetadata()
	}
	return sp, nil
}

func (img *Image) copyMetadata() (*Spatial, error) {
	sp, err := img.Spatial()
	if err != nil {
		return nil, errors.Wrap(err, "template")
	}
	return sp.Copy(), nil
}

// load fills the cell; img.state.mu must be held.
func (img *Image) load() error {
	if img.state.cell.full {
		return nil
	}
	if img.file == "" {
		return fmt.Errorf("%w: in-memory image has no data", ErrInvalidArgument)
	}
	log.Debugf("decode %s", img.file)
	return readFile(img.file, func(r io.Reader) error {
		vol, sp, err := img.codec.Decode(r)
		if err != nil {
			return errors.Wrapf(err, "decode %s", img.file)
		}
		err = vol.Check()
		if err != nil {
			return errors.Wrapf(err, "decode %s", img.file)
		}
		img.state.cell.fill(vol, sp)
		return nil
	})
}

// Release drops the materialized data of a file-backed image so a
// later Materialize decodes again.  Images without a backing file keep
// their data.
func (img *Image) Release() {
	img.state.mu.Lock()
	defer img.state.mu.Unlock()
	if img.file == "" {
		return
	}
	img.state.cell.clear()
}

// Persist encodes the image to target.  It never overwrites: if target
// exists the result is an *ExistsError matching ErrAlreadyExists.
func (img *Image) Persist(target string) error {
	if exists(target) {
		return &ExistsError{Path: target}
	}
	vol, err := img.Materialize()
	if err != nil {
		return err
	}
	sp, err := img.Spatial()
	if err != nil {
		return err
	}
	return writeOnce(target, func(w io.Writer) error {
		return img.codec.Encode(w, vol, sp)
	})
}
