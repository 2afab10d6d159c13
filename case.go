package ai4ar

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/ai4ar/table"
)

// top-level key path segments of a case tree
const (
	AnatomicalLabels = "anatomical_labels"
	Data             = "data"
	LesionLabels     = "lesion_labels"
)

// Case is one patient study.  Its tree is built by scanning the data
// dir once at construction; combined masks are added on demand.
type Case struct {
	ID  string
	FID string // int-normalized ID used in file names

	ds    *Dataset
	tree  *Tree
	cache *ArtifactCache
}

// normalizeID strips leading zeros from numeric ids ("007" -> "7");
// other ids are used as is.
func normalizeID(id string) string {
	n, err := strconv.Atoi(id)
	if err != nil {
		return id
	}
	return strconv.Itoa(n)
}

// RaterID extracts the rater id from an annotation file name: the text
// after the last underscore, cut at the first dot.
func RaterID(name string) string {
	id := name
	if i := strings.LastIndex(id, "_"); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.Index(id, "."); i >= 0 {
		id = id[:i]
	}
	return id
}

func newCase(ds *Dataset, id string) (c *Case, err error) {
	defer Return(&err)
	c = &Case{
		ID:   id,
		FID:  normalizeID(id),
		ds:   ds,
		tree: NewTree(),
		cache: &ArtifactCache{
			Dir:   filepath.Join(ds.CacheDir, id),
			Ext:   ds.Config.CacheExt,
			Codec: ds.Codec,
		},
	}
	err = c.scan()
	Ck(err)
	log.Debugf("case %s: %d images", id, c.tree.Len())
	return
}

func (c *Case) scan() (err error) {
	defer Return(&err)
	cfg := c.ds.Config
	root := c.ds.DataDir

	for _, label := range cfg.AnatomicalLabels {
		fn := fmt.Sprintf("%s_%s%s%s", c.FID, label, cfg.LabelSuffix, cfg.LabelExt)
		err = c.addFile(Join(AnatomicalLabels, label), filepath.Join(root, cfg.AnatomicalDir, c.ID, fn))
		Ck(err)
	}

	for _, modality := range cfg.Modalities {
		fn := fmt.Sprintf("%s_%s%s", c.FID, modality, cfg.DataExt)
		err = c.addFile(Join(Data, modality), filepath.Join(root, cfg.DataDir, c.ID, fn))
		Ck(err)
	}

	base := filepath.Join(root, cfg.LesionDir, c.ID)
	lesions, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		log.Debugf("case %s: no lesion dir %s", c.ID, base)
		return nil
	}
	Ck(err)
	for _, lesion := range lesions {
		if !lesion.IsDir() {
			continue
		}
		for _, modality := range cfg.LesionModalities {
			dir := filepath.Join(base, lesion.Name(), modality)
			if !isDir(dir) {
				continue
			}
			annotations, err := os.ReadDir(dir)
			Ck(err)
			for _, ann := range annotations {
				if ann.IsDir() {
					continue
				}
				rater := RaterID(ann.Name())
				if rater == "" || rater == Wildcard {
					log.Debugf("case %s: skipping %s", c.ID, filepath.Join(dir, ann.Name()))
					continue
				}
				err = c.addFile(Join(LesionLabels, lesion.Name(), modality, rater), filepath.Join(dir, ann.Name()))
				Ck(err)
			}
		}
	}
	return
}

// addFile registers fn at p if it exists.  Missing files are the
// normal case; two files mapping to one rater id keep the first.
func (c *Case) addFile(p KeyPath, fn string) error {
	if !exists(fn) {
		return nil
	}
	img, err := ImageOpts{File: fn}.New(c.ds.Codec)
	if err != nil {
		return err
	}
	err = c.tree.Insert(p, img)
	if err != nil {
		log.Warnf("case %s: %v, ignoring %s", c.ID, err, fn)
	}
	return nil
}

// rowsFor selects rows keyed by either form of a case id.
func rowsFor(t *table.Table, column, id, fid string) (rows []int, err error) {
	rows, err = t.Filter(column, id)
	if err != nil || id == fid {
		return
	}
	more, err := t.Filter(column, fid)
	return append(rows, more...), err
}

func (c *Case) String() string {
	return fmt.Sprintf("case %s", c.ID)
}

// Tree returns a read-only view of the case tree.
func (c *Case) Tree() *Tree { return c.tree.View() }

// Get returns the image at key, failing with ErrNotFound.
func (c *Case) Get(key KeyPath) (*Image, error) {
	return c.tree.Get(key)
}

// Contains reports whether key addresses an image.
func (c *Case) Contains(key KeyPath) bool {
	return c.tree.Contains(key)
}

// Image looks key up.  A leaf at key is returned directly.  Otherwise,
// when combine is set, the consensus of key's children under policy
// (DefaultPolicy when nil) is resolved through the artifact cache.
// found is false, with a nil error, when key has no image and
// combination was not requested.  Malformed keys, and combine requests
// on keys under CombinedPrefix, fail with ErrInvalidArgument.
func (c *Case) Image(key KeyPath, combine bool, policy Policy) (img *Image, found bool, err error) {
	err = key.Validate()
	if err != nil {
		return nil, false, err
	}
	img, err = c.tree.Get(key)
	if err == nil {
		return img, true, nil
	}
	if !combine {
		return nil, false, nil
	}
	if key.IsCombined() {
		// combined results have no children to combine
		return nil, false, &KeyError{Op: "combine", Path: key, Err: ErrInvalidArgument}
	}
	img, err = c.cache.Resolve(c.tree, key, policy)
	if err != nil {
		return nil, false, err
	}
	return img, true, nil
}

// Combined resolves the consensus of key's children.
func (c *Case) Combined(key KeyPath, policy Policy) (*Image, error) {
	img, _, err := c.Image(key, true, policy)
	return img, err
}

// CacheFile returns where the consensus of key's children is persisted.
func (c *Case) CacheFile(key KeyPath) string {
	return c.cache.File(key)
}

// Keys returns every image key path, combined ones included.
func (c *Case) Keys() []KeyPath {
	return c.tree.Keys()
}

// MaterializedKeys returns the key paths whose pixel data is held in
// memory.
func (c *Case) MaterializedKeys() (keys []KeyPath) {
	c.tree.Walk(func(p KeyPath, img *Image) error {
		if img.Materialized() {
			keys = append(keys, p)
		}
		return nil
	})
	return
}

// Release drops the pixel data of every file-backed image.
func (c *Case) Release() {
	c.tree.Walk(func(_ KeyPath, img *Image) error {
		img.Release()
		return nil
	})
}

// Summarize writes one line per image key.
func (c *Case) Summarize(w io.Writer) error {
	for _, p := range c.Keys() {
		_, err := fmt.Fprintf(w, "Image: %s\n", p)
		if err != nil {
			return err
		}
	}
	return nil
}

// ClinicalRows returns this case's row indices in Dataset.Clinical.
func (c *Case) ClinicalRows() ([]int, error) {
	return rowsFor(c.ds.Clinical(), c.ds.Config.CaseColumn, c.ID, c.FID)
}

// RadiologicalRows returns this case's row indices in
// Dataset.Radiological, the extended table.
func (c *Case) RadiologicalRows() ([]int, error) {
	return rowsFor(c.ds.Radiological(), c.ds.Config.CaseColumn, c.ID, c.FID)
}
