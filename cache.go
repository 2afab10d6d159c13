package ai4ar

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CombinedBase is the file name stem of persisted consensus masks.
const CombinedBase = "combined"

// ArtifactCache memoizes consensus masks in a tree and on disk under
// Dir.  A file found on disk is trusted as is: there is no content
// hashing, no staleness check, and the threshold policy is not part of
// the key, so the first policy to compute a key path wins for good.
type ArtifactCache struct {
	Dir   string
	Ext   string
	Codec Codec

	group singleflight.Group
}

// File returns the cache file for the consensus of the children of p.
func (c *ArtifactCache) File(p KeyPath) string {
	return filepath.Join(c.Dir, filepath.FromSlash(string(p)), CombinedBase+c.Ext)
}

// Resolve returns the consensus of p's children, registered in t at
// p.Combined().  In order it reuses the tree entry, then the cache
// file, and only then combines and persists.  Concurrent calls for
// the same key share one resolution.
func (c *ArtifactCache) Resolve(t *Tree, p KeyPath, policy Policy) (*Image, error) {
	// File must stay under Dir
	err := p.Validate()
	if err != nil {
		return nil, err
	}
	key := p.Combined()
	img, err := t.Get(key)
	if err == nil {
		log.Debugf("cache tree hit %s", key)
		return img, nil
	}
	file := c.File(p)
	v, err, _ := c.group.Do(file, func() (interface{}, error) {
		// another flight may have finished between Get and Do
		img, err := t.Get(key)
		if err == nil {
			return img, nil
		}
		img, err = c.resolve(t, p, file, policy)
		if err != nil {
			return nil, err
		}
		err = t.Insert(key, img)
		if err != nil {
			return nil, err
		}
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Image), nil
}

func (c *ArtifactCache) resolve(t *Tree, p KeyPath, file string, policy Policy) (*Image, error) {
	pattern := p.Child(Wildcard)
	if exists(file) {
		log.Debugf("cache file hit %s", file)
		img, err := ImageOpts{File: file}.New(c.Codec)
		if err != nil {
			return nil, err
		}
		return newCombined(img, pattern, file), nil
	}
	log.Debugf("cache miss %s", file)
	img, err := Combine(t, pattern, policy, c.Codec)
	if err != nil {
		return nil, err
	}
	img = newCombined(img, pattern, file)
	err = img.Persist(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}
