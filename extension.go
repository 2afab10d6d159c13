package ai4ar

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/ai4ar/table"
)

// MaskColumn names the extension column recording whether the rater's
// mask exists for modality.
func MaskColumn(modality string) string {
	return "mask_" + modality
}

// ExtensionFile returns where the extension table is persisted.
func (ds *Dataset) ExtensionFile() string {
	return filepath.Join(ds.CacheDir, ds.Config.ExtensionTable)
}

// MaskKey returns the key path of a rater's annotation for one lesion
// and modality.  Lesion ids lacking the configured prefix get it.
func (ds *Dataset) MaskKey(lesion, modality, rater string) KeyPath {
	prefix := ds.Config.LesionPrefix
	if !strings.HasPrefix(lesion, prefix) {
		lesion = prefix + lesion
	}
	return Join(LesionLabels, lesion, modality, rater)
}

// extend loads the persisted extension table or, when absent, probes
// every radiological row and persists the result.  A persisted table is
// never refreshed.
func (ds *Dataset) extend() (err error) {
	cfg := ds.Config
	path := ds.ExtensionFile()
	if exists(path) {
		log.Debugf("loading extension table %s", path)
		ds.extension, err = table.Load(path)
		if err != nil {
			return err
		}
	} else {
		ds.extension, err = ds.probe()
		if err != nil {
			return err
		}
		err = ds.extension.Save(path)
		if err != nil {
			return err
		}
	}
	ds.radiological, err = table.Join(ds.radiologicalRaw, ds.extension, cfg.CaseColumn, cfg.LesionColumn, cfg.RaterColumn)
	if err != nil {
		return errors.Wrapf(err, "extension table %s", path)
	}
	return nil
}

func (ds *Dataset) probe() (*table.Table, error) {
	cfg := ds.Config
	cols := []string{cfg.CaseColumn, cfg.LesionColumn, cfg.RaterColumn}
	for _, m := range cfg.LesionModalities {
		cols = append(cols, MaskColumn(m))
	}
	ext := table.New(cols...)

	// metadata may key cases by normalized id
	byID := map[string]string{}
	for _, id := range ds.ids {
		byID[id] = id
		if _, taken := byID[normalizeID(id)]; !taken {
			byID[normalizeID(id)] = id
		}
	}

	seen := map[[3]string]bool{}
	present := 0
	raw := ds.radiologicalRaw
	for i := range raw.Rows {
		key := [3]string{
			raw.Value(i, cfg.CaseColumn),
			raw.Value(i, cfg.LesionColumn),
			raw.Value(i, cfg.RaterColumn),
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		row := append([]string(nil), key[:]...)

		var c *Case
		if id, ok := byID[key[0]]; ok {
			var err error
			c, err = ds.Case(id)
			if err != nil {
				return nil, err
			}
		}
		for _, m := range cfg.LesionModalities {
			found := false
			if c != nil {
				img, err := c.tree.Get(ds.MaskKey(key[1], m, key[2]))
				found = err == nil && img.Kind() == FileBacked
			}
			if found {
				present++
			}
			row = append(row, strconv.FormatBool(found))
		}
		err := ext.Append(row...)
		if err != nil {
			return nil, err
		}
	}
	log.Debugf("probed %d rater rows, %d masks present", ext.Len(), present)
	return ext, nil
}
