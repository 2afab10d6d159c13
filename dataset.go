package ai4ar

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/ai4ar/table"
	"golang.org/x/sync/singleflight"
)

// Dataset is the registry of cases under one data dir.  Cases are
// built on first access and kept for the Dataset's lifetime.
type Dataset struct {
	DataDir  string
	CacheDir string
	Config   *Config
	Codec    Codec

	ids []string

	mu    sync.Mutex
	cases map[string]*Case
	group singleflight.Group

	clinical        *table.Table
	radiologicalRaw *table.Table
	extension       *table.Table
	radiological    *table.Table
}

// Open lists the cases under dataDir, loads the metadata tables and
// extends the radiological table with per-rater mask existence,
// reading the persisted extension from cacheDir when present.  A nil
// cfg means DefaultConfig.
func Open(dataDir, cacheDir string, cfg *Config, codec Codec) (ds *Dataset, err error) {
	defer Return(&err)

	if cfg == nil {
		cfg = DefaultConfig()
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	if codec == nil {
		return nil, fmt.Errorf("%w: nil codec", ErrInvalidArgument)
	}
	ds = &Dataset{
		DataDir:  filepath.Clean(dataDir),
		CacheDir: filepath.Clean(cacheDir),
		Config:   cfg,
		Codec:    codec,
		cases:    map[string]*Case{},
	}

	caseDir := filepath.Join(ds.DataDir, cfg.DataDir)
	entries, err := os.ReadDir(caseDir)
	if err != nil {
		return nil, errors.Wrap(err, "list cases")
	}
	for _, e := range entries {
		if e.IsDir() {
			ds.ids = append(ds.ids, e.Name())
		}
	}

	err = os.MkdirAll(ds.CacheDir, DIR)
	Ck(err)

	ds.clinical, err = ds.loadTable(cfg.ClinicalTable, cfg.CaseColumn)
	Ck(err)
	ds.radiologicalRaw, err = ds.loadTable(cfg.RadiologicalTable, cfg.CaseColumn, cfg.LesionColumn, cfg.RaterColumn)
	Ck(err)

	err = ds.extend()
	Ck(err)

	log.Debugf("opened dataset %s: %d cases", ds.DataDir, len(ds.ids))
	return
}

// loadTable reads a metadata table from the data dir.  A missing file
// yields an empty table with just the required columns.
func (ds *Dataset) loadTable(name string, required ...string) (*table.Table, error) {
	path := filepath.Join(ds.DataDir, name)
	if name == "" || !exists(path) {
		log.Warnf("metadata table %s not found, using empty table", path)
		return table.New(required...), nil
	}
	t, err := table.Load(path)
	if err != nil {
		return nil, err
	}
	for _, col := range required {
		if t.Column(col) < 0 {
			return nil, fmt.Errorf("%w: table %s lacks column %q", ErrInvalidArgument, path, col)
		}
	}
	return t, nil
}

// IDs returns the case ids in directory order.
func (ds *Dataset) IDs() []string {
	return append([]string(nil), ds.ids...)
}

func (ds *Dataset) Len() int { return len(ds.ids) }

func (ds *Dataset) String() string {
	return fmt.Sprintf("dataset %s with %d cases", ds.DataDir, len(ds.ids))
}

// Contains reports whether id is a listed case.
func (ds *Dataset) Contains(id string) bool {
	for _, x := range ds.ids {
		if x == id {
			return true
		}
	}
	return false
}

// Case returns the case with id, building it on first access.
// Repeated calls return the same *Case.
func (ds *Dataset) Case(id string) (*Case, error) {
	ds.mu.Lock()
	c, ok := ds.cases[id]
	ds.mu.Unlock()
	if ok {
		return c, nil
	}
	if !ds.Contains(id) {
		return nil, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	v, err, _ := ds.group.Do(id, func() (interface{}, error) {
		ds.mu.Lock()
		c, ok := ds.cases[id]
		ds.mu.Unlock()
		if ok {
			return c, nil
		}
		c, err := newCase(ds, id)
		if err != nil {
			return nil, err
		}
		ds.mu.Lock()
		ds.cases[id] = c
		ds.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Case), nil
}

// Each visits every case in id order, stopping at the first error.
func (ds *Dataset) Each(fn func(c *Case) error) error {
	for _, id := range ds.ids {
		c, err := ds.Case(id)
		if err != nil {
			return err
		}
		err = fn(c)
		if err != nil {
			return err
		}
	}
	return nil
}

// Clinical returns the clinical metadata table.
func (ds *Dataset) Clinical() *table.Table { return ds.clinical }

// Radiological returns the radiological metadata joined with the
// extension table.
func (ds *Dataset) Radiological() *table.Table { return ds.radiological }

// Extension returns the per-rater mask existence table.
func (ds *Dataset) Extension() *table.Table { return ds.extension }
