package ai4ar

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config describes the on-disk layout and vocabularies of a dataset.
// Directory fields are relative to the data dir, ExtensionTable to the
// cache dir.
type Config struct {
	AnatomicalDir string `toml:"anatomical_dir"`
	DataDir       string `toml:"data_dir"`
	LesionDir     string `toml:"lesion_dir"`

	AnatomicalLabels []string `toml:"anatomical_labels"`
	Modalities       []string `toml:"modalities"`
	LesionModalities []string `toml:"lesion_modalities"`

	LabelSuffix string `toml:"label_suffix"` // between region name and LabelExt
	LabelExt    string `toml:"label_ext"`
	DataExt     string `toml:"data_ext"`
	CacheExt    string `toml:"cache_ext"`

	LesionPrefix string `toml:"lesion_prefix"`

	ClinicalTable     string `toml:"clinical_table"`
	RadiologicalTable string `toml:"radiological_table"`
	ExtensionTable    string `toml:"extension_table"`

	CaseColumn   string `toml:"case_column"`
	LesionColumn string `toml:"lesion_column"`
	RaterColumn  string `toml:"rater_column"`
}

// DefaultConfig returns the AI4AR layout.
func DefaultConfig() *Config {
	data := []string{"adc", "cor", "hbv", "sag", "t2w", "dce1", "dce2", "dce3", "dce4", "dce5", "dce6"}
	return &Config{
		AnatomicalDir:     "Anatomical_Labels",
		DataDir:           "Data",
		LesionDir:         "Lesion_labels",
		AnatomicalLabels:  []string{"afs", "cz", "pg", "pz", "sv_l", "sv_r", "tz"},
		Modalities:        data,
		LesionModalities:  append([]string(nil), data...),
		LabelSuffix:       "_t2w",
		LabelExt:          ".nii.gz",
		DataExt:           ".mha",
		CacheExt:          ".mha",
		LesionPrefix:      "lesion",
		ClinicalTable:     "clinical.csv",
		RadiologicalTable: "radiological.csv",
		ExtensionTable:    "radiological_ext.csv",
		CaseColumn:        "case_id",
		LesionColumn:      "lesion_id",
		RaterColumn:       "rater_id",
	}
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configs that would produce ambiguous key paths.
func (cfg *Config) Validate() error {
	names := map[string][]string{
		"anatomical_labels": cfg.AnatomicalLabels,
		"modalities":        cfg.Modalities,
		"lesion_modalities": cfg.LesionModalities,
	}
	for field, vocab := range names {
		seen := map[string]bool{}
		for _, name := range vocab {
			if name == "" || strings.Contains(name, Sep) || name == Wildcard {
				return fmt.Errorf("%w: %s entry %q", ErrInvalidArgument, field, name)
			}
			if seen[name] {
				return fmt.Errorf("%w: %s lists %q twice", ErrInvalidArgument, field, name)
			}
			seen[name] = true
		}
	}
	for field, dir := range map[string]string{
		"anatomical_dir": cfg.AnatomicalDir,
		"data_dir":       cfg.DataDir,
		"lesion_dir":     cfg.LesionDir,
	} {
		if dir == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidArgument, field)
		}
	}
	if cfg.CaseColumn == "" || cfg.LesionColumn == "" || cfg.RaterColumn == "" {
		return fmt.Errorf("%w: metadata key columns must be set", ErrInvalidArgument)
	}
	return nil
}
