package ai4ar

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// file modes
const (
	READ  = 0444
	WRITE = 0644
	DIR   = 0755
)

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// writeOnce streams fill into a temp file next to target and then
// hard-links it into place.  The link refuses to clobber, so racing
// writers see exactly one winner and readers never observe a partial
// file.  The published file is read-only.
func writeOnce(target string, fill func(w io.Writer) error) (err error) {
	defer Return(&err)

	if exists(target) {
		return &ExistsError{Path: target}
	}

	dir := filepath.Dir(target)
	err = os.MkdirAll(dir, DIR)
	Ck(err)

	// temp file must live in dir so the link stays on one filesystem
	fh, err := renameio.TempFile(dir, target)
	Ck(err)
	defer fh.Cleanup()

	err = fill(fh)
	if err != nil {
		return errors.Wrapf(err, "encode %s", target)
	}
	err = fh.Sync()
	Ck(err)
	err = fh.Chmod(READ)
	Ck(err)

	err = os.Link(fh.Name(), target)
	if os.IsExist(err) {
		return &ExistsError{Path: target}
	}
	Ck(err)

	log.Debugf("writeOnce published %s", target)
	return
}

// readFile opens path and hands the open file to fn.
func readFile(path string, fn func(r io.Reader) error) (err error) {
	fh, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer fh.Close()
	return fn(fh)
}
