package ai4ar

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrImmutable       = errors.New("tree is read-only")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("already exists")
	ErrNoSourceImages  = errors.New("no source images")
	ErrShapeMismatch   = errors.New("shape mismatch")
)

// KeyError reports a failed operation on a key path.
type KeyError struct {
	Op   string
	Path KeyPath
	Err  error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// ExistsError is returned when a write-once file is already present.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("refusing to overwrite: %s", e.Path)
}

func (e *ExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}
