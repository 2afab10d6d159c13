package ai4ar

import (
	"fmt"
	"strings"
)

// Sep separates key path segments.
const Sep = "/"

// Wildcard matches exactly one key path segment in a pattern.
const Wildcard = "*"

// CombinedPrefix is the first segment of every combined key path.
const CombinedPrefix = "combined"

// KeyPath addresses one node in a case tree.  It is a plain string so
// it can be used as a map key; build one with ParseKeyPath or Join.
type KeyPath string

// ParseKeyPath cleans leading and trailing separators from raw and
// rejects empty, "." and ".." segments as well as wildcards.
func ParseKeyPath(raw string) (KeyPath, error) {
	return parse(raw, false)
}

// ParsePattern is ParseKeyPath allowing Wildcard segments.
func ParsePattern(raw string) (KeyPath, error) {
	return parse(raw, true)
}

func parse(raw string, wild bool) (KeyPath, error) {
	p := KeyPath(strings.Trim(raw, Sep))
	err := p.check(wild)
	if err != nil {
		return "", &KeyError{Op: "parse", Path: KeyPath(raw), Err: err}
	}
	return p, nil
}

// Validate reports whether p is a well-formed literal key path, i.e.
// one ParseKeyPath would return unchanged.
func (p KeyPath) Validate() error {
	err := p.check(false)
	if err != nil {
		return &KeyError{Op: "validate", Path: p, Err: err}
	}
	return nil
}

func (p KeyPath) check(wild bool) error {
	if p == "" {
		return fmt.Errorf("%w: empty key path", ErrInvalidArgument)
	}
	for _, seg := range strings.Split(string(p), Sep) {
		switch {
		case seg == "", seg == ".", seg == "..":
			return fmt.Errorf("%w: bad segment %q", ErrInvalidArgument, seg)
		case seg == Wildcard && !wild:
			return fmt.Errorf("%w: wildcard in literal key path", ErrInvalidArgument)
		}
	}
	return nil
}

// Join builds a key path from segments.  Segments containing the
// separator contribute all of their parts.
func Join(segs ...string) KeyPath {
	var parts []string
	for _, seg := range segs {
		seg = strings.Trim(seg, Sep)
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return KeyPath(strings.Join(parts, Sep))
}

func (p KeyPath) String() string { return string(p) }

func (p KeyPath) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), Sep)
}

// Parent drops the last segment.
func (p KeyPath) Parent() KeyPath {
	i := strings.LastIndex(string(p), Sep)
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Base returns the last segment.
func (p KeyPath) Base() string {
	i := strings.LastIndex(string(p), Sep)
	return string(p[i+1:])
}

// Child appends segments to p.
func (p KeyPath) Child(segs ...string) KeyPath {
	return Join(append([]string{string(p)}, segs...)...)
}

// Combined returns the key path under which the consensus of p's
// children is registered.
func (p KeyPath) Combined() KeyPath {
	return Join(CombinedPrefix, string(p))
}

// IsCombined reports whether p lives under the combined prefix.
func (p KeyPath) IsCombined() bool {
	return strings.HasPrefix(string(p), CombinedPrefix+Sep)
}

// Match reports whether p matches pattern segment for segment.
func (p KeyPath) Match(pattern KeyPath) bool {
	segs := p.Segments()
	pats := pattern.Segments()
	if len(segs) != len(pats) {
		return false
	}
	for i, pat := range pats {
		if pat != Wildcard && pat != segs[i] {
			return false
		}
	}
	return true
}
