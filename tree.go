package ai4ar

import (
	"strings"
	"sync"

	"github.com/benbjohnson/immutable"
	log "github.com/sirupsen/logrus"
)

// node is a branch (children != nil) or a leaf (image != nil).
type node struct {
	children *immutable.SortedMap[string, *node]
	image    *Image
}

type segComparer struct{}

func (segComparer) Compare(a, b string) int { return strings.Compare(a, b) }

func newBranch() *node {
	return &node{children: immutable.NewSortedMap[string, *node](segComparer{})}
}

func (n *node) leaf() bool { return n.children == nil }

// Entry is one leaf returned by Match.
type Entry struct {
	Path  KeyPath
	Image *Image
}

// Tree maps key paths to images.  Branches are persistent sorted maps,
// so every write swaps in a new root and readers always see a
// consistent snapshot.  Only the handle returned by NewTree may write;
// handles from View fail writes with ErrImmutable.
type Tree struct {
	root     *treeRoot
	writable bool
}

type treeRoot struct {
	mu   sync.RWMutex
	node *node
}

func NewTree() *Tree {
	return &Tree{root: &treeRoot{node: newBranch()}, writable: true}
}

// View returns a read-only handle onto the same tree.
func (t *Tree) View() *Tree {
	return &Tree{root: t.root}
}

func (t *Tree) snapshot() *node {
	t.root.mu.RLock()
	defer t.root.mu.RUnlock()
	return t.root.node
}

// Get returns the image at p.
func (t *Tree) Get(p KeyPath) (*Image, error) {
	n := find(t.snapshot(), p.Segments())
	if n == nil || !n.leaf() {
		return nil, &KeyError{Op: "get", Path: p, Err: ErrNotFound}
	}
	return n.image, nil
}

// Contains reports whether a leaf exists at p.
func (t *Tree) Contains(p KeyPath) bool {
	n := find(t.snapshot(), p.Segments())
	return n != nil && n.leaf()
}

// IsBranch reports whether p addresses an interior node.
func (t *Tree) IsBranch(p KeyPath) bool {
	n := find(t.snapshot(), p.Segments())
	return n != nil && !n.leaf()
}

func find(n *node, segs []string) *node {
	for _, seg := range segs {
		if n.leaf() {
			return nil
		}
		child, ok := n.children.Get(seg)
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

// Match returns every leaf whose path matches pattern, in
// segment-wise lexicographic order of path.
func (t *Tree) Match(pattern KeyPath) (entries []Entry) {
	match(t.snapshot(), nil, pattern.Segments(), &entries)
	return
}

func match(n *node, prefix, pats []string, out *[]Entry) {
	if len(pats) == 0 {
		if n.leaf() {
			*out = append(*out, Entry{Path: Join(prefix...), Image: n.image})
		}
		return
	}
	if n.leaf() {
		return
	}
	pat := pats[0]
	if pat != Wildcard {
		child, ok := n.children.Get(pat)
		if ok {
			match(child, append(prefix, pat), pats[1:], out)
		}
		return
	}
	itr := n.children.Iterator()
	for !itr.Done() {
		seg, child, _ := itr.Next()
		match(child, append(prefix, seg), pats[1:], out)
	}
}

// Walk calls fn for every leaf in path order, stopping at the first
// error.
func (t *Tree) Walk(fn func(p KeyPath, img *Image) error) error {
	return walk(t.snapshot(), nil, fn)
}

func walk(n *node, prefix []string, fn func(KeyPath, *Image) error) error {
	if n.leaf() {
		return fn(Join(prefix...), n.image)
	}
	itr := n.children.Iterator()
	for !itr.Done() {
		seg, child, _ := itr.Next()
		// copy so sibling recursion can't share a backing array
		sub := append(append([]string(nil), prefix...), seg)
		err := walk(child, sub, fn)
		if err != nil {
			return err
		}
	}
	return nil
}

// Keys returns every leaf path in path order.
func (t *Tree) Keys() (keys []KeyPath) {
	t.Walk(func(p KeyPath, _ *Image) error {
		keys = append(keys, p)
		return nil
	})
	return
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.Keys())
}

// Insert adds img as a new leaf at p.  An existing leaf is never
// replaced.
func (t *Tree) Insert(p KeyPath, img *Image) error {
	if !t.writable {
		return &KeyError{Op: "insert", Path: p, Err: ErrImmutable}
	}
	err := p.Validate()
	if err != nil {
		return err
	}
	if img == nil {
		return &KeyError{Op: "insert", Path: p, Err: ErrInvalidArgument}
	}
	segs := p.Segments()
	t.root.mu.Lock()
	defer t.root.mu.Unlock()
	root, err := insert(t.root.node, segs, img)
	if err != nil {
		return &KeyError{Op: "insert", Path: p, Err: err}
	}
	t.root.node = root
	log.Debugf("tree insert %s (%s)", p, img.Kind())
	return nil
}

func insert(n *node, segs []string, img *Image) (*node, error) {
	if n.leaf() {
		// path runs through an existing leaf
		return nil, ErrInvalidArgument
	}
	child, ok := n.children.Get(segs[0])
	if len(segs) == 1 {
		if ok && child.leaf() {
			return nil, ErrAlreadyExists
		}
		if ok {
			return nil, ErrInvalidArgument
		}
		return &node{children: n.children.Set(segs[0], &node{image: img})}, nil
	}
	if !ok {
		child = newBranch()
	}
	sub, err := insert(child, segs[1:], img)
	if err != nil {
		return nil, err
	}
	return &node{children: n.children.Set(segs[0], sub)}, nil
}

// Remove deletes the leaf at p and prunes branches left empty.
func (t *Tree) Remove(p KeyPath) error {
	if !t.writable {
		return &KeyError{Op: "remove", Path: p, Err: ErrImmutable}
	}
	t.root.mu.Lock()
	defer t.root.mu.Unlock()
	root, err := remove(t.root.node, p.Segments())
	if err != nil {
		return &KeyError{Op: "remove", Path: p, Err: err}
	}
	if root == nil {
		root = newBranch()
	}
	t.root.node = root
	return nil
}

func remove(n *node, segs []string) (*node, error) {
	if len(segs) == 0 {
		if !n.leaf() {
			return nil, ErrNotFound
		}
		return nil, nil
	}
	if n.leaf() {
		return nil, ErrNotFound
	}
	child, ok := n.children.Get(segs[0])
	if !ok {
		return nil, ErrNotFound
	}
	sub, err := remove(child, segs[1:])
	if err != nil {
		return nil, err
	}
	var children *immutable.SortedMap[string, *node]
	if sub == nil {
		children = n.children.Delete(segs[0])
	} else {
		children = n.children.Set(segs[0], sub)
	}
	if children.Len() == 0 {
		return nil, nil
	}
	return &node{children: children}, nil
}
