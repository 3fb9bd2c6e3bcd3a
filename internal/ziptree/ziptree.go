// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package ziptree flattens a nested directory tree (files, subtrees, and
// per-node options) into an ordered sequence of archive entries. Reshaped
// from the teacher's internal/fskeleton.Make, which builds a flat
// parent-id-linked file list from a similarly nested description; here the
// tree is built directly as ordered parent/child structs rather than
// fskeleton's two-pass map-of-IDs, since the caller constructs the whole
// tree up front instead of handing us pre-flattened records.
package ziptree

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/nullbyte-arc/zipflate/internal/zerr"
)

// Options are the effective per-entry options after merging global and
// per-node overrides, per spec.md section 4.7.
type Options struct {
	Compression string
	MTimeSet    bool
	MTimeUnix   int64
	Comment     string
	Extra       []byte
	OS          byte
	Attrs       uint32
}

// Node is one element of the input tree: either a file leaf (Bytes
// non-nil) or an interior directory (Children non-nil). Children is an
// ordered list, not a map, so sibling order is preserved exactly as the
// caller built it rather than falling back to map iteration order.
type Node struct {
	Bytes    []byte
	Children []Child
	Options  Options
}

// Child pairs a path component with its subtree.
type Child struct {
	Name string
	Node *Node
}

// Entry is one flattened, path-resolved member of the archive.
type Entry struct {
	Path    string
	IsDir   bool
	Bytes   []byte
	Options Options
}

// Flatten walks root (the tree's root directory) and returns entries in
// sibling-preserving order.
func Flatten(root *Node, global Options) ([]Entry, error) {
	f := &flattener{
		seen:    make(map[uint64]string),
		dirSeen: make(map[string]bool),
	}
	if root == nil {
		root = &Node{Children: []Child{}}
	}
	if err := f.walk("", root, global); err != nil {
		return nil, err
	}
	return f.out, nil
}

type flattener struct {
	out     []Entry
	seen    map[uint64]string // path hash -> path, for file duplicate detection
	dirSeen map[string]bool
}

func (f *flattener) walk(prefix string, n *Node, parentOpts Options) error {
	opts := mergeOptions(parentOpts, n.Options)

	if n.Children != nil {
		if prefix != "" {
			if err := f.emitDir(prefix, opts); err != nil {
				return err
			}
		}
		for _, child := range n.Children {
			if err := validateComponent(child.Name); err != nil {
				return err
			}
			// A component containing "/" synthesizes intermediate directories.
			parts := strings.Split(child.Name, "/")
			walkPrefix := prefix
			for i := 0; i < len(parts)-1; i++ {
				walkPrefix = joinPath(walkPrefix, parts[i])
				if !f.dirSeen[walkPrefix+"/"] {
					if err := f.emitDir(walkPrefix, opts); err != nil {
						return err
					}
				}
			}
			childPath := joinPath(prefix, child.Name)
			if err := f.walk(childPath, child.Node, opts); err != nil {
				return err
			}
		}
		return nil
	}

	return f.emitFile(prefix, n.Bytes, opts)
}

func (f *flattener) emitDir(p string, opts Options) error {
	dirPath := p + "/"
	if f.dirSeen[dirPath] {
		return nil // idempotent, per spec.md section 4.7
	}
	f.dirSeen[dirPath] = true
	f.out = append(f.out, Entry{Path: dirPath, IsDir: true, Options: opts})
	return nil
}

func (f *flattener) emitFile(p string, data []byte, opts Options) error {
	h := xxhash.Sum64String(p)
	if prior, ok := f.seen[h]; ok && prior == p {
		return zerr.Named(zerr.InvalidZipData, p, "duplicate path in tree")
	}
	f.seen[h] = p
	f.out = append(f.out, Entry{Path: p, Bytes: data, Options: opts})
	return nil
}

func mergeOptions(global, override Options) Options {
	merged := global
	if override.Compression != "" {
		merged.Compression = override.Compression
	}
	if override.MTimeSet {
		merged.MTimeUnix = override.MTimeUnix
		merged.MTimeSet = true
	}
	if override.Comment != "" {
		merged.Comment = override.Comment
	}
	if override.Extra != nil {
		merged.Extra = override.Extra
	}
	if override.OS != 0 {
		merged.OS = override.OS
	}
	if override.Attrs != 0 {
		merged.Attrs = override.Attrs
	}
	return merged
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func validateComponent(name string) error {
	if name == "" || name == "." || name == ".." {
		return zerr.Named(zerr.InvalidZipData, name, "invalid path component")
	}
	return nil
}

// FilterGlob prunes entries whose path does not match any of patterns,
// grounded on the teacher's use of doublestar for glob matching in path.go.
func FilterGlob(entries []Entry, patterns []string) ([]Entry, error) {
	if len(patterns) == 0 {
		return entries, nil
	}
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return nil, zerr.Named(zerr.InvalidZipData, pat, "bad glob pattern")
		}
	}
	var out []Entry
	for _, e := range entries {
		matched := false
		for _, pat := range patterns {
			ok, err := doublestar.Match(pat, strings.TrimSuffix(e.Path, "/"))
			if err != nil {
				return nil, zerr.Wrap(zerr.InvalidZipData, "bad glob pattern", err)
			}
			if ok {
				matched = true
				break
			}
		}
		if matched {
			out = append(out, e)
		}
	}
	return out, nil
}
