// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zipflate

import (
	"io"
	"time"
	"unsafe"

	"github.com/nullbyte-arc/zipflate/internal/deflate"
	"github.com/nullbyte-arc/zipflate/internal/zerr"
	"github.com/nullbyte-arc/zipflate/internal/zip"
	"github.com/nullbyte-arc/zipflate/internal/zipcache"
	"github.com/nullbyte-arc/zipflate/internal/ziptree"
)

// CompressionMethod identifies how an archive member's bytes are stored.
type CompressionMethod = zip.CompressionMethod

const (
	MethodStore   = zip.MethodStore
	MethodDeflate = zip.MethodDeflate
)

// NodeOptions carries per-node metadata: compression choice, mtime,
// comment, extra field bytes, and the OS/attrs pair used for the
// external-attributes field, mirroring ziptree.Options at the public
// surface.
type NodeOptions struct {
	// Compression is "store" or "deflate"; empty inherits the parent's
	// (or the global ZipOptions') choice.
	Compression string
	MTime       time.Time
	Comment     string
	Extra       []byte
	OS          byte
	Attrs       uint32
}

// Node is one element of a tree to be laid out as a ZIP archive: either a
// file leaf (Bytes non-nil) or a directory (Children non-nil).
type Node struct {
	Bytes    []byte
	Children []Child
	Options  NodeOptions
}

// Child pairs a path component with its subtree, preserving the sibling
// order the caller declared it in.
type Child struct {
	Name string
	Node *Node
}

func toInternalOptions(o NodeOptions) ziptree.Options {
	return ziptree.Options{
		Compression: o.Compression,
		MTimeSet:    !o.MTime.IsZero(),
		MTimeUnix:   o.MTime.Unix(),
		Comment:     o.Comment,
		Extra:       o.Extra,
		OS:          o.OS,
		Attrs:       o.Attrs,
	}
}

func toInternalNode(n *Node) *ziptree.Node {
	if n == nil {
		return nil
	}
	out := &ziptree.Node{Bytes: n.Bytes, Options: toInternalOptions(n.Options)}
	if n.Children != nil {
		out.Children = make([]ziptree.Child, 0, len(n.Children))
		for _, c := range n.Children {
			out.Children = append(out.Children, ziptree.Child{Name: c.Name, Node: toInternalNode(c.Node)})
		}
	}
	return out
}

// ZipOptions configures Zip.
type ZipOptions struct {
	// Level and Mem apply to every deflated entry, the same resolution
	// rules as DeflateOptions.
	Level int
	Mem   int
	// Compression is the default per-entry choice ("store" or
	// "deflate") when a node leaves NodeOptions.Compression empty.
	// Defaults to "deflate".
	Compression string
	Comment     string
	MTime       time.Time
}

// Zip lays out root as an in-memory ZIP archive.
func Zip(root *Node, opts ZipOptions) ([]byte, error) {
	global := ziptree.Options{Compression: opts.Compression}
	if global.Compression == "" {
		global.Compression = "deflate"
	}
	if !opts.MTime.IsZero() {
		global.MTimeSet = true
		global.MTimeUnix = opts.MTime.Unix()
	}

	entries, err := ziptree.Flatten(toInternalNode(root), global)
	if err != nil {
		return nil, err
	}

	writeEntries := make([]zip.WriteEntry, len(entries))
	for i, e := range entries {
		we := zip.WriteEntry{
			Name:    e.Path,
			Comment: e.Options.Comment,
			Extra:   e.Options.Extra,
			OS:      e.Options.OS,
			Attrs:   e.Options.Attrs,
		}
		if e.Options.MTimeSet {
			we.MTime = time.Unix(e.Options.MTimeUnix, 0).UTC()
		} else {
			we.MTime = time.Now().UTC()
		}

		if e.IsDir {
			we.Method = zip.MethodStore
			writeEntries[i] = we
			continue
		}

		we.UncompressedSize = int64(len(e.Bytes))
		we.CRC32 = CRC32(e.Bytes)

		switch e.Options.Compression {
		case "store":
			we.Method = zip.MethodStore
			we.Data = e.Bytes
		default:
			we.Method = zip.MethodDeflate
			we.Data = deflate.Deflate(e.Bytes, deflate.EncodeOptions{
				Level: resolveLevel(opts.Level),
				Mem:   resolveMem(opts.Mem, len(e.Bytes)),
			})
		}
		writeEntries[i] = we
	}

	return zip.Write(writeEntries, zip.WriteOptions{Comment: opts.Comment})
}

// GlobFilter builds a FilterFunc (for UnzipOptions.Filter) that admits only
// entries whose name matches one of patterns, using the same doublestar
// glob syntax as ziptree.FilterGlob. Patterns are validated immediately so
// a bad pattern fails at setup instead of silently excluding every entry.
func GlobFilter(patterns []string) (FilterFunc, error) {
	if _, err := ziptree.FilterGlob(nil, patterns); err != nil {
		return nil, err
	}
	return func(name string, _, _ int64, _ CompressionMethod) bool {
		entries, _ := ziptree.FilterGlob([]ziptree.Entry{{Path: name}}, patterns)
		return len(entries) == 1
	}, nil
}

// FilterFunc lets a caller skip archive members before they are
// decompressed, e.g. via GlobFilter.
type FilterFunc = zip.FilterFunc

// UnzipOptions configures Unzip.
type UnzipOptions struct {
	Filter     FilterFunc
	Dictionary []byte
	// Cache, if non-nil, memoizes decompressed entry bytes across
	// repeated Entry.Open calls on entries from the same Reader.
	Cache *zipcache.Cache
}

// Entry is one archive member. Use Open to obtain its decompressed bytes.
type Entry struct {
	Name             string
	Comment          string
	MTime            time.Time
	Method           CompressionMethod
	CompressedSize   int64
	UncompressedSize int64
	CRC32            uint32
	Attrs            uint32
	OS               byte
	Extra            []byte

	inner   *zip.Entry
	cache   *zipcache.Cache
	cacheID zipcache.Key
}

// Open decompresses the entry and verifies its CRC-32. If the Reader was
// opened with a Cache, repeated calls reuse the cached decompressed bytes
// instead of re-inflating.
func (e *Entry) Open() (io.Reader, error) {
	if e.cache != nil {
		if data, ok := e.cache.Get(e.cacheID); ok {
			return newBytesReader(data), nil
		}
	}

	r, err := e.inner.Open()
	if err != nil {
		return nil, err
	}

	if e.cache == nil {
		return r, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	e.cache.Add(e.cacheID, data)
	return newBytesReader(data), nil
}

type bytesReader struct {
	data []byte
	pos  int
}

func newBytesReader(data []byte) *bytesReader { return &bytesReader{data: data} }

func (b *bytesReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

// Reader is a parsed ZIP central directory.
type Reader struct {
	Entries []*Entry
	Comment string
}

// Unzip parses an in-memory ZIP archive. The returned Reader's entries
// decompress lazily via Entry.Open.
func Unzip(data []byte, opts UnzipOptions) (*Reader, error) {
	inner, err := zip.New(data, zip.ReadOptions{Filter: opts.Filter, Dictionary: opts.Dictionary})
	if err != nil {
		if ze, ok := zerr.As(err); ok {
			return nil, ze
		}
		return nil, zerr.Wrap(zerr.InvalidZipData, "parsing zip", err)
	}

	var archiveID uintptr
	if len(data) > 0 {
		archiveID = uintptr(unsafe.Pointer(&data[0]))
	}

	out := &Reader{Comment: inner.Comment}
	for i, ie := range inner.Entries {
		out.Entries = append(out.Entries, &Entry{
			Name:             ie.Name,
			Comment:          ie.Comment,
			MTime:            ie.MTime,
			Method:           ie.Method,
			CompressedSize:   ie.CompressedSize,
			UncompressedSize: ie.UncompressedSize,
			CRC32:            ie.CRC32,
			Attrs:            ie.Attrs,
			OS:               ie.OS,
			Extra:            ie.Extra,

			inner:   ie,
			cache:   opts.Cache,
			cacheID: zipcache.Key{Archive: archiveID, Index: i},
		})
	}
	return out, nil
}
