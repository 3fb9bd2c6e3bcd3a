// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zip reads and writes ZIP archives entirely in memory, using
// internal/deflate instead of compress/flate for the method-8 payload.
// The reader is adapted from the teacher's io/fs.FS-backed implementation:
// getEOCD's bounded backward scan, the ZIP64-locator detection, the
// central-directory walk, localHeaderReader and parseExtra/unicode are
// kept close to the original (they are format-correct, general-purpose
// code); the fskeleton/io.fs.FS output, AppleDouble splicing and
// symlink-target resolution are dropped since this package hands back a
// flat Entry slice rather than mounting a filesystem.
package zip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nullbyte-arc/zipflate/internal/deflate"
	"github.com/nullbyte-arc/zipflate/internal/sectionreader"
	"github.com/nullbyte-arc/zipflate/internal/zerr"
)

var (
	ErrFormat    = errors.New("zip: not a valid zip file")
	ErrAlgorithm = errors.New("zip: unsupported compression algorithm")
	ErrChecksum  = errors.New("zip: checksum error")
	ErrNoSpanned = errors.New("zip: spanned archives not supported")
)

// CompressionMethod identifies how an entry's data is stored on disk.
// A small enum instead of a bare uint16, per this module's sum-types-over-
// unions convention.
type CompressionMethod uint16

const (
	MethodStore   CompressionMethod = 0
	MethodDeflate CompressionMethod = 8
)

func (m CompressionMethod) String() string {
	switch m {
	case MethodStore:
		return "store"
	case MethodDeflate:
		return "deflate"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// FilterFunc lets a caller skip entries before they are decompressed.
type FilterFunc func(name string, compressedSize, uncompressedSize int64, method CompressionMethod) bool

// ReadOptions configures New.
type ReadOptions struct {
	Filter     FilterFunc
	Dictionary []byte // preset dictionary for method-8 entries, rarely used in ZIP
}

// Entry describes one central-directory record. Data is not decompressed
// until Open is called.
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

	dataReader     io.ReaderAt
	baseCorrection int64
	localOffset    int64
	dictionary     []byte
}

// Mode derives a conventional fs.FileMode from the external attributes,
// the way the teacher's msdosModeToFileMode/unixModeToFileMode do, for
// callers that want POSIX-style permission bits without needing an
// io/fs.FS mount.
func (e *Entry) Mode() fs.FileMode {
	switch e.OS {
	case 3, 19: // Unix, Mac OS X
		return unixModeToFileMode(e.Attrs >> 16)
	case 0, 11, 14: // DOS, NTFS, VFAT
		return msdosModeToFileMode(e.Attrs)
	default:
		if strings.HasSuffix(e.Name, "/") {
			return fs.ModeDir | 0o755
		}
		return 0o644
	}
}

// Open decompresses the entry's data on demand and verifies its CRC-32.
func (e *Entry) Open() (io.Reader, error) {
	packed := &localHeaderReader{r: e.dataReader, offset: e.baseCorrection + e.localOffset, size: e.CompressedSize}
	// Section bounds reads to the entry's compressed size. packed is a
	// localHeaderReader, not an io.SectionReader, so Section has no nested
	// section to unwrap here; a caller-supplied io.SectionReader in
	// e.dataReader stays wrapped.
	section := sectionreader.Section(packed, 0, e.CompressedSize)
	raw := make([]byte, e.CompressedSize)
	if n, err := io.ReadFull(io.NewSectionReader(section, 0, e.CompressedSize), raw); int64(n) != e.CompressedSize {
		return nil, fmt.Errorf("zip: reading %q: %w", e.Name, err)
	}

	var data []byte
	switch e.Method {
	case MethodStore:
		data = raw
	case MethodDeflate:
		out, err := deflate.Inflate(raw, deflate.DecodeOptions{
			Out:        make([]byte, 0, e.UncompressedSize),
			Dictionary: e.dictionary,
		})
		if err != nil {
			return nil, fmt.Errorf("zip: inflating %q: %w", e.Name, err)
		}
		data = out
	default:
		return nil, zerr.Named(zerr.UnknownCompressionMethod, e.Name, fmt.Sprintf("method %d", e.Method))
	}

	if int64(len(data)) != e.UncompressedSize {
		return nil, fmt.Errorf("%w: %q", ErrChecksum, e.Name)
	}
	return newChecksumReader(bytes.NewReader(data), e.Name, e.CRC32), nil
}

// Reader is a parsed central directory: the cheap, header-only half of a
// ZIP archive (the teacher's split between "touch the headers" and "open
// the data").
type Reader struct {
	Entries []*Entry
	Comment string
}

// New parses a ZIP archive already resident in memory.
func New(data []byte, opts ReadOptions) (*Reader, error) {
	return NewReaderAt(bytes.NewReader(data), int64(len(data)), opts)
}

// NewReaderAt parses a ZIP archive behind an io.ReaderAt, so callers that
// have their own caching/mmap strategy for the raw bytes do not need to
// materialize the whole archive up front just to read its directory.
func NewReaderAt(r io.ReaderAt, size int64, opts ReadOptions) (*Reader, error) {
	eocd, err := getEOCD(r, size)
	if err != nil {
		return nil, err
	}

	eocdOffset := size - int64(len(eocd))
	thisDisk := uint32(binary.LittleEndian.Uint16(eocd[4:]))
	centralDisk := uint32(binary.LittleEndian.Uint16(eocd[6:]))
	recordsTotal := uint64(binary.LittleEndian.Uint16(eocd[10:]))
	centralSize := int64(binary.LittleEndian.Uint32(eocd[12:]))
	centralOffset := int64(binary.LittleEndian.Uint32(eocd[16:]))
	comment := string(eocd[22:])

	sixtyFour := recordsTotal == 0xffff || centralSize == 0xffffffff || centralOffset == 0xffffffff
	if sixtyFour {
		locator := make([]byte, 20)
		if int64(len(locator)+len(eocd)) > size {
			return nil, ErrFormat
		}
		n, err := r.ReadAt(locator, size-int64(len(eocd))-int64(len(locator)))
		if n < len(locator) {
			return nil, err
		}
		if string(locator[:4]) != "PK\x06\x07" {
			return nil, ErrFormat
		}
		eocd64Disk := binary.LittleEndian.Uint32(locator[4:])
		eocdOffset = int64(binary.LittleEndian.Uint64(locator[8:]))
		totalDisks := binary.LittleEndian.Uint32(locator[16:])
		if eocd64Disk != 0 || totalDisks != 1 {
			return nil, ErrNoSpanned
		}
		eocd64 := make([]byte, 56)
		n, err = r.ReadAt(eocd64, eocdOffset)
		if n < len(eocd64) {
			return nil, err
		}
		if string(eocd64[:4]) != "PK\x06\x06" {
			return nil, ErrFormat
		}
		thisDisk = binary.LittleEndian.Uint32(eocd64[16:])
		centralDisk = binary.LittleEndian.Uint32(eocd64[20:])
		recordsTotal = binary.LittleEndian.Uint64(eocd64[32:])
		centralSize = int64(binary.LittleEndian.Uint64(eocd64[40:]))
		centralOffset = int64(binary.LittleEndian.Uint64(eocd64[48:]))
	}
	if thisDisk != 0 || centralDisk != 0 {
		return nil, ErrNoSpanned
	}

	// Fix zip files carelessly appended to non-zip data, the creating
	// program unaware of the leading garbage.
	baseCorrection := eocdOffset - centralSize - centralOffset

	if centralOffset > eocdOffset {
		return nil, ErrFormat
	}
	dir := make([]byte, eocdOffset-centralOffset)
	n, err := r.ReadAt(dir, baseCorrection+centralOffset)
	if n != len(dir) {
		return nil, err
	}

	zr := &Reader{Comment: comment}

	for len(dir) > 0 {
		if len(dir) < 46 || string(dir[:4]) != "PK\x01\x02" {
			break
		}
		osByte := dir[5]
		flags := binary.LittleEndian.Uint16(dir[8:])
		method := CompressionMethod(binary.LittleEndian.Uint16(dir[10:]))
		dostime := binary.LittleEndian.Uint16(dir[12:])
		dosdate := binary.LittleEndian.Uint16(dir[14:])
		crc32 := binary.LittleEndian.Uint32(dir[16:])
		packed := int64(binary.LittleEndian.Uint32(dir[20:]))
		unpacked := int64(binary.LittleEndian.Uint32(dir[24:]))
		namelen := int(binary.LittleEndian.Uint16(dir[28:]))
		extralen := int(binary.LittleEndian.Uint16(dir[30:]))
		commentlen := int(binary.LittleEndian.Uint16(dir[32:]))
		attrs := binary.LittleEndian.Uint32(dir[38:])
		loc := int64(binary.LittleEndian.Uint32(dir[42:]))
		if len(dir) < 46+namelen+extralen+commentlen {
			break
		}
		dir = dir[46:]
		name := string(dir[:namelen])
		dir = dir[namelen:]
		extraRaw := append([]byte(nil), dir[:extralen]...)
		extra := parseExtra(extraRaw)
		dir = dir[extralen:]
		entComment := string(dir[:commentlen])
		dir = dir[commentlen:]

		if nx, ok := extra[0x7055]; ok && len(nx) >= 6 && nx[0] == 1 {
			name = string(nx[5:])
		} else if flags&0x0800 == 0 {
			name = latin1ToUTF8(name)
		}
		name = unicode(name)

		mtime := msDosTimeToTime(dosdate, dostime)
		for _, k := range slices.Sorted(maps.Keys(extra)) {
			if t := timeFromExtraField(k, extra[k]); !t.IsZero() {
				mtime = t
			}
		}

		if sixtyFour {
			fields := extra[1]
			for _, shortField := range []*int64{&unpacked, &packed, &loc} {
				if *shortField == 0xffffffff && len(fields) >= 8 {
					*shortField = int64(binary.LittleEndian.Uint64(fields))
					fields = fields[8:]
				}
			}
		}

		zr.Entries = append(zr.Entries, &Entry{
			Name:             name,
			Comment:          entComment,
			MTime:            mtime,
			Method:           method,
			CompressedSize:   packed,
			UncompressedSize: unpacked,
			CRC32:            crc32,
			Attrs:            attrs,
			OS:               osByte,
			Extra:            extraRaw,

			dataReader:     r,
			baseCorrection: baseCorrection,
			localOffset:    loc,
			dictionary:     opts.Dictionary,
		})
	}

	if opts.Filter != nil {
		filtered := zr.Entries[:0]
		for _, e := range zr.Entries {
			if opts.Filter(e.Name, e.CompressedSize, e.UncompressedSize, e.Method) {
				filtered = append(filtered, e)
			}
		}
		zr.Entries = filtered
	}

	return zr, nil
}

// localHeaderReader presents the file-data portion of a local header entry
// (skipping past the local header, name and extra fields) as an io.ReaderAt,
// lazily discovering the real data offset on first read since the local
// header's field lengths can differ from the central directory's.
type localHeaderReader struct {
	r      io.ReaderAt
	offset int64
	size   int64
	once   sync.Once
	err    error
}

func (g *localHeaderReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.ErrInvalid
	}
	if off >= g.size {
		return 0, io.EOF
	}

	g.once.Do(func() {
		buf := make([]byte, 30)
		n, err := g.r.ReadAt(buf, g.offset)
		if n < len(buf) {
			g.err = err
			return
		}
		if string(buf[:4]) != "PK\x03\x04" {
			g.err = errors.New("corrupt/absent local file header")
			return
		}
		g.offset += 30 +
			int64(binary.LittleEndian.Uint16(buf[26:])) +
			int64(binary.LittleEndian.Uint16(buf[28:]))
	})

	if g.err != nil {
		return 0, g.err
	}

	tooLong := false
	if off+int64(len(p)) > g.size {
		p = p[:g.size-off]
		tooLong = true
	}

	n, err := g.r.ReadAt(p, g.offset+off)
	if err == nil && tooLong {
		err = io.EOF
	}
	return n, err
}

// unicode returns s unchanged unless it contains a U+FFFD rune (as left by
// invalid UTF-8); in that case every non-ASCII byte and every '%' is
// percent-escaped, rather than silently mangling the name, matching the
// teacher's defensive decoding.
func unicode(s string) string {
	for _, r := range s {
		if r == 0xfffd {
			goto bad
		}
	}
	return s
bad:
	var b strings.Builder
	for _, c := range []byte(s) {
		if c < 128 && c != '%' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02x", c)
		}
	}
	return b.String()
}

// latin1ToUTF8 decodes a name stored without the UTF-8 general-purpose bit
// set, per spec: "otherwise Latin-1".
func latin1ToUTF8(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range []byte(s) {
		b.WriteRune(rune(c))
	}
	return b.String()
}

func parseExtra(x []byte) map[int][]byte {
	ret := make(map[int][]byte)
	for len(x) >= 4 {
		kind := int(binary.LittleEndian.Uint16(x))
		size := int(binary.LittleEndian.Uint16(x[2:]))
		if len(x) < 4+size {
			break
		}
		ret[kind] = x[4:][:size]
		x = x[4+size:]
	}
	return ret
}

// getEOCD reads the End of Central Directory record.
//
// To avoid cache pollution, no bytes outside the EOCD are read, but for
// speed, the largest chunks possible are read (up to 22+65535 bytes).
func getEOCD(r io.ReaderAt, size int64) ([]byte, error) {
	if size < 22 {
		return nil, ErrFormat
	}
	cmtMax, haveData := int(min(65535, size-22)), 0
	data := make([]byte, 22+cmtMax)

	getData := func(min, max int) error {
		if min <= haveData {
			return nil
		}
		if max > len(data) {
			return ErrFormat
		}
		n, err := r.ReadAt(data[len(data)-max:len(data)-haveData], size-int64(max))
		haveData += n
		if haveData != max {
			return err
		}
		return nil
	}
	atNegOffset := func(offset int) byte { return data[len(data)-1-offset] }

	for cmtSize := 0; cmtSize <= cmtMax; cmtSize++ {
		if err := getData(cmtSize+2, cmtSize+22); err != nil {
			return nil, err
		}
		if cmtSize > 0 {
			ch := atNegOffset(cmtSize - 1)
			if ch < 32 && ch != '\t' && ch != '\n' && ch != '\r' {
				return nil, ErrFormat
			}
		}
		if atNegOffset(cmtSize) != byte(cmtSize>>8) ||
			atNegOffset(cmtSize+1) != byte(cmtSize) {
			continue
		}
		if err := getData(cmtSize+22, cmtSize+22); err != nil {
			return nil, err
		}
		if atNegOffset(cmtSize+21) == 'P' &&
			atNegOffset(cmtSize+20) == 'K' &&
			atNegOffset(cmtSize+19) == 5 &&
			atNegOffset(cmtSize+18) == 6 {
			return data[len(data)-haveData:], nil
		}
	}
	return nil, ErrFormat
}

const (
	s_IFMT   = 0xf000
	s_IFSOCK = 0xc000
	s_IFLNK  = 0xa000
	s_IFREG  = 0x8000
	s_IFBLK  = 0x6000
	s_IFDIR  = 0x4000
	s_IFCHR  = 0x2000
	s_IFIFO  = 0x1000
	s_ISUID  = 0x800
	s_ISGID  = 0x400
	s_ISVTX  = 0x200

	msdosDir      = 0x10
	msdosReadOnly = 0x01
)

func msdosModeToFileMode(m uint32) (mode fs.FileMode) {
	if m&msdosDir != 0 {
		mode = fs.ModeDir | 0777
	} else {
		mode = 0666
	}
	if m&msdosReadOnly != 0 {
		mode &^= 0222
	}
	return mode
}

func unixModeToFileMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0777)
	switch m & s_IFMT {
	case s_IFBLK:
		mode |= fs.ModeDevice
	case s_IFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case s_IFDIR:
		mode |= fs.ModeDir
	case s_IFIFO:
		mode |= fs.ModeNamedPipe
	case s_IFLNK:
		mode |= fs.ModeSymlink
	case s_IFREG:
	case s_IFSOCK:
		mode |= fs.ModeSocket
	}
	if m&s_ISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&s_ISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&s_ISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}
