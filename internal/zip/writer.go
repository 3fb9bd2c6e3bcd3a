// Copyright Elliot Nunn. Portions copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// New code (the teacher has no ZIP writer). The header field layout,
// countWriter offset tracking and the little-endian writeBuf helper are
// grounded on the apk-editor zip writer (editor/zip/writer.go); unlike
// that streaming writer this one runs a sizing pass first and writes
// into a single preallocated buffer, since this module's ZIP writer
// never sees an archive it cannot hold in memory. ZIP64 sentinel values
// and field layout cross-checked against the zip64_compat reference.
package zip

import (
	"encoding/binary"
	"time"

	"github.com/nullbyte-arc/zipflate/internal/zerr"
)

const (
	fileHeaderSignature      = 0x04034b50
	centralHeaderSignature   = 0x02014b50
	eocdSignature            = 0x06054b50
	zip64EocdSignature       = 0x06064b50
	zip64LocatorSignature    = 0x07064b50
	zip64ExtraID             = 1
	versionNeeded            = 20
	versionNeededZip64       = 45
	uint32max                = 0xffffffff
	uint16max                = 0xffff
	utf8FlagBit              = 0x0800
	localHeaderFixedLen      = 30
	centralHeaderFixedLen    = 46
	zip64EocdFixedLen        = 56
	zip64LocatorFixedLen     = 20
)

// WriteEntry is one archive member to be laid out by Write. Data is the
// already-resolved payload bytes: raw for MethodStore, DEFLATE-compressed
// for MethodDeflate. The caller (the public zipflate package) owns
// compression method resolution and invoking internal/deflate; this
// package only knows binary layout.
type WriteEntry struct {
	Name             string
	Data             []byte
	Method           CompressionMethod
	CRC32            uint32
	UncompressedSize int64
	MTime            time.Time
	Comment          string
	Extra            []byte
	OS               byte
	Attrs            uint32
}

// WriteOptions configures Write.
type WriteOptions struct {
	Comment string
}

type writeBuf []byte

func (b *writeBuf) u16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *writeBuf) u32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

func (b *writeBuf) u64(v uint64) {
	binary.LittleEndian.PutUint64(*b, v)
	*b = (*b)[8:]
}

func (b *writeBuf) bytes(p []byte) {
	copy(*b, p)
	*b = (*b)[len(p):]
}

type laidOutEntry struct {
	WriteEntry
	localExtra   []byte // entry.Extra plus a zip64 block if needed
	centralExtra []byte
	offset       int64
}

// Write assembles an in-memory ZIP archive per the PKWARE APPNOTE layout:
// local headers + data, then central directory, then EOCD (and ZIP64
// EOCD + locator if triggered). A sizing pass computes the exact output
// length so the buffer is allocated once and filled in place.
func Write(entries []WriteEntry, opts WriteOptions) ([]byte, error) {
	laid := make([]laidOutEntry, len(entries))
	var offset int64

	for i, e := range entries {
		if len(e.Name) > uint16max {
			return nil, zerr.Named(zerr.FilenameTooLong, e.Name, "encoded name exceeds 65535 bytes")
		}
		if len(e.Extra) > uint16max {
			return nil, zerr.Named(zerr.ExtraFieldTooLong, e.Name, "extra field exceeds 65535 bytes")
		}
		if _, _, err := timeToMsDos(e.MTime); err != nil {
			return nil, zerr.Named(zerr.InvalidDate, e.Name, err.Error())
		}

		l := laidOutEntry{WriteEntry: e, offset: offset}

		needsLocalZip64 := e.UncompressedSize >= uint32max || int64(len(e.Data)) >= uint32max
		l.localExtra = append(append([]byte(nil), e.Extra...), zip64Block(needsLocalZip64, e.UncompressedSize, int64(len(e.Data)), -1)...)

		localLen := int64(localHeaderFixedLen + len(e.Name) + len(l.localExtra) + len(e.Data))
		offset += localLen

		laid[i] = l
	}

	// Central directory pass: offsets are now all known.
	var centralSize int64
	for i := range laid {
		l := &laid[i]
		needsCentralZip64 := l.UncompressedSize >= uint32max || int64(len(l.Data)) >= uint32max || l.offset >= uint32max
		l.centralExtra = append(append([]byte(nil), l.Extra...), zip64Block(needsCentralZip64, l.UncompressedSize, int64(len(l.Data)), l.offset)...)
		centralSize += int64(centralHeaderFixedLen + len(l.Name) + len(l.centralExtra) + len(l.Comment))
	}

	centralOffset := offset
	needsZip64Eocd := len(laid) > uint16max || centralSize >= uint32max || centralOffset >= uint32max

	total := offset + centralSize + 22 + int64(len(opts.Comment))
	if needsZip64Eocd {
		total += zip64EocdFixedLen + zip64LocatorFixedLen
	}

	out := make([]byte, total)
	w := writeBuf(out)

	for i := range laid {
		l := &laid[i]
		writeLocalHeader(&w, l)
	}
	for i := range laid {
		l := &laid[i]
		writeCentralHeader(&w, l)
	}

	records := uint64(len(laid))
	eocdCentralSize := uint64(centralSize)
	eocdCentralOffset := uint64(centralOffset)

	if needsZip64Eocd {
		zip64EocdOffset := centralOffset + centralSize
		w.u32(zip64EocdSignature)
		w.u64(zip64EocdFixedLen - 12)
		w.u16(versionNeededZip64)
		w.u16(versionNeededZip64)
		w.u32(0)
		w.u32(0)
		w.u64(records)
		w.u64(records)
		w.u64(eocdCentralSize)
		w.u64(eocdCentralOffset)

		w.u32(zip64LocatorSignature)
		w.u32(0)
		w.u64(uint64(zip64EocdOffset))
		w.u32(1)

		records = uint16max
		eocdCentralSize = uint32max
		eocdCentralOffset = uint32max
	}

	w.u32(eocdSignature)
	w.u16(0)
	w.u16(0)
	w.u16(uint16(records))
	w.u16(uint16(records))
	w.u32(uint32(eocdCentralSize))
	w.u32(uint32(eocdCentralOffset))
	w.u16(uint16(len(opts.Comment)))
	w.bytes([]byte(opts.Comment))

	return out, nil
}

// zip64Block builds a ZIP64 extended-information extra field. offset<0
// means "local header" (no offset field present); otherwise it's the
// central-directory variant carrying all three 8-byte values.
func zip64Block(needed bool, uncompressed, compressed, offset int64) []byte {
	if !needed {
		return nil
	}
	n := 16
	if offset >= 0 {
		n = 24
	}
	b := make([]byte, 4+n)
	wb := writeBuf(b)
	wb.u16(zip64ExtraID)
	wb.u16(uint16(n))
	wb.u64(uint64(uncompressed))
	wb.u64(uint64(compressed))
	if offset >= 0 {
		wb.u64(uint64(offset))
	}
	return b
}

func writeLocalHeader(w *writeBuf, l *laidOutEntry) {
	dosDate, dosTime, _ := timeToMsDos(l.MTime)

	w.u32(fileHeaderSignature)
	w.u16(versionNeeded)
	w.u16(utf8FlagBit)
	w.u16(uint16(l.Method))
	w.u16(dosTime)
	w.u16(dosDate)
	w.u32(l.CRC32)
	if l.UncompressedSize >= uint32max || int64(len(l.Data)) >= uint32max {
		w.u32(uint32max)
		w.u32(uint32max)
	} else {
		w.u32(uint32(len(l.Data)))
		w.u32(uint32(l.UncompressedSize))
	}
	w.u16(uint16(len(l.Name)))
	w.u16(uint16(len(l.localExtra)))
	w.bytes([]byte(l.Name))
	w.bytes(l.localExtra)
	w.bytes(l.Data)
}

func writeCentralHeader(w *writeBuf, l *laidOutEntry) {
	dosDate, dosTime, _ := timeToMsDos(l.MTime)

	os := l.OS
	versionMadeBy := uint16(os)<<8 | versionNeeded

	w.u32(centralHeaderSignature)
	w.u16(versionMadeBy)
	w.u16(versionNeeded)
	w.u16(utf8FlagBit)
	w.u16(uint16(l.Method))
	w.u16(dosTime)
	w.u16(dosDate)
	w.u32(l.CRC32)

	needsCentralZip64 := l.UncompressedSize >= uint32max || int64(len(l.Data)) >= uint32max || l.offset >= uint32max
	if needsCentralZip64 {
		w.u32(uint32max)
		w.u32(uint32max)
	} else {
		w.u32(uint32(len(l.Data)))
		w.u32(uint32(l.UncompressedSize))
	}
	w.u16(uint16(len(l.Name)))
	w.u16(uint16(len(l.centralExtra)))
	w.u16(uint16(len(l.Comment)))
	w.u16(0) // disk number start
	w.u16(0) // internal attrs
	w.u32(l.Attrs)
	if l.offset >= uint32max {
		w.u32(uint32max)
	} else {
		w.u32(uint32(l.offset))
	}
	w.bytes([]byte(l.Name))
	w.bytes(l.centralExtra)
	w.bytes([]byte(l.Comment))
}
