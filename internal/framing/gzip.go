// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package framing

import (
	"github.com/nullbyte-arc/zipflate/internal/bitio"
	"github.com/nullbyte-arc/zipflate/internal/checksum"
	"github.com/nullbyte-arc/zipflate/internal/deflate"
	"github.com/nullbyte-arc/zipflate/internal/zerr"
)

const (
	gzipFlagText    = 1 << 0
	gzipFlagHdrCRC  = 1 << 1
	gzipFlagExtra   = 1 << 2
	gzipFlagName    = 1 << 3
	gzipFlagComment = 1 << 4
)

// GzipOptions configures Gzip/Gunzip. The field names and flag handling
// follow the header layout read by rclone's vendored sgzip reader
// (flagExtra/flagName/flagComment), applied to the write side too.
type GzipOptions struct {
	Level    int
	Mem      int
	MTime    uint32 // Unix seconds, little-endian on the wire
	Name     string
	Extra    []byte
	OS       byte
}

// Gzip wraps data in an RFC 1952 gzip stream.
func Gzip(data []byte, opts GzipOptions) []byte {
	var flg byte
	if len(opts.Extra) > 0 {
		flg |= gzipFlagExtra
	}
	if opts.Name != "" {
		flg |= gzipFlagName
	}

	var xfl byte
	switch {
	case opts.Level >= 9:
		xfl = 2
	case opts.Level < 2:
		xfl = 4
	}

	os := opts.OS
	if os == 0 {
		os = 3 // Unix, matching the teacher pack's gzip writers
	}

	out := make([]byte, 10)
	out[0], out[1], out[2] = 0x1f, 0x8b, 8
	out[3] = flg
	bitio.WriteU32LE(out[4:8], opts.MTime)
	out[8] = xfl
	out[9] = os

	if len(opts.Extra) > 0 {
		var n [2]byte
		bitio.WriteU16LE(n[:], uint16(len(opts.Extra)))
		out = append(out, n[:]...)
		out = append(out, opts.Extra...)
	}
	if opts.Name != "" {
		out = append(out, []byte(opts.Name)...)
		out = append(out, 0)
	}

	out = append(out, deflate.Deflate(data, deflate.EncodeOptions{Level: opts.Level, Mem: opts.Mem})...)

	var trailer [8]byte
	bitio.WriteU32LE(trailer[0:4], checksum.CRC32Of(data))
	bitio.WriteU32LE(trailer[4:8], uint32(len(data)))
	return append(out, trailer[:]...)
}

// GunzipResult carries the payload plus the header metadata a caller might
// want back (name, mtime, extra).
type GunzipResult struct {
	Data  []byte
	Name  string
	MTime uint32
	Extra []byte
}

// Gunzip decodes a single RFC 1952 gzip member (no multistream concatenation;
// out of scope for this module's in-memory, single-buffer model).
func Gunzip(data []byte) (*GunzipResult, error) {
	if len(data) < 10 {
		return nil, zerr.New(zerr.InvalidHeader, "gzip stream too short")
	}
	if data[0] != 0x1f || data[1] != 0x8b || data[2] != 8 {
		return nil, zerr.New(zerr.InvalidHeader, "bad gzip magic/method")
	}
	flg := data[3]
	mtime := bitio.ReadU32LE(data[4:8])
	pos := 10

	res := &GunzipResult{MTime: mtime}

	if flg&gzipFlagExtra != 0 {
		if pos+2 > len(data) {
			return nil, zerr.New(zerr.InvalidHeader, "truncated gzip extra field")
		}
		n := int(bitio.ReadU16LE(data[pos:]))
		pos += 2
		if pos+n > len(data) {
			return nil, zerr.New(zerr.InvalidHeader, "truncated gzip extra field")
		}
		res.Extra = append([]byte(nil), data[pos:pos+n]...)
		pos += n
	}
	if flg&gzipFlagName != 0 {
		start := pos
		for pos < len(data) && data[pos] != 0 {
			pos++
		}
		if pos >= len(data) {
			return nil, zerr.New(zerr.InvalidHeader, "unterminated gzip name")
		}
		res.Name = string(data[start:pos])
		pos++ // NUL
	}
	if flg&gzipFlagComment != 0 {
		for pos < len(data) && data[pos] != 0 {
			pos++
		}
		if pos >= len(data) {
			return nil, zerr.New(zerr.InvalidHeader, "unterminated gzip comment")
		}
		pos++
	}
	if flg&gzipFlagHdrCRC != 0 {
		if pos+2 > len(data) {
			return nil, zerr.New(zerr.InvalidHeader, "truncated gzip header CRC")
		}
		pos += 2
	}

	if pos+8 > len(data) {
		return nil, zerr.New(zerr.InvalidHeader, "truncated gzip stream")
	}
	payload := data[pos : len(data)-8]
	trailer := data[len(data)-8:]

	out, err := deflate.Inflate(payload, deflate.DecodeOptions{})
	if err != nil {
		return nil, err
	}
	wantCRC := bitio.ReadU32LE(trailer[0:4])
	wantSize := bitio.ReadU32LE(trailer[4:8])
	if checksum.CRC32Of(out) != wantCRC {
		return nil, zerr.New(zerr.InvalidHeader, "gzip CRC-32 mismatch")
	}
	if uint32(len(out)) != wantSize {
		return nil, zerr.New(zerr.InvalidHeader, "gzip size mismatch")
	}
	res.Data = out
	return res, nil
}
