// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package framing wraps raw DEFLATE (internal/deflate) in the zlib
// (RFC 1950) and gzip (RFC 1952) container formats. New code: the teacher
// only ever reads/writes raw DEFLATE inside ZIP members, so this package is
// grounded on the standard library's own compress/zlib and compress/gzip
// field layouts (as exercised via compress/zlib in the pack's
// zlibimpl.ZlibStrategy) and on the gzip header/flag handling in rclone's
// vendored sgzip reader.
package framing

import (
	"github.com/nullbyte-arc/zipflate/internal/checksum"
	"github.com/nullbyte-arc/zipflate/internal/deflate"
	"github.com/nullbyte-arc/zipflate/internal/zerr"
)

// putBE32/getBE32 are big-endian helpers: zlib's Adler-32 fields (unlike
// every other integer in this module) are transmitted big-endian.
func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getBE32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ZlibOptions configures Zlib/Unzlib.
type ZlibOptions struct {
	Level      int
	Mem        int
	Dictionary []byte
}

// Zlib wraps data in an RFC 1950 zlib stream.
func Zlib(data []byte, opts ZlibOptions) []byte {
	level := opts.Level
	flevel := byte(2)
	switch {
	case level == 0:
		flevel = 0
	case level >= 1 && level <= 2:
		flevel = 1
	case level >= 9:
		flevel = 3
	}

	cmf := byte(0x78) // CM=8 (deflate), CINFO=7 (32KiB window)
	flg := flevel << 6
	if len(opts.Dictionary) > 0 {
		flg |= 1 << 5
	}
	check := (uint16(cmf)<<8 | uint16(flg)) % 31
	if check != 0 {
		flg += byte(31 - check)
	}

	out := []byte{cmf, flg}
	if len(opts.Dictionary) > 0 {
		var dictSum [4]byte
		putBE32(dictSum[:], checksum.Adler32Of(opts.Dictionary))
		out = append(out, dictSum[:]...)
	}

	out = append(out, deflate.Deflate(data, deflate.EncodeOptions{
		Level:      level,
		Mem:        opts.Mem,
		Dictionary: opts.Dictionary,
	})...)

	var trailer [4]byte
	putBE32(trailer[:], checksum.Adler32Of(data))
	return append(out, trailer[:]...)
}

// Unzlib decodes an RFC 1950 zlib stream.
func Unzlib(data []byte, dictionary []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, zerr.New(zerr.InvalidHeader, "zlib stream too short")
	}
	cmf, flg := data[0], data[1]
	if cmf&0x0f != 8 {
		return nil, zerr.New(zerr.InvalidHeader, "unsupported zlib compression method")
	}
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return nil, zerr.New(zerr.InvalidHeader, "zlib header check failed")
	}
	hasDict := flg&(1<<5) != 0
	if hasDict != (len(dictionary) > 0) {
		return nil, zerr.New(zerr.InvalidHeader, "zlib preset-dictionary mismatch")
	}

	body := data[2:]
	if hasDict {
		if len(body) < 4 {
			return nil, zerr.New(zerr.InvalidHeader, "truncated zlib dictionary checksum")
		}
		body = body[4:]
	}
	if len(body) < 4 {
		return nil, zerr.New(zerr.InvalidHeader, "truncated zlib stream")
	}
	payload := body[:len(body)-4]
	trailer := body[len(body)-4:]

	out, err := deflate.Inflate(payload, deflate.DecodeOptions{Dictionary: dictionary})
	if err != nil {
		return nil, err
	}
	want := getBE32(trailer)
	if got := checksum.Adler32Of(out); got != want {
		return nil, zerr.New(zerr.InvalidHeader, "zlib adler-32 mismatch")
	}
	return out, nil
}
