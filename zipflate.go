// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package zipflate implements RFC 1951 DEFLATE, RFC 1950 zlib, RFC 1952
// gzip, and PKWARE ZIP archives, entirely in memory. It is the public
// surface over the internal codec packages, following the teacher's split
// between a thin top-level package and the heavy lifting in internal/*
// (this package's Unzip is built on internal/zip's New).
package zipflate

import (
	"github.com/nullbyte-arc/zipflate/internal/checksum"
	"github.com/nullbyte-arc/zipflate/internal/deflate"
	"github.com/nullbyte-arc/zipflate/internal/framing"
	"github.com/nullbyte-arc/zipflate/internal/zerr"
)

// Compression level sentinels, matching compress/flate's convention so
// callers already familiar with the standard library feel at home; -1
// means "use the default", distinct from the valid explicit level 0
// ("store", no compression).
const (
	DefaultCompression = -1
	NoCompression      = 0
	BestSpeed          = 1
	BestCompression    = 9
)

func resolveLevel(level int) int {
	if level == DefaultCompression {
		return 6
	}
	return level
}

// resolveMem auto-selects a hash-table size (spec.md's "mem 0..12") from
// the input length when the caller leaves Mem unset (<=0), the way zlib
// picks memLevel from context. Bigger inputs get bigger hash tables, up
// to the 12-bit cap internal/deflate supports.
func resolveMem(mem, dataLen int) int {
	if mem > 0 {
		return mem
	}
	bits := 6
	for (1 << bits) < dataLen && bits < 12 {
		bits++
	}
	return bits
}

// DeflateOptions configures Deflate.
type DeflateOptions struct {
	Level      int
	Mem        int
	Dictionary []byte
}

// InflateOptions configures Inflate.
type InflateOptions struct {
	Out        []byte
	Dictionary []byte
}

// Deflate compresses data into a raw DEFLATE stream (RFC 1951).
func Deflate(data []byte, opts DeflateOptions) []byte {
	return deflate.Deflate(data, deflate.EncodeOptions{
		Level:      resolveLevel(opts.Level),
		Mem:        resolveMem(opts.Mem, len(data)),
		Dictionary: opts.Dictionary,
	})
}

// Inflate decompresses a raw DEFLATE stream.
func Inflate(data []byte, opts InflateOptions) ([]byte, error) {
	return deflate.Inflate(data, deflate.DecodeOptions{
		Out:        opts.Out,
		Dictionary: opts.Dictionary,
	})
}

// ZlibOptions configures Zlib/Unzlib.
type ZlibOptions struct {
	Level      int
	Mem        int
	Dictionary []byte
}

// Zlib wraps data in an RFC 1950 zlib stream.
func Zlib(data []byte, opts ZlibOptions) []byte {
	return framing.Zlib(data, framing.ZlibOptions{
		Level:      resolveLevel(opts.Level),
		Mem:        resolveMem(opts.Mem, len(data)),
		Dictionary: opts.Dictionary,
	})
}

// Unzlib decodes an RFC 1950 zlib stream.
func Unzlib(data []byte, dictionary []byte) ([]byte, error) {
	return framing.Unzlib(data, dictionary)
}

// GzipOptions configures Gzip.
type GzipOptions struct {
	Level int
	Mem   int
	MTime uint32
	Name  string
	Extra []byte
	OS    byte
}

// Gzip wraps data in an RFC 1952 gzip stream.
func Gzip(data []byte, opts GzipOptions) []byte {
	return framing.Gzip(data, framing.GzipOptions{
		Level: resolveLevel(opts.Level),
		Mem:   resolveMem(opts.Mem, len(data)),
		MTime: opts.MTime,
		Name:  opts.Name,
		Extra: opts.Extra,
		OS:    opts.OS,
	})
}

// GunzipResult is the decoded payload plus whatever header metadata the
// stream carried.
type GunzipResult = framing.GunzipResult

// Gunzip decodes a single-member RFC 1952 gzip stream.
func Gunzip(data []byte) (*GunzipResult, error) {
	return framing.Gunzip(data)
}

// CRC32 computes the CRC-32 (reflected, 0xEDB88320) of data.
func CRC32(data []byte) uint32 { return checksum.CRC32Of(data) }

// Adler32 computes the Adler-32 checksum of data.
func Adler32(data []byte) uint32 { return checksum.Adler32Of(data) }

// ErrorCode is the stable taxonomy of error kinds this package returns.
type ErrorCode = zerr.Code

const (
	ErrUnexpectedEOF            = zerr.UnexpectedEOF
	ErrInvalidBlockType         = zerr.InvalidBlockType
	ErrInvalidLengthLiteral     = zerr.InvalidLengthLiteral
	ErrInvalidDistance          = zerr.InvalidDistance
	ErrInvalidHeader            = zerr.InvalidHeader
	ErrExtraFieldTooLong        = zerr.ExtraFieldTooLong
	ErrInvalidDate              = zerr.InvalidDate
	ErrFilenameTooLong          = zerr.FilenameTooLong
	ErrInvalidZipData           = zerr.InvalidZipData
	ErrUnknownCompressionMethod = zerr.UnknownCompressionMethod
)

// Error is returned by every fallible call in this package: a stable Code
// plus whatever context (affected file name, wrapped cause) is available.
type Error = zerr.Error

// CodeOf reports the Code carried by err, if err (or something it wraps)
// is an *Error.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	for cur := err; cur != nil; {
		if ze, ok := cur.(*Error); ok {
			e = ze
			break
		}
		u, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = u.Unwrap()
	}
	if e == nil {
		return 0, false
	}
	return e.Code, true
}
