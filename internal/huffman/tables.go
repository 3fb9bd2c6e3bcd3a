// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package huffman builds and decodes canonical Huffman codes for DEFLATE:
// the fixed tables from RFC 1951 section 3.2.6, canonical code assignment
// and length-limiting for dynamic blocks, and the chunked decode-table
// layout used by the decoder.
package huffman

import "math/bits"

const (
	MaxCodeLen  = 15 // DEFLATE caps code length at 15 bits
	MaxNumLit   = 286
	MaxNumDist  = 30
	NumCLCodes  = 19
	EndOfBlock  = 256
)

// CodeLengthOrder is the permutation in which code-length code lengths are
// transmitted (RFC 1951 section 3.2.7), chosen so trailing zero entries can
// be truncated.
var CodeLengthOrder = [NumCLCodes]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// LengthBase and LengthExtraBits give, for length symbols 257..285 (index
// sym-257), the base match length and the number of extra bits that follow.
var LengthBase = [29]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31, 35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
var LengthExtraBits = [29]uint{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}

// DistBase and DistExtraBits give, for distance symbols 0..29, the base
// match distance and the number of extra bits that follow.
var DistBase = [30]int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577}
var DistExtraBits = [30]uint{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}

// FixedLitLengths and FixedDistLengths are the fixed Huffman code lengths
// defined in RFC 1951 section 3.2.6.
var FixedLitLengths [288]uint8
var FixedDistLengths [30]uint8

func init() {
	for i := 0; i < 144; i++ {
		FixedLitLengths[i] = 8
	}
	for i := 144; i < 256; i++ {
		FixedLitLengths[i] = 9
	}
	for i := 256; i < 280; i++ {
		FixedLitLengths[i] = 7
	}
	for i := 280; i < 288; i++ {
		FixedLitLengths[i] = 8
	}
	for i := range FixedDistLengths {
		FixedDistLengths[i] = 5
	}
	// decode.go's init runs before this one (files initialise in name
	// order), while FixedLitLengths is still all zeros, so FixedLit is
	// rebuilt here from the filled-in lengths.
	FixedLit.Init(FixedLitLengths[:])
}

// reverseBits reverses the low n bits of v.
func reverseBits(v uint32, n uint) uint32 {
	return uint32(bits.Reverse16(uint16(v)) >> (16 - n))
}
