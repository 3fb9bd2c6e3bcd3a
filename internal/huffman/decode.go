// Copyright (c) Elliot Nunn. Portions copyright 2009 The Go Authors.
// Use of this source code is governed by a BSD-style license.

package huffman

import "math/bits"

// The decode table layout is adapted from the teacher's (and originally
// zlib's) chunked Huffman decoder: a flat table of fixed bit width
// (chunkBits) gives an immediate answer for codes no longer than that
// width; longer codes overflow into a per-prefix link table, every one of
// which is sized to the longest code in the whole table.
const (
	chunkBits      = 9
	numChunks      = 1 << chunkBits
	countMask      = 15
	valueShift     = 4
)

// DecodeTable is a canonical Huffman decode table built from code lengths.
type DecodeTable struct {
	min      int
	chunks   [numChunks]uint32
	links    [][]uint32
	linkMask uint32
}

// Init builds the decode table from per-symbol code lengths (0 = unused).
// It reports false if the lengths do not form a complete Kraft-valid code
// (over- or under-subscribed), except for the degenerate single-symbol
// case which DEFLATE (and zlib) special-case as valid.
func (h *DecodeTable) Init(lengths []uint8) bool {
	*h = DecodeTable{}

	var count [MaxCodeLen + 1]int
	min, max := 0, 0
	for _, n := range lengths {
		if n == 0 {
			continue
		}
		if min == 0 || int(n) < min {
			min = int(n)
		}
		if int(n) > max {
			max = int(n)
		}
		count[n]++
	}

	if max == 0 {
		return true // empty tree; any use of it is a later format error
	}

	code := 0
	var nextcode [MaxCodeLen + 1]int
	for i := min; i <= max; i++ {
		code <<= 1
		nextcode[i] = code
		code += count[i]
	}

	if code != 1<<uint(max) && !(code == 1 && max == 1) {
		return false
	}

	h.min = min
	if max > chunkBits {
		numLinks := 1 << uint(max-chunkBits)
		h.linkMask = uint32(numLinks - 1)

		link := nextcode[chunkBits+1] >> 1
		h.links = make([][]uint32, numChunks-link)
		for j := link; j < numChunks; j++ {
			reverse := int(bits.Reverse16(uint16(j)))
			reverse >>= uint(16 - chunkBits)
			off := j - link
			h.chunks[reverse] = uint32(off<<valueShift | (chunkBits + 1))
			h.links[off] = make([]uint32, numLinks)
		}
	}

	for i, n := range lengths {
		if n == 0 {
			continue
		}
		code := nextcode[n]
		nextcode[n]++
		chunk := uint32(i<<valueShift | int(n))
		reverse := int(bits.Reverse16(uint16(code)))
		reverse >>= uint(16 - n)
		if int(n) <= chunkBits {
			for off := reverse; off < len(h.chunks); off += 1 << uint(n) {
				h.chunks[off] = chunk
			}
		} else {
			j := reverse & (numChunks - 1)
			value := h.chunks[j] >> valueShift
			linktab := h.links[value]
			reverse >>= chunkBits
			for off := reverse; off < len(linktab); off += 1 << uint(int(n)-chunkBits) {
				linktab[off] = chunk
			}
		}
	}
	return true
}

// Min is the shortest code length in the table (0 if the table is empty).
func (h *DecodeTable) Min() int { return h.min }

// Decode looks up the symbol whose code is encoded in the low bits of acc
// (LSB-first), given that nb bits of acc are valid. It returns ok=false
// when nb isn't yet enough to resolve the symbol, in which case the caller
// must supply more bits (a wider acc) and retry.
func (h *DecodeTable) Decode(acc uint32, nb uint) (sym int, n uint, ok bool) {
	if nb < uint(h.min) {
		return 0, 0, false
	}
	chunk := h.chunks[acc&(numChunks-1)]
	n = uint(chunk & countMask)
	if n > chunkBits {
		if nb < n {
			return 0, 0, false
		}
		chunk = h.links[chunk>>valueShift][(acc>>chunkBits)&h.linkMask]
		n = uint(chunk & countMask)
	}
	if n == 0 {
		return 0, 0, false
	}
	if n > nb {
		return 0, 0, false
	}
	return int(chunk >> valueShift), n, true
}

// FixedDist is intentionally not a DecodeTable: the 30 fixed distance
// codes (RFC 1951 section 3.2.6) are all 5 bits long but only occupy 30 of
// the 32 possible 5-bit patterns, so they form an incomplete Kraft code
// that Init (correctly) rejects. Fixed-distance symbols are instead read
// as 5 raw bit-reversed bits directly off the stream (decoder.go's
// huffmanBlock, hd == nil case), matching the teacher's inflate.go
// handling of fixed Huffman blocks.
var FixedLit DecodeTable

func init() {
	FixedLit.Init(FixedLitLengths[:])
}
