// Copyright (c) Elliot Nunn. Portions copyright 2009 The Go Authors.
// Use of this source code is governed by a BSD-style license.

// Package deflate implements raw DEFLATE (RFC 1951) encoding and decoding
// entirely in memory. The decoder is adapted from the teacher's
// internal/flate/inflate.go (itself derived from the Go standard
// library's compress/flate), stripped of its mid-stream resumability
// (out of scope per this module's spec: the decoder always sees the full
// compressed buffer) and given explicit error returns instead of
// panic/recover, per this module's no-exceptions-for-format-errors design.
package deflate

import (
	"math/bits"

	"github.com/nullbyte-arc/zipflate/internal/bitio"
	"github.com/nullbyte-arc/zipflate/internal/huffman"
	"github.com/nullbyte-arc/zipflate/internal/zerr"
)

const (
	maxMatchOffset = 1 << 15 // 32 KiB sliding window
	maxMatchLength = 258
	minMatchLength = 3
)

// DecodeOptions configures Inflate.
type DecodeOptions struct {
	// Out, if non-nil, is used (and grown if necessary) as the output
	// buffer, matching spec.md's "preallocated output buffer" option.
	Out []byte
	// Dictionary is a preset dictionary: its last <=32KiB bytes are
	// treated as preceding stream position 0 for back-references, but
	// are not themselves emitted to the output.
	Dictionary []byte
}

// Inflate decompresses a raw DEFLATE stream.
func Inflate(compressed []byte, opts DecodeOptions) ([]byte, error) {
	d := &decompressor{r: bitio.NewReader(compressed)}

	out := opts.Out[:0]
	if cap(out) == 0 {
		out = make([]byte, 0, len(compressed)*3+64)
	}

	dictLen := 0
	if len(opts.Dictionary) > 0 {
		dict := opts.Dictionary
		if len(dict) > maxMatchOffset {
			dict = dict[len(dict)-maxMatchOffset:]
		}
		dictLen = len(dict)
		out = append(out, dict...)
	}
	d.out = out

	for {
		final, err := d.nextBlock()
		if err != nil {
			return nil, err
		}
		if final {
			break
		}
	}

	result := make([]byte, len(d.out)-dictLen)
	copy(result, d.out[dictLen:])
	return result, nil
}

type decompressor struct {
	r   *bitio.Reader
	out []byte
	b   uint32
	nb  uint
}

func (d *decompressor) nextBlock() (final bool, err error) {
	bf, err := d.takeBits(3)
	if err != nil {
		return false, err
	}
	final = bf&1 == 1
	typ := (bf >> 1) & 3

	switch typ {
	case 0:
		err = d.dataBlock()
	case 1:
		err = d.huffmanBlock(&huffman.FixedLit, nil)
	case 2:
		var h1, h2 huffman.DecodeTable
		if err = d.readDynamicTables(&h1, &h2); err != nil {
			return false, err
		}
		err = d.huffmanBlock(&h1, &h2)
	default:
		return false, zerr.New(zerr.InvalidBlockType, "BTYPE == 3")
	}
	return final, err
}

// takeBits pulls n (<=24) bits from the bit-accumulator, refilling from
// the underlying reader as needed; mirrors the teacher's b/nb accumulator
// but as an explicit call instead of inlined moreBits loops.
func (d *decompressor) takeBits(n uint) (uint32, error) {
	for d.nb < n {
		avail := d.r.Len() - d.r.BitPos()
		if avail <= 0 {
			return 0, zerr.New(zerr.UnexpectedEOF, "bit stream")
		}
		grab := uint(8)
		if avail < 8 {
			grab = uint(avail)
		}
		v, err := d.r.ReadBits(grab)
		if err != nil {
			return 0, zerr.Wrap(zerr.UnexpectedEOF, "bit stream", err)
		}
		d.b |= v << d.nb
		d.nb += grab
	}
	v := d.b & (1<<n - 1)
	d.b >>= n
	d.nb -= n
	return v, nil
}

func (d *decompressor) huffSym(h *huffman.DecodeTable) (int, error) {
	for d.nb < uint(h.Min()) || d.nb < 24 {
		avail := d.r.Len() - d.r.BitPos()
		if avail <= 0 {
			break
		}
		grab := uint(8)
		if avail < 8 {
			grab = uint(avail)
		}
		v, err := d.r.ReadBits(grab)
		if err != nil {
			return 0, zerr.Wrap(zerr.UnexpectedEOF, "huffman symbol", err)
		}
		d.b |= v << d.nb
		d.nb += grab
	}

	sym, used, ok := h.Decode(d.b, d.nb)
	if !ok {
		if d.nb < uint(h.Min()) {
			return 0, zerr.New(zerr.UnexpectedEOF, "huffman symbol")
		}
		return 0, zerr.New(zerr.InvalidLengthLiteral, "unresolved huffman code")
	}
	d.b >>= used
	d.nb -= used
	return sym, nil
}

var codeLengthOrder = huffman.CodeLengthOrder

func (d *decompressor) readDynamicTables(h1, h2 *huffman.DecodeTable) error {
	var bits [huffman.MaxNumLit + huffman.MaxNumDist]int
	var codebits [huffman.NumCLCodes]int

	hlitBits, err := d.takeBits(5)
	if err != nil {
		return err
	}
	nlit := int(hlitBits) + 257
	if nlit > huffman.MaxNumLit {
		return zerr.New(zerr.InvalidLengthLiteral, "HLIT too large")
	}

	hdistBits, err := d.takeBits(5)
	if err != nil {
		return err
	}
	ndist := int(hdistBits) + 1
	if ndist > huffman.MaxNumDist {
		return zerr.New(zerr.InvalidDistance, "HDIST too large")
	}

	hclenBits, err := d.takeBits(4)
	if err != nil {
		return err
	}
	nclen := int(hclenBits) + 4

	for i := 0; i < nclen; i++ {
		v, err := d.takeBits(3)
		if err != nil {
			return err
		}
		codebits[codeLengthOrder[i]] = int(v)
	}
	for i := nclen; i < len(codeLengthOrder); i++ {
		codebits[codeLengthOrder[i]] = 0
	}

	clTable := new(huffman.DecodeTable)
	clLengths := make([]uint8, len(codebits))
	for i, v := range codebits {
		clLengths[i] = uint8(v)
	}
	if !clTable.Init(clLengths) {
		return zerr.New(zerr.InvalidLengthLiteral, "corrupt code-length table")
	}

	for i, n := 0, nlit+ndist; i < n; {
		x, err := d.huffSym(clTable)
		if err != nil {
			return err
		}
		if x < 16 {
			bits[i] = x
			i++
			continue
		}
		var rep int
		var nb uint
		var base int
		switch x {
		case 16:
			rep, nb = 3, 2
			if i == 0 {
				return zerr.New(zerr.InvalidLengthLiteral, "repeat with no previous length")
			}
			base = bits[i-1]
		case 17:
			rep, nb = 3, 3
		case 18:
			rep, nb = 11, 7
		default:
			return zerr.New(zerr.InvalidLengthLiteral, "unexpected code-length symbol")
		}
		extra, err := d.takeBits(nb)
		if err != nil {
			return err
		}
		rep += int(extra)
		if i+rep > n {
			return zerr.New(zerr.InvalidLengthLiteral, "repeat overruns table")
		}
		for j := 0; j < rep; j++ {
			bits[i] = base
			i++
		}
	}

	litLengths := make([]uint8, nlit)
	distLengths := make([]uint8, ndist)
	for i := 0; i < nlit; i++ {
		litLengths[i] = uint8(bits[i])
	}
	for i := 0; i < ndist; i++ {
		distLengths[i] = uint8(bits[nlit+i])
	}
	if !h1.Init(litLengths) || !h2.Init(distLengths) {
		return zerr.New(zerr.InvalidLengthLiteral, "corrupt dynamic huffman table")
	}
	return nil
}

// huffmanBlock decodes a Huffman-coded block using hl for literal/length
// symbols. hd is the distance decode table for dynamic blocks; it is nil
// for fixed blocks, since the fixed distance code (30 equal-length-5
// codes, RFC 1951 section 3.2.6) is an incomplete Kraft code that no
// DecodeTable can represent — those symbols are instead read as 5 raw
// bit-reversed bits, per the teacher's inflate.go huffmanBlock (hd == nil
// case).
func (d *decompressor) huffmanBlock(hl, hd *huffman.DecodeTable) error {
	for {
		v, err := d.huffSym(hl)
		if err != nil {
			return err
		}
		if v < 256 {
			d.out = append(d.out, byte(v))
			continue
		}
		if v == huffman.EndOfBlock {
			return nil
		}

		idx := v - 257
		if idx >= len(huffman.LengthBase) {
			return zerr.New(zerr.InvalidLengthLiteral, "length symbol out of range")
		}
		length := huffman.LengthBase[idx]
		if n := huffman.LengthExtraBits[idx]; n > 0 {
			extra, err := d.takeBits(n)
			if err != nil {
				return err
			}
			length += int(extra)
		}

		var dsym int
		if hd == nil {
			v, err := d.takeBits(5)
			if err != nil {
				return err
			}
			dsym = int(bits.Reverse8(uint8(v) << 3))
		} else {
			var err error
			dsym, err = d.huffSym(hd)
			if err != nil {
				return err
			}
		}
		if dsym >= len(huffman.DistBase) {
			return zerr.New(zerr.InvalidDistance, "distance symbol out of range")
		}
		dist := huffman.DistBase[dsym]
		if n := huffman.DistExtraBits[dsym]; n > 0 {
			extra, err := d.takeBits(n)
			if err != nil {
				return err
			}
			dist += int(extra)
		}

		if dist > len(d.out) || dist > maxMatchOffset {
			return zerr.New(zerr.InvalidDistance, "distance exceeds available output")
		}

		start := len(d.out) - dist
		for i := 0; i < length; i++ {
			d.out = append(d.out, d.out[start+i])
		}
	}
}

// dataBlock reads an uncompressed (BTYPE=00) block. Entering a stored block
// always follows a takeBits/huffSym call that may have pulled bits from d.r
// well past the logical stream position (huffSym buffers up to 24 bits of
// look-ahead), so d.r's own cursor cannot be trusted to already sit at the
// block boundary: the unconsumed bits in d.b must first be handed back to
// d.r before aligning, or AlignByte would round up from the wrong byte.
func (d *decompressor) dataBlock() error {
	d.r.Rewind(d.nb)
	d.b, d.nb = 0, 0
	d.r.AlignByte()

	var hdr [4]byte
	for i := range hdr {
		v, err := d.r.ReadBits(8)
		if err != nil {
			return zerr.Wrap(zerr.UnexpectedEOF, "stored block header", err)
		}
		hdr[i] = byte(v)
	}
	n := int(hdr[0]) | int(hdr[1])<<8
	nn := int(hdr[2]) | int(hdr[3])<<8
	if uint16(nn) != uint16(^uint16(n)) {
		return zerr.New(zerr.InvalidBlockType, "stored block length check failed")
	}

	for i := 0; i < n; i++ {
		v, err := d.r.ReadBits(8)
		if err != nil {
			return zerr.Wrap(zerr.UnexpectedEOF, "stored block data", err)
		}
		d.out = append(d.out, byte(v))
	}
	return nil
}
