// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package deflate

import (
	"github.com/nullbyte-arc/zipflate/internal/bitio"
	"github.com/nullbyte-arc/zipflate/internal/huffman"
)

const (
	maxBlockMatches = 7000  // emit a block after this many length/distance pairs
	maxBlockSymbols = 24576 // or after this many total symbols, whichever first
)

// levelChain gives, for compression levels 1..9, the hash-chain search
// depth and the "nice" match length at which the search stops early.
// Loosely modeled on zlib's well-known level/chain-depth table.
var levelChain = [10]struct{ chain, nice int }{
	0: {0, 0}, // level 0 is store-only; unused
	1: {4, 8},
	2: {8, 16},
	3: {16, 32},
	4: {16, 64},
	5: {32, 96},
	6: {128, 128},
	7: {256, 192},
	8: {1024, 258},
	9: {4096, 258},
}

// EncodeOptions configures Deflate/NewEncoder. Level and Mem must already
// be resolved to concrete values (0..9, 0..12): default/auto resolution
// happens in the public zipflate package, not here.
type EncodeOptions struct {
	Level      int
	Mem        int
	Dictionary []byte
}

type symbol struct {
	lit     byte
	isMatch bool
	length  int
	dist    int
}

// Encoder holds the LZ77 hash chains and partial block state needed to
// compress a stream across multiple Feed calls, per this module's
// resumable-encoder design (spec.md section 4.4 / section 9): the hash
// tables, window and bit-writer are owned by the Encoder and survive
// between calls, mirroring the teacher's externalized resumePoint idiom
// applied to the write side instead of the read side.
type Encoder struct {
	level, mem int
	s1, s2     uint
	mask       uint32

	window []byte
	head   []int32
	prev   []int32
	pos    int

	blockStartPos int
	blockSyms     []symbol
	litFreq       [huffman.MaxNumLit]uint32
	distFreq      [huffman.MaxNumDist]uint32
	matchCount    int

	out      *bitio.Writer
	finished bool
}

func NewEncoder(opts EncodeOptions) *Encoder {
	e := &Encoder{
		level: opts.Level,
		mem:   opts.Mem,
		out:   bitio.NewWriter(),
	}
	if e.mem < 1 {
		e.mem = 8
	}
	e.s1 = uint((e.mem + 2) / 3)
	e.s2 = e.s1 * 2
	e.mask = uint32(1)<<uint(e.mem) - 1
	e.head = make([]int32, 1<<uint(e.mem))
	for i := range e.head {
		e.head[i] = -1
	}

	if len(opts.Dictionary) > 0 {
		dict := opts.Dictionary
		if len(dict) > maxMatchOffset {
			dict = dict[len(dict)-maxMatchOffset:]
		}
		e.window = append(e.window, dict...)
		e.prev = make([]int32, len(e.window))
		for i := range e.prev {
			e.prev[i] = -1
		}
		for i := 0; i+3 <= len(e.window); i++ {
			e.insert(i)
		}
		e.pos = len(e.window)
	}
	e.blockStartPos = e.pos
	return e
}

// Deflate is the one-shot convenience wrapper over Encoder.
func Deflate(data []byte, opts EncodeOptions) []byte {
	e := NewEncoder(opts)
	e.Feed(data, true)
	return e.Finish()
}

func (e *Encoder) hashAt(i int) uint32 {
	b0, b1, b2 := e.window[i], e.window[i+1], e.window[i+2]
	return (uint32(b0) ^ uint32(b1)<<e.s1 ^ uint32(b2)<<e.s2) & e.mask
}

func (e *Encoder) insert(i int) {
	h := e.hashAt(i)
	e.prev[i] = e.head[h]
	e.head[h] = int32(i)
}

func (e *Encoder) findMatch(i, chain, nice int) (bestLen, bestDist int) {
	limit := len(e.window)
	maxLen := limit - i
	if maxLen > maxMatchLength {
		maxLen = maxMatchLength
	}
	if maxLen < minMatchLength {
		return 0, 0
	}

	cand := e.head[e.hashAt(i)]
	for cand >= 0 && chain > 0 {
		c := int(cand)
		dist := i - c
		if dist <= 0 || dist > maxMatchOffset {
			break
		}
		if bestLen == 0 || (i+bestLen < limit && e.window[c+bestLen] == e.window[i+bestLen]) {
			l := 0
			for l < maxLen && e.window[c+l] == e.window[i+l] {
				l++
			}
			if l > bestLen {
				bestLen, bestDist = l, dist
				if l >= nice {
					break
				}
			}
		}
		cand = e.prev[c]
		chain--
	}
	if bestLen < minMatchLength {
		return 0, 0
	}
	return bestLen, bestDist
}

func lengthCode(length int) int {
	for i := len(huffman.LengthBase) - 1; i >= 0; i-- {
		if length >= huffman.LengthBase[i] {
			return i
		}
	}
	return 0
}

func distCode(dist int) int {
	for i := len(huffman.DistBase) - 1; i >= 0; i-- {
		if dist >= huffman.DistBase[i] {
			return i
		}
	}
	return 0
}

func (e *Encoder) emitLiteral(b byte) {
	e.blockSyms = append(e.blockSyms, symbol{lit: b})
	e.litFreq[b]++
}

func (e *Encoder) emitMatch(length, dist int) {
	e.blockSyms = append(e.blockSyms, symbol{isMatch: true, length: length, dist: dist})
	e.litFreq[257+lengthCode(length)]++
	e.distFreq[distCode(dist)]++
	e.matchCount++
}

// Feed appends data to the encoder's window and compresses as much of it
// as the block-emission policy allows. isLast must be true on the final
// call so the last block can be marked BFINAL.
func (e *Encoder) Feed(data []byte, isLast bool) error {
	if e.finished {
		return nil
	}
	e.window = append(e.window, data...)
	for len(e.prev) < len(e.window) {
		e.prev = append(e.prev, -1)
	}
	return e.process(isLast)
}

// Finish flushes any buffered data and returns the complete DEFLATE stream.
func (e *Encoder) Finish() []byte {
	if !e.finished {
		e.process(true)
	}
	return e.out.Bytes()
}

func (e *Encoder) process(isLast bool) error {
	if e.level == 0 {
		return e.processStore(isLast)
	}

	cfg := levelChain[e.level]
	limit := len(e.window)
	for e.pos < limit {
		if !isLast && limit-e.pos < maxMatchLength+3 {
			break
		}
		i := e.pos
		if i+minMatchLength <= limit {
			length, dist := e.findMatch(i, cfg.chain, cfg.nice)
			if length >= minMatchLength {
				e.emitMatch(length, dist)
				end := i + length
				for k := i; k < end && k+3 <= limit; k++ {
					e.insert(k)
				}
				e.pos = end
			} else {
				e.insert(i)
				e.emitLiteral(e.window[i])
				e.pos++
			}
		} else {
			e.emitLiteral(e.window[i])
			e.pos++
		}

		if e.matchCount >= maxBlockMatches || len(e.blockSyms) >= maxBlockSymbols {
			e.flushBlock(false)
		}
	}
	if isLast {
		e.flushBlock(true)
		e.finished = true
	}
	return nil
}

func (e *Encoder) processStore(isLast bool) error {
	const maxChunk = 65535
	for len(e.window)-e.pos >= maxChunk {
		e.writeStoredBlock(false, e.window[e.pos:e.pos+maxChunk])
		e.pos += maxChunk
	}
	if isLast {
		e.writeStoredBlock(true, e.window[e.pos:])
		e.pos = len(e.window)
		e.finished = true
	}
	return nil
}

func (e *Encoder) writeStoredBlock(final bool, data []byte) {
	var bf uint32
	if final {
		bf = 1
	}
	e.out.WriteBits(bf, 3) // BTYPE=00
	e.out.AlignByte()
	var hdr [4]byte
	bitio.WriteU16LE(hdr[0:2], uint16(len(data)))
	bitio.WriteU16LE(hdr[2:4], ^uint16(len(data)))
	e.out.WriteBytes(hdr[:])
	e.out.WriteBytes(data)
}

var fixedLitCodes = huffman.CanonicalCodes(huffman.FixedLitLengths[:])
var fixedDistCodes = huffman.CanonicalCodes(huffman.FixedDistLengths[:])

func (e *Encoder) flushBlock(final bool) {
	syms := e.blockSyms
	storedData := e.window[e.blockStartPos:e.pos]

	storedBits := e.storedCostBits(len(storedData))
	fixedBits := e.fixedCostBits(syms)

	nlit, ndist, litLen, distLen, clSyms, clLen, nlcc, dynamicBits := e.dynamicCost(syms)

	switch {
	case storedBits <= fixedBits && storedBits <= dynamicBits:
		e.writeStoredBlock(final, storedData)
	case fixedBits <= dynamicBits:
		e.writeFixedBlock(final, syms)
	default:
		e.writeDynamicBlock(final, syms, litLen[:nlit], distLen[:ndist], nlcc, clSyms, clLen)
	}

	e.blockSyms = e.blockSyms[:0]
	e.litFreq = [huffman.MaxNumLit]uint32{}
	e.distFreq = [huffman.MaxNumDist]uint32{}
	e.matchCount = 0
	e.blockStartPos = e.pos
}

func (e *Encoder) storedCostBits(n int) int64 {
	pos := e.out.BitPos() + 3
	padded := (pos + 7) &^ 7
	return (padded - e.out.BitPos()) + 32 + 8*int64(n)
}

func (e *Encoder) fixedCostBits(syms []symbol) int64 {
	bits := int64(3)
	for _, s := range syms {
		if !s.isMatch {
			bits += int64(huffman.FixedLitLengths[s.lit])
			continue
		}
		lc := lengthCode(s.length)
		dc := distCode(s.dist)
		bits += int64(huffman.FixedLitLengths[257+lc]) + int64(huffman.LengthExtraBits[lc])
		bits += int64(huffman.FixedDistLengths[dc]) + int64(huffman.DistExtraBits[dc])
	}
	bits += int64(huffman.FixedLitLengths[huffman.EndOfBlock])
	return bits
}

type clSym struct {
	sym   int
	extra int
	nbits uint
}

func runLengthEncodeLengths(lens []uint8) ([]clSym, [huffman.NumCLCodes]uint32) {
	var out []clSym
	var freq [huffman.NumCLCodes]uint32
	n := len(lens)
	i := 0
	for i < n {
		val := lens[i]
		run := 1
		for i+run < n && lens[i+run] == val {
			run++
		}
		if val == 0 {
			rem := run
			for rem > 0 {
				switch {
				case rem < 3:
					out = append(out, clSym{sym: 0})
					freq[0]++
					rem--
				case rem <= 10:
					out = append(out, clSym{sym: 17, extra: rem - 3, nbits: 3})
					freq[17]++
					rem = 0
				default:
					take := rem
					if take > 138 {
						take = 138
					}
					out = append(out, clSym{sym: 18, extra: take - 11, nbits: 7})
					freq[18]++
					rem -= take
				}
			}
		} else {
			out = append(out, clSym{sym: int(val)})
			freq[val]++
			rem := run - 1
			for rem > 0 {
				if rem < 3 {
					out = append(out, clSym{sym: int(val)})
					freq[val]++
					rem--
					continue
				}
				take := rem
				if take > 6 {
					take = 6
				}
				out = append(out, clSym{sym: 16, extra: take - 3, nbits: 2})
				freq[16]++
				rem -= take
			}
		}
		i += run
	}
	return out, freq
}

// dynamicCost computes the dynamic-Huffman encoding of syms and its total
// bit cost, per spec.md section 4.4's formula: header bits, transmitted
// code-length-code lengths, the code-length-coded tree itself, the
// repeat-symbol extra bits, and the actual lit/dist/extra payload.
func (e *Encoder) dynamicCost(syms []symbol) (nlit, ndist int, litLen, distLen [286]uint8, clSyms []clSym, clLen [huffman.NumCLCodes]uint8, nlcc int, totalBits int64) {
	litFreq := e.litFreq
	litFreq[huffman.EndOfBlock] = 1
	distFreq := e.distFreq

	nlit = 257
	for i := len(litFreq) - 1; i >= 257; i-- {
		if litFreq[i] > 0 {
			nlit = i + 1
			break
		}
	}
	ndist = 1
	for i := len(distFreq) - 1; i >= 1; i-- {
		if distFreq[i] > 0 {
			ndist = i + 1
			break
		}
	}

	ll := huffman.BuildLengths(litFreq[:nlit], huffman.MaxCodeLen)
	dl := huffman.BuildLengths(distFreq[:ndist], huffman.MaxCodeLen)
	copy(litLen[:], ll)
	copy(distLen[:], dl)

	concat := make([]uint8, 0, nlit+ndist)
	concat = append(concat, ll...)
	concat = append(concat, dl...)
	clSyms, clFreq := runLengthEncodeLengths(concat)

	cl := huffman.BuildLengths(clFreq[:], 7)
	copy(clLen[:], cl)

	nlcc = 4
	for i := len(huffman.CodeLengthOrder) - 1; i >= 0; i-- {
		if clLen[huffman.CodeLengthOrder[i]] != 0 {
			nlcc = i + 1
			break
		}
	}
	if nlcc < 4 {
		nlcc = 4
	}

	bits := int64(3 + 5 + 5 + 4 + 3*nlcc)
	for _, t := range clSyms {
		bits += int64(clLen[t.sym]) + int64(t.nbits)
	}
	for sym, f := range litFreq[:nlit] {
		bits += int64(f) * int64(ll[sym])
	}
	for sym, f := range distFreq[:ndist] {
		bits += int64(f) * int64(dl[sym])
	}
	for _, s := range syms {
		if s.isMatch {
			lc := lengthCode(s.length)
			dc := distCode(s.dist)
			bits += int64(huffman.LengthExtraBits[lc]) + int64(huffman.DistExtraBits[dc])
		}
	}
	return nlit, ndist, litLen, distLen, clSyms, clLen, nlcc, bits
}

func (e *Encoder) writeFixedBlock(final bool, syms []symbol) {
	var bf uint32
	if final {
		bf = 1
	}
	e.out.WriteBits(bf|1<<1, 3)
	for _, s := range syms {
		if !s.isMatch {
			e.out.WriteBits(uint32(fixedLitCodes[s.lit]), uint(huffman.FixedLitLengths[s.lit]))
			continue
		}
		lc := lengthCode(s.length)
		e.out.WriteBits(uint32(fixedLitCodes[257+lc]), uint(huffman.FixedLitLengths[257+lc]))
		if n := huffman.LengthExtraBits[lc]; n > 0 {
			e.out.WriteBits(uint32(s.length-huffman.LengthBase[lc]), n)
		}
		dc := distCode(s.dist)
		e.out.WriteBits(uint32(fixedDistCodes[dc]), uint(huffman.FixedDistLengths[dc]))
		if n := huffman.DistExtraBits[dc]; n > 0 {
			e.out.WriteBits(uint32(s.dist-huffman.DistBase[dc]), n)
		}
	}
	e.out.WriteBits(uint32(fixedLitCodes[huffman.EndOfBlock]), uint(huffman.FixedLitLengths[huffman.EndOfBlock]))
}

func (e *Encoder) writeDynamicBlock(final bool, syms []symbol, litLen, distLen []uint8, nlcc int, clSyms []clSym, clLen [huffman.NumCLCodes]uint8) {
	var bf uint32
	if final {
		bf = 1
	}
	e.out.WriteBits(bf|2<<1, 3)
	e.out.WriteBits(uint32(len(litLen)-257), 5)
	e.out.WriteBits(uint32(len(distLen)-1), 5)
	e.out.WriteBits(uint32(nlcc-4), 4)
	for i := 0; i < nlcc; i++ {
		e.out.WriteBits(uint32(clLen[huffman.CodeLengthOrder[i]]), 3)
	}

	litCodes := huffman.CanonicalCodes(litLen)
	distCodes := huffman.CanonicalCodes(distLen)
	clCodes := huffman.CanonicalCodes(clLen[:])

	for _, t := range clSyms {
		e.out.WriteBits(uint32(clCodes[t.sym]), uint(clLen[t.sym]))
		if t.nbits > 0 {
			e.out.WriteBits(uint32(t.extra), t.nbits)
		}
	}

	for _, s := range syms {
		if !s.isMatch {
			e.out.WriteBits(uint32(litCodes[s.lit]), uint(litLen[s.lit]))
			continue
		}
		lc := lengthCode(s.length)
		e.out.WriteBits(uint32(litCodes[257+lc]), uint(litLen[257+lc]))
		if n := huffman.LengthExtraBits[lc]; n > 0 {
			e.out.WriteBits(uint32(s.length-huffman.LengthBase[lc]), n)
		}
		dc := distCode(s.dist)
		e.out.WriteBits(uint32(distCodes[dc]), uint(distLen[dc]))
		if n := huffman.DistExtraBits[dc]; n > 0 {
			e.out.WriteBits(uint32(s.dist-huffman.DistBase[dc]), n)
		}
	}
	e.out.WriteBits(uint32(litCodes[huffman.EndOfBlock]), uint(litLen[huffman.EndOfBlock]))
}
