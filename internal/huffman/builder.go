// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package huffman

import "sort"

type leaf struct {
	freq uint32
	sym  int
}

// BuildLengths computes canonical DEFLATE code lengths for the given symbol
// frequencies, capped at maxBits, such that more frequent symbols receive
// shorter or equal-length codes. Symbols with zero frequency get length 0
// (unused). The tree is built with the classic two-queue merge: i2 looks
// ahead into the frequency-sorted leaves, i0 looks behind into the queue of
// already-merged internal nodes (itself non-decreasing by construction, so
// the smallest unconsumed value is always at the front of one queue or the
// other).
func BuildLengths(freqs []uint32, maxBits int) []uint8 {
	lengths := make([]uint8, len(freqs))

	var leaves []leaf
	for sym, f := range freqs {
		if f > 0 {
			leaves = append(leaves, leaf{f, sym})
		}
	}
	m := len(leaves)
	if m == 0 {
		return lengths
	}
	if m == 1 {
		lengths[leaves[0].sym] = 1
		return lengths
	}

	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].freq != leaves[j].freq {
			return leaves[i].freq < leaves[j].freq
		}
		return leaves[i].sym < leaves[j].sym
	})

	freq := make([]uint32, m, 2*m-1)
	for i, lf := range leaves {
		freq[i] = lf.freq
	}
	parent := make([]int, m, 2*m-1)
	for i := range parent {
		parent[i] = -1
	}

	i2, i0 := 0, m
	pick := func() int {
		if i2 < m && (i0 >= len(freq) || freq[i2] <= freq[i0]) {
			idx := i2
			i2++
			return idx
		}
		idx := i0
		i0++
		return idx
	}

	for next := m; next < 2*m-1; next++ {
		a := pick()
		b := pick()
		parent[a] = next
		parent[b] = next
		freq = append(freq, freq[a]+freq[b])
		parent = append(parent, -1)
	}

	for i, lf := range leaves {
		depth := 0
		for p := i; parent[p] != -1; p = parent[p] {
			depth++
		}
		lengths[lf.sym] = uint8(depth)
	}

	limitLengths(lengths, leaves, maxBits)
	return lengths
}

// limitLengths caps the code lengths produced by BuildLengths at maxBits,
// redistributing the Kraft-inequality debt created by truncating over-long
// codes: fold every over-long code down to maxBits, then repeatedly borrow
// one unit of code space from the longest used length below maxBits until
// the (scaled) code-length histogram again sums to exactly 2^maxBits. This
// is the same debt-compensation idea as package-merge length limiting,
// expressed as a histogram correction instead of an explicit merge list.
func limitLengths(lengths []uint8, leaves []leaf, maxBits int) {
	maxLen := 0
	for _, lf := range leaves {
		if int(lengths[lf.sym]) > maxLen {
			maxLen = int(lengths[lf.sym])
		}
	}
	if maxLen <= maxBits {
		return
	}

	var count [MaxCodeLen + 1]int
	for _, lf := range leaves {
		l := int(lengths[lf.sym])
		if l > maxBits {
			l = maxBits
		}
		count[l]++
	}

	total := 0
	for l := maxBits; l >= 1; l-- {
		total += count[l] << uint(maxBits-l)
	}
	for total != 1<<uint(maxBits) {
		count[maxBits]--
		for l := maxBits - 1; l >= 1; l-- {
			if count[l] > 0 {
				count[l]--
				count[l+1] += 2
				break
			}
		}
		total--
	}

	// Most frequent symbols get the shortest available lengths.
	ordered := make([]leaf, len(leaves))
	copy(ordered, leaves)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].freq != ordered[j].freq {
			return ordered[i].freq > ordered[j].freq
		}
		return ordered[i].sym < ordered[j].sym
	})

	idx := 0
	for l := 1; l <= maxBits; l++ {
		for c := 0; c < count[l]; c++ {
			lengths[ordered[idx].sym] = uint8(l)
			idx++
		}
	}
}

// CanonicalCodes assigns each symbol its canonical code given the lengths,
// per RFC 1951 section 3.2.2, then bit-reverses each code into DEFLATE's
// LSB-first stream order using the 16-bit reverse primitive.
func CanonicalCodes(lengths []uint8) []uint16 {
	var count [MaxCodeLen + 1]int
	for _, l := range lengths {
		if l > 0 {
			count[l]++
		}
	}
	var next [MaxCodeLen + 2]int
	code := 0
	for l := 1; l <= MaxCodeLen; l++ {
		code = (code + count[l-1]) << 1
		next[l] = code
	}

	codes := make([]uint16, len(lengths))
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		c := next[l]
		next[l]++
		codes[sym] = uint16(reverseBits(uint32(c), uint(l)))
	}
	return codes
}
