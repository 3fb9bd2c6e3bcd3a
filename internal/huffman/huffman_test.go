// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package huffman

import "testing"

func TestBuildLengthsSingleSymbol(t *testing.T) {
	freqs := make([]uint32, 4)
	freqs[2] = 7
	lengths := BuildLengths(freqs, MaxCodeLen)
	if lengths[2] != 1 {
		t.Fatalf("single-symbol code length = %d, want 1", lengths[2])
	}
	for i, l := range lengths {
		if i != 2 && l != 0 {
			t.Errorf("unused symbol %d got length %d", i, l)
		}
	}
}

func TestBuildLengthsSatisfiesKraft(t *testing.T) {
	freqs := []uint32{1, 1, 2, 3, 5, 8, 13, 21, 0, 1}
	lengths := BuildLengths(freqs, MaxCodeLen)

	var sum float64
	for i, l := range lengths {
		if l == 0 {
			if freqs[i] != 0 {
				t.Errorf("symbol %d has frequency but no code", i)
			}
			continue
		}
		sum += 1.0 / float64(uint64(1)<<l)
	}
	if sum > 1.0001 {
		t.Errorf("Kraft sum %v exceeds 1", sum)
	}

	var fixed DecodeTable
	if !fixed.Init(lengths) {
		t.Fatal("lengths do not form a valid canonical code")
	}
}

func TestBuildLengthsRespectsMaxBits(t *testing.T) {
	freqs := make([]uint32, 32)
	for i := range freqs {
		freqs[i] = uint32(1 << uint(i%10))
	}
	const cap = 7
	lengths := BuildLengths(freqs, cap)
	for sym, l := range lengths {
		if int(l) > cap {
			t.Errorf("symbol %d has length %d, exceeds cap %d", sym, l, cap)
		}
	}
	var table DecodeTable
	if !table.Init(lengths) {
		t.Fatal("length-limited lengths did not form a valid code")
	}
}

func TestCanonicalCodesOrdering(t *testing.T) {
	lengths := []uint8{3, 3, 3, 3, 3, 2, 4, 4}
	codes := CanonicalCodes(lengths)
	if len(codes) != len(lengths) {
		t.Fatalf("length mismatch: %d codes for %d lengths", len(codes), len(lengths))
	}

	var table DecodeTable
	if !table.Init(lengths) {
		t.Fatal("lengths are not canonical-valid")
	}
	for sym, l := range lengths {
		gotSym, gotLen, ok := table.Decode(uint32(codes[sym]), uint(l))
		if !ok {
			t.Fatalf("symbol %d: decode failed for code %b length %d", sym, codes[sym], l)
		}
		if gotSym != sym || int(gotLen) != int(l) {
			t.Errorf("symbol %d: decoded (%d, %d), want (%d, %d)", sym, gotSym, gotLen, sym, l)
		}
	}
}

func TestFixedTablesDecodeOwnCodes(t *testing.T) {
	codes := CanonicalCodes(FixedLitLengths[:])
	for sym, l := range FixedLitLengths {
		if l == 0 {
			continue
		}
		gotSym, gotLen, ok := FixedLit.Decode(uint32(codes[sym]), uint(l))
		if !ok || gotSym != sym || int(gotLen) != int(l) {
			t.Errorf("fixed literal %d: got (%d,%d,%v)", sym, gotSym, gotLen, ok)
		}
	}
}

func TestDecodeTableRejectsOversubscribedLengths(t *testing.T) {
	// Three symbols claiming the two available 1-bit codes: over-subscribed.
	var table DecodeTable
	if table.Init([]uint8{1, 1, 1}) {
		t.Fatal("expected an over-subscribed code to be rejected")
	}
}

func TestDecodeNeedsMoreBits(t *testing.T) {
	lengths := []uint8{3, 3, 3, 3, 3, 2, 4, 4}
	var table DecodeTable
	if !table.Init(lengths) {
		t.Fatal("lengths did not form a valid code")
	}
	codes := CanonicalCodes(lengths)
	// Present only 1 of the 4 bits a length-4 code needs.
	_, _, ok := table.Decode(uint32(codes[6])&1, 1)
	if ok {
		t.Fatal("expected Decode to report insufficient bits")
	}
}
