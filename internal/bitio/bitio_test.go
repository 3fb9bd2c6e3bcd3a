// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package bitio

import "testing"

func TestLittleEndianRoundTrip(t *testing.T) {
	b := make([]byte, 8)
	WriteU16LE(b, 0xbeef)
	if got := ReadU16LE(b); got != 0xbeef {
		t.Errorf("u16: got %#x", got)
	}
	WriteU32LE(b, 0xdeadbeef)
	if got := ReadU32LE(b); got != 0xdeadbeef {
		t.Errorf("u32: got %#x", got)
	}
	WriteU64LE(b, 0x0102030405060708)
	if got := ReadU64LE(b); got != 0x0102030405060708 {
		t.Errorf("u64: got %#x, want %#x", got, uint64(0x0102030405060708))
	}
}

func TestWriteVariableLE(t *testing.T) {
	buf := make([]byte, 8)
	n := WriteVariableLE(buf, 0, 0)
	if n != 1 || buf[0] != 0 {
		t.Fatalf("zero value: n=%d buf=%v", n, buf[:n])
	}
	n = WriteVariableLE(buf, 0, 0x1234)
	if n != 2 {
		t.Fatalf("expected 2 bytes, got %d", n)
	}
	if ReadU16LE(buf) != 0x1234 {
		t.Fatalf("got %#x", ReadU16LE(buf))
	}
}

func TestReaderWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteBits(0x5, 3)   // 101
	w.WriteBits(0x2a, 7)  // arbitrary 7-bit value
	w.WriteBitsWide(0xdeadbeef&0x1ffff, 17)
	w.AlignByte()
	w.WriteBytes([]byte{0xaa, 0xbb, 0xcc})

	r := NewReader(w.Bytes())
	if v, err := r.ReadBits(3); err != nil || v != 0x5 {
		t.Fatalf("field 1: v=%d err=%v", v, err)
	}
	if v, err := r.ReadBits(7); err != nil || v != 0x2a {
		t.Fatalf("field 2: v=%d err=%v", v, err)
	}
	if v, err := r.ReadBits(17); err != nil || v != 0xdeadbeef&0x1ffff {
		t.Fatalf("field 3: v=%#x err=%v", v, err)
	}
	r.AlignByte()
	tail := make([]byte, 3)
	for i := range tail {
		v, err := r.ReadBits(8)
		if err != nil {
			t.Fatal(err)
		}
		tail[i] = byte(v)
	}
	want := []byte{0xaa, 0xbb, 0xcc}
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("tail[%d] = %#x, want %#x", i, tail[i], want[i])
		}
	}
}

func TestPeekBitsDoesNotAdvance(t *testing.T) {
	w := NewWriter()
	w.WriteBits(0x7, 3)
	w.WriteBits(0x1, 1)
	r := NewReader(w.Bytes())
	a, err := r.PeekBits(4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.PeekBits(4)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("PeekBits advanced the cursor: %d != %d", a, b)
	}
	if a != 0xf {
		t.Fatalf("got %#x, want 0xf", a)
	}
}

func TestReadBitsUnexpectedEOF(t *testing.T) {
	r := NewReader([]byte{0x01})
	r.Skip(8)
	if _, err := r.ReadBits(8); err != ErrUnexpectedEOF {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestBitsToBytesCeil(t *testing.T) {
	cases := map[int64]int64{0: 0, 1: 1, 7: 1, 8: 1, 9: 2, 16: 2, 17: 3}
	for in, want := range cases {
		if got := BitsToBytesCeil(in); got != want {
			t.Errorf("BitsToBytesCeil(%d) = %d, want %d", in, got, want)
		}
	}
}
