// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package checksum

import "testing"

// Published test vectors: "123456789" is the standard CRC/Adler check string.
func TestCRC32PublishedVector(t *testing.T) {
	if got := CRC32Of([]byte("123456789")); got != 0xCBF43926 {
		t.Errorf("CRC32Of(\"123456789\") = %#x, want 0xCBF43926", got)
	}
}

func TestCRC32Empty(t *testing.T) {
	if got := CRC32Of(nil); got != 0 {
		t.Errorf("CRC32Of(nil) = %#x, want 0", got)
	}
}

func TestCRC32StreamingMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	c := NewCRC32()
	c.Push(data[:10])
	c.Push(data[10:])
	if got, want := c.Digest(), CRC32Of(data); got != want {
		t.Errorf("streaming digest %#x != one-shot %#x", got, want)
	}
}

func TestAdler32PublishedVector(t *testing.T) {
	if got := Adler32Of([]byte("Wikipedia")); got != 0x11E60398 {
		t.Errorf("Adler32Of(\"Wikipedia\") = %#x, want 0x11E60398", got)
	}
}

func TestAdler32Empty(t *testing.T) {
	if got := Adler32Of(nil); got != 1 {
		t.Errorf("Adler32Of(nil) = %#x, want 1", got)
	}
}

func TestAdler32LargeInputReduces(t *testing.T) {
	// Exercise the adlerMaxChunk reduction boundary.
	data := make([]byte, adlerMaxChunk*3+17)
	for i := range data {
		data[i] = byte(i)
	}
	s := NewAdler32()
	s.Push(data)
	if got, want := s.Digest(), Adler32Of(data); got != want {
		t.Errorf("chunked digest %#x != one-shot %#x", got, want)
	}
}
