// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package deflate

import (
	"bytes"
	"compress/flate"
	"io"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"empty":      {},
		"short":      []byte("hi"),
		"text":       []byte("the quick brown fox jumps over the lazy dog"),
		"repetitive": bytes.Repeat([]byte("abcabcabcabc"), 500),
		"binary":     randomBytes(4096, 1),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			for level := 0; level <= 9; level++ {
				compressed := Deflate(data, EncodeOptions{Level: level, Mem: 8})
				got, err := Inflate(compressed, DecodeOptions{})
				if err != nil {
					t.Fatalf("level %d: Inflate: %v", level, err)
				}
				if !bytes.Equal(got, data) {
					t.Fatalf("level %d: round trip mismatch (got %d bytes, want %d)", level, len(got), len(data))
				}
			}
		})
	}
}

func TestInflateAcceptsStdlibOutput(t *testing.T) {
	data := bytes.Repeat([]byte("mississippi river boat"), 300)
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	w.Write(data)
	w.Close()

	got, err := Inflate(buf.Bytes(), DecodeOptions{})
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("our decoder disagrees with the standard library's encoder")
	}
}

func TestStdlibAcceptsOurOutput(t *testing.T) {
	data := bytes.Repeat([]byte("mississippi river boat"), 300)
	compressed := Deflate(data, EncodeOptions{Level: 6, Mem: 8})

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("stdlib reader rejected our output: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("standard library disagrees with our encoder")
	}
}

func TestDictionary(t *testing.T) {
	dict := []byte("common preamble shared across many small messages ")
	data := []byte("common preamble shared across many small messages, plus a twist")

	compressed := Deflate(data, EncodeOptions{Level: 6, Mem: 8, Dictionary: dict})
	got, err := Inflate(compressed, DecodeOptions{Dictionary: dict})
	if err != nil {
		t.Fatalf("Inflate with dictionary: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("dictionary round trip mismatch")
	}
}

func TestInvalidBlockTypeRejected(t *testing.T) {
	// BTYPE==3 in the first 3 bits (final bit set, type 3): 0b111 = 0x07.
	_, err := Inflate([]byte{0x07}, DecodeOptions{})
	if err == nil {
		t.Fatal("expected an error for BTYPE 3")
	}
}

func TestTruncatedStreamIsUnexpectedEOF(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 100)
	compressed := Deflate(data, EncodeOptions{Level: 6, Mem: 8})
	_, err := Inflate(compressed[:len(compressed)/2], DecodeOptions{})
	if err == nil {
		t.Fatal("expected truncated input to fail")
	}
}

func TestFeedFinishStreaming(t *testing.T) {
	parts := [][]byte{
		[]byte("first chunk of data "),
		[]byte("second chunk of data "),
		[]byte("third and final chunk"),
	}
	e := NewEncoder(EncodeOptions{Level: 6, Mem: 8})
	for i, p := range parts {
		e.Feed(p, i == len(parts)-1)
	}
	compressed := e.Finish()

	var want []byte
	for _, p := range parts {
		want = append(want, p...)
	}
	got, err := Inflate(compressed, DecodeOptions{})
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("streamed Feed/Finish round trip mismatch")
	}
}

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}
