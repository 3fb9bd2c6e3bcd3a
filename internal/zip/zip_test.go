// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	gozip "archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/nullbyte-arc/zipflate/internal/checksum"
	"github.com/nullbyte-arc/zipflate/internal/deflate"
)

func crc32Of(p []byte) uint32 { return checksum.CRC32Of(p) }

// buildStdlibZip writes a small archive with archive/zip, the canonical
// implementation, so tests exercise interop rather than just round-tripping
// through this package's own writer.
func buildStdlibZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gozip.NewWriter(&buf)

	store, err := w.CreateHeader(&gozip.FileHeader{
		Name:     "hello.txt",
		Method:   gozip.Store,
		Modified: time.Date(2020, 3, 4, 5, 6, 8, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	store.Write([]byte("hello, world\n"))

	deflated, err := w.CreateHeader(&gozip.FileHeader{
		Name:     "dir/big.txt",
		Method:   gozip.Deflate,
		Modified: time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	deflated.Write(bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200))

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestVsStdlib(t *testing.T) {
	data := buildStdlibZip(t)

	stdlib, err := gozip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("stdlib reader: %v", err)
	}
	ours, err := New(data, ReadOptions{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if len(ours.Entries) != len(stdlib.File) {
		t.Fatalf("entry count: stdlib %d, ours %d", len(stdlib.File), len(ours.Entries))
	}

	for i, sf := range stdlib.File {
		of := ours.Entries[i]
		if of.Name != sf.Name {
			t.Errorf("entry %d name: stdlib %q, ours %q", i, sf.Name, of.Name)
		}
		if !of.MTime.Equal(sf.Modified.UTC()) {
			t.Errorf("%q mtime: stdlib %s, ours %s", sf.Name, sf.Modified.UTC(), of.MTime)
		}
		if of.UncompressedSize != int64(sf.UncompressedSize64) {
			t.Errorf("%q size: stdlib %d, ours %d", sf.Name, sf.UncompressedSize64, of.UncompressedSize)
		}

		sr, err := sf.Open()
		if err != nil {
			t.Fatalf("stdlib open %q: %v", sf.Name, err)
		}
		want, _ := io.ReadAll(sr)

		r, err := of.Open()
		if err != nil {
			t.Fatalf("Open %q: %v", of.Name, err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("reading %q: %v", of.Name, err)
		}
		if !bytes.Equal(want, got) {
			t.Errorf("%q: content mismatch", of.Name)
		}
	}
}

func TestWriteThenStdlibReads(t *testing.T) {
	plain := []byte("hello, world\n")
	big := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)
	compressed := deflate.Deflate(big, deflate.EncodeOptions{Level: 6, Mem: 8})

	data, err := Write([]WriteEntry{
		{
			Name:             "hello.txt",
			Data:             plain,
			Method:           MethodStore,
			CRC32:            crc32Of(plain),
			UncompressedSize: int64(len(plain)),
			MTime:            time.Date(2020, 3, 4, 5, 6, 8, 0, time.UTC),
		},
		{
			Name:             "dir/big.txt",
			Data:             compressed,
			Method:           MethodDeflate,
			CRC32:            crc32Of(big),
			UncompressedSize: int64(len(big)),
			MTime:            time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC),
		},
	}, WriteOptions{Comment: "a test archive"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := gozip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("stdlib rejects our archive: %v", err)
	}
	if r.Comment != "a test archive" {
		t.Errorf("comment: got %q", r.Comment)
	}
	if len(r.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(r.File))
	}

	for i, want := range [][]byte{plain, big} {
		rc, err := r.File[i].Open()
		if err != nil {
			t.Fatalf("open %q: %v", r.File[i].Name, err)
		}
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("entry %d: content mismatch", i)
		}
	}
}

func TestEOCD(t *testing.T) {
	data := buildStdlibZip(t)

	eocd, err := getEOCD(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(eocd, []byte("PK\x05\x06")) {
		t.Fatalf("expected EOCD signature, got % x", eocd[:4])
	}
	if !bytes.HasSuffix(data, eocd) {
		t.Fatal("EOCD is not the archive's final bytes")
	}

	// Must not read before the EOCD even when offered only the EOCD itself.
	restricted := bytes.NewReader(eocd)
	eocd2, err := getEOCD(restricted, restricted.Size())
	if err != nil {
		t.Fatalf("read beyond bounds: %v", err)
	}
	if !bytes.Equal(eocd, eocd2) {
		t.Fatal("EOCD mismatch on restricted re-read")
	}
}

func TestEOCDWithComment(t *testing.T) {
	var buf bytes.Buffer
	w := gozip.NewWriter(&buf)
	f, _ := w.Create("only.txt")
	f.Write([]byte("x"))
	w.SetComment("trailing comment, not a PK\\x05\\x06 lookalike")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	zr, err := New(buf.Bytes(), ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if zr.Comment == "" {
		t.Fatal("expected a non-empty archive comment")
	}
}

func TestFilter(t *testing.T) {
	data := buildStdlibZip(t)
	zr, err := New(data, ReadOptions{
		Filter: func(name string, _, _ int64, _ CompressionMethod) bool {
			return name == "hello.txt"
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.Entries) != 1 || zr.Entries[0].Name != "hello.txt" {
		t.Fatalf("filter did not restrict entries: %+v", zr.Entries)
	}
}

func TestChecksumMismatch(t *testing.T) {
	plain := []byte("hello, world\n")
	data, err := Write([]WriteEntry{{
		Name:             "bad.txt",
		Data:             plain,
		Method:           MethodStore,
		CRC32:            crc32Of(plain) ^ 1, // corrupt
		UncompressedSize: int64(len(plain)),
		MTime:            time.Now(),
	}}, WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}

	zr, err := New(data, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := zr.Entries[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("expected a checksum error")
	}
}
