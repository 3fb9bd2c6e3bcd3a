// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zipflate_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/nullbyte-arc/zipflate"
	"github.com/nullbyte-arc/zipflate/internal/zipcache"
)

func buildTree() *zipflate.Node {
	return &zipflate.Node{
		Children: []zipflate.Child{
			{Name: "readme.txt", Node: &zipflate.Node{
				Bytes: []byte("hello from the archive\n"),
			}},
			{Name: "src", Node: &zipflate.Node{
				Children: []zipflate.Child{
					{Name: "main.go", Node: &zipflate.Node{
						Bytes: bytes.Repeat([]byte("package main\n"), 50),
					}},
					{Name: "data.bin", Node: &zipflate.Node{
						Bytes:   []byte{0x00, 0x01, 0x02, 0x03},
						Options: zipflate.NodeOptions{Compression: "store"},
					}},
				},
			}},
		},
	}
}

func TestZipUnzipRoundTrip(t *testing.T) {
	archive, err := zipflate.Zip(buildTree(), zipflate.ZipOptions{
		MTime:   time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC),
		Comment: "test archive",
	})
	if err != nil {
		t.Fatalf("Zip: %v", err)
	}

	r, err := zipflate.Unzip(archive, zipflate.UnzipOptions{})
	if err != nil {
		t.Fatalf("Unzip: %v", err)
	}
	if r.Comment != "test archive" {
		t.Errorf("comment: got %q", r.Comment)
	}

	byName := map[string]*zipflate.Entry{}
	for _, e := range r.Entries {
		byName[e.Name] = e
	}

	for name, want := range map[string][]byte{
		"readme.txt":   []byte("hello from the archive\n"),
		"src/main.go":  bytes.Repeat([]byte("package main\n"), 50),
		"src/data.bin": {0x00, 0x01, 0x02, 0x03},
	} {
		e, ok := byName[name]
		if !ok {
			t.Fatalf("missing entry %q; have %v", name, keysOf(byName))
		}
		reader, err := e.Open()
		if err != nil {
			t.Fatalf("Open %q: %v", name, err)
		}
		got, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("reading %q: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%q: content mismatch", name)
		}
	}

	if byName["src/data.bin"].Method != zipflate.MethodStore {
		t.Errorf("expected data.bin to be stored, method=%v", byName["src/data.bin"].Method)
	}
	if byName["readme.txt"].Method != zipflate.MethodDeflate {
		t.Errorf("expected readme.txt to be deflated, method=%v", byName["readme.txt"].Method)
	}
}

func TestUnzipWithCache(t *testing.T) {
	archive, err := zipflate.Zip(buildTree(), zipflate.ZipOptions{})
	if err != nil {
		t.Fatal(err)
	}
	cache := zipcache.New(16)

	r, err := zipflate.Unzip(archive, zipflate.UnzipOptions{Cache: cache})
	if err != nil {
		t.Fatal(err)
	}
	var target *zipflate.Entry
	for _, e := range r.Entries {
		if e.Name == "readme.txt" {
			target = e
		}
	}
	if target == nil {
		t.Fatal("readme.txt not found")
	}

	first, err := target.Open()
	if err != nil {
		t.Fatal(err)
	}
	firstData, _ := io.ReadAll(first)

	second, err := target.Open()
	if err != nil {
		t.Fatal(err)
	}
	secondData, _ := io.ReadAll(second)

	if !bytes.Equal(firstData, secondData) {
		t.Fatal("cached reopen produced different bytes")
	}
}

func TestGlobFilter(t *testing.T) {
	archive, err := zipflate.Zip(buildTree(), zipflate.ZipOptions{})
	if err != nil {
		t.Fatal(err)
	}

	filter, err := zipflate.GlobFilter([]string{"src/*.go"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := zipflate.Unzip(archive, zipflate.UnzipOptions{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Entries) != 1 || r.Entries[0].Name != "src/main.go" {
		t.Fatalf("unexpected filtered entries: %+v", r.Entries)
	}
}

func TestZipEmptyArchive(t *testing.T) {
	archive, err := zipflate.Zip(&zipflate.Node{Children: []zipflate.Child{}}, zipflate.ZipOptions{})
	if err != nil {
		t.Fatalf("Zip: %v", err)
	}
	if len(archive) != 22 {
		t.Fatalf("expected a 22-byte empty archive, got %d bytes", len(archive))
	}
	const eocdSignature = "PK\x05\x06"
	if string(archive[:4]) != eocdSignature {
		t.Fatalf("missing EOCD signature: % x", archive[:4])
	}

	r, err := zipflate.Unzip(archive, zipflate.UnzipOptions{})
	if err != nil {
		t.Fatalf("Unzip: %v", err)
	}
	if len(r.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(r.Entries))
	}
}

func TestZipUTF8Names(t *testing.T) {
	tree := &zipflate.Node{
		Children: []zipflate.Child{
			{Name: "ファイル.txt", Node: &zipflate.Node{Bytes: []byte("HELLO")}},
			{Name: "✅☺👍.txt", Node: &zipflate.Node{Bytes: []byte("HELLO")}},
		},
	}
	archive, err := zipflate.Zip(tree, zipflate.ZipOptions{})
	if err != nil {
		t.Fatalf("Zip: %v", err)
	}
	r, err := zipflate.Unzip(archive, zipflate.UnzipOptions{})
	if err != nil {
		t.Fatalf("Unzip: %v", err)
	}
	names := map[string]bool{}
	for _, e := range r.Entries {
		names[e.Name] = true
	}
	for _, want := range []string{"ファイル.txt", "✅☺👍.txt"} {
		if !names[want] {
			t.Errorf("missing round-tripped name %q; have %v", want, names)
		}
	}
}

func TestZipMTimeBoundaries(t *testing.T) {
	tree := &zipflate.Node{Children: []zipflate.Child{
		{Name: "f.txt", Node: &zipflate.Node{Bytes: []byte("x")}},
	}}

	for _, ok := range []time.Time{
		time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2099, 12, 31, 23, 59, 58, 0, time.UTC),
	} {
		if _, err := zipflate.Zip(tree, zipflate.ZipOptions{MTime: ok}); err != nil {
			t.Errorf("mtime %v: unexpected error: %v", ok, err)
		}
	}

	for _, bad := range []time.Time{
		time.Date(1979, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, err := zipflate.Zip(tree, zipflate.ZipOptions{MTime: bad})
		if err == nil {
			t.Fatalf("mtime %v: expected InvalidDate error", bad)
		}
		if code, ok := zipflate.CodeOf(err); !ok || code != zipflate.ErrInvalidDate {
			t.Errorf("mtime %v: got code %v, want ErrInvalidDate", bad, code)
		}
	}
}

func TestUnzipInvalidData(t *testing.T) {
	_, err := zipflate.Unzip([]byte("PK: This is not a zip file."), zipflate.UnzipOptions{})
	if err == nil {
		t.Fatal("expected an error for non-zip input")
	}
	if code, ok := zipflate.CodeOf(err); !ok || code != zipflate.ErrInvalidZipData {
		t.Errorf("got code %v, want ErrInvalidZipData", code)
	}
}

func keysOf(m map[string]*zipflate.Entry) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
