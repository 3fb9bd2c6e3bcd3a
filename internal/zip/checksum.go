// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"fmt"
	"io"

	"github.com/nullbyte-arc/zipflate/internal/checksum"
)

// newChecksumReader wraps an io.Reader and checks its CRC-32 once fully
// read, using this module's own internal/checksum implementation instead
// of hash/crc32.
func newChecksumReader(r io.Reader, name string, want uint32) io.Reader {
	return &checksumReader{r: r, name: name, want: want, sum: checksum.NewCRC32()}
}

type checksumReader struct {
	r      io.Reader
	name   string
	want   uint32
	sum    *checksum.CRC32
	failed bool
}

func (r *checksumReader) Read(p []byte) (int, error) {
	if r.failed {
		return 0, fmt.Errorf("%w: %q", ErrChecksum, r.name)
	}
	n, err := r.r.Read(p)
	if n > 0 {
		r.sum.Push(p[:n])
	}
	if err == io.EOF {
		if r.sum.Digest() != r.want {
			r.failed = true
			return n, fmt.Errorf("%w: %q", ErrChecksum, r.name)
		}
	}
	return n, err
}
