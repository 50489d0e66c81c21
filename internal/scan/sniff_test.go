/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"bytes"
	"testing"
)

// fileWithFtyp builds a buffer of the given size with an ftyp tag placed at
// byte 4 of each listed segment offset, the way a camera appends an ISO-BMFF
// stream after the still image.
func fileWithFtyp(size int64, segments ...int64) *bytes.Reader {
	buf := make([]byte, size)
	for _, off := range segments {
		copy(buf[off+4:], "ftyp")
	}
	return bytes.NewReader(buf)
}

func TestResolveOffsetStartRelative(t *testing.T) {
	r := fileWithFtyp(10000, 500)

	offset, warned := ResolveOffset(r, 10000, 500)
	if offset != 500 {
		t.Fatalf("offset = %d, want 500", offset)
	}
	if warned {
		t.Fatal("expected no warning for a valid start-relative offset")
	}
}

func TestResolveOffsetEndRelative(t *testing.T) {
	// Claimed 500 in a 10000-byte file, stream actually at 9500.
	r := fileWithFtyp(10000, 9500)

	offset, warned := ResolveOffset(r, 10000, 500)
	if offset != 9500 {
		t.Fatalf("offset = %d, want 9500", offset)
	}
	if warned {
		t.Fatal("expected no warning when the complement probe succeeds")
	}
}

func TestResolveOffsetAmbiguousPrefersStart(t *testing.T) {
	r := fileWithFtyp(10000, 500, 9500)

	offset, warned := ResolveOffset(r, 10000, 500)
	if offset != 500 || warned {
		t.Fatalf("got (%d, %v), want (500, false)", offset, warned)
	}
}

func TestResolveOffsetNeitherProbeSucceeds(t *testing.T) {
	r := bytes.NewReader(make([]byte, 10000))

	offset, warned := ResolveOffset(r, 10000, 500)
	if offset != 9500 {
		t.Fatalf("offset = %d, want end-relative fallback 9500", offset)
	}
	if !warned {
		t.Fatal("expected a warning when neither probe succeeds")
	}
}

func TestResolveOffsetDeterministic(t *testing.T) {
	r := fileWithFtyp(10000, 9500)
	for i := 0; i < 3; i++ {
		offset, warned := ResolveOffset(r, 10000, 500)
		if offset != 9500 || warned {
			t.Fatalf("run %d: got (%d, %v), want (9500, false)", i, offset, warned)
		}
	}
}

func TestProbeFtypRejectsMisplacedTag(t *testing.T) {
	buf := make([]byte, 1000)
	copy(buf[500+20:], "ftyp") // past the plausible index range
	r := bytes.NewReader(buf)

	if probeFtyp(r, 1000, 500) {
		t.Fatal("tag outside the ftyp index range should not match")
	}
}

func TestProbeFtypNearEOF(t *testing.T) {
	// Segment starts 12 bytes before EOF; window must clip, not fail.
	buf := make([]byte, 1000)
	copy(buf[988+4:], "ftyp")
	r := bytes.NewReader(buf)

	if !probeFtyp(r, 1000, 988) {
		t.Fatal("expected a clipped window to still find the tag")
	}
}
