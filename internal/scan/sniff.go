/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"bytes"
	"io"
)

const (
	sniffWindow = 32

	// The ftyp box tag sits at byte 4 of a valid ISO-BMFF segment; some
	// encoders shift it a few bytes.
	ftypMin = 4
	ftypMax = 16
)

var ftypTag = []byte("ftyp")

// ResolveOffset disambiguates a claimed embedded video offset. Cameras
// disagree on whether the offset counts from the start or the end of the
// file, so the claimed position is probed for a start-of-stream marker
// first, then the complementary end-relative position. When neither probe
// succeeds the end-relative interpretation wins anyway; warned is true so
// the caller can log it. Pure function of its inputs.
func ResolveOffset(r io.ReaderAt, size, claimed int64) (offset int64, warned bool) {
	if probeFtyp(r, size, claimed) {
		return claimed, false
	}
	complement := size - claimed
	if complement > 0 && complement < size && probeFtyp(r, size, complement) {
		return complement, false
	}
	return complement, true
}

// probeFtyp reads a small window at the candidate offset and searches for
// the ftyp tag at a plausible index.
func probeFtyp(r io.ReaderAt, size, offset int64) bool {
	if offset <= 0 || offset >= size {
		return false
	}
	window := make([]byte, sniffWindow)
	if size-offset < sniffWindow {
		window = window[:size-offset]
	}
	n, err := r.ReadAt(window, offset)
	if err != nil && err != io.EOF {
		return false
	}
	idx := bytes.Index(window[:n], ftypTag)
	return idx >= ftypMin && idx <= ftypMax
}
