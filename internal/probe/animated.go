package probe

import (
	"bytes"
	"encoding/binary"
	"image/gif"
	"io"
	"os"
	"strings"
)

// IsAnimated reports whether an image file decodes to more than one frame.
// Only container-level checks are done; a failed probe means "not animated".
func IsAnimated(path, mimeType string) bool {
	switch {
	case strings.EqualFold(mimeType, "image/gif"):
		return gifFrameCount(path) > 1
	case strings.EqualFold(mimeType, "image/webp"):
		return webpHasAnimation(path)
	case strings.EqualFold(mimeType, "image/png"):
		return pngHasAnimationControl(path)
	default:
		return false
	}
}

func gifFrameCount(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return 0
	}
	return len(g.Image)
}

// webpHasAnimation walks the RIFF chunk list looking for an ANIM chunk.
func webpHasAnimation(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WEBP")) {
		return false
	}

	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, chunk); err != nil {
			return false
		}
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		if bytes.Equal(chunk[0:4], []byte("ANIM")) {
			return true
		}
		// Chunks are padded to even sizes.
		if size%2 == 1 {
			size++
		}
		if _, err := f.Seek(size, io.SeekCurrent); err != nil {
			return false
		}
	}
}

// pngHasAnimationControl reports an APNG acTL chunk before the first IDAT.
func pngHasAnimationControl(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 256<<10)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false
	}
	head = head[:n]

	actl := bytes.Index(head, []byte("acTL"))
	idat := bytes.Index(head, []byte("IDAT"))
	return actl >= 0 && (idat < 0 || actl < idat)
}
