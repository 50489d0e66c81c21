package probe

import (
	"io"
	"os"
	"regexp"
	"strconv"
)

// Motion photo XMP markers land inside an APP1 segment near the start of the
// file, so a bounded head read is enough.
const motionScanWindow = 2 << 20

var (
	microVideoAttr    = regexp.MustCompile(`MicroVideoOffset="(\d+)"`)
	microVideoElement = regexp.MustCompile(`MicroVideoOffset>(\d+)<`)
)

// DetectEmbeddedOffset scans an image file's head for a declared motion
// photo video offset. The returned value is the camera's claimed offset,
// whose start-vs-end interpretation the offset sniffer resolves.
func DetectEmbeddedOffset(path string) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	head := make([]byte, motionScanWindow)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, false
	}
	head = head[:n]

	for _, re := range []*regexp.Regexp{microVideoAttr, microVideoElement} {
		if m := re.FindSubmatch(head); m != nil {
			offset, err := strconv.ParseInt(string(m[1]), 10, 64)
			if err == nil && offset > 0 {
				return offset, true
			}
		}
	}
	return 0, false
}
