// Package probe extracts technical metadata from media files and renders
// derived artifacts: EXIF via goexif, video streams via ffprobe, thumbnails
// and blur placeholders via in-process image codecs with an ffmpeg fallback.
package probe
