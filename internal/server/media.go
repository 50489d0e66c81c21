/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/friendsincode/memorix/internal/models"
	"github.com/friendsincode/memorix/internal/probe"
	"github.com/friendsincode/memorix/internal/scan"
	"github.com/friendsincode/memorix/internal/storage"
)

// loadFile resolves a catalog row and a live backend for it.
func (s *Server) loadFile(r *http.Request) (*models.File, storage.Backend, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, nil, errBadRequest
	}

	var row models.File
	if err := s.db.WithContext(r.Context()).First(&row, "id = ?", uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errNotFound
		}
		return nil, nil, err
	}

	var st models.UserStorage
	if err := s.db.WithContext(r.Context()).First(&st, "id = ?", row.UserStorageID).Error; err != nil {
		return nil, nil, err
	}

	backend, err := storage.New(&st, s.logger)
	if err != nil {
		return nil, nil, err
	}
	return &row, backend, nil
}

var (
	errBadRequest = errors.New("invalid id")
	errNotFound   = errors.New("not found")
)

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		http.Error(w, "Invalid ID", http.StatusBadRequest)
	case errors.Is(err, errNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	default:
		s.logger.Error().Err(err).Msg("request failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// handleMedia serves the original object bytes.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	row, backend, err := s.loadFile(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	body, err := backend.Open(r.Context(), row.Path)
	if err != nil {
		s.fail(w, fmt.Errorf("open %s: %w", row.Path, err))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", row.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(row.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// handleThumb serves the derived thumbnail, regenerating it on a miss and
// falling back to the transparent placeholder when nothing can be produced.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	row, backend, err := s.loadFile(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	data, err := s.thumbBytes(r, row, backend)
	if err != nil {
		s.logger.Warn().Err(err).Uint("file_id", row.ID).Msg("thumbnail unavailable, serving placeholder")
		writeCachedImage(w, probe.Placeholder(), "image/png")
		return
	}
	writeCachedImage(w, data, "image/jpeg")
}

func (s *Server) thumbBytes(r *http.Request, row *models.File, backend storage.Backend) ([]byte, error) {
	artifact, err := backend.OpenArtifact(r.Context(), scan.ThumbKey(row.ID))
	if err == nil {
		defer artifact.Close()
		return io.ReadAll(artifact)
	}

	// Cache miss: regenerate from the source.
	local, cleanup, err := backend.Stage(r.Context(), row.Path, s.cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", row.Path, err)
	}
	defer cleanup()

	renderer := probe.Renderer{FFmpegBin: s.cfg.FFmpegBin, MaxWidth: s.cfg.ThumbMaxWidth}
	var thumb *probe.ThumbResult
	if row.MediaType == models.MediaVideo {
		thumb, _, err = renderer.RenderVideoPoster(r.Context(), local, nil)
	} else {
		thumb, err = renderer.RenderImageThumbnail(r.Context(), local)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", row.Path, err)
	}

	if err := backend.WriteArtifact(r.Context(), scan.ThumbKey(row.ID), thumb.Image); err != nil {
		s.logger.Warn().Err(err).Uint("file_id", row.ID).Msg("regenerated thumbnail not persisted")
	}
	return thumb.Image, nil
}

func writeCachedImage(w http.ResponseWriter, data []byte, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

var rangeSpec = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// handleStream serves the video component of a catalog row: the row itself
// for plain videos, the sidecar for paired live photos, or the embedded
// stream window for motion photos. Full range support; range arithmetic is
// relative to the video window, not the container file.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	row, backend, err := s.loadFile(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	target, offset, err := s.resolveStreamSource(r, row, backend)
	if err != nil {
		s.fail(w, err)
		return
	}

	entry, err := backend.Stat(r.Context(), target)
	if err != nil {
		s.fail(w, errNotFound)
		return
	}
	if offset < 0 || offset >= entry.Size {
		s.fail(w, fmt.Errorf("offset %d outside object of %d bytes", offset, entry.Size))
		return
	}
	videoSize := entry.Size - offset

	contentType := streamContentType(target, row.MimeType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		body, err := backend.OpenRange(r.Context(), target, offset, -1)
		if err != nil {
			s.fail(w, err)
			return
		}
		defer body.Close()
		w.Header().Set("Content-Length", strconv.FormatInt(videoSize, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
		return
	}

	start, end, ok := parseRange(rangeHeader, videoSize)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", videoSize))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}
	chunk := end - start + 1

	body, err := backend.OpenRange(r.Context(), target, offset+start, chunk)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, videoSize))
	w.Header().Set("Content-Length", strconv.FormatInt(chunk, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = io.Copy(w, body)
}

// resolveStreamSource picks the object and byte offset holding the video.
// Embedded offsets are re-verified against the live object because the
// backing file may have changed since the scan stored them.
func (s *Server) resolveStreamSource(r *http.Request, row *models.File, backend storage.Backend) (string, int64, error) {
	if row.MediaType == models.MediaVideo {
		return row.Path, 0, nil
	}

	var photo models.PhotoMetadata
	if err := s.db.WithContext(r.Context()).First(&photo, "file_id = ?", row.ID).Error; err != nil {
		return "", 0, errNotFound
	}

	switch {
	case photo.LiveType == models.LivePaired && photo.PairedPath != nil:
		return *photo.PairedPath, 0, nil
	case photo.LiveType == models.LiveEmbedded && photo.VideoOffset != nil:
		entry, err := backend.Stat(r.Context(), row.Path)
		if err != nil {
			return "", 0, errNotFound
		}
		reader := storage.ReaderAt(r.Context(), backend, row.Path)
		resolved, warned := scan.ResolveOffset(reader, entry.Size, *photo.VideoOffset)
		if warned {
			s.logger.Warn().Uint("file_id", row.ID).Int64("claimed", *photo.VideoOffset).
				Int64("resolved", resolved).Msg("embedded offset unverified at serve time")
		}
		return row.Path, resolved, nil
	default:
		return "", 0, errNotFound
	}
}

// streamContentType biases toward playable types: quicktime containers are
// announced as mp4 so browsers attempt playback instead of downloading.
func streamContentType(target, rowMime string) string {
	switch strings.ToLower(path.Ext(target)) {
	case ".webm":
		return "video/webm"
	case ".mov", ".qt":
		return "video/mp4"
	}
	if strings.HasPrefix(rowMime, "video/") {
		return rowMime
	}
	return "video/mp4"
}

// parseRange interprets an RFC 7233 byte range against the video window.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	match := rangeSpec.FindStringSubmatch(header)
	if match == nil {
		return 0, 0, false
	}
	startPart, endPart := match[1], match[2]
	if startPart == "" && endPart == "" {
		return 0, 0, false
	}

	if startPart == "" {
		suffix, err := strconv.ParseInt(endPart, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, false
		}
		start = size - suffix
		if start < 0 {
			start = 0
		}
		return start, size - 1, true
	}

	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil || start >= size {
		return 0, 0, false
	}
	end = size - 1
	if endPart != "" {
		end, err = strconv.ParseInt(endPart, 10, 64)
		if err != nil || start > end {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true
}
