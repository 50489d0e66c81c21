/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/memorix/internal/config"
	"github.com/friendsincode/memorix/internal/events"
	"github.com/friendsincode/memorix/internal/logbuffer"
	"github.com/friendsincode/memorix/internal/models"
	"github.com/friendsincode/memorix/internal/scan"
)

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.UserStorage{}, &models.File{}, &models.PhotoMetadata{}, &models.VideoMetadata{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Environment:   "test",
		HTTPBind:      "127.0.0.1",
		HTTPPort:      0,
		FFmpegBin:     "ffmpeg",
		FFprobeBin:    "ffprobe",
		TempDir:       t.TempDir(),
		ThumbMaxWidth: 960,
	}

	bus := events.NewBus()
	logBuf := logbuffer.New(256)
	scans := scan.NewService(db, cfg, bus, zerolog.Nop())
	return New(cfg, db, bus, scans, logBuf, zerolog.Nop()), db
}

func seedLocalStorage(t *testing.T, db *gorm.DB, root string) *models.UserStorage {
	t.Helper()
	st := &models.UserStorage{
		ID:     "st-test",
		UserID: "u-1",
		Name:   "test",
		Type:   models.StorageLocal,
		Config: fmt.Sprintf(`{"rootPath":%q}`, root),
		Status: "active",
	}
	if err := db.Create(st).Error; err != nil {
		t.Fatalf("seed storage: %v", err)
	}
	return st
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 90, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func seedFile(t *testing.T, db *gorm.DB, storageID, path, mime string, mediaType models.MediaType, size int64) *models.File {
	t.Helper()
	row := &models.File{
		UserStorageID: storageID,
		Path:          path,
		Title:         filepath.Base(path),
		Size:          size,
		MimeType:      mime,
		MediaType:     mediaType,
		Mtime:         time.Unix(1700000000, 0),
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed file: %v", err)
	}
	return row
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestMediaServesOriginalBytes(t *testing.T) {
	srv, db := newTestServer(t)
	root := t.TempDir()
	seedLocalStorage(t, db, root)

	if err := os.WriteFile(filepath.Join(root, "a.jpg"), []byte("original-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	row := seedFile(t, db, "st-test", "a.jpg", "image/jpeg", models.MediaImage, 14)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/media/%d", row.ID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("content type = %s", got)
	}
	if rec.Body.String() != "original-bytes" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestMediaErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/notanumber", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/99999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestThumbRegeneratesOnMiss(t *testing.T) {
	srv, db := newTestServer(t)
	root := t.TempDir()
	seedLocalStorage(t, db, root)

	writePNG(t, filepath.Join(root, "photo.png"), 8, 8)
	row := seedFile(t, db, "st-test", "photo.png", "image/png", models.MediaImage, 1)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/media/thumb/%d", row.ID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("content type = %s, want regenerated jpeg", got)
	}

	// Regeneration must persist the artifact under the reserved namespace.
	artifact := filepath.Join(root, ".memorix", "thumbs", fmt.Sprintf("%d.jpg", row.ID))
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("artifact not persisted: %v", err)
	}
}

func TestThumbFallsBackToPlaceholder(t *testing.T) {
	srv, db := newTestServer(t)
	seedLocalStorage(t, db, t.TempDir())
	row := seedFile(t, db, "st-test", "missing.jpg", "image/jpeg", models.MediaImage, 1)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/media/thumb/%d", row.ID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 placeholder", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type = %s, want placeholder png", got)
	}
}

func TestStreamRangeRequests(t *testing.T) {
	srv, db := newTestServer(t)
	root := t.TempDir()
	seedLocalStorage(t, db, root)

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	if err := os.WriteFile(filepath.Join(root, "clip.mp4"), payload, 0o644); err != nil {
		t.Fatal(err)
	}
	row := seedFile(t, db, "st-test", "clip.mp4", "video/mp4", models.MediaVideo, 1000)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/media/stream/%d", row.ID), nil)
	req.Header.Set("Range", "bytes=100-199")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 100-199/1000" {
		t.Fatalf("content range = %s", got)
	}
	if rec.Body.Len() != 100 || rec.Body.Bytes()[0] != payload[100] {
		t.Fatalf("wrong window: len=%d first=%d", rec.Body.Len(), rec.Body.Bytes()[0])
	}
}

func TestStreamUnsatisfiableRange(t *testing.T) {
	srv, db := newTestServer(t)
	root := t.TempDir()
	seedLocalStorage(t, db, root)

	if err := os.WriteFile(filepath.Join(root, "clip.mp4"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	row := seedFile(t, db, "st-test", "clip.mp4", "video/mp4", models.MediaVideo, 100)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/media/stream/%d", row.ID), nil)
	req.Header.Set("Range", "bytes=500-")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */100" {
		t.Fatalf("content range = %s", got)
	}
}

func TestStreamEmbeddedWindow(t *testing.T) {
	srv, db := newTestServer(t)
	root := t.TempDir()
	seedLocalStorage(t, db, root)

	// 10000-byte motion photo, embedded stream at 9500, stored offset 500
	// counted from the end of the file.
	buf := make([]byte, 10000)
	copy(buf[9500+4:], "ftyp")
	copy(buf[9500+16:], "stream-start")
	if err := os.WriteFile(filepath.Join(root, "motion.jpg"), buf, 0o644); err != nil {
		t.Fatal(err)
	}
	row := seedFile(t, db, "st-test", "motion.jpg", "image/jpeg", models.MediaImage, 10000)

	offset := int64(500)
	if err := db.Create(&models.PhotoMetadata{
		FileID:      row.ID,
		LiveType:    models.LiveEmbedded,
		VideoOffset: &offset,
	}).Error; err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/media/stream/%d", row.ID), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "500" {
		t.Fatalf("content length = %s, want the 500-byte video window", got)
	}
	body := rec.Body.Bytes()
	if len(body) != 500 || string(body[16:28]) != "stream-start" {
		t.Fatalf("window not anchored at the resolved offset")
	}
}

func TestStreamStillImageIsNotAVideo(t *testing.T) {
	srv, db := newTestServer(t)
	seedLocalStorage(t, db, t.TempDir())
	row := seedFile(t, db, "st-test", "a.jpg", "image/jpeg", models.MediaImage, 1)
	if err := db.Create(&models.PhotoMetadata{FileID: row.ID, LiveType: models.LiveNone}).Error; err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/media/stream/%d", row.ID), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestScanEndpointStreamsEvents(t *testing.T) {
	srv, db := newTestServer(t)
	root := t.TempDir()
	seedLocalStorage(t, db, root)
	writePNG(t, filepath.Join(root, "photo.png"), 8, 8)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/storage/st-test/scan?mode=incremental", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %s", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: log") || !strings.Contains(body, "event: done") {
		t.Fatalf("missing events in stream:\n%s", body)
	}

	var count int64
	db.Model(&models.File{}).Where("user_storage_id = ?", "st-test").Count(&count)
	if count != 1 {
		t.Fatalf("file count = %d, want 1 cataloged object", count)
	}
}

func TestScanEndpointUnknownStorage(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/storage/nope/scan", nil))
	if !strings.Contains(rec.Body.String(), "event: error") {
		t.Fatalf("expected an error event, got:\n%s", rec.Body.String())
	}
}

func TestLogsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.logBuffer.Add(logbuffer.Entry{
		Timestamp: time.Now(),
		Level:     "warn",
		Message:   "skipping unreadable directory",
		Component: "scan",
	})
	srv.logBuffer.Add(logbuffer.Entry{
		Timestamp: time.Now(),
		Level:     "info",
		Message:   "scan finished",
		Component: "scan",
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?level=warn", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Entries []logbuffer.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Entries) != 1 || payload.Entries[0].Level != "warn" {
		t.Fatalf("entries = %+v, want the single warn entry", payload.Entries)
	}
}

func TestLogsEndpointRejectsBadParams(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?since=notatime", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
