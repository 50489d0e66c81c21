/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/memorix/internal/models"
	"github.com/friendsincode/memorix/internal/probe"
	"github.com/friendsincode/memorix/internal/storage"
)

func newLocalGenerator(t *testing.T, root string) *Generator {
	t.Helper()
	return &Generator{
		Backend:  storage.NewLocal(storage.LocalConfig{RootPath: root}, zerolog.Nop()),
		FFProbe:  probe.FFProbe{Bin: "ffprobe"},
		Renderer: probe.Renderer{FFmpegBin: "ffmpeg", MaxWidth: 960},
		TempDir:  t.TempDir(),
		Workers:  1,
	}
}

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func pairedImageObject(name, sidecar string, size int64) ChangedObject {
	return ChangedObject{Object: Object{
		Path:       name,
		Title:      name,
		Size:       size,
		ModTime:    time.Unix(1700000000, 0),
		MimeType:   "image/jpeg",
		MediaType:  models.MediaImage,
		LiveType:   models.LivePaired,
		PairedPath: sidecar,
	}}
}

func TestGenerateImageUnresolvableEmbeddedKeepsSidecarPairing(t *testing.T) {
	// The sidecar was already consumed by pair resolution. If the claimed
	// embedded offset turns out to be garbage, the image must keep its
	// sidecar pairing or the video vanishes from the catalog entirely.
	root := t.TempDir()
	content := []byte(`<x:xmpmeta MicroVideoOffset="900000"/> padding so the file has a body`)
	writeFile(t, root, "c.jpg", content)
	writeFile(t, root, "c.mov", []byte("not a real video"))

	gen := newLocalGenerator(t, root)
	obj := pairedImageObject("c.jpg", "c.mov", int64(len(content)))

	result := gen.generateOne(context.Background(), obj, func(string, error) {})
	if result.SkipReason != nil {
		t.Fatalf("unexpected skip: %v", result.SkipReason)
	}
	if result.Photo == nil {
		t.Fatal("expected photo metadata")
	}
	if result.Photo.LiveType != models.LivePaired {
		t.Fatalf("live type %q, want paired after unresolvable embedded claim", result.Photo.LiveType)
	}
	if result.Photo.PairedPath == nil || *result.Photo.PairedPath != "c.mov" {
		t.Fatalf("paired path %v, want c.mov", result.Photo.PairedPath)
	}
	if result.Photo.VideoOffset != nil {
		t.Fatal("a rejected embedded claim must not leave an offset behind")
	}
}

func TestGenerateImageResolvableEmbeddedWinsOverSidecar(t *testing.T) {
	root := t.TempDir()
	claimed := int64(128)
	content := make([]byte, 512)
	copy(content, []byte(fmt.Sprintf(`<x:xmpmeta MicroVideoOffset="%d"/>`, claimed)))
	copy(content[claimed:], []byte("\x00\x00\x00\x18ftypmp42"))
	writeFile(t, root, "m.jpg", content)
	writeFile(t, root, "m.mov", []byte("not a real video"))

	gen := newLocalGenerator(t, root)
	obj := pairedImageObject("m.jpg", "m.mov", int64(len(content)))

	result := gen.generateOne(context.Background(), obj, func(string, error) {})
	if result.Photo == nil {
		t.Fatal("expected photo metadata")
	}
	if result.Photo.LiveType != models.LiveEmbedded {
		t.Fatalf("live type %q, want embedded to take precedence", result.Photo.LiveType)
	}
	if result.Photo.VideoOffset == nil || *result.Photo.VideoOffset != claimed {
		t.Fatalf("video offset %v, want %d", result.Photo.VideoOffset, claimed)
	}
	if result.Photo.PairedPath != nil {
		t.Fatal("embedded precedence must clear the sidecar path")
	}
}
