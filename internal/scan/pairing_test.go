/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"testing"

	"github.com/friendsincode/memorix/internal/models"
)

func image(path string) Object {
	return Object{Path: path, MediaType: models.MediaImage, LiveType: models.LiveNone}
}

func video(path string) Object {
	return Object{Path: path, MediaType: models.MediaVideo, LiveType: models.LiveNone}
}

func findByPath(t *testing.T, objects []Object, path string) Object {
	t.Helper()
	for _, obj := range objects {
		if obj.Path == path {
			return obj
		}
	}
	t.Fatalf("no object with path %s", path)
	return Object{}
}

func TestResolvePairsSidecar(t *testing.T) {
	out := ResolvePairs([]Object{
		image("album/a.jpg"),
		video("album/b.mov"),
		image("album/b.heic"),
	})

	if len(out) != 2 {
		t.Fatalf("got %d objects, want 2 (video consumed)", len(out))
	}

	a := findByPath(t, out, "album/a.jpg")
	if a.LiveType != models.LiveNone {
		t.Fatalf("a.jpg LiveType = %s, want none", a.LiveType)
	}

	b := findByPath(t, out, "album/b.heic")
	if b.LiveType != models.LivePaired {
		t.Fatalf("b.heic LiveType = %s, want paired", b.LiveType)
	}
	if b.PairedPath != "album/b.mov" {
		t.Fatalf("b.heic PairedPath = %s, want album/b.mov", b.PairedPath)
	}
}

func TestResolvePairsCaseInsensitive(t *testing.T) {
	out := ResolvePairs([]Object{
		image("IMG_0042.HEIC"),
		video("IMG_0042.MOV"),
	})

	if len(out) != 1 {
		t.Fatalf("got %d objects, want 1", len(out))
	}
	if out[0].LiveType != models.LivePaired || out[0].PairedPath != "IMG_0042.MOV" {
		t.Fatalf("got %s/%s, want paired/IMG_0042.MOV", out[0].LiveType, out[0].PairedPath)
	}
}

func TestResolvePairsDirectoryScoped(t *testing.T) {
	out := ResolvePairs([]Object{
		image("2024/img.heic"),
		video("2025/img.mov"),
	})

	if len(out) != 2 {
		t.Fatalf("got %d objects, want 2 (different directories must not pair)", len(out))
	}
	if findByPath(t, out, "2024/img.heic").LiveType != models.LiveNone {
		t.Fatal("cross-directory name collision must not pair")
	}
}

func TestResolvePairsOnlyMovFamily(t *testing.T) {
	out := ResolvePairs([]Object{
		image("clip.jpg"),
		video("clip.mp4"),
	})

	if len(out) != 2 {
		t.Fatalf("got %d objects, want 2 (mp4 is a standalone video)", len(out))
	}
	if findByPath(t, out, "clip.jpg").LiveType != models.LiveNone {
		t.Fatal("mp4 sidecar must not be consumed")
	}
}

func TestResolvePairsOnlyLiveCapableImages(t *testing.T) {
	out := ResolvePairs([]Object{
		image("doc.png"),
		video("doc.mov"),
	})

	if len(out) != 2 {
		t.Fatalf("got %d objects, want 2 (png cannot carry a live pair)", len(out))
	}
}

func TestResolvePairsVideoConsumedOnce(t *testing.T) {
	out := ResolvePairs([]Object{
		image("x/shot.heic"),
		image("x/shot.jpg"),
		video("x/shot.mov"),
	})

	if len(out) != 2 {
		t.Fatalf("got %d objects, want 2", len(out))
	}
	paired := 0
	for _, obj := range out {
		if obj.LiveType == models.LivePaired {
			paired++
			if obj.PairedPath != "x/shot.mov" {
				t.Fatalf("PairedPath = %s, want x/shot.mov", obj.PairedPath)
			}
		}
	}
	if paired != 1 {
		t.Fatalf("%d images claimed the video, want exactly 1", paired)
	}
}
