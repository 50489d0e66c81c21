/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"path"
	"strings"

	"github.com/friendsincode/memorix/internal/mediatypes"
	"github.com/friendsincode/memorix/internal/models"
	"github.com/friendsincode/memorix/internal/storage"
)

// AnimationProber reports whether an image object decodes to more than one
// frame. A nil prober leaves every image still.
type AnimationProber func(obj Object) bool

// multiFrameCapable lists the image MIME types worth probing for animation.
var multiFrameCapable = map[string]bool{
	"image/gif":  true,
	"image/webp": true,
	"image/png":  true,
}

// Classify maps a walked entry to a scan object. Images in multi-frame
// capable containers are probed and reclassified as animated on a positive
// result.
func Classify(entry storage.Entry, prober AnimationProber) Object {
	obj := Object{
		Path:     entry.Path,
		Title:    path.Base(entry.Path),
		Size:     entry.Size,
		ModTime:  entry.ModTime,
		MimeType: entry.MimeType,
		LiveType: models.LiveNone,
	}

	ext := strings.ToLower(path.Ext(entry.Path))
	switch mediatypes.GetKind(ext) {
	case mediatypes.KindVideo:
		obj.MediaType = models.MediaVideo
	default:
		obj.MediaType = models.MediaImage
		if multiFrameCapable[strings.ToLower(entry.MimeType)] && prober != nil && prober(obj) {
			obj.MediaType = models.MediaAnimated
		}
	}
	return obj
}
