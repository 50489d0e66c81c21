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
)

// sidecarKey identifies a live photo pair: directory plus the lowercased
// base name with the extension stripped.
func sidecarKey(p string) string {
	dir := path.Dir(p)
	base := strings.ToLower(path.Base(p))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return dir + "/" + base
}

// ResolvePairs runs sidecar live photo resolution over the complete
// discovered set. A mov-family video sharing its key with a live-capable
// image becomes that image's PairedPath and is removed from the top-level
// set; it is never cataloged independently.
func ResolvePairs(objects []Object) []Object {
	videos := make(map[string]int)
	for i, obj := range objects {
		if obj.MediaType != models.MediaVideo {
			continue
		}
		ext := strings.ToLower(path.Ext(obj.Path))
		if mediatypes.MovFamilyExtensions[ext] {
			videos[sidecarKey(obj.Path)] = i
		}
	}

	consumed := make(map[int]bool)
	for i, obj := range objects {
		if obj.MediaType == models.MediaVideo {
			continue
		}
		ext := strings.ToLower(path.Ext(obj.Path))
		if !mediatypes.LiveCapableExtensions[ext] {
			continue
		}
		videoIdx, ok := videos[sidecarKey(obj.Path)]
		if !ok || consumed[videoIdx] {
			continue
		}
		objects[i].LiveType = models.LivePaired
		objects[i].PairedPath = objects[videoIdx].Path
		consumed[videoIdx] = true
	}

	if len(consumed) == 0 {
		return objects
	}
	result := make([]Object, 0, len(objects)-len(consumed))
	for i, obj := range objects {
		if !consumed[i] {
			result = append(result, obj)
		}
	}
	return result
}
