/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"github.com/friendsincode/memorix/internal/models"
)

// DeleteBatchSize bounds the number of paths per delete statement.
const DeleteBatchSize = 1000

// ChangedObject is a discovered object that needs (re)processing, with its
// existing catalog row when one exists under the same path.
type ChangedObject struct {
	Object
	Existing *models.File
}

// Diff partitions a scan's discovered set against the existing catalog.
type Diff struct {
	// Removed rows exist in the catalog but not in the backend. Deleted
	// unconditionally in both modes.
	Removed []models.File
	// Unchanged objects matched their fingerprint exactly (incremental only).
	Unchanged []Object
	// Changed holds everything needing artifact generation and a write.
	Changed []ChangedObject
}

// BuildDiff compares discovered objects with existing rows for one storage.
// photoByFileID supplies the stored pairing state for fingerprinting; video
// rows carry no pairing state and are not needed.
func BuildDiff(existing []models.File, photoByFileID map[uint]*models.PhotoMetadata, discovered []Object, mode Mode) Diff {
	byPath := make(map[string]*models.File, len(existing))
	for i := range existing {
		byPath[existing[i].Path] = &existing[i]
	}

	discoveredPaths := make(map[string]bool, len(discovered))
	for _, obj := range discovered {
		discoveredPaths[obj.Path] = true
	}

	var diff Diff
	for i := range existing {
		if !discoveredPaths[existing[i].Path] {
			diff.Removed = append(diff.Removed, existing[i])
		}
	}

	for _, obj := range discovered {
		row := byPath[obj.Path]
		if mode == ModeIncremental && row != nil && fingerprintMatch(row, photoByFileID[row.ID], obj) {
			diff.Unchanged = append(diff.Unchanged, obj)
			continue
		}
		// A media type flip lands here as an update to the same row;
		// identity is (storage, path), never (storage, path, mediaType).
		diff.Changed = append(diff.Changed, ChangedObject{Object: obj, Existing: row})
	}
	return diff
}

// fingerprintMatch is the exact field-by-field unchanged test. No hashing.
func fingerprintMatch(row *models.File, photo *models.PhotoMetadata, obj Object) bool {
	if row.Path != obj.Path || row.Title != obj.Title {
		return false
	}
	if row.MimeType != obj.MimeType || row.MediaType != obj.MediaType {
		return false
	}
	if row.Size != obj.Size || row.Mtime.Unix() != obj.ModTime.Unix() {
		return false
	}
	// Embedded pairing is derived by the metadata probe, not the walker.
	// The walk sees such an image as unpaired, or as paired when a sidecar
	// shares its name; either way reprocessing would land on embedded
	// again, so any discovered pairing state is stable. Size and mtime
	// changes still force a refresh.
	if row.MediaType != models.MediaVideo && photo != nil && photo.LiveType == models.LiveEmbedded {
		return true
	}
	return storedPairing(row, photo) == discoveredPairing(obj)
}

// storedPairing reduces a row's pairing state to what a walk can observe.
func storedPairing(row *models.File, photo *models.PhotoMetadata) string {
	if row.MediaType == models.MediaVideo || photo == nil {
		return "none"
	}
	if photo.LiveType == models.LivePaired && photo.PairedPath != nil {
		return "paired:" + *photo.PairedPath
	}
	return "none"
}

func discoveredPairing(obj Object) string {
	if obj.LiveType == models.LivePaired {
		return "paired:" + obj.PairedPath
	}
	return "none"
}
