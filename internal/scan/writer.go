/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/memorix/internal/models"
	"github.com/friendsincode/memorix/internal/storage"
	"github.com/friendsincode/memorix/internal/telemetry"
)

// Writer applies a diff to the catalog. All mutation for one scan happens
// inside a single transaction; recoverable artifact errors never escalate,
// any write error rolls back the whole scan.
type Writer struct {
	DB *gorm.DB
}

// ThumbKey is the reserved-namespace key for a catalog row's thumbnail.
func ThumbKey(fileID uint) string {
	return fmt.Sprintf("thumbs/%d.jpg", fileID)
}

// Apply commits the scan: batched deletes first, then the sequential
// per-object upsert loop, then the bulk URL recompute. onObject fires after
// each written object for progress decimation. Returns the number of
// objects written.
func (w *Writer) Apply(ctx context.Context, storageID string, diff Diff, results []ArtifactResult, backend storage.Backend, warn func(path string, err error), onObject func()) (int, error) {
	written := 0

	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.deleteRemoved(tx, storageID, diff.Removed); err != nil {
			return err
		}

		for i := range results {
			if err := ctx.Err(); err != nil {
				return err
			}
			result := &results[i]
			if result.SkipReason != nil {
				continue
			}
			if err := w.writeObject(ctx, tx, storageID, result, backend, warn); err != nil {
				return err
			}
			written++
			if onObject != nil {
				onObject()
			}
		}

		return w.recomputeURLs(tx, storageID)
	})
	if err != nil {
		return 0, err
	}

	// Thumbnails for removed rows are orphaned now; drop them outside the
	// transaction, best effort.
	for i := range diff.Removed {
		if err := backend.DeleteArtifact(ctx, ThumbKey(diff.Removed[i].ID)); err != nil {
			warn(diff.Removed[i].Path, fmt.Errorf("orphaned thumbnail not removed: %w", err))
		}
	}

	return written, nil
}

// deleteRemoved drops vanished rows and their metadata in bounded batches.
func (w *Writer) deleteRemoved(tx *gorm.DB, storageID string, removed []models.File) error {
	for start := 0; start < len(removed); start += DeleteBatchSize {
		end := start + DeleteBatchSize
		if end > len(removed) {
			end = len(removed)
		}
		chunk := removed[start:end]

		ids := make([]uint, len(chunk))
		paths := make([]string, len(chunk))
		for i := range chunk {
			ids[i] = chunk[i].ID
			paths[i] = chunk[i].Path
		}

		if err := tx.Where("file_id IN ?", ids).Delete(&models.PhotoMetadata{}).Error; err != nil {
			return fmt.Errorf("delete photo metadata: %w", err)
		}
		if err := tx.Where("file_id IN ?", ids).Delete(&models.VideoMetadata{}).Error; err != nil {
			return fmt.Errorf("delete video metadata: %w", err)
		}
		if err := tx.Where("user_storage_id = ? AND path IN ?", storageID, paths).Delete(&models.File{}).Error; err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		telemetry.ScanFilesProcessed.WithLabelValues("removed").Add(float64(len(chunk)))
	}
	return nil
}

// writeObject is the two-phase per-object write: upsert the row to obtain
// its id, persist the thumbnail under that id, then patch the blur hash and
// metadata.
func (w *Writer) writeObject(ctx context.Context, tx *gorm.DB, storageID string, result *ArtifactResult, backend storage.Backend, warn func(string, error)) error {
	obj := result.Object

	row := result.Existing
	action := "updated"
	if row == nil {
		action = "added"
		row = &models.File{
			UserStorageID: storageID,
			Path:          obj.Path,
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("create %s: %w", obj.Path, err)
		}
	}

	// IsPublished is deliberately absent: the surrounding app owns it and
	// rescans must not reset it.
	updates := map[string]any{
		"title":      obj.Title,
		"size":       obj.Size,
		"mime_type":  obj.MimeType,
		"media_type": obj.MediaType,
		"mtime":      obj.ModTime,
		"blur_hash":  result.BlurHash,
	}
	if err := tx.Model(&models.File{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update %s: %w", obj.Path, err)
	}

	if result.Thumb != nil {
		if err := backend.WriteArtifact(ctx, ThumbKey(row.ID), result.Thumb); err != nil {
			telemetry.ArtifactFailuresTotal.WithLabelValues("thumbnail").Inc()
			warn(obj.Path, fmt.Errorf("thumbnail not persisted: %w", err))
		}
	}

	if err := w.writeMetadata(tx, row.ID, result); err != nil {
		return fmt.Errorf("metadata for %s: %w", obj.Path, err)
	}

	telemetry.ScanFilesProcessed.WithLabelValues(action).Inc()
	return nil
}

// writeMetadata replaces the 1:1 metadata row, clearing the other family's
// row so a media type flip never leaves stale metadata behind.
func (w *Writer) writeMetadata(tx *gorm.DB, fileID uint, result *ArtifactResult) error {
	if err := tx.Where("file_id = ?", fileID).Delete(&models.PhotoMetadata{}).Error; err != nil {
		return err
	}
	if err := tx.Where("file_id = ?", fileID).Delete(&models.VideoMetadata{}).Error; err != nil {
		return err
	}

	switch result.Object.MediaType {
	case models.MediaVideo:
		video := result.Video
		if video == nil {
			video = &models.VideoMetadata{}
		}
		video.FileID = fileID
		return tx.Create(video).Error
	default:
		photo := result.Photo
		if photo == nil {
			photo = &models.PhotoMetadata{LiveType: models.LiveNone}
		}
		photo.FileID = fileID
		return tx.Create(photo).Error
	}
}

// recomputeURLs rewrites every row's access URLs for the storage in one
// statement. The URL shape depends only on the row id, so recomputing
// unconditionally is cheaper than tracking staleness.
func (w *Writer) recomputeURLs(tx *gorm.DB, storageID string) error {
	urlExpr := "'/api/media/' || id"
	thumbExpr := "'/api/media/thumb/' || id"
	if tx.Dialector.Name() == "mysql" {
		urlExpr = "CONCAT('/api/media/', id)"
		thumbExpr = "CONCAT('/api/media/thumb/', id)"
	}
	return tx.Exec(
		"UPDATE files SET url = "+urlExpr+", thumb_url = "+thumbExpr+" WHERE user_storage_id = ?",
		storageID,
	).Error
}
