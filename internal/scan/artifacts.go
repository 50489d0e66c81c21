/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/memorix/internal/models"
	"github.com/friendsincode/memorix/internal/probe"
	"github.com/friendsincode/memorix/internal/storage"
	"github.com/friendsincode/memorix/internal/telemetry"
)

// Generator produces derived artifacts for changed objects: technical
// metadata, a thumbnail or poster, and a blur placeholder.
type Generator struct {
	Backend  storage.Backend
	FFProbe  probe.FFProbe
	Renderer probe.Renderer
	TempDir  string
	Workers  int
}

// ArtifactResult carries everything the writer needs for one object. Any
// nil field means that artifact failed and the column stays null. A non-nil
// SkipReason means the source was unreadable and no row may be written.
type ArtifactResult struct {
	ChangedObject
	Photo      *models.PhotoMetadata
	Video      *models.VideoMetadata
	Thumb      []byte
	BlurHash   *string
	SkipReason error
}

// Generate runs artifact generation in parallel up to the worker bound and
// returns results in input order for the sequential write loop. Only
// cancellation aborts it; per-object failures are reported through warn and
// absorbed.
func (g *Generator) Generate(ctx context.Context, objects []ChangedObject, warn func(path string, err error)) ([]ArtifactResult, error) {
	workers := g.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]ArtifactResult, len(objects))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)

	for i := range objects {
		i := i
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = g.generateOne(gctx, objects[i], warn)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (g *Generator) generateOne(ctx context.Context, obj ChangedObject, warn func(string, error)) ArtifactResult {
	result := ArtifactResult{ChangedObject: obj}

	local, cleanup, err := g.Backend.Stage(ctx, obj.Path, g.TempDir)
	if err != nil {
		telemetry.ArtifactFailuresTotal.WithLabelValues("source").Inc()
		warn(obj.Path, fmt.Errorf("source unreadable: %w", err))
		result.SkipReason = err
		return result
	}
	defer cleanup()

	switch obj.MediaType {
	case models.MediaVideo:
		g.generateVideo(ctx, local, &result, warn)
	default:
		g.generateImage(ctx, local, &result, warn)
	}
	return result
}

func (g *Generator) generateImage(ctx context.Context, local string, result *ArtifactResult, warn func(string, error)) {
	obj := result.ChangedObject

	photo, err := probe.ProbeImage(local)
	if err != nil {
		telemetry.ArtifactFailuresTotal.WithLabelValues("exif").Inc()
		warn(obj.Path, fmt.Errorf("metadata probe failed: %w", err))
		photo = &models.PhotoMetadata{LiveType: models.LiveNone}
	}

	// Embedded motion photo data takes precedence over a sidecar match,
	// but only when the claimed offset actually resolves. A corrupt claim
	// must not cost the image its sidecar pairing.
	embedded := false
	if claimed, ok := probe.DetectEmbeddedOffset(local); ok {
		if resolved, warned := g.resolveEmbedded(local, claimed); resolved > 0 {
			embedded = true
			photo.LiveType = models.LiveEmbedded
			photo.VideoOffset = &resolved
			photo.PairedPath = nil
			if warned {
				warn(obj.Path, fmt.Errorf("embedded offset %d unverified, assuming end-relative %d", claimed, resolved))
			}
		} else {
			warn(obj.Path, fmt.Errorf("embedded offset %d unresolvable", claimed))
		}
	}
	if !embedded && obj.LiveType == models.LivePaired {
		paired := obj.PairedPath
		photo.LiveType = models.LivePaired
		photo.PairedPath = &paired
		g.probePairedDuration(ctx, paired, photo, warn)
	}

	thumb, err := g.Renderer.RenderImageThumbnail(ctx, local)
	if err != nil {
		telemetry.ArtifactFailuresTotal.WithLabelValues("thumbnail").Inc()
		warn(obj.Path, fmt.Errorf("thumbnail render failed: %w", err))
	} else {
		result.Thumb = thumb.Image
		result.BlurHash = thumb.BlurHash
	}

	result.Photo = photo
}

func (g *Generator) generateVideo(ctx context.Context, local string, result *ArtifactResult, warn func(string, error)) {
	obj := result.ChangedObject

	video, err := g.FFProbe.ProbeVideo(ctx, local)
	if err != nil {
		telemetry.ArtifactFailuresTotal.WithLabelValues("ffprobe").Inc()
		warn(obj.Path, fmt.Errorf("video probe failed: %w", err))
		video = &models.VideoMetadata{}
	}

	poster, posterTime, err := g.Renderer.RenderVideoPoster(ctx, local, video.Duration)
	if err != nil {
		telemetry.ArtifactFailuresTotal.WithLabelValues("thumbnail").Inc()
		warn(obj.Path, fmt.Errorf("poster render failed: %w", err))
	} else {
		result.Thumb = poster.Image
		result.BlurHash = poster.BlurHash
		video.PosterTime = &posterTime
	}

	result.Video = video
}

// resolveEmbedded runs the offset sniffer against the staged file.
func (g *Generator) resolveEmbedded(local string, claimed int64) (int64, bool) {
	f, err := os.Open(local)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, false
	}
	return ResolveOffset(f, info.Size(), claimed)
}

// probePairedDuration enriches a paired image with its sidecar video's
// duration. Best effort only.
func (g *Generator) probePairedDuration(ctx context.Context, pairedPath string, photo *models.PhotoMetadata, warn func(string, error)) {
	local, cleanup, err := g.Backend.Stage(ctx, pairedPath, g.TempDir)
	if err != nil {
		warn(pairedPath, fmt.Errorf("paired video unreadable: %w", err))
		return
	}
	defer cleanup()

	video, err := g.FFProbe.ProbeVideo(ctx, local)
	if err != nil {
		telemetry.ArtifactFailuresTotal.WithLabelValues("ffprobe").Inc()
		warn(pairedPath, fmt.Errorf("paired video probe failed: %w", err))
		return
	}
	photo.VideoDuration = video.Duration
}
