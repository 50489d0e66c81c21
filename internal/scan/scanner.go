/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/memorix/internal/config"
	"github.com/friendsincode/memorix/internal/events"
	"github.com/friendsincode/memorix/internal/models"
	"github.com/friendsincode/memorix/internal/probe"
	"github.com/friendsincode/memorix/internal/storage"
	"github.com/friendsincode/memorix/internal/telemetry"
)

// Progress decimation intervals. Observability only, never correctness.
const (
	dirProgressEvery       = 100
	imageProgressEvery     = 100
	videoProgressEvery     = 50
	processedProgressEvery = 50
)

// Service runs scans. Scans of different storages run concurrently; runs of
// the same storage are serialized on a per-id mutex.
type Service struct {
	db     *gorm.DB
	cfg    *config.Config
	bus    *events.Bus
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a scan service.
func NewService(db *gorm.DB, cfg *config.Config, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "scan").Logger(),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) storageLock(storageID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[storageID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[storageID] = lock
	}
	return lock
}

// Run executes one scan to completion. Fatal errors abort with nothing
// committed; recoverable per-object errors surface only on the log channel.
func (s *Service) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	lock := s.storageLock(opts.StorageID)
	lock.Lock()
	defer lock.Unlock()

	if opts.Mode != ModeFull {
		opts.Mode = ModeIncremental
	}

	start := time.Now()
	logger := s.logger.With().Str("storage_id", opts.StorageID).Logger()

	logf := func(level LogLevel, format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		switch level {
		case LogWarn:
			logger.Warn().Msg(msg)
		case LogError:
			logger.Error().Msg(msg)
		default:
			logger.Info().Msg(msg)
		}
		if opts.OnLog != nil {
			opts.OnLog(level, msg)
		}
	}
	progress := func(p Progress) {
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
		s.bus.Publish(events.EventScanProgress, events.Payload{
			"storage_id": opts.StorageID,
			"stage":      p.Stage,
			"processed":  p.Processed,
			"total":      p.Total,
		})
	}
	warn := func(path string, err error) {
		logf(LogWarn, "%s: %v", path, err)
		s.bus.Publish(events.EventScanWarning, events.Payload{
			"storage_id": opts.StorageID,
			"path":       path,
			"reason":     err.Error(),
		})
	}

	var st models.UserStorage
	if err := s.db.WithContext(ctx).First(&st, "id = ?", opts.StorageID).Error; err != nil {
		return s.fail(opts, "", start, fmt.Errorf("load storage %s: %w", opts.StorageID, err))
	}

	backend, err := storage.New(&st, logger)
	if err != nil {
		return s.fail(opts, string(st.Type), start, err)
	}
	if err := backend.Check(ctx); err != nil {
		return s.fail(opts, string(st.Type), start, fmt.Errorf("backend unreachable: %w", err))
	}

	s.bus.Publish(events.EventScanStarted, events.Payload{
		"storage_id": opts.StorageID,
		"mode":       string(opts.Mode),
	})
	logf(LogInfo, "scan started in %s mode", opts.Mode)

	entries, err := s.walk(ctx, backend, warn, progress)
	if err != nil {
		return s.fail(opts, string(st.Type), start, fmt.Errorf("walk failed: %w", err))
	}
	telemetry.ScanObjectsSeen.WithLabelValues(string(st.Type)).Add(float64(len(entries)))

	objects := s.classify(ctx, backend, entries)
	objects = ResolvePairs(objects)
	total := len(objects)
	logf(LogInfo, "discovered %d media objects", total)

	existing, photoByID, err := s.loadCatalog(ctx, opts.StorageID)
	if err != nil {
		return s.fail(opts, string(st.Type), start, fmt.Errorf("load catalog: %w", err))
	}

	diff := BuildDiff(existing, photoByID, objects, opts.Mode)
	telemetry.ScanFilesProcessed.WithLabelValues("unchanged").Add(float64(len(diff.Unchanged)))
	logf(LogInfo, "diff: %d removed, %d unchanged, %d to process",
		len(diff.Removed), len(diff.Unchanged), len(diff.Changed))

	gen := &Generator{
		Backend: backend,
		FFProbe: probe.FFProbe{Bin: s.cfg.FFprobeBin},
		Renderer: probe.Renderer{
			FFmpegBin: s.cfg.FFmpegBin,
			MaxWidth:  s.cfg.ThumbMaxWidth,
		},
		TempDir: s.cfg.TempDir,
		Workers: s.cfg.ScanWorkers,
	}
	results, err := gen.Generate(ctx, diff.Changed, warn)
	if err != nil {
		return s.fail(opts, string(st.Type), start, fmt.Errorf("artifact generation aborted: %w", err))
	}

	processed := len(diff.Unchanged)
	writer := &Writer{DB: s.db}
	written, err := writer.Apply(ctx, opts.StorageID, diff, results, backend, warn, func() {
		processed++
		if processed%processedProgressEvery == 0 {
			progress(Progress{Stage: "processing", Processed: processed, Total: total})
		}
	})
	if err != nil {
		return s.fail(opts, string(st.Type), start, fmt.Errorf("catalog write failed: %w", err))
	}

	if written > 0 {
		s.bus.Publish(events.EventFilesUpserted, events.Payload{
			"storage_id": opts.StorageID,
			"count":      written,
		})
	}
	if len(diff.Removed) > 0 {
		s.bus.Publish(events.EventFilesRemoved, events.Payload{
			"storage_id": opts.StorageID,
			"count":      len(diff.Removed),
		})
	}

	summary := Summary{Processed: len(diff.Unchanged) + written, Total: total}
	progress(Progress{Stage: "done", Processed: summary.Processed, Total: summary.Total})
	logf(LogInfo, "scan finished: %d/%d processed in %s", summary.Processed, summary.Total, time.Since(start).Round(time.Millisecond))

	if err := s.db.WithContext(ctx).Model(&models.UserStorage{}).Where("id = ?", opts.StorageID).Update("status", "active").Error; err != nil {
		s.logger.Warn().Str("storage_id", opts.StorageID).Err(err).Msg("storage status not updated")
		logf(LogWarn, "storage status not updated: %v", err)
	}
	s.bus.Publish(events.EventStorageSaved, events.Payload{"storage_id": opts.StorageID, "status": "active"})

	telemetry.ScanRunsTotal.WithLabelValues(string(st.Type), "success").Inc()
	telemetry.ScanDuration.WithLabelValues(string(st.Type)).Observe(time.Since(start).Seconds())
	s.bus.Publish(events.EventScanCompleted, events.Payload{
		"storage_id": opts.StorageID,
		"processed":  summary.Processed,
		"total":      summary.Total,
	})
	return summary, nil
}

func (s *Service) fail(opts RunOptions, storageType string, start time.Time, err error) (Summary, error) {
	s.logger.Error().Str("storage_id", opts.StorageID).Err(err).Msg("scan failed")
	if opts.OnLog != nil {
		opts.OnLog(LogError, err.Error())
	}
	if storageType == "" {
		storageType = "unknown"
	}
	telemetry.ScanRunsTotal.WithLabelValues(storageType, "failure").Inc()
	telemetry.ScanDuration.WithLabelValues(storageType).Observe(time.Since(start).Seconds())
	s.bus.Publish(events.EventScanFailed, events.Payload{
		"storage_id": opts.StorageID,
		"error":      err.Error(),
	})
	return Summary{}, err
}

// walk collects the full entry set, decimating progress events.
func (s *Service) walk(ctx context.Context, backend storage.Backend, warn func(string, error), progress func(Progress)) ([]storage.Entry, error) {
	var entries []storage.Entry
	dirs, images, videos := 0, 0, 0

	obs := storage.WalkObserver{
		OnDir: func(path string) {
			dirs++
			if dirs%dirProgressEvery == 0 {
				progress(Progress{Stage: "walking", Processed: len(entries)})
			}
		},
		OnWarn: warn,
	}
	err := backend.Walk(ctx, obs, func(e storage.Entry) error {
		entries = append(entries, e)
		if strings.HasPrefix(e.MimeType, "video/") {
			videos++
			if videos%videoProgressEvery == 0 {
				progress(Progress{Stage: "walking", Processed: len(entries)})
			}
		} else {
			images++
			if images%imageProgressEvery == 0 {
				progress(Progress{Stage: "walking", Processed: len(entries)})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// classify maps entries to objects, staging multi-frame capable images for
// the animation probe.
func (s *Service) classify(ctx context.Context, backend storage.Backend, entries []storage.Entry) []Object {
	prober := func(obj Object) bool {
		local, cleanup, err := backend.Stage(ctx, obj.Path, s.cfg.TempDir)
		if err != nil {
			return false
		}
		defer cleanup()
		return probe.IsAnimated(local, obj.MimeType)
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		objects = append(objects, Classify(entry, prober))
	}
	return objects
}

// loadCatalog fetches the storage's rows plus stored pairing state.
func (s *Service) loadCatalog(ctx context.Context, storageID string) ([]models.File, map[uint]*models.PhotoMetadata, error) {
	var existing []models.File
	if err := s.db.WithContext(ctx).Where("user_storage_id = ?", storageID).Find(&existing).Error; err != nil {
		return nil, nil, err
	}

	photoByID := make(map[uint]*models.PhotoMetadata)
	ids := make([]uint, 0, len(existing))
	for i := range existing {
		if existing[i].MediaType != models.MediaVideo {
			ids = append(ids, existing[i].ID)
		}
	}

	for start := 0; start < len(ids); start += DeleteBatchSize {
		end := start + DeleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		var photos []models.PhotoMetadata
		if err := s.db.WithContext(ctx).Where("file_id IN ?", ids[start:end]).Find(&photos).Error; err != nil {
			return nil, nil, err
		}
		for i := range photos {
			p := photos[i]
			photoByID[p.FileID] = &p
		}
	}
	return existing, photoByID, nil
}
