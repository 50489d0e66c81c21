/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage provides walkable media backends over local filesystems
// and S3-compatible object stores.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/friendsincode/memorix/internal/models"
	"github.com/rs/zerolog"
)

// ReservedNamespace is the directory (or key prefix segment) where derived
// artifacts live. The walker never descends into it.
const ReservedNamespace = ".memorix"

// Entry describes one candidate media object found during a walk.
type Entry struct {
	// Path is backend-relative with forward slashes, never leading "/".
	Path     string
	Size     int64
	ModTime  time.Time
	MimeType string
}

// WalkFunc is invoked for every accepted media object. Returning an error
// aborts the walk.
type WalkFunc func(Entry) error

// WalkObserver receives non-fatal walk notifications.
type WalkObserver struct {
	// OnDir fires when a directory (or key prefix page) is entered.
	OnDir func(path string)
	// OnWarn fires for unreadable directories and files, which are skipped.
	OnWarn func(path string, err error)
}

func (o WalkObserver) dir(path string) {
	if o.OnDir != nil {
		o.OnDir(path)
	}
}

func (o WalkObserver) warn(path string, err error) {
	if o.OnWarn != nil {
		o.OnWarn(path, err)
	}
}

// Backend is a walkable media source.
type Backend interface {
	Type() models.StorageType

	// Check verifies the backend is reachable. A failed check is fatal for
	// a scan before any catalog mutation happens.
	Check(ctx context.Context) error

	// Walk enumerates every object whose extension maps to a known media
	// type, skipping dot-directories and the reserved artifact namespace.
	Walk(ctx context.Context, obs WalkObserver, fn WalkFunc) error

	// Open returns the full object body.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenRange returns length bytes starting at offset. A negative length
	// reads to the end of the object.
	OpenRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)

	// Stat returns size and mtime for a single object.
	Stat(ctx context.Context, path string) (Entry, error)

	// Stage makes the object available as a local file for external tools
	// and returns its path plus a cleanup func. Cleanup never fails loudly;
	// transient delete errors are retried and finally only logged.
	Stage(ctx context.Context, path, tempDir string) (string, func(), error)

	// WriteArtifact stores a derived artifact under the reserved namespace.
	WriteArtifact(ctx context.Context, key string, data []byte) error

	// OpenArtifact reads a derived artifact back from the reserved namespace.
	OpenArtifact(ctx context.Context, key string) (io.ReadCloser, error)

	// DeleteArtifact removes a derived artifact. Missing artifacts are not
	// an error.
	DeleteArtifact(ctx context.Context, key string) error
}

// LocalConfig is the parsed config blob for local and NAS storages.
type LocalConfig struct {
	RootPath string `json:"rootPath"`
}

// S3Config is the parsed config blob for S3-compatible storages.
type S3Config struct {
	Endpoint       string `json:"endpoint"`
	Region         string `json:"region"`
	Bucket         string `json:"bucket"`
	AccessKey      string `json:"accessKey"`
	SecretKey      string `json:"secretKey"`
	Prefix         string `json:"prefix"`
	ForcePathStyle bool   `json:"forcePathStyle"`
}

// New parses and validates the storage row's config blob once and returns
// the matching backend. Validation never happens again downstream.
func New(st *models.UserStorage, logger zerolog.Logger) (Backend, error) {
	switch st.Type {
	case models.StorageLocal, models.StorageNAS:
		var cfg LocalConfig
		if err := json.Unmarshal([]byte(st.Config), &cfg); err != nil {
			return nil, fmt.Errorf("parse %s storage config: %w", st.Type, err)
		}
		if cfg.RootPath == "" {
			return nil, fmt.Errorf("%s storage %s: rootPath is required", st.Type, st.ID)
		}
		backend := NewLocal(cfg, logger)
		backend.kind = st.Type
		return backend, nil
	case models.StorageS3:
		var cfg S3Config
		if err := json.Unmarshal([]byte(st.Config), &cfg); err != nil {
			return nil, fmt.Errorf("parse s3 storage config: %w", err)
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 storage %s: bucket is required", st.ID)
		}
		return NewS3(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", st.Type)
	}
}

// ReaderAt adapts ranged reads into an io.ReaderAt for offset sniffing at
// serve time.
func ReaderAt(ctx context.Context, b Backend, path string) io.ReaderAt {
	return &rangeReaderAt{ctx: ctx, backend: b, path: path}
}

type rangeReaderAt struct {
	ctx     context.Context
	backend Backend
	path    string
}

func (r *rangeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	body, err := r.backend.OpenRange(r.ctx, r.path, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer body.Close()
	n, err := io.ReadFull(body, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}
