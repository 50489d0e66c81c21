/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/friendsincode/memorix/internal/mediatypes"
	"github.com/friendsincode/memorix/internal/models"
	"github.com/rs/zerolog"
)

// Local walks a filesystem subtree. NAS storages use the same backend; the
// mount is the operator's concern.
type Local struct {
	root   string
	kind   models.StorageType
	logger zerolog.Logger
}

// NewLocal creates a filesystem-backed storage.
func NewLocal(cfg LocalConfig, logger zerolog.Logger) *Local {
	return &Local{root: cfg.RootPath, kind: models.StorageLocal, logger: logger}
}

func (l *Local) Type() models.StorageType { return l.kind }

// Check verifies the root exists and is a directory.
func (l *Local) Check(ctx context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage root does not exist: %s", l.root)
		}
		return fmt.Errorf("cannot access storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", l.root)
	}
	return nil
}

// Walk traverses the tree iteratively with an explicit stack so arbitrarily
// deep trees cannot exhaust goroutine stacks. Unreadable directories and
// files are reported and skipped, never fatal.
func (l *Local) Walk(ctx context.Context, obs WalkObserver, fn WalkFunc) error {
	// Relative directory paths, "" is the root.
	stack := []string{""}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obs.dir(rel)

		entries, err := os.ReadDir(filepath.Join(l.root, filepath.FromSlash(rel)))
		if err != nil {
			obs.warn(rel, err)
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			childRel := path.Join(rel, name)

			if entry.IsDir() {
				stack = append(stack, childRel)
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}

			ext := strings.ToLower(filepath.Ext(name))
			if !mediatypes.IsMediaFile(ext) {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				obs.warn(childRel, err)
				continue
			}

			if err := fn(Entry{
				Path:     childRel,
				Size:     info.Size(),
				ModTime:  info.ModTime().UTC(),
				MimeType: mediatypes.GetMimeType(ext),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Open returns the full file.
func (l *Local) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return os.Open(l.abs(p))
}

// OpenRange returns a reader over [offset, offset+length). A negative length
// reads to the end of the file.
func (l *Local) OpenRange(ctx context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(l.abs(p))
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	if length < 0 {
		return f, nil
	}
	return &limitedFile{Reader: io.LimitReader(f, length), file: f}, nil
}

// Stat returns size and mtime for one file.
func (l *Local) Stat(ctx context.Context, p string) (Entry, error) {
	info, err := os.Stat(l.abs(p))
	if err != nil {
		return Entry{}, err
	}
	ext := strings.ToLower(filepath.Ext(p))
	return Entry{
		Path:     p,
		Size:     info.Size(),
		ModTime:  info.ModTime().UTC(),
		MimeType: mediatypes.GetMimeType(ext),
	}, nil
}

// Stage returns the file's absolute path directly; local files need no copy.
func (l *Local) Stage(ctx context.Context, p, tempDir string) (string, func(), error) {
	abs := l.abs(p)
	if _, err := os.Stat(abs); err != nil {
		return "", nil, err
	}
	return abs, func() {}, nil
}

// WriteArtifact stores a derived artifact inside the reserved namespace.
func (l *Local) WriteArtifact(ctx context.Context, key string, data []byte) error {
	dest := l.artifactPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// OpenArtifact reads a derived artifact from the reserved namespace.
func (l *Local) OpenArtifact(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(l.artifactPath(key))
}

// DeleteArtifact removes a derived artifact. Missing files are ignored.
func (l *Local) DeleteArtifact(ctx context.Context, key string) error {
	if err := os.Remove(l.artifactPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *Local) artifactPath(key string) string {
	return filepath.Join(l.root, ReservedNamespace, filepath.FromSlash(key))
}

func (l *Local) abs(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(p))
}

type limitedFile struct {
	io.Reader
	file *os.File
}

func (lf *limitedFile) Close() error { return lf.file.Close() }
