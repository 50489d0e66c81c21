/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scan implements the storage reconciliation pipeline: walk a
// backend, classify and pair media objects, diff them against the catalog,
// generate derived artifacts, and commit the result transactionally.
package scan

import (
	"time"

	"github.com/friendsincode/memorix/internal/models"
)

// Mode selects how aggressively a scan refreshes the catalog.
type Mode string

const (
	// ModeIncremental skips objects whose fingerprint is unchanged.
	ModeIncremental Mode = "incremental"
	// ModeFull reprocesses every discovered object regardless of fingerprint.
	ModeFull Mode = "full"
)

// ParseMode maps a request string to a Mode, defaulting to incremental.
func ParseMode(s string) Mode {
	if s == string(ModeFull) {
		return ModeFull
	}
	return ModeIncremental
}

// Object is one discovered media object flowing through a scan.
type Object struct {
	Path      string
	Title     string
	Size      int64
	ModTime   time.Time
	MimeType  string
	MediaType models.MediaType

	// Pairing state. LiveType is paired when a sidecar video was consumed
	// for this image; embedded state is only known after the metadata probe.
	LiveType   models.LiveType
	PairedPath string
}

// LogLevel tags scan log callbacks.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// Progress is a decimated progress callback payload.
type Progress struct {
	Stage     string `json:"stage"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// RunOptions parameterizes one scan run. Callbacks are invoked synchronously
// on the scanning goroutine and must not block.
type RunOptions struct {
	StorageID  string
	Mode       Mode
	OnLog      func(level LogLevel, message string)
	OnProgress func(Progress)
}

// Summary is the final result of a successful scan.
type Summary struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}
