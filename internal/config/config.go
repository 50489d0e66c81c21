/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
// Per-storage backend settings (root paths, S3 credentials) live in the
// database, not here.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// External tool binaries for video probing and poster extraction.
	FFmpegBin  string
	FFprobeBin string

	// TempDir is where S3 objects are staged during artifact generation.
	TempDir string

	// ScanWorkers bounds parallel artifact generation per scan.
	// Zero means one worker per CPU.
	ScanWorkers int

	// ThumbMaxWidth caps generated thumbnail/poster width in pixels.
	ThumbMaxWidth int
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("MEMORIX_ENV", "development"),
		HTTPBind:      getEnv("MEMORIX_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("MEMORIX_HTTP_PORT", 8080),
		BaseURL:       getEnv("MEMORIX_BASE_URL", ""),
		DBBackend:     DatabaseBackend(getEnv("MEMORIX_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:         getEnv("MEMORIX_DB_DSN", "memorix.db"),
		MetricsBind:   getEnv("MEMORIX_METRICS_BIND", "127.0.0.1:9000"),
		FFmpegBin:     getEnv("MEMORIX_FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:    getEnv("MEMORIX_FFPROBE_BIN", "ffprobe"),
		TempDir:       getEnv("MEMORIX_TEMP_DIR", os.TempDir()),
		ScanWorkers:   getEnvInt("MEMORIX_SCAN_WORKERS", 0),
		ThumbMaxWidth: getEnvInt("MEMORIX_THUMB_MAX_WIDTH", 960),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("MEMORIX_DB_DSN must be provided")
	}

	if cfg.ThumbMaxWidth <= 0 {
		return nil, fmt.Errorf("MEMORIX_THUMB_MAX_WIDTH must be positive")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
