/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/memorix/internal/mediatypes"
	"github.com/friendsincode/memorix/internal/models"
)

const (
	stagingCleanupAttempts = 3
	stagingCleanupBackoff  = 200 * time.Millisecond
)

// S3 walks an S3-compatible bucket under an optional key prefix.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3 creates an object-store backend. Custom endpoints (MinIO, Ceph,
// vendor S3 clones) use path-style addressing when configured.
func NewS3(cfg S3Config, logger zerolog.Logger) (*S3, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: normalizePrefix(cfg.Prefix),
		logger: logger,
	}, nil
}

func (b *S3) Type() models.StorageType { return models.StorageS3 }

// Check verifies the bucket is reachable with the configured credentials.
func (b *S3) Check(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s unreachable: %w", b.bucket, err)
	}
	return nil
}

// Walk enumerates the bucket with paginated listing. A failed page aborts
// the whole walk so a truncated listing can never masquerade as deletions.
func (b *S3) Walk(ctx context.Context, obs WalkObserver, fn WalkFunc) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.bucket)}
	if b.prefix != "" {
		input.Prefix = aws.String(b.prefix + "/")
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	lastDir := ""

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects in %s: %w", b.bucket, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := b.relative(key)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			if hasHiddenSegment(rel) {
				continue
			}

			if dir := path.Dir(rel); dir != lastDir {
				lastDir = dir
				obs.dir(dir)
			}

			ext := strings.ToLower(path.Ext(rel))
			if !mediatypes.IsMediaFile(ext) {
				continue
			}

			if err := fn(Entry{
				Path:     rel,
				Size:     aws.ToInt64(obj.Size),
				ModTime:  aws.ToTime(obj.LastModified).UTC(),
				MimeType: mediatypes.GetMimeType(ext),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Open returns the full object body.
func (b *S3) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(p)),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", p, err)
	}
	return out.Body, nil
}

// OpenRange issues a ranged GET. A negative length reads to the end of the
// object.
func (b *S3) OpenRange(ctx context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	rng := fmt.Sprintf("bytes=%d-", offset)
	if length >= 0 {
		rng = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(p)),
		Range:  aws.String(rng),
	})
	if err != nil {
		return nil, fmt.Errorf("get object range %s %s: %w", p, rng, err)
	}
	return out.Body, nil
}

// Stat returns size and mtime for one object.
func (b *S3) Stat(ctx context.Context, p string) (Entry, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(p)),
	})
	if err != nil {
		return Entry{}, fmt.Errorf("head object %s: %w", p, err)
	}
	ext := strings.ToLower(path.Ext(p))
	return Entry{
		Path:     p,
		Size:     aws.ToInt64(out.ContentLength),
		ModTime:  aws.ToTime(out.LastModified).UTC(),
		MimeType: mediatypes.GetMimeType(ext),
	}, nil
}

// Stage downloads the object to a temp file so external tools can read it.
// The returned cleanup retries transient delete failures before giving up
// with a log line, never an error.
func (b *S3) Stage(ctx context.Context, p, tempDir string) (string, func(), error) {
	body, err := b.Open(ctx, p)
	if err != nil {
		return "", nil, err
	}
	defer body.Close()

	local := filepath.Join(tempDir, uuid.NewString()+strings.ToLower(path.Ext(p)))
	dest, err := os.Create(local)
	if err != nil {
		return "", nil, fmt.Errorf("create staging file: %w", err)
	}

	if _, err := io.Copy(dest, body); err != nil {
		dest.Close()
		os.Remove(local)
		return "", nil, fmt.Errorf("stage object %s: %w", p, err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(local)
		return "", nil, fmt.Errorf("stage object %s: %w", p, err)
	}

	cleanup := func() {
		b.removeStaged(local)
	}
	return local, cleanup, nil
}

// WriteArtifact stores a derived artifact under the reserved namespace.
func (b *S3) WriteArtifact(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.artifactKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", key, err)
	}
	return nil
}

// OpenArtifact reads a derived artifact back.
func (b *S3) OpenArtifact(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.artifactKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", key, err)
	}
	return out.Body, nil
}

// DeleteArtifact removes a derived artifact. S3 deletes are idempotent.
func (b *S3) DeleteArtifact(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.artifactKey(key)),
	})
	return err
}

func (b *S3) removeStaged(local string) {
	var err error
	for attempt := 1; attempt <= stagingCleanupAttempts; attempt++ {
		err = os.Remove(local)
		if err == nil || os.IsNotExist(err) {
			return
		}
		time.Sleep(stagingCleanupBackoff)
	}
	b.logger.Warn().Str("path", local).Err(err).Msg("abandoning staging file after failed cleanup")
}

func (b *S3) key(p string) string {
	if b.prefix == "" {
		return p
	}
	return b.prefix + "/" + p
}

func (b *S3) artifactKey(key string) string {
	return b.key(ReservedNamespace + "/" + key)
}

func (b *S3) relative(key string) string {
	if b.prefix != "" {
		key = strings.TrimPrefix(key, b.prefix)
	}
	return strings.TrimPrefix(key, "/")
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func hasHiddenSegment(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}
