package probe

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/buckket/go-blurhash"
	"github.com/disintegration/imaging"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	thumbQuality       = 82
	blurhashComponents = 4
	blurhashSize       = 32
)

// Renderer produces thumbnails, video posters and blur placeholders.
type Renderer struct {
	FFmpegBin string
	MaxWidth  int
}

// ThumbResult is one rendered artifact plus its optional blur placeholder.
type ThumbResult struct {
	Image    []byte
	BlurHash *string
}

// RenderImageThumbnail decodes a local image, auto-orients it, caps its
// width, and encodes a JPEG thumbnail. Formats the in-process codecs cannot
// decode (HEIC in particular) fall through to ffmpeg frame extraction.
func (r Renderer) RenderImageThumbnail(ctx context.Context, path string) (*ThumbResult, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		img, err = r.decodeWithFFmpeg(ctx, path, nil)
		if err != nil {
			return nil, fmt.Errorf("decode image %s: %w", path, err)
		}
	}
	return r.finish(img)
}

// RenderVideoPoster extracts a frame at min(1, duration*0.1) seconds and
// renders it like an image thumbnail. Returns the poster capture time.
func (r Renderer) RenderVideoPoster(ctx context.Context, path string, durationHint *float64) (*ThumbResult, float64, error) {
	posterTime := 1.0
	if durationHint != nil && *durationHint > 0 {
		posterTime = math.Min(1, *durationHint*0.1)
	}

	img, err := r.decodeWithFFmpeg(ctx, path, &posterTime)
	if err != nil {
		// Very short clips can land past the last frame; retry from zero.
		img, err = r.decodeWithFFmpeg(ctx, path, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("extract poster frame %s: %w", path, err)
		}
	}

	result, err := r.finish(img)
	if err != nil {
		return nil, 0, err
	}
	return result, posterTime, nil
}

func (r Renderer) finish(img image.Image) (*ThumbResult, error) {
	maxWidth := r.MaxWidth
	if maxWidth <= 0 {
		maxWidth = 960
	}
	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return &ThumbResult{
		Image:    buf.Bytes(),
		BlurHash: BlurHash(img),
	}, nil
}

func (r Renderer) decodeWithFFmpeg(ctx context.Context, path string, seek *float64) (image.Image, error) {
	bin := r.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if seek != nil {
		args = append(args, "-ss", strconv.FormatFloat(*seek, 'f', -1, 64))
	}
	args = append(args,
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame")
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode ffmpeg frame: %w", err)
	}
	return img, nil
}

// BlurHash encodes a 4x4 component blur placeholder from a 32x32 fit of the
// image. Returns nil when encoding fails; callers treat that as "no
// placeholder", never an error.
func BlurHash(img image.Image) *string {
	small := imaging.Fit(img, blurhashSize, blurhashSize, imaging.Lanczos)
	hash, err := blurhash.Encode(blurhashComponents, blurhashComponents, small)
	if err != nil || hash == "" {
		return nil
	}
	return &hash
}

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// Placeholder returns a cached 1x1 transparent PNG served when no thumbnail
// or blur placeholder exists for an entry.
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			placeholderPNG = buf.Bytes()
		}
	})
	return placeholderPNG
}
