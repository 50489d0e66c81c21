package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/friendsincode/memorix/internal/models"
)

// FFProbe wraps the ffprobe binary for container and stream inspection.
type FFProbe struct {
	Bin string
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType      string            `json:"codec_type"`
	CodecName      string            `json:"codec_name"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	BitRate        string            `json:"bit_rate"`
	AvgFrameRate   string            `json:"avg_frame_rate"`
	RFrameRate     string            `json:"r_frame_rate"`
	PixFmt         string            `json:"pix_fmt"`
	ColorSpace     string            `json:"color_space"`
	ColorPrimaries string            `json:"color_primaries"`
	ColorTransfer  string            `json:"color_transfer"`
	Channels       int               `json:"channels"`
	SampleRate     string            `json:"sample_rate"`
	Tags           map[string]string `json:"tags"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

// ProbeVideo runs ffprobe against a local file and maps the JSON output to
// a metadata record. Every field is optional.
func (p FFProbe) ProbeVideo(ctx context.Context, path string) (*models.VideoMetadata, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w (%s)", path, err, strings.TrimSpace(stderr.String()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	meta := &models.VideoMetadata{}

	var video, audio *ffprobeStream
	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}

	if d, ok := parseFloat(out.Format.Duration); ok {
		meta.Duration = &d
	}
	if f := strings.TrimSpace(out.Format.FormatName); f != "" {
		meta.ContainerFormat = &f
	}

	if video != nil {
		if video.Width > 0 {
			w := video.Width
			meta.Width = &w
		}
		if video.Height > 0 {
			h := video.Height
			meta.Height = &h
		}
		if b, ok := parseInt(video.BitRate); ok {
			meta.Bitrate = &b
		} else if b, ok := parseInt(out.Format.BitRate); ok {
			meta.Bitrate = &b
		}
		if fps, ok := parseFrameRate(video.AvgFrameRate); ok {
			meta.FPS = &fps
		} else if fps, ok := parseFrameRate(video.RFrameRate); ok {
			meta.FPS = &fps
		}
		if c := strings.TrimSpace(video.CodecName); c != "" {
			meta.CodecVideo = &c
		}
		if pf := strings.TrimSpace(video.PixFmt); pf != "" {
			meta.PixelFormat = &pf
		}
		if cs := strings.TrimSpace(video.ColorSpace); cs != "" {
			meta.ColorSpace = &cs
		}
		if cp := strings.TrimSpace(video.ColorPrimaries); cp != "" {
			meta.ColorPrimaries = &cp
		}
		if ct := strings.TrimSpace(video.ColorTransfer); ct != "" {
			meta.ColorTransfer = &ct
		}
		if rot, ok := parseInt(video.Tags["rotate"]); ok {
			r := int(rot)
			meta.Rotation = &r
		}
	}

	hasAudio := audio != nil
	meta.HasAudio = &hasAudio
	if audio != nil {
		if c := strings.TrimSpace(audio.CodecName); c != "" {
			meta.CodecAudio = &c
		}
		if audio.Channels > 0 {
			ch := audio.Channels
			meta.AudioChannels = &ch
		}
		if sr, ok := parseInt(audio.SampleRate); ok {
			v := int(sr)
			meta.AudioSampleRate = &v
		}
	}

	return meta, nil
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseFrameRate handles ffprobe's fractional "num/den" rates.
func parseFrameRate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || n <= 0 || d <= 0 {
			return 0, false
		}
		return n / d, true
	}
	return parseFloat(s)
}
