package probe

import (
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"

	"github.com/friendsincode/memorix/internal/models"
)

var registerParsers sync.Once

// ProbeImage reads EXIF fields and pixel dimensions from a local image file.
// Images without EXIF yield a record carrying dimensions only. Every field
// is optional; only an unopenable file is an error.
func ProbeImage(path string) (*models.PhotoMetadata, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}

	meta := &models.PhotoMetadata{LiveType: models.LiveNone}

	if data, err := readEXIF(path); err == nil && data != nil {
		fillEXIF(meta, data)
	}

	if width, height, err := imageDimensions(path); err == nil {
		meta.ResolutionWidth = &width
		meta.ResolutionHeight = &height
	}

	return meta, nil
}

func readEXIF(path string) (*exif.Exif, error) {
	registerParsers.Do(func() {
		exif.RegisterParsers(mknote.All...)
	})

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := exif.Decode(f)
	if err != nil {
		// Absent EXIF is normal for screenshots and exports.
		return nil, nil
	}
	return data, nil
}

func fillEXIF(meta *models.PhotoMetadata, data *exif.Exif) {
	if shot, err := data.DateTime(); err == nil {
		meta.DateShot = &shot
	}
	if lat, long, err := data.LatLong(); err == nil {
		meta.GPSLatitude = &lat
		meta.GPSLongitude = &long
	}
	if s, ok := exifString(data, exif.Model); ok {
		meta.Camera = &s
	}
	if s, ok := exifString(data, exif.Make); ok {
		meta.Maker = &s
	}
	if s, ok := exifString(data, exif.LensModel); ok {
		meta.Lens = &s
	}
	if v, ok := exifRatio(data, exif.ExposureTime); ok {
		meta.Exposure = &v
	}
	if v, ok := exifRatio(data, exif.FNumber); ok {
		meta.Aperture = &v
	}
	if v, ok := exifInt(data, exif.ISOSpeedRatings); ok {
		meta.ISO = &v
	}
	if v, ok := exifRatio(data, exif.FocalLength); ok {
		meta.FocalLength = &v
	}
	if v, ok := exifInt(data, exif.Flash); ok {
		meta.Flash = &v
	}
	if v, ok := exifInt(data, exif.Orientation); ok {
		meta.Orientation = &v
	}
	if v, ok := exifInt(data, exif.ExposureProgram); ok {
		meta.ExposureProgram = &v
	}
	if v, ok := exifInt(data, exif.WhiteBalance); ok {
		s := strconv.FormatInt(v, 10)
		meta.WhiteBalance = &s
	}
}

func exifString(data *exif.Exif, field exif.FieldName) (string, bool) {
	tag, err := data.Get(field)
	if err != nil {
		return "", false
	}
	s, err := tag.StringVal()
	if err != nil || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func exifRatio(data *exif.Exif, field exif.FieldName) (float64, bool) {
	tag, err := data.Get(field)
	if err != nil {
		return 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

func exifInt(data *exif.Exif, field exif.FieldName) (int64, bool) {
	tag, err := data.Get(field)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, false
	}
	return int64(v), true
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
