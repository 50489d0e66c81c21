package models

import "time"

// MediaType classifies a catalog entry.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaAnimated MediaType = "animated"
	MediaVideo    MediaType = "video"
)

// LiveType enumerates live photo pairing states for an image entry.
type LiveType string

const (
	LiveNone     LiveType = "none"
	LivePaired   LiveType = "paired"
	LiveEmbedded LiveType = "embedded"
)

// StorageType selects the backend implementation for a storage.
type StorageType string

const (
	StorageLocal StorageType = "local"
	StorageNAS   StorageType = "nas"
	StorageS3    StorageType = "s3"
)

// UserStorage is a registered storage backend. Config holds the
// backend-specific settings as JSON; it is validated once at the
// boundary into a storage.Backend.
type UserStorage struct {
	ID        string      `gorm:"primaryKey;type:varchar(36)"`
	UserID    string      `gorm:"index;type:varchar(36)"`
	Name      string      `gorm:"type:varchar(255)"`
	Type      StorageType `gorm:"type:varchar(16)"`
	Config    string      `gorm:"type:text"`
	Status    string      `gorm:"type:varchar(32)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// File is one cataloged media object, unique per (user_storage_id, path).
// IsPublished is owned by the surrounding app and preserved across rescans.
type File struct {
	ID            uint      `gorm:"primaryKey"`
	UserStorageID string    `gorm:"uniqueIndex:idx_files_storage_path;type:varchar(36)"`
	Path          string    `gorm:"uniqueIndex:idx_files_storage_path;type:varchar(768)"`
	Title         string    `gorm:"type:varchar(255)"`
	Size          int64
	MimeType      string    `gorm:"type:varchar(100)"`
	MediaType     MediaType `gorm:"type:varchar(16);index"`
	Mtime         time.Time
	URL           string    `gorm:"type:text"`
	ThumbURL      string    `gorm:"type:text"`
	BlurHash      *string   `gorm:"type:varchar(64)"`
	IsPublished   bool      `gorm:"default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PhotoMetadata is the 1:1 EXIF and pairing record for an image or
// animated File.
type PhotoMetadata struct {
	FileID           uint     `gorm:"primaryKey"`
	Camera           *string  `gorm:"type:varchar(255)"`
	Maker            *string  `gorm:"type:varchar(255)"`
	Lens             *string  `gorm:"type:varchar(255)"`
	DateShot         *time.Time
	Exposure         *float64
	Aperture         *float64
	ISO              *int64
	FocalLength      *float64
	Flash            *int64
	Orientation      *int64
	ExposureProgram  *int64
	GPSLatitude      *float64
	GPSLongitude     *float64
	ResolutionWidth  *int
	ResolutionHeight *int
	WhiteBalance     *string  `gorm:"type:varchar(64)"`
	LiveType         LiveType `gorm:"type:varchar(16);default:none"`
	VideoOffset      *int64
	PairedPath       *string  `gorm:"type:varchar(768)"`
	VideoDuration    *float64
}

// VideoMetadata is the 1:1 stream/container record for a video File.
type VideoMetadata struct {
	FileID          uint     `gorm:"primaryKey"`
	Duration        *float64
	Width           *int
	Height          *int
	Bitrate         *int64
	FPS             *float64
	CodecVideo      *string  `gorm:"type:varchar(64)"`
	PixelFormat     *string  `gorm:"type:varchar(64)"`
	ColorSpace      *string  `gorm:"type:varchar(64)"`
	ColorPrimaries  *string  `gorm:"type:varchar(64)"`
	ColorTransfer   *string  `gorm:"type:varchar(64)"`
	CodecAudio      *string  `gorm:"type:varchar(64)"`
	AudioChannels   *int
	AudioSampleRate *int
	HasAudio        *bool
	Rotation        *int
	ContainerFormat *string  `gorm:"type:varchar(64)"`
	PosterTime      *float64
}
