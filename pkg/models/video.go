package models

import "fmt"

// WatchURLBase is the canonical watch URL a video id is appended to
const WatchURLBase = "https://www.youtube.com/watch?v="

// VideoMetadata is the projection of the extractor's JSON dump returned by
// the info and formats endpoints. It is recomputed on every request.
type VideoMetadata struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Duration    float64            `json:"duration"`
	Thumbnail   string             `json:"thumbnail"`
	Formats     []FormatDescriptor `json:"formats"`
}

// FormatDescriptor describes a single format offered by the platform
type FormatDescriptor struct {
	FormatID   string   `json:"formatId"`
	Ext        string   `json:"ext"`
	Resolution string   `json:"resolution"`
	Filesize   *int64   `json:"filesize"`
	VCodec     string   `json:"vcodec"`
	ACodec     string   `json:"acodec"`
	Quality    *float64 `json:"quality"`
}

// DownloadResolution holds a freshly resolved direct media URL. The URL is a
// signed, expiring link and must never be cached.
type DownloadResolution struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Ext       string  `json:"ext"`
	Quality   string  `json:"quality"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	Filesize  *int64  `json:"filesize"`
}

// Filename returns the suggested attachment filename
func (d *DownloadResolution) Filename() string {
	return fmt.Sprintf("%s.%s", d.Title, d.Ext)
}

// WatchURL builds the canonical watch URL for an already validated video id
func WatchURL(videoID string) string {
	return WatchURLBase + videoID
}
