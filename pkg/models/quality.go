package models

// Quality preset names accepted by the download and stream endpoints
const (
	QualityAudio   = "audio"
	QualityHighest = "highest"
	Quality1080p   = "1080p"
	Quality720p    = "720p"
	Quality480p    = "480p"
	Quality360p    = "360p"
)

// DefaultQuality is used when a request carries no quality parameter
const DefaultQuality = QualityHighest

// QualityPreset maps a preset name to a yt-dlp format selector
type QualityPreset struct {
	Name     string
	Selector string
}

// QualityPresets lists the known presets in the order they are advertised
var QualityPresets = []QualityPreset{
	{Name: QualityAudio, Selector: "bestaudio[ext=m4a]/bestaudio"},
	{Name: QualityHighest, Selector: "best[ext=mp4]/best"},
	{Name: Quality1080p, Selector: "best[height<=1080][ext=mp4]/best[height<=1080]"},
	{Name: Quality720p, Selector: "best[height<=720][ext=mp4]/best[height<=720]"},
	{Name: Quality480p, Selector: "best[height<=480][ext=mp4]/best[height<=480]"},
	{Name: Quality360p, Selector: "best[height<=360][ext=mp4]/best[height<=360]"},
}

// PresetSelector returns the format selector for a preset name
func PresetSelector(name string) (string, bool) {
	for _, p := range QualityPresets {
		if p.Name == name {
			return p.Selector, true
		}
	}
	return "", false
}

// QualityNames returns the advertised preset names
func QualityNames() []string {
	names := make([]string, 0, len(QualityPresets))
	for _, p := range QualityPresets {
		names = append(names, p.Name)
	}
	return names
}

// IsAudio reports whether the quality selects an audio-only stream
func IsAudio(quality string) bool {
	return quality == QualityAudio
}

// ExtensionFor returns the container extension reported for a quality.
// Audio is always m4a, everything else mp4, whatever the extractor says.
func ExtensionFor(quality string) string {
	if IsAudio(quality) {
		return "m4a"
	}
	return "mp4"
}

// ContentTypeFor returns the media type used when relaying a quality
func ContentTypeFor(quality string) string {
	if IsAudio(quality) {
		return "audio/mp4"
	}
	return "video/mp4"
}
