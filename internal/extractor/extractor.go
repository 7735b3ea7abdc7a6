package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/config"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/tracing"
	"github.com/therealutkarshpriyadarshi/vidrelay/pkg/models"
)

// Operation names used for logs, metrics and spans
const (
	OpMetadata = "metadata"
	OpInfo     = "info"
	OpURL      = "url"
	OpUpdate   = "update"
	OpVersion  = "version"
)

// baseArgs are passed to every metadata and URL invocation
var baseArgs = []string{"--no-check-certificates", "--no-warnings"}

var (
	videoIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	videoURLPattern = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?|shorts|live)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)
	selectorPattern = regexp.MustCompile(`^[A-Za-z0-9_+\-/\[\]<>=!*.,:^$~?()|]{1,256}$`)
)

// Extractor wraps yt-dlp
type Extractor struct {
	path    string
	timeout time.Duration
	sem     chan struct{}
	runner  Runner
	logger  *logging.Logger
}

// Option customizes an Extractor
type Option func(*Extractor)

// WithRunner replaces the process runner
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		e.runner = r
	}
}

// New creates an Extractor from config
func New(cfg config.ExtractorConfig, logger *logging.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		path:    cfg.Path,
		timeout: cfg.Timeout,
		runner:  ExecRunner{},
		logger:  logger.WithComponent("extractor"),
	}
	if cfg.MaxConcurrent > 0 {
		e.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ytdlpInfo matches the subset of yt-dlp's -j output we project
type ytdlpInfo struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Duration    float64       `json:"duration"`
	Thumbnail   string        `json:"thumbnail"`
	Filesize    *float64      `json:"filesize"`
	Formats     []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID   string   `json:"format_id"`
	Ext        string   `json:"ext"`
	Resolution string   `json:"resolution"`
	Filesize   *float64 `json:"filesize"`
	VCodec     string   `json:"vcodec"`
	ACodec     string   `json:"acodec"`
	Quality    *float64 `json:"quality"`
}

// ResolveVideoID extracts the 11 character video id from a bare id or any
// watch, short, embed or v= URL.
func ResolveVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	m := videoURLPattern.FindStringSubmatch(raw)
	if m == nil || !videoIDPattern.MatchString(m[1]) {
		return "", &InvalidReferenceError{Kind: "video id", Input: raw}
	}
	return m[1], nil
}

// ResolveSelector maps a quality preset to its yt-dlp format selector.
// Unknown names are treated as raw selectors and must pass a strict
// character check. An empty quality means the default preset.
func ResolveSelector(quality string) (string, error) {
	if quality == "" {
		quality = models.DefaultQuality
	}
	if selector, ok := models.PresetSelector(quality); ok {
		return selector, nil
	}
	if !selectorPattern.MatchString(quality) {
		return "", &InvalidReferenceError{Kind: "quality selector", Input: quality}
	}
	return quality, nil
}

// FetchMetadata dumps the video's JSON and projects it into VideoMetadata
func (e *Extractor) FetchMetadata(ctx context.Context, reference string) (*models.VideoMetadata, error) {
	videoID, err := ResolveVideoID(reference)
	if err != nil {
		return nil, err
	}

	out, err := e.run(ctx, OpMetadata, videoID,
		withBase("--format-sort", "quality", "--format", "best", "-j", models.WatchURL(videoID))...)
	if err != nil {
		return nil, err
	}

	info, err := parseInfo(OpMetadata, out)
	if err != nil {
		return nil, err
	}

	return &models.VideoMetadata{
		Title:       info.Title,
		Description: info.Description,
		Duration:    info.Duration,
		Thumbnail:   info.Thumbnail,
		Formats: lo.Map(info.Formats, func(f ytdlpFormat, _ int) models.FormatDescriptor {
			return models.FormatDescriptor{
				FormatID:   f.FormatID,
				Ext:        f.Ext,
				Resolution: f.Resolution,
				Filesize:   toInt64(f.Filesize),
				VCodec:     f.VCodec,
				ACodec:     f.ACodec,
				Quality:    f.Quality,
			}
		}),
	}, nil
}

// ResolveDownload resolves a direct media URL for the given quality. It runs
// yt-dlp twice: once for the title and thumbnail, once for the URL itself.
func (e *Extractor) ResolveDownload(ctx context.Context, reference, quality string) (*models.DownloadResolution, error) {
	videoID, err := ResolveVideoID(reference)
	if err != nil {
		return nil, err
	}
	if quality == "" {
		quality = models.DefaultQuality
	}
	selector, err := ResolveSelector(quality)
	if err != nil {
		return nil, err
	}

	watchURL := models.WatchURL(videoID)

	infoOut, err := e.run(ctx, OpInfo, videoID, withBase("-j", watchURL)...)
	if err != nil {
		return nil, err
	}
	info, err := parseInfo(OpInfo, infoOut)
	if err != nil {
		return nil, err
	}

	urlOut, err := e.run(ctx, OpURL, videoID,
		withBase("--format", selector, "--get-url", "--no-playlist", watchURL)...)
	if err != nil {
		return nil, err
	}

	mediaURL := pickURL(string(urlOut), quality)
	if mediaURL == "" {
		metrics.RecordError("extractor", "empty_url")
		return nil, &ExtractionError{Op: OpURL, Err: errors.New("no media URL in output")}
	}

	return &models.DownloadResolution{
		URL:       mediaURL,
		Title:     info.Title,
		Ext:       models.ExtensionFor(quality),
		Quality:   quality,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
		Filesize:  toInt64(info.Filesize),
	}, nil
}

// SelfUpdate asks yt-dlp to update itself and returns its output
func (e *Extractor) SelfUpdate(ctx context.Context) (string, error) {
	out, err := e.run(ctx, OpUpdate, "", "-U")
	return strings.TrimSpace(string(out)), err
}

// Version returns the installed yt-dlp version
func (e *Extractor) Version(ctx context.Context) (string, error) {
	out, err := e.run(ctx, OpVersion, "", "--version")
	return strings.TrimSpace(string(out)), err
}

// pickURL selects the media URL from --get-url output. When video and audio
// resolve to separate streams yt-dlp prints one URL per line: audio takes the
// first, everything else the last.
func pickURL(output, quality string) string {
	lines := lo.Compact(lo.Map(strings.Split(output, "\n"), func(line string, _ int) string {
		return strings.TrimSpace(line)
	}))
	if len(lines) == 0 {
		return ""
	}
	if models.IsAudio(quality) {
		return lines[0]
	}
	return lines[len(lines)-1]
}

func (e *Extractor) run(ctx context.Context, op, videoID string, args ...string) ([]byte, error) {
	span, ctx := tracing.StartSpan(ctx, "extractor."+op)
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "video_id", videoID)

	if err := e.acquire(ctx); err != nil {
		return nil, &ExtractionError{Op: op, Err: err}
	}
	defer e.release()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.WithVideoID(videoID).Debugf("Running %s %s", e.path, strings.Join(args, " "))

	metrics.ExtractorInFlight.Inc()
	start := time.Now()
	stdout, stderr, err := e.runner.Run(ctx, e.path, args...)
	duration := time.Since(start)
	metrics.ExtractorInFlight.Dec()

	diag := strings.TrimSpace(string(stderr))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", e.timeout, err)
		}
		xerr := &ExtractionError{Op: op, Stderr: diag, Err: err}
		tracing.LogError(span, xerr)
		metrics.RecordExtractorRun(op, false, duration.Seconds())
		e.logger.LogExtractorRun(op, videoID, duration, xerr)
		return nil, xerr
	}

	if diag != "" {
		e.logger.WithVideoID(videoID).Warnf("yt-dlp %s stderr: %s", op, diag)
	}
	metrics.RecordExtractorRun(op, true, duration.Seconds())
	e.logger.LogExtractorRun(op, videoID, duration, nil)
	return stdout, nil
}

func (e *Extractor) acquire(ctx context.Context) error {
	if e.sem == nil {
		return nil
	}
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Extractor) release() {
	if e.sem != nil {
		<-e.sem
	}
}

func parseInfo(op string, out []byte) (*ytdlpInfo, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		metrics.RecordError("extractor", "parse")
		return nil, &ExtractionError{Op: op, Err: fmt.Errorf("failed to parse yt-dlp output: %w", err)}
	}
	return &info, nil
}

func withBase(args ...string) []string {
	return append(append(make([]string, 0, len(baseArgs)+len(args)), baseArgs...), args...)
}

func toInt64(v *float64) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}
