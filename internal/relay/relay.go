package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/vidrelay/internal/config"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidrelay/pkg/models"
)

// State is the lifecycle position of a single relay
type State string

// Relay states. Only StateFailedBeforeHeaders still allows an error body.
const (
	StateIdle                State = "idle"
	StateConnecting          State = "connecting"
	StateStreaming           State = "streaming"
	StateCompleted           State = "completed"
	StateFailedBeforeHeaders State = "failed_before_headers"
	StateFailedMidStream     State = "failed_mid_stream"
)

// ConnectError means the upstream fetch could not be established
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to media source: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// StreamError means reading from upstream or writing to the caller failed.
// HeadersSent tells whether the response was already committed.
type StreamError struct {
	Err         error
	HeadersSent bool
	Written     int64
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("media stream failed after %d bytes: %v", e.Written, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Relay streams resolved media URLs to callers
type Relay struct {
	client     *http.Client
	userAgent  string
	bufferSize int
	logger     *logging.Logger
}

// New creates a Relay with a hardened outbound client. There is no overall
// client timeout; the request context bounds the transfer instead.
func New(cfg config.RelayConfig, logger *logging.Logger) *Relay {
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       30 * time.Second,
		},
	}
	return NewWithClient(client, cfg, logger)
}

// NewWithClient creates a Relay using the given client
func NewWithClient(client *http.Client, cfg config.RelayConfig, logger *logging.Logger) *Relay {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 32 * 1024
	}
	return &Relay{
		client:     client,
		userAgent:  cfg.UserAgent,
		bufferSize: bufferSize,
		logger:     logger.WithComponent("relay"),
	}
}

// Stream fetches res.URL and copies it to w chunk by chunk. Headers are only
// committed once the first chunk has been read, so every failure up to that
// point leaves w untouched and ends in StateFailedBeforeHeaders. Cancelling
// ctx (the caller going away) aborts the upstream fetch.
func (r *Relay) Stream(ctx context.Context, w http.ResponseWriter, res *models.DownloadResolution) (State, error) {
	start := time.Now()
	state, written, err := r.stream(ctx, w, res)

	metrics.RecordRelay(string(state), written)
	r.logger.LogRelay(res.Title, string(state), written, time.Since(start), err)
	return state, err
}

func (r *Relay) stream(ctx context.Context, w http.ResponseWriter, res *models.DownloadResolution) (State, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return StateFailedBeforeHeaders, 0, &ConnectError{Err: err}
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return StateFailedBeforeHeaders, 0, &ConnectError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StateFailedBeforeHeaders, 0, &ConnectError{Err: fmt.Errorf("upstream returned status %d", resp.StatusCode)}
	}

	buf := make([]byte, r.bufferSize)
	n, readErr := io.ReadAtLeast(resp.Body, buf, 1)
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		return StateFailedBeforeHeaders, 0, &StreamError{Err: readErr}
	}

	metrics.RelayActive.Inc()
	defer metrics.RelayActive.Dec()

	h := w.Header()
	h.Set("Content-Type", models.ContentTypeFor(res.Quality))
	h.Set("Content-Disposition", ContentDisposition(res.Filename()))
	if resp.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	var written int64
	flusher, _ := w.(http.Flusher)
	chunk := buf[:n]
	for {
		if len(chunk) > 0 {
			m, werr := w.Write(chunk)
			written += int64(m)
			if werr != nil {
				return StateFailedMidStream, written, &StreamError{Err: werr, HeadersSent: true, Written: written}
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return StateCompleted, written, nil
			}
			return StateFailedMidStream, written, &StreamError{Err: readErr, HeadersSent: true, Written: written}
		}

		n, readErr = resp.Body.Read(buf)
		chunk = buf[:n]
	}
}

// ContentDisposition builds an attachment header for filename. The quoted
// form is reduced to printable ASCII; filename* carries the exact UTF-8 name.
func ContentDisposition(filename string) string {
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r == '"' || r == '\\':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f || r > 0x7e:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, b.String(), url.PathEscape(filename))
}
