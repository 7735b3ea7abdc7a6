package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/api/info/:videoId", "200", 0.123)

	counter := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/info/:videoId", "200"))
	if counter != 1.0 {
		t.Errorf("Expected counter to be 1.0, got %f", counter)
	}
}

func TestRecordExtractorRun(t *testing.T) {
	ExtractorInvocationsTotal.Reset()

	RecordExtractorRun("metadata", true, 1.5)
	RecordExtractorRun("metadata", false, 0.2)
	RecordExtractorRun("metadata", true, 0.9)

	success := testutil.ToFloat64(ExtractorInvocationsTotal.WithLabelValues("metadata", "success"))
	if success != 2.0 {
		t.Errorf("Expected 2 successful runs, got %f", success)
	}

	failure := testutil.ToFloat64(ExtractorInvocationsTotal.WithLabelValues("metadata", "failure"))
	if failure != 1.0 {
		t.Errorf("Expected 1 failed run, got %f", failure)
	}
}

func TestRecordRelay(t *testing.T) {
	RelayOutcomesTotal.Reset()
	before := testutil.ToFloat64(RelayBytesTotal)

	RecordRelay("completed", 2048)
	RecordRelay("failed_mid_stream", 512)

	if got := testutil.ToFloat64(RelayOutcomesTotal.WithLabelValues("completed")); got != 1.0 {
		t.Errorf("Expected 1 completed relay, got %f", got)
	}
	if got := testutil.ToFloat64(RelayBytesTotal) - before; got != 2560 {
		t.Errorf("Expected 2560 bytes relayed, got %f", got)
	}
}

func TestRecordAuthFailureAndRateLimited(t *testing.T) {
	AuthFailuresTotal.Reset()
	before := testutil.ToFloat64(RateLimitedTotal)

	RecordAuthFailure("missing")
	RecordAuthFailure("mismatch")
	RecordAuthFailure("missing")
	RecordRateLimited()

	if got := testutil.ToFloat64(AuthFailuresTotal.WithLabelValues("missing")); got != 2.0 {
		t.Errorf("Expected 2 missing-key failures, got %f", got)
	}
	if got := testutil.ToFloat64(RateLimitedTotal) - before; got != 1.0 {
		t.Errorf("Expected 1 rate limited request, got %f", got)
	}
}

func TestRecordError(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("relay", "connect")

	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues("relay", "connect")); got != 1.0 {
		t.Errorf("Expected error counter to be 1.0, got %f", got)
	}
}

func TestHandler(t *testing.T) {
	RecordError("extractor", "timeout")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "vidrelay_errors_total") {
		t.Error("Expected vidrelay_errors_total in exposition output")
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", health.StatusCode)
	}
}
