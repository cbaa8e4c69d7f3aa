package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandlerRendersCounters(t *testing.T) {
	m := New()
	m.Inc(Connects)
	m.Inc(Connects)
	m.Add(SignalsRelayed, 5)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	PrometheusHandler(m).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "# TYPE webrtc_signaling_events_total counter") {
		t.Fatalf("missing TYPE line in body:\n%s", body)
	}
	if !strings.Contains(body, `webrtc_signaling_events_total{event="connects"} 2`) {
		t.Fatalf("missing connects counter in body:\n%s", body)
	}
	if !strings.Contains(body, `webrtc_signaling_events_total{event="signals_relayed"} 5`) {
		t.Fatalf("missing signals_relayed counter in body:\n%s", body)
	}
}

func TestPrometheusHandlerNilMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	PrometheusHandler(nil).ServeHTTP(rec, req)
	if rec.Code != 500 {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
}
