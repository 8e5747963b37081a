package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Ingestion("Web", "success", time.Second)
	m.ClassifierFallback("backend")
	m.SchemaMiss()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RelayForwarded()
	m.RelayDropped("thread")
	m.RelayDial(false)
	m.RelayReconnect()
}

func TestCountersAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Ingestion("Web", "success", 200*time.Millisecond)
	m.Ingestion("Web", "success", 300*time.Millisecond)
	m.Ingestion("Telegram", "error", time.Second)
	m.RelayDropped("not_connected")

	if got := testutil.ToFloat64(m.ingestions.WithLabelValues("Web", "success")); got != 2 {
		t.Fatalf("expected 2 successful web ingestions, got %v", got)
	}
	if got := testutil.ToFloat64(m.relayDropped.WithLabelValues("not_connected")); got != 1 {
		t.Fatalf("expected 1 drop, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `ticketrelay_ingestions_total{source="Telegram",status="error"} 1`) {
		t.Fatalf("exposition missing ingestion counter:\n%s", body)
	}
}
