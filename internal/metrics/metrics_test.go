package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCountsEvents(t *testing.T) {
	registry := New()
	registry.ObserveEvent("created")
	registry.ObserveEvent("created")
	registry.ObserveEvent("")

	if got := testutil.ToFloat64(registry.events.WithLabelValues("created")); got != 2 {
		t.Fatalf("expected 2 created events, got %v", got)
	}
	if got := testutil.ToFloat64(registry.events.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected blank kind to count as unknown, got %v", got)
	}
}

func TestRegistryGauges(t *testing.T) {
	registry := New()
	registry.SetCacheEntries(42)
	registry.SetActiveRoots(2)
	registry.ObserveRead(272)
	registry.ObserveRead(16)

	if got := testutil.ToFloat64(registry.cacheEntries); got != 42 {
		t.Fatalf("expected 42 cache entries, got %v", got)
	}
	if got := testutil.ToFloat64(registry.activeRoots); got != 2 {
		t.Fatalf("expected 2 active roots, got %v", got)
	}
	if got := testutil.ToFloat64(registry.readBytes); got != 288 {
		t.Fatalf("expected 288 bytes read, got %v", got)
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.ObserveEvent("created")
	registry.ObserveRebuild("overflow")
	registry.SetCacheEntries(1)
	if registry.Gatherer() == nil {
		t.Fatalf("expected gatherer for nil registry")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	registry := New()
	registry.ObserveRebuild("queue_overflow")
	registry.ObserveSupplementaryRead("timeout")

	server := httptest.NewServer(registry.Handler())
	defer server.Close()

	response, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	text := string(body)
	for _, want := range []string{
		`dtreewatch_engine_rebuilds_total{reason="queue_overflow"} 1`,
		`dtreewatch_engine_supplementary_reads_total{outcome="timeout"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in exposition, got:\n%s", want, text)
		}
	}
}
