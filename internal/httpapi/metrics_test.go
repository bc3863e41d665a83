package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	return mrr.Body.Bytes()
}

func preview(b []byte) string {
	if len(b) > 400 {
		b = b[:400]
	}
	return string(b)
}

// TestMetricsMiddleware_EmitsRequestCounters verifies that wrapping a handler
// with MetricsMiddleware results in request metrics being exposed via the
// Prometheus /metrics handler.
func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := scrape(t); !bytes.Contains(body, []byte("apyd_http_requests_total")) {
		t.Fatalf("expected apyd_http_requests_total in metrics; got: %q", preview(body))
	}
}

// TestMetricsMiddleware_UsesRoutePattern ensures requests through the router
// are labeled by the chi route pattern, not the raw URL.
func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	svc := &mockService{installed: []string{"eng-spa"}}
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/translate", http.MethodGet, "200"))
	w := serve(t, svc, httptest.NewRequest(http.MethodGet, "/translate?langpair=eng|spa&q=unique-query", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/translate", http.MethodGet, "200"))
	if after != before+1 {
		t.Fatalf("expected /translate counter to grow by 1: before=%v after=%v", before, after)
	}
	if body := scrape(t); bytes.Contains(body, []byte("unique-query")) {
		t.Fatalf("query string leaked into metric labels")
	}
}

func TestMetricsMiddleware_BoundedLabels(t *testing.T) {
	svc := &mockService{installed: []string{"eng-spa"}}
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(unmatchedRoute, http.MethodGet, "404"))
	w := serve(t, svc, httptest.NewRequest(http.MethodGet, "/no/such/route-7f3a", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(unmatchedRoute, http.MethodGet, "404"))
	if after != before+1 {
		t.Fatalf("unrouted request should count as %q: before=%v after=%v", unmatchedRoute, before, after)
	}
	if got := testutil.ToFloat64(httpInflight.WithLabelValues(http.MethodGet)); got != 0 {
		t.Fatalf("in-flight gauge should settle at 0, got %v", got)
	}
	if body := scrape(t); bytes.Contains(body, []byte("route-7f3a")) {
		t.Fatalf("raw path leaked into metric labels")
	}
}

func TestIncrementRejection(t *testing.T) {
	baseline := testutil.ToFloat64(rejectionsTotal.WithLabelValues("too_fragmented"))
	svc := &mockService{installed: []string{"eng-spa"}, err: splitErr(t)}
	serve(t, svc, httptest.NewRequest(http.MethodGet, "/translate?langpair=eng|spa&q=x", nil))
	if got := testutil.ToFloat64(rejectionsTotal.WithLabelValues("too_fragmented")); got != baseline+1 {
		t.Fatalf("expected 413 to count a rejection: baseline=%v got=%v", baseline, got)
	}

	before := testutil.ToFloat64(rejectionsTotal.WithLabelValues("unspecified"))
	IncrementRejection("")
	if after := testutil.ToFloat64(rejectionsTotal.WithLabelValues("unspecified")); after != before+1 {
		t.Fatalf("empty reason should count as unspecified: before=%v after=%v", before, after)
	}
}
