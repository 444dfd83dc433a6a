package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("ragchat_ingest_chunks_total", "Chunks stored")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("expected 5, got %d", c.Value())
	}
	if r.Counter("ragchat_ingest_chunks_total", "") != c {
		t.Fatal("expected same counter instance")
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("ask_seconds", "", []float64{1, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.3, 0.8, 2.0} {
		h.Observe(v)
	}
	counts, sum, count := h.snapshot()
	if count != 4 {
		t.Fatalf("expected 4 observations, got %d", count)
	}
	if counts[0] != 1 || counts[1] != 1 || counts[2] != 1 {
		t.Fatalf("unexpected bucket counts %v", counts)
	}
	if sum != 0.05+0.3+0.8+2.0 {
		t.Fatalf("unexpected sum %f", sum)
	}
}

func TestHistogramSince(t *testing.T) {
	h := New().Histogram("latency", "", nil)
	h.Since(time.Now().Add(-100 * time.Millisecond))
	if _, _, count := h.snapshot(); count != 1 {
		t.Fatal("expected 1 observation")
	}
}

func TestWithLabels(t *testing.T) {
	if got := WithLabels("ragchat_ask_total", "result", "ok"); got != `ragchat_ask_total{result="ok"}` {
		t.Fatalf("got %q", got)
	}
	if WithLabels("x", "dangling") != "x" {
		t.Fatal("odd label list should leave name unchanged")
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(WithLabels("ragchat_ask_total", "result", "ok"), "Questions answered").Add(3)
	r.Counter(WithLabels("ragchat_ask_total", "result", "error"), "").Inc()
	r.Histogram(WithLabels("ragchat_ask_duration_seconds", "node", "generate"), "Ask latency", []float64{1}).Observe(0.5)

	out := r.Render()
	for _, want := range []string{
		"# HELP ragchat_ask_total Questions answered",
		"# TYPE ragchat_ask_total counter",
		`ragchat_ask_total{result="ok"} 3`,
		`ragchat_ask_total{result="error"} 1`,
		"# TYPE ragchat_ask_duration_seconds histogram",
		`ragchat_ask_duration_seconds_bucket{le="1",node="generate"} 1`,
		`ragchat_ask_duration_seconds_bucket{le="+Inf",node="generate"} 1`,
		`ragchat_ask_duration_seconds_sum{node="generate"} 0.5`,
		`ragchat_ask_duration_seconds_count{node="generate"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "ragchat_ask_duration_seconds") > strings.Index(out, "# TYPE ragchat_ask_total") {
		t.Error("families should be sorted by name")
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("ragchat_reset_total", "Collection resets").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "ragchat_reset_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}
