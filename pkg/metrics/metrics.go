// Package metrics is a small Prometheus text-format registry for the service
// counters and latency histograms, served on /metrics.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are latency buckets in seconds, sized for LLM round trips.
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Histogram counts observations into fixed cumulative buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			return
		}
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

func (h *Histogram) snapshot() (counts []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.counts...), h.sum, h.count
}

type family struct {
	kind string
	help string
}

// Registry holds named metrics. A name may carry labels, see WithLabels.
type Registry struct {
	mu         sync.RWMutex
	families   map[string]family
	counters   map[string]*Counter
	histograms map[string]*Histogram
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		families:   make(map[string]family),
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
	}
}

func (r *Registry) describe(name, kind, help string) {
	base := baseName(name)
	f, ok := r.families[base]
	if !ok {
		f = family{kind: kind}
	}
	if help != "" {
		f.help = help
	}
	r.families[base] = f
}

// Counter returns the counter called name, creating it on first use.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{}
	r.counters[name] = c
	r.describe(name, "counter", help)
	return c
}

// Histogram returns the histogram called name, creating it on first use.
// nil buckets means DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	if buckets == nil {
		buckets = DefaultBuckets
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	h := &Histogram{buckets: b, counts: make([]uint64, len(b))}
	r.histograms[name] = h
	r.describe(name, "histogram", help)
	return h
}

// WithLabels appends label pairs to name: WithLabels("x", "k", "v") is `x{k="v"}`.
// An odd number of kvs returns name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	pairs := make([]string, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", kvs[i], kvs[i+1]))
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func baseName(name string) string {
	if i := strings.IndexByte(name, '{'); i >= 0 {
		return name[:i]
	}
	return name
}

// labelSuffix returns `,k="v"` for `x{k="v"}`, or "".
func labelSuffix(name string) string {
	i := strings.IndexByte(name, '{')
	if i < 0 || len(name)-i <= 2 {
		return ""
	}
	return "," + name[i+1:len(name)-1]
}

// Render writes every family in the Prometheus text exposition format,
// families and series sorted by name.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bases := make([]string, 0, len(r.families))
	for b := range r.families {
		bases = append(bases, b)
	}
	sort.Strings(bases)

	var b strings.Builder
	for _, base := range bases {
		f := r.families[base]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", base, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", base, f.kind)

		switch f.kind {
		case "counter":
			for _, name := range seriesOf(r.counters, base) {
				fmt.Fprintf(&b, "%s %d\n", name, r.counters[name].Value())
			}
		case "histogram":
			for _, name := range seriesOf(r.histograms, base) {
				h := r.histograms[name]
				counts, sum, count := h.snapshot()
				labels := labelSuffix(name)
				var cumulative uint64
				for i, le := range h.buckets {
					cumulative += counts[i]
					fmt.Fprintf(&b, "%s_bucket{le=\"%g\"%s} %d\n", base, le, labels, cumulative)
				}
				fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"%s} %d\n", base, labels, count)
				wrapped := ""
				if labels != "" {
					wrapped = "{" + labels[1:] + "}"
				}
				fmt.Fprintf(&b, "%s_sum%s %g\n", base, wrapped, sum)
				fmt.Fprintf(&b, "%s_count%s %d\n", base, wrapped, count)
			}
		}
	}
	return b.String()
}

func seriesOf[T any](m map[string]T, base string) []string {
	var out []string
	for name := range m {
		if baseName(name) == base {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Handler serves Render.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}
