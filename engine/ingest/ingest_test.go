package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/WessleyAI/ragchat/engine/semantic"
	"github.com/WessleyAI/ragchat/pkg/hashembed"
	"github.com/WessleyAI/ragchat/pkg/metrics"
	"github.com/WessleyAI/ragchat/pkg/natsutil/natstest"
	"github.com/nats-io/nats.go"
)

// --- Fakes ---

type countingEmbedder struct {
	inner Embedder
	calls atomic.Int32
	err   error
	gate  chan struct{}
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.gate != nil {
		<-e.gate
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.inner.EmbedBatch(ctx, texts)
}

type failingStore struct {
	*semantic.MemoryStore
	err error
}

func (s *failingStore) Upsert(context.Context, []semantic.VectorRecord) error { return s.err }

func newMemoryStore(t *testing.T) *semantic.MemoryStore {
	t.Helper()
	s, err := semantic.NewMemoryStore("", "Document")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newCoordinator(t *testing.T, emb Embedder, store Store) *Coordinator {
	t.Helper()
	return NewCoordinator(Deps{
		Embedder: emb,
		Store:    store,
		Splitter: Splitter{Size: 100, Overlap: 10, Strategy: StrategyWindow},
	})
}

// --- Tests ---

func TestIngest_Additive(t *testing.T) {
	store := newMemoryStore(t)
	c := newCoordinator(t, hashembed.New(32), store)
	ctx := context.Background()

	n1, err := c.Ingest(ctx, "a.txt", []byte(strings.Repeat("alpha beta gamma ", 30)))
	if err != nil {
		t.Fatalf("Ingest a: %v", err)
	}
	n2, err := c.Ingest(ctx, "b.txt", []byte(strings.Repeat("delta epsilon ", 20)))
	if err != nil {
		t.Fatalf("Ingest b: %v", err)
	}
	total, err := c.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n1 == 0 || n2 == 0 || total != n1+n2 {
		t.Fatalf("expected %d+%d records, got %d", n1, n2, total)
	}

	again, _ := c.Ingest(ctx, "a.txt", []byte(strings.Repeat("alpha beta gamma ", 30)))
	if total, _ = c.Count(ctx); total != n1+n2+again {
		t.Fatalf("re-ingest should append, got %d", total)
	}
}

func TestIngest_UnsupportedLeavesStoreUntouched(t *testing.T) {
	store := newMemoryStore(t)
	emb := &countingEmbedder{inner: hashembed.New(32)}
	c := newCoordinator(t, emb, store)
	ctx := context.Background()
	_, _ = c.Ingest(ctx, "a.txt", []byte("existing content"))
	before, _ := c.Count(ctx)

	_, err := c.Ingest(ctx, "report.docx", []byte("PK\x03\x04"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if after, _ := c.Count(ctx); after != before {
		t.Fatalf("count changed from %d to %d", before, after)
	}
	if emb.calls.Load() != 1 {
		t.Fatalf("embedder should not run for a rejected file, calls=%d", emb.calls.Load())
	}
}

func TestIngest_EmbedFailureWritesNothing(t *testing.T) {
	store := newMemoryStore(t)
	c := newCoordinator(t, &countingEmbedder{err: errors.New("connection refused")}, store)

	_, err := c.Ingest(context.Background(), "a.txt", []byte("some text"))
	if !errors.Is(err, domain.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("expected no records, got %d", n)
	}
}

func TestIngest_StoreFailure(t *testing.T) {
	store := &failingStore{MemoryStore: newMemoryStore(t), err: errors.New("qdrant down")}
	c := newCoordinator(t, hashembed.New(32), store)

	_, err := c.Ingest(context.Background(), "a.txt", []byte("some text"))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestReset(t *testing.T) {
	store := newMemoryStore(t)
	c := newCoordinator(t, hashembed.New(32), store)
	ctx := context.Background()
	_, _ = c.Ingest(ctx, "a.txt", []byte("content to forget"))

	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := c.Count(ctx); n != 0 {
		t.Fatalf("expected empty collection, got %d", n)
	}
	res, _ := store.Search(ctx, make([]float32, 32), 4)
	if len(res) != 0 {
		t.Fatalf("expected empty search after reset, got %v", res)
	}
}

func TestReset_WaitsForIngest(t *testing.T) {
	store := newMemoryStore(t)
	emb := &countingEmbedder{inner: hashembed.New(32), gate: make(chan struct{})}
	c := newCoordinator(t, emb, store)
	ctx := context.Background()

	ingested := make(chan error, 1)
	go func() {
		_, err := c.Ingest(ctx, "a.txt", []byte("slow document"))
		ingested <- err
	}()
	for emb.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	reset := make(chan error, 1)
	go func() { reset <- c.Reset(ctx) }()

	select {
	case <-reset:
		t.Fatal("reset completed while an ingest was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(emb.gate)
	if err := <-ingested; err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := <-reset; err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := c.Count(ctx); n != 0 {
		t.Fatalf("reset ran after the ingest, expected 0 records, got %d", n)
	}
}

func TestIngest_PublishesEventsAndMetrics(t *testing.T) {
	nc := natstest.Start(t)
	events := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe(EventsSubject, events)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	reg := metrics.New()
	c := NewCoordinator(Deps{
		Embedder: hashembed.New(16),
		Store:    newMemoryStore(t),
		Events:   nc,
		Metrics:  reg,
	})
	ctx := context.Background()
	n, err := c.Ingest(ctx, "a.txt", []byte("hello events"))
	if err != nil {
		t.Fatal(err)
	}
	_, _ = c.Ingest(ctx, "bad.doc", []byte("x"))
	if err := c.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	var got []Event
	for len(got) < 2 {
		select {
		case msg := <-events:
			var ev Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				t.Fatal(err)
			}
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %d events", len(got))
		}
	}
	if got[0].Type != EventIngestCompleted || got[0].Filename != "a.txt" || got[0].Chunks != n || got[0].At.IsZero() {
		t.Fatalf("unexpected ingest event %+v", got[0])
	}
	if got[1].Type != EventCollectionReset {
		t.Fatalf("unexpected reset event %+v", got[1])
	}

	out := reg.Render()
	for _, want := range []string{
		`ragchat_ingest_total{result="ok"} 1`,
		`ragchat_ingest_total{result="error"} 1`,
		`ragchat_reset_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q:\n%s", want, out)
		}
	}
}

func TestMessage(t *testing.T) {
	if got := Message("notes.txt", 3); got != "Ingested 3 chunks from notes.txt." {
		t.Fatalf("unexpected message %q", got)
	}
}
