package memory

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/aichatlibre/memcore/internal/embedding"
	"github.com/aichatlibre/memcore/internal/index"
	"github.com/aichatlibre/memcore/internal/store"
)

// stubEmbedder returns a fixed vector per known text and fails on
// anything else.
type stubEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return nil, embedding.ErrUnavailable
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// failIfCalled fails the test on any embedding attempt.
type failIfCalled struct {
	t *testing.T
}

func (f *failIfCalled) Embed(ctx context.Context, text string) ([]float32, error) {
	f.t.Fatal("embedder invoked when it must not be")
	return nil, nil
}

func (f *failIfCalled) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	f.t.Fatal("embedder invoked when it must not be")
	return nil, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(store.NewMem(), opts...)
}

func TestWorkingMemoryLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	wm, err := m.WorkingMemory(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if wm != nil {
		t.Fatalf("expected nil before first write, got %+v", wm)
	}

	first, err := m.UpdateWorkingMemory(ctx, "chat-1", "met at the tavern", []string{"tavern"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	second, err := m.UpdateWorkingMemory(ctx, "chat-1", "left the tavern", nil)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert changed identity: %s -> %s", first.ID, second.ID)
	}

	got, _ := m.WorkingMemory(ctx, "chat-1")
	if got == nil || got.Summary != "left the tavern" {
		t.Errorf("expected overwritten summary, got %+v", got)
	}
}

func TestAddEpisodicMemoryDefaultsAndValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	mem, err := m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-1", Event: "something happened"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if mem.Importance != 5 {
		t.Errorf("default importance = %d, want 5", mem.Importance)
	}

	if _, err := m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-1", Event: "x", Importance: 11}); err == nil {
		t.Error("expected error for importance 11")
	}
}

func TestEpisodicMemoriesOrderAndLimit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, imp := range []int{3, 9, 5} {
		if _, err := m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-1", Event: "event", Importance: imp}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	mems, err := m.EpisodicMemories(ctx, "chat-1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(mems) != 3 {
		t.Fatalf("expected 3 memories, got %d", len(mems))
	}
	if mems[0].Importance != 9 || mems[1].Importance != 5 || mems[2].Importance != 3 {
		t.Errorf("expected importance-descending order, got %d,%d,%d",
			mems[0].Importance, mems[1].Importance, mems[2].Importance)
	}

	capped, _ := m.EpisodicMemories(ctx, "chat-1", 2)
	if len(capped) != 2 || capped[0].Importance != 9 {
		t.Errorf("limit not applied to top results: %+v", capped)
	}
}

func confidence(v float64) *float64 { return &v }

func TestAddSemanticMemoryDefaultsAndValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	mem, err := m.AddSemanticMemory(ctx, SemanticParams{CharacterID: "char-1", Fact: "likes rain", Category: "preferences"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if mem.Confidence != 0.8 {
		t.Errorf("default confidence = %f, want 0.8", mem.Confidence)
	}

	// An explicit zero is a valid confidence, not a request for the
	// default.
	zero, err := m.AddSemanticMemory(ctx, SemanticParams{CharacterID: "char-1", Fact: "unverified rumor", Confidence: confidence(0)})
	if err != nil {
		t.Fatalf("add with confidence 0: %v", err)
	}
	if zero.Confidence != 0 {
		t.Errorf("explicit confidence 0 became %f", zero.Confidence)
	}

	if _, err := m.AddSemanticMemory(ctx, SemanticParams{CharacterID: "char-1", Fact: "x", Confidence: confidence(1.5)}); err == nil {
		t.Error("expected error for confidence 1.5")
	}

	byCat, err := m.SemanticMemories(ctx, "char-1", "preferences")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(byCat) != 1 {
		t.Errorf("expected 1 memory in category, got %d", len(byCat))
	}
}

func TestAddSurvivesEmbeddingFailure(t *testing.T) {
	// No vectors registered: every Embed call fails.
	m := newTestManager(t, WithEmbedder(&stubEmbedder{}))
	ctx := context.Background()

	mem, err := m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-1", Event: "unembeddable"})
	if err != nil {
		t.Fatalf("add should swallow embedding failure: %v", err)
	}
	if mem == nil || mem.ID == "" {
		t.Fatal("expected persisted record despite embedding failure")
	}
	if m.IndexSize() != 0 {
		t.Errorf("expected nothing indexed, got %d", m.IndexSize())
	}
}

func TestSearchWithoutEmbedderDoesNoIO(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	hits, err := m.SearchRelevantMemories(ctx, "anything", SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != nil {
		t.Errorf("expected nil hits, got %v", hits)
	}

	// The same guarantee holds for a configured-then-removed embedder:
	// a nil embedder is never touched.
	m2 := New(store.NewMem(), WithLogger(quietLogger()), WithEmbedder(&failIfCalled{t: t}))
	m2.SetEmbedder(nil)
	if _, err := m2.SearchRelevantMemories(ctx, "anything", SearchOptions{}); err != nil {
		t.Fatalf("search: %v", err)
	}
}

func TestSearchRelevantMemories(t *testing.T) {
	stub := &stubEmbedder{vectors: map[string][]float32{
		"found the hidden door": {1, 0},
		"a quiet afternoon":     {0, 1},
		"likes rain":            {0.9, 0.1},
		"door":                  {1, 0},
	}}
	m := newTestManager(t, WithEmbedder(stub))
	ctx := context.Background()

	m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-1", Event: "found the hidden door", Importance: 8})
	m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-2", Event: "a quiet afternoon"})
	m.AddSemanticMemory(ctx, SemanticParams{CharacterID: "char-1", Fact: "likes rain", Category: "preferences"})

	hits, err := m.SearchRelevantMemories(ctx, "door", SearchOptions{Threshold: 0.8})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits above threshold, got %d", len(hits))
	}
	if hits[0].Kind != index.KindEpisodic || hits[0].Score < hits[1].Score {
		t.Errorf("expected best episodic hit first: %+v", hits)
	}

	// chatId constraint excludes semantic entries entirely.
	scoped, err := m.SearchRelevantMemories(ctx, "door", SearchOptions{ChatID: "chat-1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(scoped) != 1 {
		t.Fatalf("expected 1 scoped hit, got %d", len(scoped))
	}
	meta, ok := scoped[0].Meta.(index.EpisodicMetadata)
	if !ok || meta.ChatID != "chat-1" || meta.Importance != 8 {
		t.Errorf("expected metadata carried on hit, got %+v", scoped[0].Meta)
	}

	// Kind constraint.
	semOnly, err := m.SearchRelevantMemories(ctx, "door", SearchOptions{Kinds: []index.Kind{index.KindSemantic}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(semOnly) != 1 || semOnly[0].Kind != index.KindSemantic {
		t.Errorf("expected only semantic hits, got %+v", semOnly)
	}
}

func TestSearchDegradesOnEmbeddingFailure(t *testing.T) {
	stub := &stubEmbedder{vectors: map[string][]float32{"event": {1, 0}}}
	m := newTestManager(t, WithEmbedder(stub))
	ctx := context.Background()

	m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-1", Event: "event"})

	hits, err := m.SearchRelevantMemories(ctx, "query the stub does not know", SearchOptions{})
	if err != nil {
		t.Fatalf("expected degradation, not error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestLoadIndexRebuilds(t *testing.T) {
	stub := &stubEmbedder{vectors: map[string][]float32{
		"event one": {1, 0},
		"fact one":  {0, 1},
	}}
	m := newTestManager(t, WithEmbedder(stub))
	ctx := context.Background()

	m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-1", Event: "event one"})
	m.AddEpisodicMemory(ctx, EpisodicParams{ChatID: "chat-1", Event: "unembeddable event"})
	m.AddSemanticMemory(ctx, SemanticParams{CharacterID: "char-1", Fact: "fact one"})

	m.ClearIndex()
	if m.IndexSize() != 0 {
		t.Fatalf("expected empty index, got %d", m.IndexSize())
	}

	if err := m.LoadIndex(ctx, "", ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	// The unembeddable record is skipped, not fatal.
	if m.IndexSize() != 2 {
		t.Errorf("expected 2 indexed after reload, got %d", m.IndexSize())
	}
}

func TestLoadIndexWithoutEmbedderIsNoop(t *testing.T) {
	m := newTestManager(t)
	if err := m.LoadIndex(context.Background(), "", ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.IndexSize() != 0 {
		t.Errorf("expected empty index, got %d", m.IndexSize())
	}
}
