// Package memory implements the layered memory model: one working
// memory per chat, append-only episodic events, and per-character
// semantic facts, with embedding-backed retrieval over the latter two.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/aichatlibre/memcore/internal/embedding"
	"github.com/aichatlibre/memcore/internal/index"
	"github.com/aichatlibre/memcore/internal/model"
	"github.com/aichatlibre/memcore/internal/store"
)

const (
	defaultImportance      = 5
	defaultConfidence      = 0.8
	defaultEpisodicLimit   = 20
	defaultSearchTopK      = 5
	defaultSearchThreshold = 0.5
)

// Manager owns memory records and the vector index over them. The
// embedder is optional; without one every retrieval degrades to empty
// results and adds skip indexing.
type Manager struct {
	store    store.Store
	idx      *index.Index
	embedder embedding.Embedder
	log      logrus.FieldLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithEmbedder sets the embedding provider.
func WithEmbedder(e embedding.Embedder) Option {
	return func(m *Manager) { m.embedder = e }
}

// WithLogger sets the manager's logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// New creates a Manager over the given store.
func New(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		idx:   index.New(),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetEmbedder swaps the embedding provider. The index should be
// cleared and reloaded afterwards if the model or dimension changed.
func (m *Manager) SetEmbedder(e embedding.Embedder) {
	m.embedder = e
}

// WorkingMemory returns the working memory for a chat, or nil if none
// has been written yet.
func (m *Manager) WorkingMemory(ctx context.Context, chatID string) (*model.WorkingMemory, error) {
	wm, err := m.store.WorkingMemory(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get working memory: %w", err)
	}
	return wm, nil
}

// UpdateWorkingMemory overwrites the chat's summary and key points,
// inserting the record if it does not exist.
func (m *Manager) UpdateWorkingMemory(ctx context.Context, chatID, summary string, keyPoints []string) (*model.WorkingMemory, error) {
	wm, err := m.store.UpsertWorkingMemory(ctx, &model.WorkingMemory{
		ChatID:    chatID,
		Summary:   summary,
		KeyPoints: keyPoints,
	})
	if err != nil {
		return nil, fmt.Errorf("update working memory: %w", err)
	}
	return wm, nil
}

// EpisodicParams holds caller input for AddEpisodicMemory.
type EpisodicParams struct {
	ChatID       string
	Event        string
	Participants []string
	Emotion      string
	Importance   int // 0 means default (5)
}

// AddEpisodicMemory appends an episodic memory, then indexes its
// embedding best-effort: an embedding failure is logged and swallowed,
// the stored record stands either way.
func (m *Manager) AddEpisodicMemory(ctx context.Context, p EpisodicParams) (*model.EpisodicMemory, error) {
	if p.Importance == 0 {
		p.Importance = defaultImportance
	}
	if p.Importance < 1 || p.Importance > 10 {
		return nil, fmt.Errorf("importance %d out of range 1-10", p.Importance)
	}

	mem, err := m.store.AddEpisodic(ctx, store.EpisodicParams{
		ChatID:       p.ChatID,
		Event:        p.Event,
		Participants: p.Participants,
		Emotion:      p.Emotion,
		Importance:   p.Importance,
	})
	if err != nil {
		return nil, fmt.Errorf("add episodic memory: %w", err)
	}

	m.indexText(ctx, mem.ID, mem.Event, index.EpisodicMetadata{
		ChatID:     mem.ChatID,
		Importance: mem.Importance,
		Emotion:    mem.Emotion,
	})
	return mem, nil
}

// EpisodicMemories returns a chat's episodic memories ordered by
// importance descending, capped at limit (default 20).
func (m *Manager) EpisodicMemories(ctx context.Context, chatID string, limit int) ([]model.EpisodicMemory, error) {
	if limit <= 0 {
		limit = defaultEpisodicLimit
	}
	mems, err := m.store.EpisodicByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get episodic memories: %w", err)
	}
	sort.SliceStable(mems, func(i, j int) bool {
		return mems[i].Importance > mems[j].Importance
	})
	if len(mems) > limit {
		mems = mems[:limit]
	}
	return mems, nil
}

// SemanticParams holds caller input for AddSemanticMemory. Confidence
// is a pointer so an explicit 0 stays distinct from unset.
type SemanticParams struct {
	CharacterID string
	Fact        string
	Category    string
	Confidence  *float64 // nil means default (0.8)
	Source      string
}

// AddSemanticMemory appends a semantic memory with the same best-effort
// indexing as AddEpisodicMemory.
func (m *Manager) AddSemanticMemory(ctx context.Context, p SemanticParams) (*model.SemanticMemory, error) {
	confidence := defaultConfidence
	if p.Confidence != nil {
		confidence = *p.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence %f out of range 0-1", confidence)
	}

	mem, err := m.store.AddSemantic(ctx, store.SemanticParams{
		CharacterID: p.CharacterID,
		Fact:        p.Fact,
		Category:    p.Category,
		Confidence:  confidence,
		Source:      p.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("add semantic memory: %w", err)
	}

	m.indexText(ctx, mem.ID, mem.Fact, index.SemanticMetadata{
		CharacterID: mem.CharacterID,
		Category:    mem.Category,
		Confidence:  mem.Confidence,
	})
	return mem, nil
}

// SemanticMemories returns a character's semantic memories, optionally
// restricted to one category.
func (m *Manager) SemanticMemories(ctx context.Context, characterID, category string) ([]model.SemanticMemory, error) {
	mems, err := m.store.SemanticByCharacter(ctx, characterID, category)
	if err != nil {
		return nil, fmt.Errorf("get semantic memories: %w", err)
	}
	return mems, nil
}

// indexText embeds text and upserts it into the index. Failures are
// swallowed; the base record has already been persisted.
func (m *Manager) indexText(ctx context.Context, id, text string, meta index.Metadata) {
	if m.embedder == nil {
		return
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.log.WithField("memory_id", id).WithError(err).Warn("embedding failed, memory stored unindexed")
		return
	}
	m.idx.Add(id, vec, meta)
}

// SearchOptions constrains SearchRelevantMemories. All provided
// constraints must match.
type SearchOptions struct {
	ChatID      string
	CharacterID string
	Kinds       []index.Kind
	TopK        int     // 0 means default (5)
	Threshold   float64 // 0 means default (0.5)
}

// SearchHit is one retrieval result. It carries metadata only; the
// record text is fetched from the store by ID when needed.
type SearchHit struct {
	ID    string         `json:"id"`
	Kind  index.Kind     `json:"type"`
	Meta  index.Metadata `json:"metadata"`
	Score float64        `json:"score"`
}

// SearchRelevantMemories embeds the query and searches the index.
// Without an embedder it returns nil immediately, performing no I/O.
// Embedding failures also degrade to empty results.
func (m *Manager) SearchRelevantMemories(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	if m.embedder == nil {
		return nil, nil
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultSearchTopK
	}
	if opts.Threshold == 0 {
		opts.Threshold = defaultSearchThreshold
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.log.WithError(err).Warn("query embedding failed, returning no results")
		return nil, nil
	}

	results, err := m.idx.SearchWithThreshold(vec, opts.Threshold, opts.TopK, searchFilter(opts))
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{
			ID:    r.Entry.ID,
			Kind:  r.Entry.Meta.MemoryKind(),
			Meta:  r.Entry.Meta,
			Score: r.Score,
		}
	}
	return hits, nil
}

// searchFilter builds the AND-composed metadata predicate. A constraint
// an entry's metadata cannot express fails that entry.
func searchFilter(opts SearchOptions) func(index.Entry) bool {
	return func(e index.Entry) bool {
		if len(opts.Kinds) > 0 {
			ok := false
			for _, k := range opts.Kinds {
				if e.Meta.MemoryKind() == k {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		if opts.ChatID != "" {
			em, ok := e.Meta.(index.EpisodicMetadata)
			if !ok || em.ChatID != opts.ChatID {
				return false
			}
		}
		if opts.CharacterID != "" {
			sm, ok := e.Meta.(index.SemanticMetadata)
			if !ok || sm.CharacterID != opts.CharacterID {
				return false
			}
		}
		return true
	}
}

// LoadIndex re-embeds stored records and bulk-loads the index. This is
// the recovery path after a restart; the index is never persisted as
// part of normal operation. Empty chatID/characterID load everything.
// Per-item embedding failures are skipped.
func (m *Manager) LoadIndex(ctx context.Context, chatID, characterID string) error {
	if m.embedder == nil {
		return nil
	}

	var episodic []model.EpisodicMemory
	var err error
	if chatID != "" {
		episodic, err = m.store.EpisodicByChat(ctx, chatID)
	} else {
		episodic, err = m.store.AllEpisodic(ctx)
	}
	if err != nil {
		return fmt.Errorf("load episodic memories: %w", err)
	}

	var semantic []model.SemanticMemory
	if characterID != "" {
		semantic, err = m.store.SemanticByCharacter(ctx, characterID, "")
	} else {
		semantic, err = m.store.AllSemantic(ctx)
	}
	if err != nil {
		return fmt.Errorf("load semantic memories: %w", err)
	}

	loaded := 0
	for _, mem := range episodic {
		vec, err := m.embedder.Embed(ctx, mem.Event)
		if err != nil {
			m.log.WithField("memory_id", mem.ID).WithError(err).Debug("skipping unembeddable memory")
			continue
		}
		m.idx.Add(mem.ID, vec, index.EpisodicMetadata{
			ChatID:     mem.ChatID,
			Importance: mem.Importance,
			Emotion:    mem.Emotion,
		})
		loaded++
	}
	for _, mem := range semantic {
		vec, err := m.embedder.Embed(ctx, mem.Fact)
		if err != nil {
			m.log.WithField("memory_id", mem.ID).WithError(err).Debug("skipping unembeddable memory")
			continue
		}
		m.idx.Add(mem.ID, vec, index.SemanticMetadata{
			CharacterID: mem.CharacterID,
			Category:    mem.Category,
			Confidence:  mem.Confidence,
		})
		loaded++
	}

	m.log.WithField("count", loaded).Debug("index loaded")
	return nil
}

// ClearIndex drops every vector entry. Run before a full LoadIndex
// when the embedding model or dimension changes.
func (m *Manager) ClearIndex() {
	m.idx.Clear()
}

// IndexSize reports the number of indexed vectors.
func (m *Manager) IndexSize() int {
	return m.idx.Size()
}
